// Package github fetches repository metadata and a sample of source files
// from the GitHub REST API.
package github

import (
	"time"

	"reposcope/internal/ghurl"
)

// Repository is the subset of repository metadata RepoScope uses.
type Repository struct {
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"fullName"`
	Description   string    `json:"description"`
	DefaultBranch string    `json:"defaultBranch"`
	Language      string    `json:"language"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	OpenIssues    int       `json:"openIssues"`
	Topics        []string  `json:"topics"`
	License       string    `json:"license,omitempty"`
	Homepage      string    `json:"homepage,omitempty"`
	HTMLURL       string    `json:"htmlUrl"`
	PushedAt      time.Time `json:"pushedAt,omitempty"`
	SizeKB        int       `json:"sizeKb"`
	Archived      bool      `json:"archived"`
	Fork          bool      `json:"fork"`
}

// Entry types in a git tree.
const (
	EntryBlob = "blob"
	EntryTree = "tree"
)

// TreeEntry is one path of the recursive tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

// File is a fetched, possibly truncated, source file.
type File struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int    `json:"size"`
	Truncated bool   `json:"truncated,omitempty"`
}

// SkippedFile records a selected file that could not be fetched.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Snapshot is everything fetched for one analysis.
type Snapshot struct {
	Ref           ghurl.Ref      `json:"ref"`
	Repository    *Repository    `json:"repository"`
	Tree          []TreeEntry    `json:"tree"`
	TreeTruncated bool           `json:"treeTruncated"`
	Languages     map[string]int `json:"languages"`
	Files         []File         `json:"files"`
	Skipped       []SkippedFile  `json:"skipped,omitempty"`
}

// FetchOptions bounds how much of a repository is pulled.
type FetchOptions struct {
	MaxFiles     int
	MaxFileBytes int
	MaxFileChars int
	BatchSize    int
}

// DefaultFetchOptions returns the standard limits.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		MaxFiles:     25,
		MaxFileBytes: 100000,
		MaxFileChars: 8000,
		BatchSize:    5,
	}
}

func (o FetchOptions) withDefaults() FetchOptions {
	d := DefaultFetchOptions()
	if o.MaxFiles <= 0 {
		o.MaxFiles = d.MaxFiles
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = d.MaxFileBytes
	}
	if o.MaxFileChars <= 0 {
		o.MaxFileChars = d.MaxFileChars
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	return o
}

// FetchProgress reports snapshot progress. Total is zero outside the file phase.
type FetchProgress struct {
	Message string
	Done    int
	Total   int
}
