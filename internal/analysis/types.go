// Package analysis turns a GitHub repository into an architecture
// description: it fetches a snapshot, prompts the model, repairs and
// normalizes the answer, and falls back to a static skeleton when the
// model cannot be used.
package analysis

import (
	"time"

	"reposcope/internal/github"
)

// Analysis is the document returned to clients and persisted.
type Analysis struct {
	Repository              RepositoryInfo           `json:"repository"`
	Summary                 string                   `json:"summary"`
	Architecture            Architecture             `json:"architecture"`
	APIEndpoints            []APIEndpoint            `json:"apiEndpoints"`
	TechStack               TechStack                `json:"techStack"`
	Database                Database                 `json:"database"`
	Services                []ServiceInfo            `json:"services"`
	EnvironmentVariables    []EnvironmentVariable    `json:"environmentVariables"`
	ContributionSuggestions []ContributionSuggestion `json:"contributionSuggestions"`
	KeyFiles                []KeyFile                `json:"keyFiles"`
	Meta                    Meta                     `json:"meta"`
}

// RepositoryInfo identifies the analyzed repository.
type RepositoryInfo struct {
	Owner         string   `json:"owner"`
	Name          string   `json:"name"`
	FullName      string   `json:"fullName"`
	Description   string   `json:"description"`
	URL           string   `json:"url"`
	DefaultBranch string   `json:"defaultBranch"`
	Language      string   `json:"language"`
	Stars         int      `json:"stars"`
	Forks         int      `json:"forks"`
	Topics        []string `json:"topics"`
	License       string   `json:"license,omitempty"`
}

// Architecture is the component graph.
type Architecture struct {
	Pattern     string       `json:"pattern"`
	Components  []Component  `json:"components"`
	Connections []Connection `json:"connections"`
}

// Component is a node of the architecture graph.
type Component struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	Files        []string `json:"files"`
	Layer        *int     `json:"layer,omitempty"`
}

// Connection is a directed edge between two components.
type Connection struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Type   string `json:"type"`
}

// APIEndpoint documents one HTTP route.
type APIEndpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
	Auth        bool   `json:"auth"`
}

// TechStack groups detected technologies.
type TechStack struct {
	Languages      []string `json:"languages"`
	Frameworks     []string `json:"frameworks"`
	Databases      []string `json:"databases"`
	Tools          []string `json:"tools"`
	Infrastructure []string `json:"infrastructure"`
}

// Database describes the persistence schema.
type Database struct {
	Type   string  `json:"type"`
	ORM    string  `json:"orm"`
	Tables []Table `json:"tables"`
}

// Table is one table or collection.
type Table struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Columns     []Column   `json:"columns"`
	Relations   []Relation `json:"relations"`
}

// Column is one table column.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Constraints string `json:"constraints,omitempty"`
}

// Relation links a table to another.
type Relation struct {
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ServiceInfo is a deployable unit or external dependency.
type ServiceInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

// EnvironmentVariable is a configuration input of the repository.
type EnvironmentVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Example     string `json:"example,omitempty"`
}

// Difficulty levels for contribution suggestions.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// ContributionSuggestion is a starter task for new contributors.
type ContributionSuggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	Area        string   `json:"area"`
	Files       []string `json:"files"`
}

// KeyFile points at a file worth reading first.
type KeyFile struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Meta records how the analysis was produced.
type Meta struct {
	GeneratedAt   time.Time `json:"generatedAt"`
	Model         string    `json:"model"`
	FilesAnalyzed int       `json:"filesAnalyzed"`
	Fallback      bool      `json:"fallback"`
	Cached        bool      `json:"cached"`
	Warnings      []string  `json:"warnings"`
	DurationMs    int64     `json:"durationMs"`
}

// Stages reported through Progress.
const (
	StageValidate = "validate"
	StageCache    = "cache"
	StageFetch    = "fetch"
	StageDetect   = "detect"
	StageGenerate = "generate"
	StageParse    = "parse"
	StageSave     = "save"
	StageDone     = "done"
)

// Progress is one step of a running analysis.
type Progress struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// repositoryInfo copies GitHub metadata into the analysis header.
func repositoryInfo(r *github.Repository) RepositoryInfo {
	if r == nil {
		return RepositoryInfo{Topics: []string{}}
	}
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	return RepositoryInfo{
		Owner:         r.Owner,
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		URL:           r.HTMLURL,
		DefaultBranch: r.DefaultBranch,
		Language:      r.Language,
		Stars:         r.Stars,
		Forks:         r.Forks,
		Topics:        topics,
		License:       r.License,
	}
}
