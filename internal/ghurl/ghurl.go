// Package ghurl parses the many ways people write a GitHub repository address.
package ghurl

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for anything that does not name a GitHub repository.
var ErrInvalidURL = errors.New("invalid GitHub repository URL")

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)
	repoPattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Ref identifies a repository.
type Ref struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// FullName returns "owner/repo" as written by the user.
func (r Ref) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Key returns the case-insensitive identity used for caching.
func (r Ref) Key() string {
	return strings.ToLower(r.FullName())
}

// HTMLURL returns the canonical web address.
func (r Ref) HTMLURL() string {
	return "https://github.com/" + r.FullName()
}

func (r Ref) String() string {
	return r.FullName()
}

// Parse extracts owner and repository from a GitHub URL, an SSH remote, or
// the owner/repo shorthand.
func Parse(raw string) (Ref, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	var path string
	switch {
	case strings.HasPrefix(s, "git@"):
		host, rest, ok := strings.Cut(strings.TrimPrefix(s, "git@"), ":")
		if !ok || !isGitHubHost(host) {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
		}
		path = rest
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		if (u.Scheme != "https" && u.Scheme != "http") || !isGitHubHost(u.Hostname()) {
			return Ref{}, fmt.Errorf("%w: %q is not a github.com address", ErrInvalidURL, raw)
		}
		path = u.Path
	default:
		host, rest, _ := strings.Cut(s, "/")
		if isGitHubHost(host) {
			path = rest
		} else if strings.Contains(host, ".") {
			return Ref{}, fmt.Errorf("%w: %q is not a github.com address", ErrInvalidURL, raw)
		} else {
			path = s
		}
	}

	// query strings and fragments only survive in the scheme-less forms
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return Ref{}, fmt.Errorf("%w: missing repository name in %q", ErrInvalidURL, raw)
	}

	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")

	if len(owner) > 39 || !ownerPattern.MatchString(owner) {
		return Ref{}, fmt.Errorf("%w: invalid owner %q", ErrInvalidURL, owner)
	}
	if !repoPattern.MatchString(repo) || repo == "." || repo == ".." {
		return Ref{}, fmt.Errorf("%w: invalid repository %q", ErrInvalidURL, repo)
	}

	return Ref{Owner: owner, Repo: repo}, nil
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || host == "www.github.com"
}
