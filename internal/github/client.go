package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/time/rate"

	"reposcope/internal/ghurl"
	"reposcope/internal/version"
)

// Options configures a Client.
type Options struct {
	Token             string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Transport         http.RoundTripper
}

// Client wraps go-github with request pacing and error mapping.
type Client struct {
	gh     *gogithub.Client
	logger *slog.Logger
}

// NewClient creates a GitHub client. An empty token uses anonymous access,
// which GitHub limits to 60 requests per hour.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &pacedTransport{base: base, limiter: rate.NewLimiter(limit, burst)},
	}

	gh := gogithub.NewClient(httpClient)
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}
	gh.UserAgent = version.UserAgent()

	if opts.BaseURL != "" {
		baseURL := opts.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		gh.BaseURL = u
	}

	if opts.Token == "" {
		logger.Warn("No GitHub token configured, using anonymous rate limits")
	}

	return &Client{gh: gh, logger: logger}, nil
}

// pacedTransport blocks each request on a shared limiter.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, ref ghurl.Ref) (*Repository, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return nil, mapError(err, ref)
	}

	r := &Repository{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Language:      repo.GetLanguage(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		Topics:        repo.Topics,
		Homepage:      repo.GetHomepage(),
		HTMLURL:       repo.GetHTMLURL(),
		PushedAt:      repo.GetPushedAt().Time,
		SizeKB:        repo.GetSize(),
		Archived:      repo.GetArchived(),
		Fork:          repo.GetFork(),
	}
	if lic := repo.GetLicense(); lic != nil {
		r.License = lic.GetSPDXID()
		if r.License == "" || r.License == "NOASSERTION" {
			r.License = lic.GetName()
		}
	}
	if r.Topics == nil {
		r.Topics = []string{}
	}
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	if r.Owner == "" {
		r.Owner = ref.Owner
	}
	if r.FullName == "" {
		r.FullName = ref.FullName()
	}
	return r, nil
}

// GetTree returns the recursive tree of branch.
func (c *Client) GetTree(ctx context.Context, ref ghurl.Ref, branch string) ([]TreeEntry, bool, error) {
	tree, _, err := c.gh.Git.GetTree(ctx, ref.Owner, ref.Repo, branch, true)
	if err != nil {
		return nil, false, mapError(err, ref)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			Type: e.GetType(),
			Size: e.GetSize(),
		})
	}
	return entries, tree.GetTruncated(), nil
}

// GetLanguages returns bytes of code per language.
func (c *Client) GetLanguages(ctx context.Context, ref ghurl.Ref) (map[string]int, error) {
	langs, _, err := c.gh.Repositories.ListLanguages(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return nil, mapError(err, ref)
	}
	if langs == nil {
		langs = map[string]int{}
	}
	return langs, nil
}

// GetFileContent returns the decoded content of a file at branch.
func (c *Client) GetFileContent(ctx context.Context, ref ghurl.Ref, path, branch string) (string, error) {
	opts := &gogithub.RepositoryContentGetOptions{Ref: branch}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Repo, path, opts)
	if err != nil {
		return "", mapError(err, ref)
	}
	if file == nil {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return file.GetContent()
}
