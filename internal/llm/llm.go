// Package llm talks to Gemini.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	rserrors "reposcope/internal/errors"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Model reports a fixed name for function-backed generators.
func (f GeneratorFunc) Model() string { return "func" }

// Options configures the Gemini client.
type Options struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	MaxRetries      int
	Timeout         time.Duration
	InitialBackoff  time.Duration
	// JSON asks the model for application/json output.
	JSON bool
	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// DefaultOptions returns the standard generation settings.
func DefaultOptions() Options {
	return Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.2,
		MaxOutputTokens: 8192,
		MaxRetries:      3,
		Timeout:         120 * time.Second,
		InitialBackoff:  time.Second,
		JSON:            true,
	}
}

// GeminiClient generates content with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	opts   Options
	logger *slog.Logger
}

// NewGeminiClient creates a client. The API key is required.
func NewGeminiClient(ctx context.Context, opts Options, logger *slog.Logger) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, rserrors.New(rserrors.LLMUnavailable, "GEMINI_API_KEY is not configured", nil)
	}
	d := DefaultOptions()
	if opts.Model == "" {
		opts.Model = d.Model
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = d.MaxOutputTokens
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = d.InitialBackoff
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, opts: opts, logger: logger}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.opts.Model
}

// Generate sends prompt and returns the text of the first candidate.
// Transient failures are retried with exponential backoff.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.opts.Temperature),
		MaxOutputTokens: c.opts.MaxOutputTokens,
	}
	if c.opts.JSON {
		config.ResponseMIMEType = "application/json"
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	backoff := c.opts.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying Gemini request",
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr.Error(),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, err := c.generateOnce(ctx, contents, config)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	if rserrors.Is(lastErr, rserrors.LLMEmptyResponse) {
		return "", lastErr
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return "", rserrors.New(rserrors.Timeout, "Gemini request timed out", lastErr)
	}
	return "", rserrors.New(rserrors.LLMUnavailable, "Gemini request failed", lastErr)
}

func (c *GeminiClient) generateOnce(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", rserrors.New(rserrors.LLMEmptyResponse,
			fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason), nil)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := "no candidates"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			reason = "finish reason " + string(resp.Candidates[0].FinishReason)
		}
		return "", rserrors.New(rserrors.LLMEmptyResponse, "Gemini returned an empty response ("+reason+")", nil)
	}

	c.logger.Debug("Gemini response received",
		"model", c.opts.Model,
		"chars", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}

// isRetryable reports whether err is a rate limit, server overload or timeout.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code := statusCode(err); code != 0 {
		return code == http.StatusTooManyRequests ||
			code == http.StatusInternalServerError ||
			code == http.StatusServiceUnavailable
	}
	return false
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
