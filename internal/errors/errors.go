package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InvalidURL indicates the input is not a recognizable GitHub repository URL
	InvalidURL ErrorCode = "INVALID_URL"
	// RepoNotFound indicates the repository does not exist or is private
	RepoNotFound ErrorCode = "REPO_NOT_FOUND"
	// RateLimited indicates GitHub or the local limiter rejected the request
	RateLimited ErrorCode = "RATE_LIMITED"
	// GitHubUnauthorized indicates the configured GitHub token was rejected
	GitHubUnauthorized ErrorCode = "GITHUB_UNAUTHORIZED"
	// GitHubUnavailable indicates GitHub could not be reached
	GitHubUnavailable ErrorCode = "GITHUB_UNAVAILABLE"
	// LLMUnavailable indicates the model API failed after retries
	LLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// LLMEmptyResponse indicates the model returned no usable candidate
	LLMEmptyResponse ErrorCode = "LLM_EMPTY_RESPONSE"
	// AnalysisNotFound indicates no cached analysis exists for the repository
	AnalysisNotFound ErrorCode = "ANALYSIS_NOT_FOUND"
	// Unauthorized indicates a missing or invalid session
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// Forbidden indicates the session, or GitHub, denied access to the resource
	Forbidden ErrorCode = "FORBIDDEN"
	// Conflict indicates a uniqueness violation (e.g. username taken)
	Conflict ErrorCode = "CONFLICT"
	// ValidationFailed indicates a malformed request body or parameter
	ValidationFailed ErrorCode = "VALIDATION_FAILED"
	// Timeout indicates the operation exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// RepoScopeError represents an error with a stable code, message and remediation hint
type RepoScopeError struct {
	Code        ErrorCode   `json:"code"`
	Message     string      `json:"message"`
	Details     interface{} `json:"details,omitempty"`
	Remediation string      `json:"remediation,omitempty"`
	cause       error       // Underlying error (not exported to JSON)
}

// New creates a new RepoScopeError. The remediation hint is filled from
// the default table for the code.
func New(code ErrorCode, message string, cause error) *RepoScopeError {
	return &RepoScopeError{
		Code:        code,
		Message:     message,
		Remediation: Remediations[code],
		cause:       cause,
	}
}

// Error implements the error interface
func (e *RepoScopeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RepoScopeError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *RepoScopeError) WithDetails(details interface{}) *RepoScopeError {
	e.Details = details
	return e
}

// Remediations maps error codes to a short hint shown to API clients
var Remediations = map[ErrorCode]string{
	InvalidURL:         "Use a URL like https://github.com/owner/repo",
	RepoNotFound:       "Check the repository name; private repositories are not supported",
	RateLimited:        "Wait for the rate limit window to reset or configure GITHUB_TOKEN",
	GitHubUnauthorized: "Check that GITHUB_TOKEN is valid and not expired",
	LLMUnavailable:     "Check GEMINI_API_KEY and retry in a moment",
	Forbidden:          "The resource is not accessible with the current credentials",
}

// CodeOf returns the code of the first RepoScopeError in err's chain,
// or InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var rsErr *RepoScopeError
	if errors.As(err, &rsErr) {
		return rsErr.Code
	}
	return InternalError
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var rsErr *RepoScopeError
	if errors.As(err, &rsErr) {
		return rsErr.Code == code
	}
	return false
}
