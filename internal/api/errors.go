package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"reposcope/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error       string      `json:"error"`
	Code        string      `json:"code"`
	Details     interface{} `json:"details,omitempty"`
	Remediation string      `json:"remediation,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(errors.InternalError),
	}

	// If it's a RepoScopeError, include additional information
	var rsErr *errors.RepoScopeError
	if stderrors.As(err, &rsErr) {
		resp.Error = rsErr.Message
		resp.Code = string(rsErr.Code)
		resp.Details = rsErr.Details
		resp.Remediation = rsErr.Remediation
	}
	if status >= http.StatusInternalServerError && resp.Code == string(errors.InternalError) {
		// Never leak driver or panic text to clients.
		resp.Error = "internal server error"
	}

	WriteJSON(w, resp, status)
}

// WriteRepoScopeError writes err with automatic status code mapping
func WriteRepoScopeError(w http.ResponseWriter, err error) {
	WriteError(w, err, MapErrorToStatus(errors.CodeOf(err)))
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.InvalidURL, errors.ValidationFailed:
		return http.StatusBadRequest // 400
	case errors.Unauthorized:
		return http.StatusUnauthorized // 401
	case errors.Forbidden:
		return http.StatusForbidden // 403
	case errors.RepoNotFound, errors.AnalysisNotFound:
		return http.StatusNotFound // 404
	case errors.Conflict:
		return http.StatusConflict // 409
	case errors.RateLimited:
		return http.StatusTooManyRequests // 429
	case errors.GitHubUnauthorized, errors.GitHubUnavailable, errors.LLMUnavailable, errors.LLMEmptyResponse:
		return http.StatusBadGateway // 502
	case errors.Timeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.ValidationFailed, message, nil), http.StatusBadRequest)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteError(w, errors.New(errors.InternalError, message, err), http.StatusInternalServerError)
}

// publicMessage returns the client-facing text of err.
func publicMessage(err error) string {
	var rsErr *errors.RepoScopeError
	if stderrors.As(err, &rsErr) && rsErr.Code != errors.InternalError {
		return rsErr.Message
	}
	return "internal server error"
}
