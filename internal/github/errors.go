package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gogithub "github.com/google/go-github/v68/github"

	rserrors "reposcope/internal/errors"
	"reposcope/internal/ghurl"
)

// mapError converts go-github failures into RepoScope error codes.
func mapError(err error, ref ghurl.Ref) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return rserrors.New(rserrors.Timeout, "GitHub request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		reset := rateErr.Rate.Reset.Time
		return rserrors.New(rserrors.RateLimited, "GitHub API rate limit exceeded", err).
			WithDetails(map[string]interface{}{"resetAt": reset})
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		details := map[string]interface{}{}
		if abuseErr.RetryAfter != nil {
			details["retryAfterSeconds"] = int(abuseErr.RetryAfter.Seconds())
		}
		return rserrors.New(rserrors.RateLimited, "GitHub secondary rate limit hit", err).WithDetails(details)
	}

	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return rserrors.New(rserrors.RepoNotFound,
				fmt.Sprintf("repository %s not found or not public", ref.FullName()), err)
		case http.StatusUnauthorized:
			return rserrors.New(rserrors.GitHubUnauthorized, "GitHub rejected the configured token", err)
		case http.StatusForbidden:
			// exhausted quotas arrive as RateLimitError above
			return rserrors.New(rserrors.Forbidden, "GitHub denied access to the resource", err)
		case http.StatusTooManyRequests:
			return rserrors.New(rserrors.RateLimited, "GitHub API rate limit exceeded", err)
		}
		return rserrors.New(rserrors.GitHubUnavailable,
			fmt.Sprintf("GitHub returned HTTP %d", respErr.Response.StatusCode), err)
	}

	return rserrors.New(rserrors.GitHubUnavailable, "GitHub API unreachable", err)
}
