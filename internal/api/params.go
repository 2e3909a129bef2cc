package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"reposcope/internal/errors"
	"reposcope/internal/ghurl"
	"reposcope/internal/storage"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.New(errors.ValidationFailed, "request body is required", nil)
		}
		return errors.New(errors.ValidationFailed, "invalid JSON body", err)
	}
	return nil
}

// parseBool accepts the usual spellings of a boolean query flag.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// parseLimit reads ?limit=; zero means the store default.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New(errors.ValidationFailed, "limit must be a non-negative integer", err)
	}
	if limit > storage.MaxListLimit {
		limit = storage.MaxListLimit
	}
	return limit, nil
}

// pathRef builds a repository reference from {owner}/{repo} path values.
func pathRef(r *http.Request) (ghurl.Ref, error) {
	return repoRef(r.PathValue("owner"), r.PathValue("repo"))
}

func repoRef(owner, repo string) (ghurl.Ref, error) {
	if owner == "" || repo == "" {
		return ghurl.Ref{}, errors.New(errors.ValidationFailed, "owner and repo are required", nil)
	}
	ref, err := ghurl.Parse(owner + "/" + repo)
	if err != nil {
		return ghurl.Ref{}, errors.New(errors.InvalidURL, fmt.Sprintf("invalid repository %s/%s", owner, repo), err)
	}
	return ref, nil
}
