// Package storage persists users and analyses.
//
// Three backends implement Store: SQLite (the default), PostgreSQL and an
// in-memory map for single-process deployments and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned when a user or analysis does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken is returned by CreateUser on a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// User is a registered account. Usernames are unique ignoring case.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AnalysisRecord is a stored analysis. Data holds the analysis JSON and is
// left empty by ListAnalyses.
type AnalysisRecord struct {
	ID        int64     `json:"id"`
	RepoKey   string    `json:"repoKey"`
	Owner     string    `json:"owner"`
	Repo      string    `json:"repo"`
	UserID    *int64    `json:"userId,omitempty"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model"`
	Fallback  bool      `json:"fallback"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListFilter selects analyses for ListAnalyses.
type ListFilter struct {
	// UserID restricts results to one owner; nil lists everything.
	UserID *int64
	Limit  int
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store is implemented by every backend.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// SaveAnalysis inserts or replaces the analysis for rec.RepoKey and
	// fills in rec.ID and the timestamps. A nil rec.UserID keeps the
	// previous owner.
	SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error
	GetAnalysisByRepo(ctx context.Context, repoKey string) (*AnalysisRecord, error)
	GetAnalysis(ctx context.Context, id int64) (*AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter ListFilter) ([]AnalysisRecord, error)
	// DeleteAnalysis removes analysis id if it belongs to userID.
	DeleteAnalysis(ctx context.Context, id, userID int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	Path        string
	DatabaseURL string
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(opts.Path, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL, logger)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
