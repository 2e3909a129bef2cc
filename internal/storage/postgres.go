package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (lower(username))`,
	`CREATE TABLE IF NOT EXISTS analyses (
		id BIGSERIAL PRIMARY KEY,
		repo_key TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		repo TEXT NOT NULL,
		user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		summary TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		fallback BOOLEAN NOT NULL DEFAULT false,
		data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_updated_at ON analyses (updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses (user_id, updated_at)`,
}

// PostgresStore is the Store backend for shared deployments.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to databaseURL and creates the schema if needed.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres driver requires a database URL")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range postgresSchema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}
		var version int
		err := tx.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_, err = tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", currentSchemaVersion)
			if err == nil {
				s.logger.Info("Database schema initialized", "version", currentSchemaVersion)
			}
			return err
		case err != nil:
			return err
		case version < currentSchemaVersion:
			s.logger.Info("Running database migrations", "from_version", version, "to_version", currentSchemaVersion)
			_, err = tx.Exec(ctx, "UPDATE schema_version SET version = $1", currentSchemaVersion)
			return err
		}
		return nil
	})
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	u := User{Username: username, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, created_at",
		username, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "lower(username) = lower($1)", username)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE "+where, arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO analyses (repo_key, owner, repo, user_id, summary, model, fallback, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (repo_key) DO UPDATE SET
			owner = EXCLUDED.owner,
			repo = EXCLUDED.repo,
			user_id = COALESCE(EXCLUDED.user_id, analyses.user_id),
			summary = EXCLUDED.summary,
			model = EXCLUDED.model,
			fallback = EXCLUDED.fallback,
			data = EXCLUDED.data,
			updated_at = now()
		RETURNING id, user_id, created_at, updated_at
	`, rec.RepoKey, rec.Owner, rec.Repo, rec.UserID, rec.Summary, rec.Model, rec.Fallback,
		compressBlob(rec.Data),
	).Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisByRepo(ctx context.Context, repoKey string) (*AnalysisRecord, error) {
	return s.getAnalysis(ctx, "repo_key = $1", repoKey)
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id int64) (*AnalysisRecord, error) {
	return s.getAnalysis(ctx, "id = $1", id)
}

func (s *PostgresStore) getAnalysis(ctx context.Context, where string, arg interface{}) (*AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+analysisColumns+", data FROM analyses WHERE "+where, arg)
	rec, err := scanPgAnalysis(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter ListFilter) ([]AnalysisRecord, error) {
	query := "SELECT " + analysisColumns + ", NULL::bytea FROM analyses"
	args := []interface{}{filter.limit()}
	if filter.UserID != nil {
		query += " WHERE user_id = $2"
		args = append(args, *filter.UserID)
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT $1"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := []AnalysisRecord{}
	for rows.Next() {
		rec, err := scanPgAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("list analyses: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id, userID int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM analyses WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgAnalysis(row pgx.Row) (*AnalysisRecord, error) {
	var (
		rec  AnalysisRecord
		data []byte
		err  error
	)
	err = row.Scan(&rec.ID, &rec.RepoKey, &rec.Owner, &rec.Repo, &rec.UserID, &rec.Summary,
		&rec.Model, &rec.Fallback, &rec.CreatedAt, &rec.UpdatedAt, &data)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if data != nil {
		if rec.Data, err = decompressBlob(data); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
