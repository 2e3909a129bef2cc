package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the default Store backend.
type SQLiteStore struct {
	db  *DB
	now func() time.Time
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "reposcope.db"
	}
	db, err := openDB(path, logger)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	created := s.now().UTC()
	res, err := s.db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, created.Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: created}, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ? COLLATE NOCASE",
		username,
	)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return &u, nil
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	now := s.now().UTC()
	blob := compressBlob(rec.Data)

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO analyses (repo_key, owner, repo, user_id, summary, model, fallback, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(repo_key) DO UPDATE SET
				owner = excluded.owner,
				repo = excluded.repo,
				user_id = COALESCE(excluded.user_id, analyses.user_id),
				summary = excluded.summary,
				model = excluded.model,
				fallback = excluded.fallback,
				data = excluded.data,
				updated_at = excluded.updated_at
		`, rec.RepoKey, rec.Owner, rec.Repo, nullableID(rec.UserID), rec.Summary, rec.Model,
			rec.Fallback, blob, now.Format(timeLayout), now.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}

		var (
			created string
			userID  sql.NullInt64
		)
		err = tx.QueryRowContext(ctx,
			"SELECT id, user_id, created_at FROM analyses WHERE repo_key = ?", rec.RepoKey,
		).Scan(&rec.ID, &userID, &created)
		if err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, created)
		rec.UpdatedAt = now
		rec.UserID = idPtr(userID)
		return nil
	})
}

const analysisColumns = "id, repo_key, owner, repo, user_id, summary, model, fallback, created_at, updated_at"

func (s *SQLiteStore) GetAnalysisByRepo(ctx context.Context, repoKey string) (*AnalysisRecord, error) {
	row := s.db.conn.QueryRowContext(ctx,
		"SELECT "+analysisColumns+", data FROM analyses WHERE repo_key = ?", repoKey)
	return scanAnalysis(row.Scan)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id int64) (*AnalysisRecord, error) {
	row := s.db.conn.QueryRowContext(ctx,
		"SELECT "+analysisColumns+", data FROM analyses WHERE id = ?", id)
	return scanAnalysis(row.Scan)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter ListFilter) ([]AnalysisRecord, error) {
	query := "SELECT " + analysisColumns + ", NULL FROM analyses"
	var args []interface{}
	if filter.UserID != nil {
		query += " WHERE user_id = ?"
		args = append(args, *filter.UserID)
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ?"
	args = append(args, filter.limit())

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := []AnalysisRecord{}
	for rows.Next() {
		rec, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id, userID int64) error {
	res, err := s.db.conn.ExecContext(ctx,
		"DELETE FROM analyses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.conn.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanAnalysis(scan func(dest ...interface{}) error) (*AnalysisRecord, error) {
	var (
		rec              AnalysisRecord
		userID           sql.NullInt64
		created, updated string
		data             []byte
	)
	err := scan(&rec.ID, &rec.RepoKey, &rec.Owner, &rec.Repo, &userID, &rec.Summary,
		&rec.Model, &rec.Fallback, &created, &updated, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	rec.UserID = idPtr(userID)
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
	if data != nil {
		if rec.Data, err = decompressBlob(data); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func idPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
