package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// SQLiteStore persists jobs in a local SQLite database file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent workers
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		result TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, job *types.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO jobs (id, filename, status, result, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, job.ID, job.Filename, string(job.Status),
		nullableText(result), job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateFilename
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Job, error) {
	return s.scanOne(ctx, `
	SELECT id, filename, status, result, created_at, updated_at
	FROM jobs WHERE id = ?
	`, id)
}

func (s *SQLiteStore) GetByFilename(ctx context.Context, filename string) (*types.Job, error) {
	return s.scanOne(ctx, `
	SELECT id, filename, status, result, created_at, updated_at
	FROM jobs WHERE filename = ?
	`, filename)
}

func (s *SQLiteStore) scanOne(ctx context.Context, query string, arg string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, query, arg)

	var (
		job     types.Job
		status  string
		result  sql.NullString
		created time.Time
		updated time.Time
	)

	err := row.Scan(&job.ID, &job.Filename, &status, &result, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = types.Status(status)
	job.CreatedAt = created.UTC()
	job.UpdatedAt = updated.UTC()
	if result.Valid {
		job.Result, err = decodeResult([]byte(result.String))
		if err != nil {
			return nil, err
		}
	}
	return &job, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, from, to types.Status, result *types.Result) error {
	encoded, err := encodeResult(result)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE jobs SET status = ?, result = ?, updated_at = ?
	WHERE id = ? AND status = ?
	`, string(to), nullableText(encoded), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing matched: either the id is unknown or the status moved on
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s, not %s", ErrStaleTransition, id, current, from)
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
