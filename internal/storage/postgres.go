package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// DefaultTable is the hosted job table name.
const DefaultTable = "mdt_transcription_jobs"

// PostgresStore keeps jobs in a hosted Postgres table, queryable by id or
// filename.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	log   zerolog.Logger
}

// NewPostgresStore connects to databaseURL and makes sure the job table exists.
func NewPostgresStore(ctx context.Context, databaseURL, table string, log zerolog.Logger) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
		log:   log,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Str("table", table).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connected")

	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id         TEXT PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			status     TEXT NOT NULL,
			result     JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create job table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *types.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (id, filename, status, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Filename, string(job.Status), result, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.HasSuffix(pgErr.ConstraintName, "_filename_key") {
			return ErrDuplicateFilename
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*types.Job, error) {
	return s.queryOne(ctx, "id", id)
}

func (s *PostgresStore) GetByFilename(ctx context.Context, filename string) (*types.Job, error) {
	return s.queryOne(ctx, "filename", filename)
}

func (s *PostgresStore) queryOne(ctx context.Context, column, value string) (*types.Job, error) {
	var (
		job    types.Job
		status string
		result []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, status, result, created_at, updated_at
		FROM `+s.table+` WHERE `+column+` = $1`, value).
		Scan(&job.ID, &job.Filename, &status, &result, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by %s: %w", column, err)
	}

	job.Status = types.Status(status)
	job.Result, err = decodeResult(result)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to types.Status, result *types.Result) error {
	encoded, err := encodeResult(result)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+` SET status = $1, result = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(to), encoded, time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM `+s.table+` WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s, not %s", ErrStaleTransition, id, current, from)
}

// HealthCheck pings the pool with a short deadline.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.log.Info().Msg("closing database pool")
	s.pool.Close()
	return nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
