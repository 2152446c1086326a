package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
)

// RunStatus is the lifecycle state of a persisted run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusError     RunStatus = "error"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one automation run as stored in Postgres.
type Run struct {
	ID         uuid.UUID       `db:"id"`
	Status     RunStatus       `db:"status"`
	Options    json.RawMessage `db:"options"`
	Processed  int             `db:"processed"`
	Successful int             `db:"successful"`
	Error      sql.NullString  `db:"error_message"`
	StartedAt  time.Time       `db:"started_at"`
	FinishedAt sql.NullTime    `db:"finished_at"`
}

// Store persists run history. It is optional: when no database is
// configured the rest of the service runs without it.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.With("component", "runstore"),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the runs table when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			options JSONB NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			successful INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMPTZ
		)`

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// CreateRun records a freshly started run.
func (s *Store) CreateRun(ctx context.Context, id uuid.UUID, options bot.Options) error {
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal run options: %w", err)
	}

	query := `
		INSERT INTO runs (id, status, options)
		VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, query, id, StatusRunning, optionsJSON); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun closes out a run with its final status and counters.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, processed, successful int, runErr string) error {
	query := `
		UPDATE runs SET
			status = $2,
			processed = $3,
			successful = $4,
			error_message = NULLIF($5, ''),
			finished_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, status, processed, successful, runErr)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// UpdateProgress refreshes the live counters of a running run.
func (s *Store) UpdateProgress(ctx context.Context, id uuid.UUID, processed, successful int) error {
	query := `
		UPDATE runs SET
			processed = $2,
			successful = $3
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, processed, successful); err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// GetRun fetches a single run by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, status, options, processed, successful, error_message, started_at, finished_at
		FROM runs
		WHERE id = $1`

	var run Run
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Status, &run.Options, &run.Processed,
		&run.Successful, &run.Error, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, status, options, processed, successful, error_message, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Status, &run.Options, &run.Processed,
			&run.Successful, &run.Error, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
