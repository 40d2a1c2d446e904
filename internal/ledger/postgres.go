package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enhancely/api/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS enhancement_jobs (
    id              TEXT PRIMARY KEY,
    source_locator  TEXT NOT NULL,
    status          TEXT NOT NULL,
    content_type    TEXT NOT NULL DEFAULT '',
    filename        TEXT NOT NULL DEFAULT '',
    result_locator  TEXT,
    error_detail    TEXT,
    created_at      TIMESTAMPTZ NOT NULL,
    started_at      TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ,
    CONSTRAINT result_iff_completed CHECK ((status = 'completed') = (result_locator IS NOT NULL))
);
`

const jobColumns = `id, source_locator, status, content_type, filename, result_locator, error_detail, created_at, started_at, completed_at`

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores jobs in the enhancement_jobs table.
type PostgresLedger struct {
	db pgxQuerier
}

// NewPostgresLedger wraps an existing pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: pool}
}

// OpenPostgresLedger connects to dsn and makes sure the table exists.
func OpenPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	l := NewPostgresLedger(pool)
	if err := l.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return l, pool, nil
}

// EnsureSchema creates the jobs table if it is missing.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Create inserts with ON CONFLICT DO NOTHING; zero affected rows means the id exists.
func (l *PostgresLedger) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}

	query := `
INSERT INTO enhancement_jobs (id, source_locator, status, content_type, filename, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING;
`
	tag, err := l.db.Exec(ctx, query,
		job.ID,
		job.SourceLocator,
		job.Status,
		job.ContentType,
		job.Filename,
		job.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// Get fetches a job by id.
func (l *PostgresLedger) Get(ctx context.Context, jobID string) (*model.Job, error) {
	row := l.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM enhancement_jobs WHERE id = $1;`, jobID)
	return scanJob(row)
}

// Transition runs a single conditional UPDATE guarded by the legal predecessors.
func (l *PostgresLedger) Transition(ctx context.Context, jobID string, t Transition) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	var from []string
	for _, s := range model.PredecessorsOf(t.To) {
		from = append(from, string(s))
	}

	var query string
	var args []any
	switch t.To {
	case model.JobStatusProcessing:
		query = `UPDATE enhancement_jobs SET status = $2, started_at = $3 WHERE id = $1 AND status = ANY($4) RETURNING ` + jobColumns
		args = []any{jobID, t.To, at.UTC(), from}
	case model.JobStatusCompleted:
		query = `UPDATE enhancement_jobs SET status = $2, completed_at = $3, result_locator = $4 WHERE id = $1 AND status = ANY($5) RETURNING ` + jobColumns
		args = []any{jobID, t.To, at.UTC(), t.ResultLocator, from}
	case model.JobStatusFailed:
		query = `UPDATE enhancement_jobs SET status = $2, completed_at = $3, error_detail = $4 WHERE id = $1 AND status = ANY($5) RETURNING ` + jobColumns
		args = []any{jobID, t.To, at.UTC(), t.Detail, from}
	}

	job, err := scanJob(l.db.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrNotFound) {
		current, getErr := l.Get(ctx, jobID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, t.To)
	}
	return job, err
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var job model.Job
	if err := row.Scan(
		&job.ID,
		&job.SourceLocator,
		&job.Status,
		&job.ContentType,
		&job.Filename,
		&job.ResultLocator,
		&job.Error,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}
