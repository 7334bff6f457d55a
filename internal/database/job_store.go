package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/jobs"
)

// JobStore is a jobs.Store backed by PostgreSQL. Every state transition is
// a single conditional UPDATE, so concurrent workers in different
// processes cannot both claim a job or write to a finished one.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore creates a JobStore.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const jobColumns = `id, module_key, status, progress, total_rows, created_count, failed_count,
	row_errors, error, cancel_requested, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (core.ImportJob, error) {
	var (
		job         core.ImportJob
		status      string
		rowErrors   []core.RowError
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&job.ID,
		&job.ModuleKey,
		&status,
		&job.Progress,
		&job.TotalRows,
		&job.CreatedCount,
		&job.FailedCount,
		&rowErrors,
		&job.Error,
		&job.CancelRequested,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return core.ImportJob{}, err
	}

	job.Status = core.JobStatus(status)
	if len(rowErrors) > 0 {
		job.RowErrors = rowErrors
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func (s *JobStore) Create(ctx context.Context, job core.ImportJob, rows []core.TypedRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.NewInfrastructure("begin create job", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO import_jobs (id, module_key, status, total_rows, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.ModuleKey, string(job.Status), job.TotalRows, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"import_job_rows"},
		[]string{"job_id", "position", "row_number", "payload"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{job.ID, i, rows[i].Row, rows[i].Values}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy import job rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.NewInfrastructure("commit create job", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (core.ImportJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportJob{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("get import job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Rows(ctx context.Context, id string) ([]core.TypedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_number, payload FROM import_job_rows WHERE job_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list import job rows: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.TypedRow, error) {
		var r core.TypedRow
		err := row.Scan(&r.Row, &r.Values)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan import job rows: %w", err)
	}
	if len(out) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *JobStore) Claim(ctx context.Context, id string, now time.Time) (core.ImportJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE import_jobs SET status = 'processing', started_at = $2
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+jobColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportJob{}, s.explain(ctx, id, core.ErrJobNotClaimable)
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("claim import job: %w", err)
	}
	return job, nil
}

func (s *JobStore) RecordRow(ctx context.Context, id string, outcome jobs.RowOutcome, progress int) (bool, error) {
	var cancelRequested bool
	err := s.pool.QueryRow(ctx,
		`UPDATE import_jobs SET
		     created_count = created_count + CASE WHEN $2::text = '' THEN 1 ELSE 0 END,
		     failed_count  = failed_count  + CASE WHEN $2::text = '' THEN 0 ELSE 1 END,
		     row_errors    = CASE WHEN $2::text = '' THEN row_errors
		                          ELSE row_errors || jsonb_build_array(jsonb_build_object('row', $3::int, 'error', $2::text))
		                     END,
		     progress      = GREATEST(progress, $4)
		 WHERE id = $1 AND status = 'processing'
		 RETURNING cancel_requested`,
		id, outcome.Err, outcome.Row, progress,
	).Scan(&cancelRequested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, s.explain(ctx, id, nil)
	}
	if err != nil {
		return false, fmt.Errorf("record import row: %w", err)
	}
	return cancelRequested, nil
}

func (s *JobStore) Complete(ctx context.Context, id string, now time.Time) (core.ImportJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE import_jobs SET status = 'completed', progress = 100, completed_at = $2
		 WHERE id = $1 AND status = 'processing'
		 RETURNING `+jobColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportJob{}, s.explain(ctx, id, nil)
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("complete import job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Fail(ctx context.Context, id, message string, now time.Time) (core.ImportJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE import_jobs SET status = 'failed', error = $2, completed_at = $3
		 WHERE id = $1 AND status IN ('queued', 'processing')
		 RETURNING `+jobColumns, id, message, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportJob{}, s.explain(ctx, id, nil)
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("fail import job: %w", err)
	}
	return job, nil
}

func (s *JobStore) RequestCancel(ctx context.Context, id string, now time.Time) (core.ImportJob, error) {
	// SET expressions see the row as it was before the update.
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE import_jobs SET
		     status           = CASE WHEN status = 'queued' THEN 'failed' ELSE status END,
		     error            = CASE WHEN status = 'queued' THEN $2 ELSE error END,
		     completed_at     = CASE WHEN status = 'queued' THEN $3 ELSE completed_at END,
		     cancel_requested = cancel_requested OR status = 'processing'
		 WHERE id = $1 AND status IN ('queued', 'processing')
		 RETURNING `+jobColumns, id, core.ErrImportCancelled.Error(), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportJob{}, s.explain(ctx, id, nil)
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("cancel import job: %w", err)
	}
	return job, nil
}

func (s *JobStore) ListStale(ctx context.Context, status core.JobStatus, cutoff time.Time) ([]core.ImportJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM import_jobs
		 WHERE status = $1
		   AND CASE WHEN $1 = 'processing' THEN COALESCE(started_at, created_at) ELSE created_at END < $2
		 ORDER BY created_at`,
		string(status), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale import jobs: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportJob, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan stale import jobs: %w", err)
	}
	return out, nil
}

// explain turns a conditional UPDATE that matched nothing into the error
// the Store contract names for the job's current state.
func (s *JobStore) explain(ctx context.Context, id string, notQueued error) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if notQueued != nil {
		return fmt.Errorf("%w: %s is %s", notQueued, id, job.Status)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", core.ErrJobTerminal, id, job.Status)
	}
	return fmt.Errorf("import job %s is %s, not processing", id, job.Status)
}

var _ jobs.Store = (*JobStore)(nil)
