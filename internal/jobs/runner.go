package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// Creator is the persistence collaborator that turns one validated row into
// a module record. It returns the new record id.
//
// Implementations classify failures: core.RowRejectedError for a row the
// module refuses, core.InfrastructureError when the persistence layer is
// unavailable. Any other error is treated as a rejection of that row.
// Creating the same idempotency key twice must return the first id.
type Creator interface {
	Create(ctx context.Context, moduleKey string, row core.TypedRow, idempotencyKey string) (string, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, moduleKey string, row core.TypedRow, idempotencyKey string) (string, error)

func (f CreatorFunc) Create(ctx context.Context, moduleKey string, row core.TypedRow, idempotencyKey string) (string, error) {
	return f(ctx, moduleKey, row, idempotencyKey)
}

// Defaults for Runner options.
const (
	DefaultJobTimeout   = 30 * time.Minute
	DefaultRowRetries   = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Runner executes claimed import jobs row by row.
type Runner struct {
	store        Store
	creator      Creator
	jobTimeout   time.Duration
	rowRetries   int
	retryBackoff time.Duration
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJobTimeout bounds one job's execution. Zero or negative keeps the default.
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.jobTimeout = d
		}
	}
}

// WithRowRetries sets how often a row is retried after an infrastructure
// error before the job fails.
func WithRowRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.rowRetries = n
		}
	}
}

// WithRetryBackoff sets the first retry delay; later retries double it.
func WithRetryBackoff(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.retryBackoff = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithSleep replaces the retry delay, for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = sleep }
}

// NewRunner creates a Runner.
func NewRunner(store Store, creator Creator, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:        store,
		creator:      creator,
		jobTimeout:   DefaultJobTimeout,
		rowRetries:   DefaultRowRetries,
		retryBackoff: DefaultRetryBackoff,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JobTimeout returns the configured per-job limit.
func (r *Runner) JobTimeout() time.Duration {
	return r.jobTimeout
}

// Run claims jobID and processes every row. It returns
// core.ErrJobNotClaimable if another worker owns the job or it already
// finished; callers should drop the delivery in that case. Any other
// returned error means the job could not be recorded as finished.
func (r *Runner) Run(ctx context.Context, jobID string) (err error) {
	job, err := r.store.Claim(ctx, jobID, r.now())
	if err != nil {
		return err
	}

	logger := logging.ForJob(ctx, job.ID, job.ModuleKey)
	logger.Info("import job claimed", "total_rows", job.TotalRows)

	// Final writes must land even when ctx is already done.
	writeCtx := context.WithoutCancel(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while processing import job", "panic", rec)
			err = r.fail(writeCtx, logger, job.ID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	rows, err := r.store.Rows(runCtx, job.ID)
	if err != nil {
		return r.fail(writeCtx, logger, job.ID, "load rows: "+err.Error())
	}

	total := len(rows)
	for i, row := range rows {
		outcome, infraErr := r.processRow(runCtx, job, row)
		if infraErr != nil {
			msg := infraErr.Error()
			switch {
			case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
				msg = fmt.Sprintf("import timed out after %s", r.jobTimeout)
			case ctx.Err() != nil:
				msg = "worker stopped before the import finished"
			}
			return r.fail(writeCtx, logger, job.ID, msg)
		}

		if outcome.Err != "" {
			logger.Debug("row failed", "row", outcome.Row, "error", outcome.Err)
		}

		cancelRequested, err := r.store.RecordRow(writeCtx, job.ID, outcome, Progress(i+1, total))
		if err != nil {
			return r.fail(writeCtx, logger, job.ID, "record row: "+err.Error())
		}
		if cancelRequested && i+1 < total {
			return r.fail(writeCtx, logger, job.ID, core.ErrImportCancelled.Error())
		}
	}

	done, err := r.store.Complete(writeCtx, job.ID, r.now())
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	logger.Info("import job completed", "created", done.CreatedCount, "failed", done.FailedCount)
	return nil
}

// processRow creates one row. A non-nil error means the run cannot go on;
// row-level failures are reported in the outcome instead.
func (r *Runner) processRow(ctx context.Context, job core.ImportJob, row core.TypedRow) (RowOutcome, error) {
	key := IdempotencyKey(job.ID, row.Row)
	backoff := r.retryBackoff

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return RowOutcome{}, err
		}

		_, err := r.creator.Create(ctx, job.ModuleKey, row, key)
		if err == nil {
			return RowOutcome{Row: row.Row}, nil
		}

		if !core.IsInfrastructure(err) && !isContextErr(err) {
			return RowOutcome{Row: row.Row, Err: err.Error()}, nil
		}
		if attempt >= r.rowRetries || ctx.Err() != nil {
			return RowOutcome{}, fmt.Errorf("row %d: %w", row.Row, err)
		}

		slog.Warn("retrying row after infrastructure error",
			"job_id", job.ID, "row", row.Row, "attempt", attempt+1, "error", err)
		if err := r.sleep(ctx, backoff); err != nil {
			return RowOutcome{}, err
		}
		backoff *= 2
	}
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, id, message string) error {
	if _, err := r.store.Fail(ctx, id, message, r.now()); err != nil {
		logger.Error("failed to mark import job failed", "error", err)
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	logger.Info("import job failed", "error", message)
	return nil
}

// IdempotencyKey identifies one row write of one job.
func IdempotencyKey(jobID string, row int) string {
	return fmt.Sprintf("%s:%d", jobID, row)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
