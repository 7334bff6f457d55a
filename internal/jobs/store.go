// Package jobs runs confirmed import batches in the background.
//
// A job is created queued, claimed by exactly one worker through an atomic
// queued -> processing transition, and finished as completed (every row was
// attempted) or failed (the run itself broke down). Rows are created one at
// a time through a Creator, and each row's outcome is recorded as it
// happens, so pollers see monotonically increasing progress.
package jobs

import (
	"context"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// RowOutcome is the result of attempting one row. Err is empty on success.
type RowOutcome struct {
	Row int
	Err string
}

// Store persists import jobs and their row payloads.
//
// The owning worker is the only writer of a claimed job. Implementations
// must make Claim an atomic compare-and-set and must keep terminal jobs
// immutable.
type Store interface {
	// Create persists a new queued job together with its rows.
	Create(ctx context.Context, job core.ImportJob, rows []core.TypedRow) error

	// Get returns the job or core.ErrJobNotFound.
	Get(ctx context.Context, id string) (core.ImportJob, error)

	// Rows returns the job's row payloads in original order.
	Rows(ctx context.Context, id string) ([]core.TypedRow, error)

	// Claim moves a queued job to processing. It returns
	// core.ErrJobNotClaimable if the job is in any other state.
	Claim(ctx context.Context, id string, now time.Time) (core.ImportJob, error)

	// RecordRow adds one row outcome to a processing job and raises its
	// progress to at least progress. It reports whether cancellation was
	// requested.
	RecordRow(ctx context.Context, id string, outcome RowOutcome, progress int) (cancelRequested bool, err error)

	// Complete marks a processing job completed with progress 100.
	Complete(ctx context.Context, id string, now time.Time) (core.ImportJob, error)

	// Fail marks a queued or processing job failed with a top-level message.
	// Terminal jobs yield core.ErrJobTerminal.
	Fail(ctx context.Context, id, message string, now time.Time) (core.ImportJob, error)

	// RequestCancel flags a processing job for cancellation, or fails a
	// queued job outright. Terminal jobs yield core.ErrJobTerminal.
	RequestCancel(ctx context.Context, id string, now time.Time) (core.ImportJob, error)

	// ListStale returns jobs in status whose reference time is before
	// cutoff: createdAt for queued jobs, startedAt for processing ones.
	ListStale(ctx context.Context, status core.JobStatus, cutoff time.Time) ([]core.ImportJob, error)
}

// Progress returns floor(processed / total * 100).
func Progress(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := processed * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}
