package core

// errors.go defines the error taxonomy shared by the import pipeline.
//
// Input and precondition failures are sentinels wrapped with context via
// fmt.Errorf("...: %w"). Worker-side failures carry structure so the runner
// can tell a rejected row from an unreachable persistence layer.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownModule is returned when no schema is registered for a module key.
	ErrUnknownModule = errors.New("unknown module")

	// ErrEmptyBatch is returned when a confirm request carries no rows.
	ErrEmptyBatch = errors.New("empty batch: no rows to import")

	// ErrJobNotFound is returned when a job id has no record.
	ErrJobNotFound = errors.New("import job not found")

	// ErrFileFormat is returned when the upload cannot be read as a spreadsheet.
	ErrFileFormat = errors.New("unreadable file: not a valid spreadsheet")

	// ErrFileTooLarge is returned when the upload exceeds the size cap.
	ErrFileTooLarge = errors.New("file too large")

	// ErrTooManyRows is returned when the first sheet exceeds the row cap.
	ErrTooManyRows = errors.New("too many rows")

	// ErrEmptyFile is returned when the first sheet has no header row.
	ErrEmptyFile = errors.New("empty file: no header row")

	// ErrJobNotClaimable is returned when a claim finds the job not queued.
	ErrJobNotClaimable = errors.New("import job is not queued")

	// ErrJobTerminal is returned when mutating a job that already finished.
	ErrJobTerminal = errors.New("import job already finished")

	// ErrImportCancelled is the top-level message of a cancelled job.
	ErrImportCancelled = errors.New("import cancelled")

	// ErrBusy is returned when every preview slot stays taken past the wait limit.
	ErrBusy = errors.New("server busy: too many uploads in progress")
)

// BatchValidationError is returned by confirm when rows that the client
// marked valid fail server-side validation. Nothing is written.
type BatchValidationError struct {
	Errors []RowValidationError
}

func (e *BatchValidationError) Error() string {
	rows := make(map[int]bool)
	for _, re := range e.Errors {
		rows[re.Row] = true
	}
	return fmt.Sprintf("invalid batch: %d row(s) failed validation", len(rows))
}

// RowRejectedError is a permanent refusal of one row by the persistence
// collaborator (constraint, uniqueness, reference). It is recorded and never
// retried.
type RowRejectedError struct {
	Reason string
	Err    error
}

func (e *RowRejectedError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *RowRejectedError) Unwrap() error { return e.Err }

// NewRowRejected wraps err as a permanent row rejection.
func NewRowRejected(reason string, err error) error {
	return &RowRejectedError{Reason: reason, Err: err}
}

// InfrastructureError is a transient fault of the persistence layer itself.
// The worker retries the row, and fails the job once retries are exhausted.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// NewInfrastructure wraps err as an infrastructure failure of op.
func NewInfrastructure(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

// IsInfrastructure reports whether err is or wraps an InfrastructureError.
func IsInfrastructure(err error) bool {
	var ie *InfrastructureError
	return errors.As(err, &ie)
}

// FieldErrorList joins per-cell errors into one line, used for the error
// column of the annotated spreadsheet.
func FieldErrorList(errs []RowValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Column+": "+e.Error)
	}
	return strings.Join(parts, "; ")
}
