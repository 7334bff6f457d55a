package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

const (
	// DefaultPollInterval is the pause between two status polls.
	DefaultPollInterval = time.Second

	// DefaultMaxAttempts bounds polling to about two minutes.
	DefaultMaxAttempts = 120
)

var (
	// ErrPollTimeout is returned when polling ran out of attempts before
	// the job reached a final state. The job itself is not stopped.
	ErrPollTimeout = errors.New("import status polling timed out")

	// ErrPollInProgress is returned when Poll is called while another
	// Poll on the same machine is still running.
	ErrPollInProgress = errors.New("already polling")

	// ErrReset is returned by a call whose result arrived after Reset or
	// Back. The result is dropped and the current state is left alone.
	ErrReset = errors.New("import flow was reset")
)

// API is the part of the import API the machine drives.
type API interface {
	Preview(ctx context.Context, moduleKey, fileName string, data []byte) (core.PreviewResult, error)
	Confirm(ctx context.Context, moduleKey string, rows []core.TypedRow) (string, error)
	Status(ctx context.Context, jobID string) (core.JobStatusView, error)
}

// Machine is the client-side import state machine.
type Machine struct {
	api API

	interval    time.Duration
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
	observer    func(State)
	logger      *slog.Logger

	mu    sync.Mutex
	state State
	// gen counts Reset and Back calls. A call that started under an older
	// gen must not change the state.
	gen     uint64
	polling bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithPollInterval sets the pause between polls.
func WithPollInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMaxAttempts sets how many polls are made before giving up.
func WithMaxAttempts(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithSleep replaces the context-aware sleep between polls, for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(m *Machine) { m.sleep = sleep }
}

// WithObserver is called with every new state, including progress updates.
func WithObserver(fn func(State)) Option {
	return func(m *Machine) { m.observer = fn }
}

// WithLogger sets the logger used for poll diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New creates a Machine in the upload state.
func New(api API, opts ...Option) *Machine {
	m := &Machine{
		api:         api,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
		logger:      slog.Default(),
		state:       Upload{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Upload sends a workbook for validation and moves to preview. A file the
// server refuses leaves the machine in upload.
func (m *Machine) Upload(ctx context.Context, moduleKey, fileName string, data []byte) (Preview, error) {
	gen := m.generation()
	if err := m.require(StepUpload, StepPreview); err != nil {
		return Preview{}, err
	}

	result, err := m.api.Preview(ctx, moduleKey, fileName, data)
	if err != nil {
		return Preview{}, fmt.Errorf("upload preview: %w", err)
	}

	next := Preview{ModuleKey: moduleKey, FileName: fileName, Result: result}
	if err := m.move(gen, StepUpload, next); err != nil {
		return Preview{}, err
	}
	return next, nil
}

// Confirm submits the preview's valid rows and moves to processing. A
// preview without valid rows is refused with core.ErrEmptyBatch and a
// refused confirm leaves the machine in preview.
func (m *Machine) Confirm(ctx context.Context) (Processing, error) {
	m.mu.Lock()
	preview, ok := m.state.(Preview)
	gen := m.gen
	m.mu.Unlock()
	if !ok {
		return Processing{}, m.require(StepPreview, StepProcessing)
	}
	if preview.Result.ValidCount == 0 || len(preview.Result.ValidRows) == 0 {
		return Processing{}, core.ErrEmptyBatch
	}

	jobID, err := m.api.Confirm(ctx, preview.ModuleKey, preview.Result.ValidRows)
	if err != nil {
		return Processing{}, fmt.Errorf("confirm import: %w", err)
	}

	next := Processing{ModuleKey: preview.ModuleKey, JobID: jobID, Status: core.JobQueued}
	if err := m.move(gen, StepPreview, next); err != nil {
		return Processing{}, err
	}
	return next, nil
}

// Poll reads the job status until the server reports a final state or the
// attempt budget runs out. Polls are strictly sequential.
//
// A server-reported failure ends in Failed{Reason: ReasonServer} with a nil
// error. Running out of attempts ends in Failed{Reason: ReasonTimeout} and
// returns ErrPollTimeout. If ctx ends first the machine stays in
// processing and ctx.Err() is returned; the job keeps running server-side.
// If the machine is reset while polling, the loop stops with ErrReset and
// its results are dropped.
func (m *Machine) Poll(ctx context.Context) (State, error) {
	m.mu.Lock()
	gen := m.gen
	proc, ok := m.state.(Processing)
	if !ok {
		m.mu.Unlock()
		return m.State(), m.require(StepProcessing, StepCompleted)
	}
	if m.polling {
		m.mu.Unlock()
		return proc, ErrPollInProgress
	}
	m.polling = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.gen == gen {
			m.polling = false
		}
		m.mu.Unlock()
	}()

	logger := m.logger.With("job_id", proc.JobID)
	var lastErr error

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if m.generation() != gen {
			return m.State(), ErrReset
		}
		if err := ctx.Err(); err != nil {
			return proc, err
		}

		view, err := m.api.Status(ctx, proc.JobID)
		if m.generation() != gen {
			return m.State(), ErrReset
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return proc, ctx.Err()
		case errors.Is(err, core.ErrJobNotFound):
			return m.finish(gen, Failed{JobID: proc.JobID, Reason: ReasonServer, Message: err.Error()})
		case err != nil:
			lastErr = err
			logger.Debug("status poll failed", "attempt", attempt, "error", err)
		default:
			lastErr = nil
			if final, done := finalState(proc.JobID, view); done {
				return m.finish(gen, final)
			}
			if next := proc.observe(view); next != proc {
				proc = next
				if err := m.move(gen, StepProcessing, proc); err != nil {
					return proc, err
				}
			}
		}

		if attempt == m.maxAttempts {
			break
		}
		if err := m.sleep(ctx, m.interval); err != nil {
			return proc, err
		}
	}

	msg := fmt.Sprintf("no final status after %d polls; job %s may still be running", m.maxAttempts, proc.JobID)
	if lastErr != nil {
		msg += ": last error: " + lastErr.Error()
	}
	state, err := m.finish(gen, Failed{JobID: proc.JobID, Reason: ReasonTimeout, Message: msg})
	if err != nil {
		return state, err
	}
	return state, ErrPollTimeout
}

// finalState maps a terminal server status to the matching final state.
func finalState(jobID string, view core.JobStatusView) (State, bool) {
	switch view.Status {
	case core.JobCompleted:
		result := core.JobResult{}
		if view.Result != nil {
			result = *view.Result
		}
		return Completed{JobID: jobID, Result: result}, true
	case core.JobFailed:
		return Failed{JobID: jobID, Reason: ReasonServer, Message: view.Error}, true
	}
	return nil, false
}

// observe folds a non-terminal view into p. Progress only moves forward.
func (p Processing) observe(view core.JobStatusView) Processing {
	p.Status = view.Status
	if view.Progress > p.Progress {
		p.Progress = view.Progress
	}
	return p
}

func (m *Machine) finish(gen uint64, s State) (State, error) {
	if err := m.move(gen, StepProcessing, s); err != nil {
		return m.State(), err
	}
	return s, nil
}

// Back returns from preview to upload, discarding the preview.
func (m *Machine) Back() error {
	m.mu.Lock()
	cur := m.state.Step()
	if cur != StepPreview {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, StepUpload)
	}
	m.state = Upload{}
	m.gen++
	m.mu.Unlock()
	m.notify(Upload{})
	return nil
}

// Reset returns to upload from any state. A job being processed is not
// affected; only the local tracking is dropped. A Poll still running for
// it stops without touching the new state.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = Upload{}
	m.gen++
	m.polling = false
	m.mu.Unlock()
	m.notify(Upload{})
}

func (m *Machine) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// require checks that the machine is in from and that from -> to is legal.
func (m *Machine) require(from, to Step) error {
	cur := m.State().Step()
	if cur != from {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, to)
	}
	return checkTransition(from, to)
}

// move replaces the state if the machine is still in from and has not been
// reset since gen was read.
func (m *Machine) move(gen uint64, from Step, next State) error {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return ErrReset
	}
	cur := m.state.Step()
	if cur != from {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next.Step())
	}
	if err := checkTransition(cur, next.Step()); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	m.mu.Unlock()
	m.notify(next)
	return nil
}

func (m *Machine) notify(s State) {
	if m.observer != nil {
		m.observer(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
