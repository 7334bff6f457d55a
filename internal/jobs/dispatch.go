package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// ErrDispatcherClosed is returned by Dispatch after Shutdown began.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Dispatcher hands a queued job to a worker. Dispatch must not wait for the
// job to run.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// LocalDispatcher runs jobs in this process on a bounded Pool.
type LocalDispatcher struct {
	runner *Runner
	pool   *Pool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewLocalDispatcher creates a dispatcher running at most poolSize jobs at once.
func NewLocalDispatcher(runner *Runner, poolSize int) *LocalDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		runner:  runner,
		pool:    NewPool(poolSize),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Dispatch schedules jobID and returns immediately. The job waits for a
// free pool slot in the background.
func (d *LocalDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if err := d.pool.Acquire(d.baseCtx, 0); err != nil {
			return
		}
		defer d.pool.Release()

		err := d.runner.Run(d.baseCtx, jobID)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrJobNotClaimable):
			slog.Debug("import job not claimable, skipping", "job_id", jobID, "error", err)
		default:
			slog.Error("import job run failed", "job_id", jobID, "error", err)
		}
	}()
	return nil
}

// Status reports pool usage.
func (d *LocalDispatcher) Status() PoolStatus {
	return d.pool.Status()
}

// Shutdown stops accepting work, waits up to ctx for running jobs, then
// cancels whatever is still running.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
