package jobs

// pool.go bounds how many import jobs run at once in this process.
//
// The pool uses a semaphore so a burst of confirmed imports cannot
// overwhelm the persistence collaborator. WaitForDrain lets shutdown wait
// for running jobs.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolBusy is returned when no slot frees up within the wait limit.
var ErrPoolBusy = errors.New("too many import jobs running, please try again later")

// DefaultPoolSize is the default number of concurrent jobs.
const DefaultPoolSize = 4

// Pool limits concurrent job execution.
type Pool struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewPool creates a pool that runs at most size jobs at once.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{semaphore: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free, ctx is done, or maxWait elapses
// (maxWait <= 0 waits for ctx only). The caller MUST call Release.
func (p *Pool) Acquire(ctx context.Context, maxWait time.Duration) error {
	waitCtx := ctx
	if maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}

	select {
	case p.semaphore <- struct{}{}:
		p.mu.Lock()
		p.active++
		p.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrPoolBusy
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (p *Pool) TryAcquire() bool {
	select {
	case p.semaphore <- struct{}{}:
		p.mu.Lock()
		p.active++
		p.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (p *Pool) Release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	<-p.semaphore
}

// ActiveCount returns the number of running jobs.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Size returns the maximum number of concurrent jobs.
func (p *Pool) Size() int {
	return cap(p.semaphore)
}

// Available returns the number of free slots.
func (p *Pool) Available() int {
	return cap(p.semaphore) - len(p.semaphore)
}

// WaitForDrain blocks until no job is running or ctx is done.
func (p *Pool) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PoolStatus is a snapshot of the pool for monitoring.
type PoolStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Size      int `json:"size"`
}

// Status returns the current pool state.
func (p *Pool) Status() PoolStatus {
	p.mu.RLock()
	active := p.active
	p.mu.RUnlock()

	return PoolStatus{
		Active:    active,
		Available: cap(p.semaphore) - len(p.semaphore),
		Size:      cap(p.semaphore),
	}
}
