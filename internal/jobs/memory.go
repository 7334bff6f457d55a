package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

type memoryEntry struct {
	job  core.ImportJob
	rows []core.TypedRow
}

// MemoryStore is an in-process Store. Reads return deep copies so callers
// never observe a record mid-update.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(_ context.Context, job core.ImportJob, rows []core.TypedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("import job %s already exists", job.ID)
	}
	s.jobs[job.ID] = &memoryEntry{job: job.Clone(), rows: cloneRows(rows)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return core.ImportJob{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	return e.job.Clone(), nil
}

func (s *MemoryStore) Rows(_ context.Context, id string) ([]core.TypedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	return cloneRows(e.rows), nil
}

func (s *MemoryStore) Claim(_ context.Context, id string, now time.Time) (core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return core.ImportJob{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if e.job.Status != core.JobQueued {
		return core.ImportJob{}, fmt.Errorf("%w: %s is %s", core.ErrJobNotClaimable, id, e.job.Status)
	}
	e.job.Status = core.JobProcessing
	started := now
	e.job.StartedAt = &started
	return e.job.Clone(), nil
}

func (s *MemoryStore) RecordRow(_ context.Context, id string, outcome RowOutcome, progress int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.processing(id)
	if err != nil {
		return false, err
	}
	if outcome.Err == "" {
		e.job.CreatedCount++
	} else {
		e.job.FailedCount++
		e.job.RowErrors = append(e.job.RowErrors, core.RowError{Row: outcome.Row, Error: outcome.Err})
	}
	if progress > e.job.Progress {
		e.job.Progress = progress
	}
	return e.job.CancelRequested, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, now time.Time) (core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.processing(id)
	if err != nil {
		return core.ImportJob{}, err
	}
	e.job.Status = core.JobCompleted
	e.job.Progress = 100
	done := now
	e.job.CompletedAt = &done
	return e.job.Clone(), nil
}

func (s *MemoryStore) Fail(_ context.Context, id, message string, now time.Time) (core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return core.ImportJob{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if e.job.Status.IsTerminal() {
		return core.ImportJob{}, fmt.Errorf("%w: %s is %s", core.ErrJobTerminal, id, e.job.Status)
	}
	failLocked(e, message, now)
	return e.job.Clone(), nil
}

func (s *MemoryStore) RequestCancel(_ context.Context, id string, now time.Time) (core.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return core.ImportJob{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	switch e.job.Status {
	case core.JobQueued:
		failLocked(e, core.ErrImportCancelled.Error(), now)
	case core.JobProcessing:
		e.job.CancelRequested = true
	default:
		return core.ImportJob{}, fmt.Errorf("%w: %s is %s", core.ErrJobTerminal, id, e.job.Status)
	}
	return e.job.Clone(), nil
}

func failLocked(e *memoryEntry, message string, now time.Time) {
	e.job.Status = core.JobFailed
	e.job.Error = message
	done := now
	e.job.CompletedAt = &done
}

func (s *MemoryStore) ListStale(_ context.Context, status core.JobStatus, cutoff time.Time) ([]core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.ImportJob
	for _, e := range s.jobs {
		if e.job.Status != status {
			continue
		}
		ref := e.job.CreatedAt
		if status == core.JobProcessing && e.job.StartedAt != nil {
			ref = *e.job.StartedAt
		}
		if ref.Before(cutoff) {
			out = append(out, e.job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// processing returns the entry if it is being processed. Caller holds mu.
func (s *MemoryStore) processing(id string) (*memoryEntry, error) {
	e, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if e.job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", core.ErrJobTerminal, id, e.job.Status)
	}
	if e.job.Status != core.JobProcessing {
		return nil, fmt.Errorf("import job %s is %s, not processing", id, e.job.Status)
	}
	return e, nil
}

func cloneRows(rows []core.TypedRow) []core.TypedRow {
	out := make([]core.TypedRow, len(rows))
	for i, r := range rows {
		values := make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		out[i] = core.TypedRow{Row: r.Row, Values: values}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
