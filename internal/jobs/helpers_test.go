package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// seedJob stores a queued job with n rows numbered from line 2.
func seedJob(t *testing.T, store Store, id string, n int, createdAt time.Time) []core.TypedRow {
	t.Helper()
	rows := make([]core.TypedRow, n)
	for i := range rows {
		rows[i] = core.TypedRow{Row: i + 2, Values: map[string]any{"sku": fmt.Sprintf("SKU-%d", i)}}
	}
	job := core.ImportJob{
		ID:        id,
		ModuleKey: "inventory_items",
		Status:    core.JobQueued,
		TotalRows: n,
		CreatedAt: createdAt,
	}
	require.NoError(t, store.Create(context.Background(), job, rows))
	return rows
}

func noSleep(context.Context, time.Duration) error { return nil }

func pollUntil(t *testing.T, timeout time.Duration, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// flakyClaimStore fails the first failures claims as if the database
// connection dropped.
type flakyClaimStore struct {
	*MemoryStore

	mu       sync.Mutex
	failures int
}

func (s *flakyClaimStore) Claim(ctx context.Context, id string, now time.Time) (core.ImportJob, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return core.ImportJob{}, core.NewInfrastructure("claim import job", errors.New("connection reset"))
	}
	s.mu.Unlock()
	return s.MemoryStore.Claim(ctx, id, now)
}
