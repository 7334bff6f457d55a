package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetimport/internal/core"
	_ "github.com/JonMunkholm/sheetimport/internal/core/modules"
)

func itemRow(line int, sku string) core.TypedRow {
	return core.TypedRow{Row: line, Values: map[string]any{
		"sku":         sku,
		"description": "Filter",
		"unit":        "each",
	}}
}

func TestMemoryCreator_DuplicateNaturalKey(t *testing.T) {
	c := NewMemoryCreator()
	ctx := context.Background()

	_, err := c.Create(ctx, "inventory_items", itemRow(2, "FLT-1"), "job:2")
	require.NoError(t, err)

	_, err = c.Create(ctx, "inventory_items", itemRow(3, "flt-1 "), "job:3")
	var rejected *core.RowRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Error(), "duplicate value for SKU")
	assert.Equal(t, 1, c.Count("inventory_items"))
}

func TestMemoryCreator_IdempotencyKey(t *testing.T) {
	c := NewMemoryCreator()
	ctx := context.Background()

	first, err := c.Create(ctx, "inventory_items", itemRow(2, "FLT-1"), "job:2")
	require.NoError(t, err)
	again, err := c.Create(ctx, "inventory_items", itemRow(2, "FLT-1"), "job:2")
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 1, c.Count("inventory_items"))
}

func TestMemoryCreator_UnknownModule(t *testing.T) {
	_, err := NewMemoryCreator().Create(context.Background(), "nope", itemRow(2, "x"), "job:2")
	var rejected *core.RowRejectedError
	assert.ErrorAs(t, err, &rejected)
}

// Four rows where the last repeats the first SKU: three created, one
// duplicate recorded against its original line.
func TestRunner_DuplicateRowIsRecorded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rows := []core.TypedRow{
		itemRow(2, "A-1"), itemRow(3, "A-2"), itemRow(4, "A-3"), itemRow(5, "A-1"),
	}
	require.NoError(t, store.Create(ctx, core.ImportJob{
		ID: "job-1", ModuleKey: "inventory_items", Status: core.JobQueued, TotalRows: 4, CreatedAt: testEpoch,
	}, rows))

	require.NoError(t, newTestRunner(store, NewMemoryCreator()).Run(ctx, "job-1"))

	job, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 3, job.CreatedCount)
	assert.Equal(t, 1, job.FailedCount)
	require.Len(t, job.RowErrors, 1)
	assert.Equal(t, 5, job.RowErrors[0].Row)
	assert.Contains(t, job.RowErrors[0].Error, "duplicate value for SKU")
}
