package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// MemoryCreator is an in-process Creator used when no database is
// configured. It enforces the unique fields of each module schema and
// honors idempotency keys.
type MemoryCreator struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	byKey   map[string]string // idempotency key -> record id
	natural map[string]string // module|field|value -> record id
}

type memoryRecord struct {
	ModuleKey string
	Values    map[string]any
}

// NewMemoryCreator creates an empty MemoryCreator.
func NewMemoryCreator() *MemoryCreator {
	return &MemoryCreator{
		records: make(map[string]memoryRecord),
		byKey:   make(map[string]string),
		natural: make(map[string]string),
	}
}

func (c *MemoryCreator) Create(ctx context.Context, moduleKey string, row core.TypedRow, idempotencyKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	schema, err := core.GetFields(moduleKey)
	if err != nil {
		return "", core.NewRowRejected(err.Error(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byKey[idempotencyKey]; ok {
		return id, nil
	}

	keys := core.NaturalKeys(schema, row)
	for _, k := range keys {
		if _, taken := c.natural[naturalIndex(moduleKey, k)]; taken {
			return "", core.NewRowRejected(core.DuplicateMessage(k.Field, k.Value), nil)
		}
	}

	id := uuid.NewString()
	values := make(map[string]any, len(row.Values))
	for k, v := range row.Values {
		values[k] = v
	}
	c.records[id] = memoryRecord{ModuleKey: moduleKey, Values: values}
	c.byKey[idempotencyKey] = id
	for _, k := range keys {
		c.natural[naturalIndex(moduleKey, k)] = id
	}
	return id, nil
}

// Count returns the number of records stored for moduleKey.
func (c *MemoryCreator) Count(moduleKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.ModuleKey == moduleKey {
			n++
		}
	}
	return n
}

func naturalIndex(moduleKey string, k core.NaturalKey) string {
	return fmt.Sprintf("%s|%s|%s", moduleKey, k.Field.Key, k.Value)
}

var _ Creator = (*MemoryCreator)(nil)
