package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/jobs"
)

// RecordWriter persists imported rows as generic module records. It is the
// jobs.Creator used when a database is configured.
type RecordWriter struct {
	pool *pgxpool.Pool
}

// NewRecordWriter creates a RecordWriter.
func NewRecordWriter(pool *pgxpool.Pool) *RecordWriter {
	return &RecordWriter{pool: pool}
}

// Create inserts one record. A second call with the same idempotency key
// returns the first record's id without writing. A value already taken by
// another record in a unique field rejects the row.
func (w *RecordWriter) Create(ctx context.Context, moduleKey string, row core.TypedRow, idempotencyKey string) (string, error) {
	schema, err := core.GetFields(moduleKey)
	if err != nil {
		return "", core.NewRowRejected(err.Error(), err)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return "", classify("begin record insert", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO import_records (id, module_key, idempotency_key, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id::text`,
		uuid.NewString(), moduleKey, idempotencyKey, row.Values,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return w.existing(ctx, idempotencyKey)
	}
	if err != nil {
		return "", classify("insert record", err)
	}

	for _, key := range core.NaturalKeys(schema, row) {
		_, err := tx.Exec(ctx,
			`INSERT INTO import_record_keys (module_key, field_key, value, record_id)
			 VALUES ($1, $2, $3, $4)`,
			moduleKey, key.Field.Key, key.Value, id,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", core.NewRowRejected(core.DuplicateMessage(key.Field, key.Value), err)
		}
		if err != nil {
			return "", classify("insert record key", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", classify("commit record", err)
	}
	return id, nil
}

func (w *RecordWriter) existing(ctx context.Context, idempotencyKey string) (string, error) {
	var id string
	err := w.pool.QueryRow(ctx,
		`SELECT id::text FROM import_records WHERE idempotency_key = $1`, idempotencyKey,
	).Scan(&id)
	if err != nil {
		return "", classify(fmt.Sprintf("load record %s", idempotencyKey), err)
	}
	return id, nil
}

var _ jobs.Creator = (*RecordWriter)(nil)
