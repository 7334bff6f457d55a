package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRow   bool
		wantInfra bool
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", Detail: "Key (sku)=(A) already exists."}, wantRow: true},
		{name: "not null", err: &pgconn.PgError{Code: "23502", ColumnName: "payload"}, wantRow: true},
		{name: "bad input", err: &pgconn.PgError{Code: "22P02", Message: "invalid input syntax"}, wantRow: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, wantInfra: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, wantInfra: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, wantInfra: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, wantInfra: true},
		{name: "wrapped server error", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), wantRow: true},
		{name: "network error", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), wantInfra: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("insert record", tt.err)

			var rr *core.RowRejectedError
			if isRow := errors.As(got, &rr); isRow != tt.wantRow {
				t.Errorf("RowRejectedError = %v, want %v (err %v)", isRow, tt.wantRow, got)
			}
			if isInfra := core.IsInfrastructure(got); isInfra != tt.wantInfra {
				t.Errorf("InfrastructureError = %v, want %v (err %v)", isInfra, tt.wantInfra, got)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error does not wrap the original")
			}
		})
	}
}

func TestClassify_PassesThroughContextErrors(t *testing.T) {
	if got := classify("op", context.DeadlineExceeded); got != context.DeadlineExceeded {
		t.Errorf("classify(DeadlineExceeded) = %v", got)
	}
	if got := classify("op", nil); got != nil {
		t.Errorf("classify(nil) = %v", got)
	}
}

func TestRejectionMessage(t *testing.T) {
	got := rejectionMessage(&pgconn.PgError{Code: "23505", Detail: " Key (sku)=(A) already exists. "})
	if got != "duplicate key: Key (sku)=(A) already exists." {
		t.Errorf("rejectionMessage() = %q", got)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@host:5432/db?sslmode=disable": "pgx5://u:p@host:5432/db?sslmode=disable",
		"postgresql://host/db":                        "pgx5://host/db",
		"pgx5://host/db":                              "pgx5://host/db",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries)%2 != 0 || len(entries) == 0 {
		t.Fatalf("expected up/down pairs, got %d files", len(entries))
	}
}
