package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// classify sorts a write error into the row-level taxonomy the job runner
// understands.
//
//	class 22 (data exception), 23 (integrity violation) -> RowRejectedError
//	class 08, 53, 57, 40 and non-server errors          -> InfrastructureError
//
// Context errors pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return core.NewInfrastructure(op, err)
	}

	switch sqlStateClass(pgErr.Code) {
	case "22", "23":
		return core.NewRowRejected(rejectionMessage(pgErr), err)
	case "08", "53", "57", "40":
		return core.NewInfrastructure(op, err)
	default:
		return core.NewRowRejected(rejectionMessage(pgErr), err)
	}
}

func sqlStateClass(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}

func rejectionMessage(pgErr *pgconn.PgError) string {
	switch pgErr.Code {
	case "23505":
		return "duplicate key: " + strings.TrimSpace(pgErr.Detail)
	case "23502":
		return "missing value for " + pgErr.ColumnName
	case "22001":
		return "value too long"
	}
	return pgErr.Message
}
