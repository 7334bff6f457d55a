// Package core holds the domain model of the spreadsheet import pipeline.
//
// It has no transport or storage dependencies and is shared by the HTTP
// server, the job workers, and the command-line client.
//
// # Schema Registry
//
// Every importable module registers a [ModuleImportSchema] at init time.
// The schema is the single source of truth for both the downloadable
// template and row validation, so the two can never diverge:
//
//	core.Register(core.ModuleImportSchema{
//	    ModuleKey: "inventory_items",
//	    Fields: []core.FieldInfo{
//	        {Key: "sku", Name: "SKU", Type: core.FieldString, Required: true},
//	        {Key: "quantity", Name: "Quantity", Type: core.FieldNumber},
//	    },
//	})
//
// # Validation
//
// [RowValidator] coerces each cell according to its [FieldType]. Failing
// cells are reported as [RowValidationError] values, never as Go errors.
// The confirm step re-runs the same validator over client-supplied rows.
//
// # Errors
//
// Input errors are sentinels such as [ErrUnknownModule] and [ErrEmptyBatch].
// Worker-side failures are either [RowRejectedError] (recorded per row) or
// [InfrastructureError] (fatal to the job once retries run out). [MapError]
// translates any of them into a coded [UserMessage].
package core
