package core

// validation.go provides row-level validation of spreadsheet data against a
// module schema.
//
// The same RowValidator serves two callers:
//  1. Preview: rows read from the uploaded file, keyed by header text
//  2. Confirm: rows sent back by the client, re-checked before any write
//
// Validation never returns an error value. Every failing cell becomes a
// RowValidationError so the caller can render the full error table.

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Cell-level error messages. Their wording feeds MapError patterns.
const (
	msgRequired = "required field is empty"
	msgNumber   = "invalid number"
	msgEmail    = "invalid email address"
	msgDate     = "invalid date"
)

// RowColumn names the row number in errors about the row itself rather
// than one of its cells.
const RowColumn = "Row"

// RowValidator validates rows against one module schema.
type RowValidator struct {
	schema ModuleImportSchema
}

// NewRowValidator creates a validator for the given schema.
func NewRowValidator(schema ModuleImportSchema) *RowValidator {
	return &RowValidator{schema: schema}
}

// Schema returns the schema the validator checks against.
func (v *RowValidator) Schema() ModuleImportSchema {
	return v.schema
}

// ValidateRow checks every schema field of row and returns either a typed
// row (no errors) or the full list of failing cells. Columns not in the
// schema are ignored; schema columns absent from the row count as empty.
func (v *RowValidator) ValidateRow(row UploadedRow) (TypedRow, []RowValidationError) {
	lookup := make(map[string]string, len(row.Values))
	for k, val := range row.Values {
		lookup[strings.ToLower(CleanCell(k))] = val
	}

	typed := TypedRow{Row: row.Line, Values: make(map[string]any, len(v.schema.Fields))}
	var errs []RowValidationError

	for _, field := range v.schema.Fields {
		raw := lookup[strings.ToLower(field.Name)]
		value, msg := ValidateCell(field, raw)
		if msg != "" {
			errs = append(errs, RowValidationError{
				Row:    row.Line,
				Column: field.Name,
				Value:  raw,
				Error:  msg,
			})
			continue
		}
		if value != nil {
			typed.Values[field.Key] = value
		}
	}

	if len(errs) > 0 {
		return TypedRow{}, errs
	}
	return typed, nil
}

// ValidateCell coerces one raw cell for field. It returns the typed value
// (nil for an empty optional cell) or a non-empty error message.
func ValidateCell(field FieldInfo, raw string) (any, string) {
	s := TrimCell(raw)
	if s == "" {
		if field.Required {
			return nil, msgRequired
		}
		return nil, ""
	}

	switch field.Type {
	case FieldString:
		if field.MaxLength != nil && utf8.RuneCountInString(s) > *field.MaxLength {
			return nil, fmt.Sprintf("exceeds max length of %d", *field.MaxLength)
		}
		return s, ""

	case FieldNumber:
		n, ok := ParseNumber(s)
		if !ok {
			return nil, msgNumber
		}
		return n, ""

	case FieldBoolean:
		b, ok := ParseBool(s)
		if !ok {
			return nil, "invalid boolean: use " + strings.Join(BoolTokens(), ", ")
		}
		return b, ""

	case FieldEmail:
		if !IsEmail(s) {
			return nil, msgEmail
		}
		if field.MaxLength != nil && utf8.RuneCountInString(s) > *field.MaxLength {
			return nil, fmt.Sprintf("exceeds max length of %d", *field.MaxLength)
		}
		return s, ""

	case FieldEnum:
		for _, allowed := range field.EnumValues {
			if strings.EqualFold(s, allowed) {
				return allowed, ""
			}
		}
		return nil, "invalid enum value: must be one of " + strings.Join(field.EnumValues, ", ")

	case FieldDate:
		t, ok := ParseDate(s)
		if !ok {
			return nil, msgDate
		}
		return t.Format(DateLayout), ""

	default:
		return nil, fmt.Sprintf("unsupported field type %q", field.Type)
	}
}

// RowFromTyped renders a typed row back to raw cells keyed by field name,
// so client-supplied rows go through the same checks as uploaded ones.
// Keys unknown to the schema are dropped.
func (v *RowValidator) RowFromTyped(row TypedRow) UploadedRow {
	out := UploadedRow{Line: row.Row, Values: make(map[string]string, len(row.Values))}
	for _, field := range v.schema.Fields {
		val, ok := row.Values[field.Key]
		if !ok || val == nil {
			continue
		}
		out.Values[field.Name] = rawString(val)
	}
	return out
}

// RevalidateRows re-runs validation over rows that arrived as already valid.
// Row numbers must be data lines of the file (2 or greater, row 1 is the
// header) and unique within the batch, since they identify each row's write.
// Errors are sorted by row then schema column order.
func (v *RowValidator) RevalidateRows(rows []TypedRow) ([]TypedRow, []RowValidationError) {
	valid := make([]TypedRow, 0, len(rows))
	var errs []RowValidationError
	seen := make(map[int]bool, len(rows))
	for _, r := range rows {
		typed, rowErrs := v.ValidateRow(v.RowFromTyped(r))
		if msg := rowNumberError(r.Row, seen); msg != "" {
			rowErrs = append([]RowValidationError{{
				Row:    r.Row,
				Column: RowColumn,
				Value:  fmt.Sprint(r.Row),
				Error:  msg,
			}}, rowErrs...)
		}
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		valid = append(valid, typed)
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
	return valid, errs
}

func rowNumberError(row int, seen map[int]bool) string {
	if row < 2 {
		return "invalid row number: data rows start at 2"
	}
	if seen[row] {
		return fmt.Sprintf("duplicate row number %d", row)
	}
	seen[row] = true
	return ""
}

func rawString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return FormatNumber(t)
	case float32:
		return FormatNumber(float64(t))
	case int:
		return fmt.Sprint(t)
	case int64:
		return fmt.Sprint(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}
