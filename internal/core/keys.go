package core

import (
	"fmt"
	"strconv"
	"strings"
)

// NaturalKey is the normalized value of one unique field of a row.
type NaturalKey struct {
	Field FieldInfo
	Value string
}

// NaturalKeys returns the row's values for every unique field of the schema.
// Empty values are skipped; text compares case-insensitively.
func NaturalKeys(schema ModuleImportSchema, row TypedRow) []NaturalKey {
	var keys []NaturalKey
	for _, f := range schema.Fields {
		if !f.Unique {
			continue
		}
		v, ok := row.Values[f.Key]
		if !ok || v == nil {
			continue
		}
		s := normalizeKey(v)
		if s == "" {
			continue
		}
		keys = append(keys, NaturalKey{Field: f, Value: s})
	}
	return keys
}

// DuplicateMessage is the row error reported when a natural key is taken.
func DuplicateMessage(field FieldInfo, value string) string {
	return fmt.Sprintf("duplicate value for %s: %q already exists", field.Name, value)
}

func normalizeKey(v any) string {
	switch x := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	case float64:
		return FormatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(x)))
	}
}
