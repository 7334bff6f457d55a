package core

import (
	"strings"
	"testing"
)

func testSchema() ModuleImportSchema {
	return ModuleImportSchema{
		ModuleKey: "test_contacts",
		Label:     "Contacts",
		Fields: []FieldInfo{
			{Key: "name", Name: "Name", Type: FieldString, Required: true, MaxLength: IntPtr(10)},
			{Key: "email", Name: "Email", Type: FieldEmail, Required: true},
			{Key: "age", Name: "Age", Type: FieldNumber},
			{Key: "active", Name: "Active", Type: FieldBoolean},
			{Key: "tier", Name: "Tier", Type: FieldEnum, EnumValues: []string{"gold", "silver"}},
			{Key: "joined", Name: "Joined", Type: FieldDate},
		},
	}
}

func TestValidateCell(t *testing.T) {
	schema := testSchema()
	field := func(key string) FieldInfo {
		f, _ := schema.Field(key)
		return f
	}

	tests := []struct {
		name      string
		field     FieldInfo
		raw       string
		want      any
		wantError string // substring; empty means valid
	}{
		{name: "string ok", field: field("name"), raw: "Ada", want: "Ada"},
		{name: "string too long", field: field("name"), raw: "Ada Lovelace!", wantError: "exceeds max length of 10"},
		{name: "string max length counts runes", field: field("name"), raw: "ÅÅÅÅÅÅÅÅÅÅ", want: "ÅÅÅÅÅÅÅÅÅÅ"},
		{name: "required empty", field: field("name"), raw: "   ", wantError: "required field is empty"},
		{name: "string keeps inch mark", field: field("name"), raw: `Ada 24"`, want: `Ada 24"`},
		{name: "string keeps quotes", field: field("name"), raw: " 'quoted' ", want: "'quoted'"},
		{name: "string keeps formula text", field: field("name"), raw: "=A1+B1", want: "=A1+B1"},
		{name: "string drops BOM", field: field("name"), raw: "\ufeffAda", want: "Ada"},
		{name: "optional empty", field: field("age"), raw: "", want: nil},
		{name: "number ok", field: field("age"), raw: "42", want: 42.0},
		{name: "number bad", field: field("age"), raw: "forty", wantError: "invalid number"},
		{name: "bool ok", field: field("active"), raw: "Yes", want: true},
		{name: "bool bad", field: field("active"), raw: "perhaps", wantError: "invalid boolean"},
		{name: "email ok", field: field("email"), raw: "ada@example.com", want: "ada@example.com"},
		{name: "email bad", field: field("email"), raw: "ada.example.com", wantError: "invalid email"},
		{name: "enum canonical case", field: field("tier"), raw: "GOLD", want: "gold"},
		{name: "enum bad", field: field("tier"), raw: "bronze", wantError: "invalid enum value: must be one of gold, silver"},
		{name: "date ok", field: field("joined"), raw: "3/1/2024", want: "2024-03-01"},
		{name: "date bad", field: field("joined"), raw: "someday", wantError: "invalid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := ValidateCell(tt.field, tt.raw)
			if tt.wantError != "" {
				if !strings.Contains(msg, tt.wantError) {
					t.Fatalf("ValidateCell() msg = %q, want containing %q", msg, tt.wantError)
				}
				return
			}
			if msg != "" {
				t.Fatalf("ValidateCell() unexpected msg %q", msg)
			}
			if got != tt.want {
				t.Errorf("ValidateCell() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRowValidator_ValidateRow(t *testing.T) {
	v := NewRowValidator(testSchema())

	t.Run("valid row ignores unknown columns", func(t *testing.T) {
		typed, errs := v.ValidateRow(UploadedRow{Line: 2, Values: map[string]string{
			"name":    "Ada",
			"EMAIL":   "ada@example.com",
			"Age":     "36",
			"Unknown": "whatever",
		}})
		if len(errs) != 0 {
			t.Fatalf("errs = %v, want none", errs)
		}
		if typed.Row != 2 {
			t.Errorf("Row = %d, want 2", typed.Row)
		}
		if typed.Values["age"] != 36.0 {
			t.Errorf("age = %v, want 36", typed.Values["age"])
		}
		if _, ok := typed.Values["Unknown"]; ok {
			t.Error("unknown column leaked into typed row")
		}
		if _, ok := typed.Values["tier"]; ok {
			t.Error("empty optional field should be omitted")
		}
	})

	t.Run("missing column counts as empty", func(t *testing.T) {
		_, errs := v.ValidateRow(UploadedRow{Line: 3, Values: map[string]string{"Name": "Ada"}})
		if len(errs) != 1 {
			t.Fatalf("len(errs) = %d, want 1", len(errs))
		}
		if errs[0].Column != "Email" || errs[0].Row != 3 {
			t.Errorf("err = %+v, want Email on row 3", errs[0])
		}
	})

	t.Run("every failing cell is reported in schema order", func(t *testing.T) {
		_, errs := v.ValidateRow(UploadedRow{Line: 4, Values: map[string]string{
			"Name":  "",
			"Email": "bad",
			"Age":   "x",
		}})
		if len(errs) != 3 {
			t.Fatalf("len(errs) = %d, want 3", len(errs))
		}
		want := []string{"Name", "Email", "Age"}
		for i, col := range want {
			if errs[i].Column != col {
				t.Errorf("errs[%d].Column = %q, want %q", i, errs[i].Column, col)
			}
		}
	})
}

func TestRowValidator_RevalidateRows(t *testing.T) {
	v := NewRowValidator(testSchema())

	rows := []TypedRow{
		{Row: 2, Values: map[string]any{"name": "Ada", "email": "ada@example.com", "age": 36.0, "active": true, "joined": "2024-03-01"}},
		{Row: 3, Values: map[string]any{"name": "Bob", "email": "not-an-email"}},
		{Row: 4, Values: map[string]any{"name": "Cy", "email": "cy@example.com", "tier": "platinum"}},
		{Row: 5, Values: map[string]any{"name": "Di", "email": "di@example.com", "bogus": "dropped"}},
	}

	valid, errs := v.RevalidateRows(rows)

	if len(valid) != 2 {
		t.Fatalf("len(valid) = %d, want 2", len(valid))
	}
	if valid[0].Row != 2 || valid[1].Row != 5 {
		t.Errorf("valid rows = %d,%d, want 2,5", valid[0].Row, valid[1].Row)
	}
	if _, ok := valid[1].Values["bogus"]; ok {
		t.Error("unknown key survived revalidation")
	}
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2", len(errs))
	}
	if errs[0].Row != 3 || errs[0].Column != "Email" {
		t.Errorf("errs[0] = %+v, want Email on row 3", errs[0])
	}
	if errs[1].Row != 4 || errs[1].Column != "Tier" {
		t.Errorf("errs[1] = %+v, want Tier on row 4", errs[1])
	}
}

func TestRowValidator_RevalidateRowsRowNumbers(t *testing.T) {
	v := NewRowValidator(testSchema())
	values := func() map[string]any {
		return map[string]any{"name": "Ada", "email": "ada@example.com"}
	}

	tests := []struct {
		name      string
		rows      []int
		wantValid int
		wantRows  []int // rows carrying a Row column error
	}{
		{name: "unique data rows", rows: []int{2, 3, 9}, wantValid: 3},
		{name: "missing row numbers", rows: []int{0, 0, 0}, wantValid: 0, wantRows: []int{0, 0, 0}},
		{name: "header row", rows: []int{1, 2}, wantValid: 1, wantRows: []int{1}},
		{name: "negative row", rows: []int{-4, 2}, wantValid: 1, wantRows: []int{-4}},
		{name: "duplicate row", rows: []int{2, 3, 2}, wantValid: 2, wantRows: []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]TypedRow, len(tt.rows))
			for i, n := range tt.rows {
				rows[i] = TypedRow{Row: n, Values: values()}
			}

			valid, errs := v.RevalidateRows(rows)
			if len(valid) != tt.wantValid {
				t.Errorf("len(valid) = %d, want %d", len(valid), tt.wantValid)
			}
			var got []int
			for _, e := range errs {
				if e.Column != RowColumn {
					t.Errorf("unexpected cell error %+v", e)
					continue
				}
				got = append(got, e.Row)
			}
			if len(got) != len(tt.wantRows) {
				t.Fatalf("row errors on %v, want %v", got, tt.wantRows)
			}
			for i := range got {
				if got[i] != tt.wantRows[i] {
					t.Errorf("row errors on %v, want %v", got, tt.wantRows)
				}
			}
		})
	}
}

func TestRowValidator_RoundTripIsStable(t *testing.T) {
	v := NewRowValidator(testSchema())

	first, errs := v.ValidateRow(UploadedRow{Line: 7, Values: map[string]string{
		"Name": "Ada", "Email": "ada@example.com", "Age": "$1,200", "Active": "y", "Tier": "Silver", "Joined": "45306",
	}})
	if len(errs) != 0 {
		t.Fatalf("first pass errs = %v", errs)
	}

	second, errs := v.ValidateRow(v.RowFromTyped(first))
	if len(errs) != 0 {
		t.Fatalf("second pass errs = %v", errs)
	}
	for k, want := range first.Values {
		if second.Values[k] != want {
			t.Errorf("%s = %#v after round trip, want %#v", k, second.Values[k], want)
		}
	}
}
