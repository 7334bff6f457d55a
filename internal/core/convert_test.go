package core

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseNumber Tests
// ----------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   float64
	}{
		{name: "positive integer", input: "123", wantOK: true, want: 123},
		{name: "zero", input: "0", wantOK: true, want: 0},
		{name: "negative integer", input: "-456", wantOK: true, want: -456},
		{name: "decimal number", input: "123.45", wantOK: true, want: 123.45},
		{name: "leading decimal point", input: ".99", wantOK: true, want: 0.99},
		{name: "trailing decimal point", input: "99.", wantOK: true, want: 99},
		{name: "dollar sign", input: "$1,234.50", wantOK: true, want: 1234.5},
		{name: "euro sign", input: "€10", wantOK: true, want: 10},
		{name: "accounting negative", input: "(42.00)", wantOK: true, want: -42},
		{name: "scientific notation", input: "1.5e3", wantOK: true, want: 1500},
		{name: "surrounding whitespace", input: "  7  ", wantOK: true, want: 7},

		{name: "empty", input: "", wantOK: false},
		{name: "letters", input: "abc", wantOK: false},
		{name: "mixed", input: "12abc", wantOK: false},
		{name: "two dots", input: "1.2.3", wantOK: false},
		{name: "lone sign", input: "-", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"Yes", true, true},
		{"y", true, true},
		{"1", true, true},
		{"t", true, true},
		{"false", false, true},
		{"No", false, true},
		{"n", false, true},
		{"0", false, true},
		{" f ", false, true},
		{"", false, false},
		{"maybe", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		got, ok := ParseBool(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseBool(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	jan15 := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   time.Time
	}{
		{name: "ISO", input: "2024-01-15", wantOK: true, want: jan15},
		{name: "slashes ISO", input: "2024/01/15", wantOK: true, want: jan15},
		{name: "US", input: "1/15/2024", wantOK: true, want: jan15},
		{name: "US padded", input: "01/15/2024", wantOK: true, want: jan15},
		{name: "month name", input: "Jan 15, 2024", wantOK: true, want: jan15},
		{name: "with time", input: "2024-01-15 13:45:00", wantOK: true, want: jan15},
		{name: "RFC3339", input: "2024-01-15T08:00:00Z", wantOK: true, want: jan15},
		{name: "compact", input: "20240115", wantOK: true, want: jan15},
		{name: "excel serial", input: "45306", wantOK: true, want: jan15},
		{name: "excel serial with time", input: "45306.75", wantOK: true, want: jan15},
		{name: "excel serial first day", input: "1", wantOK: true, want: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},

		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "not a date", wantOK: false},
		{name: "month 13", input: "2024-13-01", wantOK: false},
		{name: "negative serial", input: "-5", wantOK: false},
		{name: "serial out of range", input: "99999999", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	got, ok := ParseDate("1/15/24")
	if !ok {
		t.Fatal("ParseDate(1/15/24) not ok")
	}
	if got.Year() != 2024 {
		t.Errorf("year = %d, want 2024", got.Year())
	}

	got, ok = ParseDate("1/15/99")
	if !ok {
		t.Fatal("ParseDate(1/15/99) not ok")
	}
	if got.Year() != 1999 {
		t.Errorf("year = %d, want 1999", got.Year())
	}
}

func TestIsEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@example.com", " user+tag@mail.example.org "}
	invalid := []string{"", "plain", "a@b", "@example.com", "a b@example.com", "a@@b.com"}

	for _, s := range valid {
		if !IsEmail(s) {
			t.Errorf("IsEmail(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if IsEmail(s) {
			t.Errorf("IsEmail(%q) = true, want false", s)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
		{"\ufeffSKU", "SKU"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Name", " EMAIL ", "", "name"})

	if got := idx["name"]; got != 0 {
		t.Errorf("idx[name] = %d, want 0 (first occurrence wins)", got)
	}
	if got := idx["email"]; got != 1 {
		t.Errorf("idx[email] = %d, want 1", got)
	}
	if _, ok := idx[""]; ok {
		t.Error("blank header should not be indexed")
	}
}
