package sheet

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// ErrorColumnHeader titles the column appended to annotated files.
const ErrorColumnHeader = "Import Errors"

// Annotate returns a copy of the uploaded workbook with an error column
// appended to its first sheet. Each failing row gets the joined messages of
// its cells. Row numbers in errs are file line numbers, so the user can fix
// the returned file in place and upload it again.
func Annotate(data []byte, s *Sheet, errs []core.RowValidationError) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrFileFormat, err)
	}
	defer func() { _ = f.Close() }()

	col, err := excelize.ColumnNumberToName(s.Width + 1)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "9C0006"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}},
	})
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}

	header := col + "1"
	if err := f.SetCellValue(s.Name, header, ErrorColumnHeader); err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	if err := f.SetCellStyle(s.Name, header, header, style); err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	if err := f.SetColWidth(s.Name, col, col, 60); err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}

	byLine := make(map[int][]core.RowValidationError)
	for _, e := range errs {
		byLine[e.Row] = append(byLine[e.Row], e)
	}
	lines := make([]int, 0, len(byLine))
	for line := range byLine {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	for _, line := range lines {
		cell := fmt.Sprintf("%s%d", col, line)
		if err := f.SetCellValue(s.Name, cell, core.FieldErrorList(byLine[line])); err != nil {
			return nil, fmt.Errorf("annotate: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	return buf.Bytes(), nil
}

// AnnotateBase64 is Annotate with the result encoded for JSON transport.
func AnnotateBase64(data []byte, s *Sheet, errs []core.RowValidationError) (string, error) {
	out, err := Annotate(data, s, errs)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
