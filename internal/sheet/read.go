// Package sheet reads and writes the spreadsheets exchanged with users:
// uploaded import files, generated templates, and annotated error files.
package sheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// Sheet is the first worksheet of an uploaded workbook.
type Sheet struct {
	Name   string
	Header []string
	Rows   []Row
	Width  int // widest row seen, header included
}

// Row is one non-blank data row. Line is the row number in the file,
// counting the header as line 1.
type Row struct {
	Line  int
	Cells []string
}

// Uploaded keys the row's cells by header text. Cells under blank headers
// are dropped and a repeated header keeps its first column.
func (s *Sheet) Uploaded(r Row) core.UploadedRow {
	values := make(map[string]string, len(s.Header))
	for i, h := range s.Header {
		name := core.CleanCell(h)
		if name == "" {
			continue
		}
		if _, seen := values[name]; seen {
			continue
		}
		if i < len(r.Cells) {
			values[name] = r.Cells[i]
		} else {
			values[name] = ""
		}
	}
	return core.UploadedRow{Line: r.Line, Values: values}
}

// Read parses data as a workbook and returns its first worksheet.
// Blank rows are skipped. More than maxRows data rows yields
// core.ErrTooManyRows; maxRows <= 0 disables the cap.
func Read(data []byte, maxRows int) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrFileFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", core.ErrFileFormat)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrFileFormat, err)
	}
	defer func() { _ = rows.Close() }()

	s := &Sheet{Name: sheets[0]}
	line := 0
	for rows.Next() {
		line++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", core.ErrFileFormat, line, err)
		}
		if len(cells) > s.Width {
			s.Width = len(cells)
		}

		if line == 1 {
			if isBlank(cells) {
				return nil, core.ErrEmptyFile
			}
			s.Header = cells
			continue
		}
		if isBlank(cells) {
			continue
		}
		if maxRows > 0 && len(s.Rows) >= maxRows {
			return nil, fmt.Errorf("%w: more than %d data rows", core.ErrTooManyRows, maxRows)
		}
		s.Rows = append(s.Rows, Row{Line: line, Cells: cells})
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrFileFormat, err)
	}
	if s.Header == nil {
		return nil, core.ErrEmptyFile
	}
	return s, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

