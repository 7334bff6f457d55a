package sheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

const (
	// DataSheet holds the header row users fill in.
	DataSheet = "Data"
	// FieldsSheet documents every column of the template.
	FieldsSheet = "Fields"

	// lastRow is the last row of an .xlsx worksheet.
	lastRow = 1048576
)

// TemplateFileName is the suggested download name for a module template.
func TemplateFileName(schema core.ModuleImportSchema) string {
	return schema.ModuleKey + "_import_template.xlsx"
}

// Template builds an empty workbook whose header row is the schema's field
// names in schema order. Required columns get a highlighted header and enum
// columns a drop-down list. A second sheet lists each field's constraints.
func Template(schema core.ModuleImportSchema) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "9C0006"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}},
	})
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	optionalStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E7E6E6"}},
	})
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	for i, field := range schema.Fields {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
		cell := col + "1"
		if err := f.SetCellValue(DataSheet, cell, field.Name); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
		style := optionalStyle
		if field.Required {
			style = requiredStyle
		}
		if err := f.SetCellStyle(DataSheet, cell, cell, style); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
		if err := f.SetColWidth(DataSheet, col, col, columnWidth(field.Name)); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}

		if field.Type == core.FieldEnum {
			dv := excelize.NewDataValidation(true)
			dv.SetSqref(fmt.Sprintf("%s2:%s%d", col, col, lastRow))
			// Lists longer than Excel's 255 character limit are documented on
			// the Fields sheet only.
			if err := dv.SetDropList(field.EnumValues); err == nil {
				if err := f.AddDataValidation(DataSheet, dv); err != nil {
					return nil, fmt.Errorf("template: %w", err)
				}
			}
		}
	}

	if err := f.SetPanes(DataSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	if err := writeFieldsSheet(f, schema, optionalStyle); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	idx, err := f.GetSheetIndex(DataSheet)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	return buf.Bytes(), nil
}

var fieldsHeader = []any{"Column", "Key", "Type", "Required", "Max Length", "Allowed Values", "Example"}

func writeFieldsSheet(f *excelize.File, schema core.ModuleImportSchema, headerStyle int) error {
	if _, err := f.NewSheet(FieldsSheet); err != nil {
		return err
	}
	header := fieldsHeader
	if err := f.SetSheetRow(FieldsSheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(FieldsSheet, "A1", "G1", headerStyle); err != nil {
		return err
	}

	for i, field := range schema.Fields {
		required := "no"
		if field.Required {
			required = "yes"
		}
		maxLen := ""
		if field.MaxLength != nil {
			maxLen = fmt.Sprint(*field.MaxLength)
		}
		allowed := strings.Join(field.EnumValues, ", ")
		if field.Type == core.FieldBoolean {
			allowed = strings.Join(core.BoolTokens(), ", ")
		}
		row := []any{field.Name, field.Key, string(field.Type), required, maxLen, allowed, field.Example}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(FieldsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(FieldsSheet, "A", "G", 22)
}

func columnWidth(name string) float64 {
	w := float64(len(name)) + 4
	if w < 12 {
		return 12
	}
	return w
}
