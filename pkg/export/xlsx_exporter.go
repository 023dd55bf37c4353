package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of an XLSX workbook.
type Sheet struct {
	Title string
	Data  Dataset
}

// XLSXExporter renders datasets into Excel workbooks.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes each sheet with a bold, filterable header row.
func (e *XLSXExporter) Render(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, sheet := range sheets {
		if len(sheet.Data.Headers) == 0 {
			return nil, fmt.Errorf("sheet %q requires at least one header", sheet.Title)
		}
		name := sheet.Title
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}

		for col, header := range sheet.Data.Headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellStr(name, cell, header); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		last, _ := excelize.CoordinatesToCellName(len(sheet.Data.Headers), 1)
		_ = f.SetCellStyle(name, "A1", last, bold)
		_ = f.AutoFilter(name, "A1:"+last, nil)

		widths := make([]int, len(sheet.Data.Headers))
		for col, header := range sheet.Data.Headers {
			widths[col] = len(header)
		}
		for r, row := range sheet.Data.Rows {
			for col, header := range sheet.Data.Headers {
				value := row[header]
				cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
				if err := f.SetCellStr(name, cell, value); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell, err)
				}
				if len(value) > widths[col] {
					widths[col] = len(value)
				}
			}
		}
		for col, w := range widths {
			width := float64(w) * 1.1
			if width < 10 {
				width = 10
			}
			if width > 40 {
				width = 40
			}
			colName, _ := excelize.ColumnNumberToName(col + 1)
			_ = f.SetColWidth(name, colName, colName, width)
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
