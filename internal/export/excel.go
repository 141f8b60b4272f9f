package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Column describes one exported column
type Column struct {
	Key   string
	Label string
	Width float64 // 0 means auto
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName      string
	FreezeHeader   bool
	AutoFilter     bool
	NumberFormat   string
	TimestampFmt   string
	HeaderFill     string
	HeaderFontSize float64
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:      "Redemptions",
		FreezeHeader:   true,
		AutoFilter:     true,
		NumberFormat:   "#,##0.00",
		TimestampFmt:   "yyyy-mm-dd hh:mm:ss",
		HeaderFill:     "2E7D32",
		HeaderFontSize: 11,
	}
}

// ExcelExporter writes a single-sheet workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions

	numberStyle int
	timeStyle   int
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) (*ExcelExporter, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", options.SheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	e := &ExcelExporter{file: file, options: options}

	var err error
	e.numberStyle, err = file.NewStyle(&excelize.Style{CustomNumFmt: &options.NumberFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}
	e.timeStyle, err = file.NewStyle(&excelize.Style{CustomNumFmt: &options.TimestampFmt})
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp style: %w", err)
	}
	return e, nil
}

// Write renders the header and rows. Each row maps Column.Key to a value.
func (e *ExcelExporter) Write(columns []Column, rows []map[string]interface{}) error {
	sheet := e.options.SheetName

	headerStyle, err := e.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: e.options.HeaderFontSize, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	widths := make([]float64, len(columns))
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col.Label); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := e.file.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
		widths[i] = float64(len(col.Label)) * 1.2
	}

	for r, row := range rows {
		for i, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			val := row[col.Key]
			if err := e.setCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			if w := float64(len(fmt.Sprintf("%v", val))) * 1.2; w > widths[i] {
				widths[i] = w
			}
		}
	}

	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		width := col.Width
		if width == 0 {
			// Min width 10, max width 50
			width = clamp(widths[i], 10, 50)
		}
		if err := e.file.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if e.options.FreezeHeader {
		if err := e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	if e.options.AutoFilter && len(rows) > 0 && len(columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		if err := e.file.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add auto filter: %w", err)
		}
	}
	return nil
}

func (e *ExcelExporter) setCellValue(sheet, cell string, val interface{}) error {
	switch v := val.(type) {
	case nil:
		return e.file.SetCellValue(sheet, cell, "")
	case decimal.Decimal:
		if err := e.file.SetCellValue(sheet, cell, v.InexactFloat64()); err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, e.numberStyle)
	case float64:
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, e.numberStyle)
	case time.Time:
		if v.IsZero() {
			return e.file.SetCellValue(sheet, cell, "")
		}
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, e.timeStyle)
	case *time.Time:
		if v == nil {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.setCellValue(sheet, cell, *v)
	default:
		return e.file.SetCellValue(sheet, cell, v)
	}
}

// WriteTo writes the workbook to w
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
