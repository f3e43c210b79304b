package export

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes statement rows to an xlsx workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
	styles  map[string]int
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName     string            `json:"sheet_name"`
	IncludeHeader bool              `json:"include_header"`
	FreezeHeader  bool              `json:"freeze_header"`
	AutoFilter    bool              `json:"auto_filter"`
	NumberFormat  string            `json:"number_format"`
	HeaderStyle   *ExcelStyleConfig `json:"header_style,omitempty"`
	AutoWidth     bool              `json:"auto_width"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"`
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:     "Transactions",
		IncludeHeader: true,
		FreezeHeader:  true,
		AutoFilter:    true,
		NumberFormat:  "#,##0.00##",
		AutoWidth:     true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "2E7D32",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) (*ExcelExporter, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", options.SheetName); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	return &ExcelExporter{
		file:    file,
		options: options,
		styles:  make(map[string]int),
	}, nil
}

// WriteTable writes a header row and data rows to sheet, creating it when needed.
func (e *ExcelExporter) WriteTable(sheet string, columns []string, rows [][]any) error {
	if idx, err := e.file.GetSheetIndex(sheet); err != nil || idx < 0 {
		if _, err := e.file.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	startRow := 1
	if e.options.IncludeHeader {
		if err := e.writeHeader(sheet, columns); err != nil {
			return err
		}
		startRow = 2
	}

	widths := make([]float64, len(columns))
	for i, col := range columns {
		widths[i] = float64(len(col)) * 1.2
	}

	for rowIdx, row := range rows {
		for colIdx, val := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, startRow+rowIdx)
			if err != nil {
				return err
			}
			if err := e.setCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			if colIdx < len(widths) {
				if w := estimateCellWidth(val); w > widths[colIdx] {
					widths[colIdx] = w
				}
			}
		}
	}

	if e.options.AutoFilter && e.options.IncludeHeader && len(rows) > 0 && len(columns) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		if err := e.file.AutoFilter(sheet, "A1:"+lastCol, nil); err != nil {
			return fmt.Errorf("failed to set auto filter: %w", err)
		}
	}

	if e.options.AutoWidth {
		for i, width := range widths {
			name, _ := excelize.ColumnNumberToName(i + 1)
			// Min width 10, max width 50
			width = max(10, min(width, 50))
			if err := e.file.SetColWidth(sheet, name, name, width); err != nil {
				return err
			}
		}
	}

	return nil
}

// WriteKeyValues writes a two column label/value sheet.
func (e *ExcelExporter) WriteKeyValues(sheet string, items []KeyValue) error {
	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = []any{item.Label, item.Value}
	}
	return e.WriteTable(sheet, []string{"Metric", "Value"}, rows)
}

// WriteTo writes the workbook to a writer
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the Excel file
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) writeHeader(sheet string, columns []string) error {
	styleID := 0
	if e.options.HeaderStyle != nil {
		id, err := e.createStyle(e.options.HeaderStyle)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		styleID = id
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		if styleID > 0 {
			if err := e.file.SetCellStyle(sheet, cell, cell, styleID); err != nil {
				return err
			}
		}
	}

	if e.options.FreezeHeader {
		return e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// createStyle creates an Excel style from config
func (e *ExcelExporter) createStyle(config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}

	if config.FillColor != "" {
		style.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{config.FillColor},
		}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}

	return e.file.NewStyle(style)
}

func (e *ExcelExporter) cachedStyle(key string, style *excelize.Style) (int, error) {
	if id, ok := e.styles[key]; ok {
		return id, nil
	}
	id, err := e.file.NewStyle(style)
	if err != nil {
		return 0, err
	}
	e.styles[key] = id
	return id, nil
}

// setCellValue sets a cell value with appropriate formatting
func (e *ExcelExporter) setCellValue(sheet, cell string, val any) error {
	switch v := val.(type) {
	case nil:
		return e.file.SetCellValue(sheet, cell, "")
	case *string:
		if v == nil {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.file.SetCellValue(sheet, cell, *v)
	case *int64:
		if v == nil {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.file.SetCellValue(sheet, cell, *v)
	case decimal.Decimal:
		return e.setNumber(sheet, cell, v)
	case decimal.NullDecimal:
		if !v.Valid {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.setNumber(sheet, cell, v.Decimal)
	case uuid.UUID:
		return e.file.SetCellValue(sheet, cell, v.String())
	case *uuid.UUID:
		if v == nil {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.file.SetCellValue(sheet, cell, v.String())
	case time.Time:
		if v.IsZero() {
			return e.file.SetCellValue(sheet, cell, "")
		}
		if err := e.file.SetCellValue(sheet, cell, v.UTC()); err != nil {
			return err
		}
		// 22 = m/d/yy h:mm
		style, err := e.cachedStyle("timestamp", &excelize.Style{NumFmt: 22})
		if err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, style)
	default:
		return e.file.SetCellValue(sheet, cell, v)
	}
}

func (e *ExcelExporter) setNumber(sheet, cell string, v decimal.Decimal) error {
	if err := e.file.SetCellValue(sheet, cell, v.InexactFloat64()); err != nil {
		return err
	}
	if e.options.NumberFormat == "" {
		return nil
	}
	format := e.options.NumberFormat
	style, err := e.cachedStyle("number", &excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return err
	}
	return e.file.SetCellStyle(sheet, cell, cell, style)
}

// estimateCellWidth estimates the display width of a cell value
func estimateCellWidth(val any) float64 {
	if val == nil {
		return 0
	}
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}
