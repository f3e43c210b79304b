package reports

import (
	"fmt"
	"strings"
)

// ExportFormat represents a statement export format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatPDF  ExportFormat = "pdf"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// ParseFormat maps a query value to a format. Empty means CSV.
func ParseFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported format %q", raw)
	}
}

func (f ExportFormat) ContentType() string {
	switch f {
	case FormatXLSX:
		return contentTypeXLSX
	case FormatPDF:
		return contentTypePDF
	default:
		return contentTypeCSV
	}
}

// Document is a rendered file ready to be served or attached.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// statementColumns are the columns of a funding statement, in order.
var statementColumns = []string{
	"Date",
	"Type",
	"Quantity",
	"Amount",
	"Price Per Credit",
	"Verification",
	"Donor",
	"Receipt",
	"Note",
	"Transaction ID",
}
