package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// KeyValue is one labelled line of a summary block.
type KeyValue struct {
	Label string
	Value any
}

// PDFGenerator lays out statements and receipts with gofpdf
type PDFGenerator struct {
	pdf       *gofpdf.Fpdf
	options   PDFOptions
	translate func(string) string
}

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize       string     `json:"page_size"`
	Orientation    string     `json:"orientation"`
	Title          string     `json:"title"`
	Subtitle       string     `json:"subtitle,omitempty"`
	Author         string     `json:"author,omitempty"`
	IncludePageNum bool       `json:"include_page_num"`
	HeaderColor    PDFColor   `json:"header_color"`
	AlternateRows  bool       `json:"alternate_rows"`
	AlternateColor PDFColor   `json:"alternate_color"`
	FontFamily     string     `json:"font_family"`
	FontSize       float64    `json:"font_size"`
	HeaderFontSize float64    `json:"header_font_size"`
	TitleFontSize  float64    `json:"title_font_size"`
	Margins        PDFMargins `json:"margins"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// PDFMargins represents page margins
type PDFMargins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		Orientation:    "portrait",
		Title:          "Funding Statement",
		IncludePageNum: true,
		HeaderColor:    PDFColor{R: 46, G: 125, B: 50},
		AlternateRows:  true,
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		FontFamily:     "Arial",
		FontSize:       9,
		HeaderFontSize: 10,
		TitleFontSize:  16,
		Margins: PDFMargins{
			Left:   15,
			Right:  15,
			Top:    20,
			Bottom: 20,
		},
	}
}

// NewPDFGenerator creates a new PDF generator
func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	orientation := "P"
	if options.Orientation == "landscape" {
		orientation = "L"
	}
	if options.GeneratedAt.IsZero() {
		options.GeneratedAt = time.Now().UTC()
	}

	pdf := gofpdf.New(orientation, "mm", options.PageSize, "")
	pdf.SetMargins(options.Margins.Left, options.Margins.Top, options.Margins.Right)
	pdf.SetAutoPageBreak(true, options.Margins.Bottom)
	pdf.SetTitle(options.Title, true)
	if options.Author != "" {
		pdf.SetAuthor(options.Author, true)
	}
	// Keep output reproducible for a given generation time.
	pdf.SetCreationDate(options.GeneratedAt)

	g := &PDFGenerator{
		pdf:       pdf,
		options:   options,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if options.IncludePageNum {
		g.setFooter()
	}
	return g
}

// StartPage adds a page with the title block.
func (g *PDFGenerator) StartPage() {
	g.pdf.AddPage()

	g.pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 10, g.tr(g.options.Title), "", 1, "C", false, 0, "")

	if g.options.Subtitle != "" {
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize+2)
		g.pdf.SetTextColor(100, 100, 100)
		g.pdf.CellFormat(0, 8, g.tr(g.options.Subtitle), "", 1, "C", false, 0, "")
	}

	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
	g.pdf.SetTextColor(128, 128, 128)
	generated := "Generated: " + g.options.GeneratedAt.Format("2006-01-02 15:04 MST")
	g.pdf.CellFormat(0, 6, generated, "", 1, "R", false, 0, "")
	g.pdf.Ln(4)
}

// AddSummarySection writes a titled block of label/value lines.
func (g *PDFGenerator) AddSummarySection(title string, items []KeyValue) {
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize+2)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 8, g.tr(title), "", 1, "L", false, 0, "")
	g.pdf.Ln(1)

	for _, item := range items {
		g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
		g.pdf.CellFormat(60, 6, g.tr(item.Label+":"), "", 0, "L", false, 0, "")
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		g.pdf.CellFormat(0, 6, g.tr(FormatText(item.Value)), "", 1, "L", false, 0, "")
	}
	g.pdf.Ln(4)
}

// AddTable writes a table, repeating the header on every new page.
func (g *PDFGenerator) AddTable(labels []string, rows [][]string) {
	widths := g.columnWidths(labels, rows)
	g.tableHeader(labels, widths)

	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	for i, row := range rows {
		if g.pdf.GetY()+7 > g.pageHeight()-g.options.Margins.Bottom {
			g.pdf.AddPage()
			g.tableHeader(labels, widths)
			g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		}

		if g.options.AlternateRows && i%2 == 1 {
			c := g.options.AlternateColor
			g.pdf.SetFillColor(c.R, c.G, c.B)
		} else {
			g.pdf.SetFillColor(255, 255, 255)
		}
		g.pdf.SetTextColor(0, 0, 0)

		for j := range labels {
			val := ""
			if j < len(row) {
				val = g.fit(row[j], widths[j])
			}
			g.pdf.CellFormat(widths[j], 7, g.tr(val), "1", 0, "L", true, 0, "")
		}
		g.pdf.Ln(-1)
	}

	if len(rows) == 0 {
		g.pdf.SetFont(g.options.FontFamily, "I", g.options.FontSize)
		g.pdf.CellFormat(0, 7, "No transactions recorded.", "1", 1, "C", false, 0, "")
	}
}

// AddParagraph writes free text that wraps at the right margin.
func (g *PDFGenerator) AddParagraph(text string) {
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.MultiCell(0, 5, g.tr(text), "", "L", false)
	g.pdf.Ln(2)
}

// WriteTo writes the PDF to a writer
func (g *PDFGenerator) WriteTo(w io.Writer) error {
	return g.pdf.Output(w)
}

// OutputToBytes returns the PDF as bytes
func (g *PDFGenerator) OutputToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := g.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) tableHeader(labels []string, widths []float64) {
	c := g.options.HeaderColor
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
	g.pdf.SetFillColor(c.R, c.G, c.B)
	g.pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		g.pdf.CellFormat(widths[i], 8, g.tr(label), "1", 0, "C", true, 0, "")
	}
	g.pdf.Ln(-1)
}

// columnWidths sizes columns to content, scaled down to the printable width.
func (g *PDFGenerator) columnWidths(labels []string, rows [][]string) []float64 {
	pageWidth, _ := g.pdf.GetPageSize()
	available := pageWidth - g.options.Margins.Left - g.options.Margins.Right

	widths := make([]float64, len(labels))
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
	for i, label := range labels {
		widths[i] = g.pdf.GetStringWidth(label) + 4
	}

	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	sample := rows
	if len(sample) > 100 {
		sample = sample[:100]
	}
	for _, row := range sample {
		for i := range labels {
			if i >= len(row) {
				continue
			}
			if w := g.pdf.GetStringWidth(row[i]) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > available {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

// fit truncates val so it fits in a cell of the given width.
func (g *PDFGenerator) fit(val string, width float64) string {
	if g.pdf.GetStringWidth(val)+2 <= width {
		return val
	}
	runes := []rune(val)
	for len(runes) > 0 && g.pdf.GetStringWidth(string(runes)+"...")+2 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func (g *PDFGenerator) pageHeight() float64 {
	_, h := g.pdf.GetPageSize()
	return h
}

// tr converts UTF-8 text to the cp1252 encoding of the core fonts.
func (g *PDFGenerator) tr(s string) string {
	return g.translate(s)
}

func (g *PDFGenerator) setFooter() {
	g.pdf.SetFooterFunc(func() {
		g.pdf.SetY(-15)
		g.pdf.SetFont(g.options.FontFamily, "", 8)
		g.pdf.SetTextColor(128, 128, 128)
		g.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", g.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}

// FormatText renders a cell or summary value as display text.
func FormatText(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04 MST")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
