package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptLine is one label/value row on a receipt
type ReceiptLine struct {
	Label string
	Value string
}

// Receipt is the content of a single-page claim receipt
type Receipt struct {
	Title    string
	Subtitle string
	Lines    []ReceiptLine
	Note     string
	IssuedAt time.Time
}

// PDFColor represents an RGB color
type PDFColor struct {
	R, G, B int
}

// PDFOptions configures receipt rendering
type PDFOptions struct {
	PageSize    string
	FontFamily  string
	FontSize    float64
	HeaderColor PDFColor
	DateFormat  string
}

func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:    "A4",
		FontFamily:  "Helvetica",
		FontSize:    11,
		HeaderColor: PDFColor{R: 46, G: 125, B: 50},
		DateFormat:  "2006-01-02 15:04 MST",
	}
}

// RenderReceipt lays out a receipt and returns the PDF bytes
func RenderReceipt(r Receipt, options PDFOptions) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", options.PageSize, "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(r.Title, false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(options.FontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFillColor(options.HeaderColor.R, options.HeaderColor.G, options.HeaderColor.B)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(options.FontFamily, "B", options.FontSize+6)
	pdf.CellFormat(0, 14, r.Title, "", 1, "C", true, 0, "")

	pdf.SetTextColor(0, 0, 0)
	if r.Subtitle != "" {
		pdf.SetFont(options.FontFamily, "", options.FontSize+1)
		pdf.CellFormat(0, 8, r.Subtitle, "", 1, "C", false, 0, "")
	}
	if !r.IssuedAt.IsZero() {
		pdf.SetFont(options.FontFamily, "", options.FontSize-2)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 6, "Issued: "+r.IssuedAt.Format(options.DateFormat), "", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(6)

	for _, line := range r.Lines {
		pdf.SetFont(options.FontFamily, "B", options.FontSize)
		pdf.CellFormat(55, 8, line.Label+":", "B", 0, "L", false, 0, "")
		pdf.SetFont(options.FontFamily, "", options.FontSize)
		pdf.CellFormat(0, 8, line.Value, "B", 1, "L", false, 0, "")
	}

	if r.Note != "" {
		pdf.Ln(8)
		pdf.SetFont(options.FontFamily, "I", options.FontSize-1)
		pdf.MultiCell(0, 6, r.Note, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
