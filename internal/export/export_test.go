package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExcelExporterWritesRows(t *testing.T) {
	e, err := NewExcelExporter(DefaultExcelOptions())
	require.NoError(t, err)
	defer e.Close()

	at := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	columns := []Column{
		{Key: "product", Label: "Product"},
		{Key: "credits", Label: "Credits Redeemed"},
		{Key: "at", Label: "Processed At"},
	}
	rows := []map[string]interface{}{
		{"product": "Solar Panel 5kW", "credits": decimal.RequireFromString("2500.50"), "at": at},
		{"product": "Hero e-bike", "credits": decimal.NewFromInt(900), "at": (*time.Time)(nil)},
	}
	require.NoError(t, e.Write(columns, rows))

	var buf bytes.Buffer
	require.NoError(t, e.WriteTo(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Redemptions", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Credits Redeemed", header)

	product, err := f.GetCellValue("Redemptions", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Solar Panel 5kW", product)

	raw, err := f.GetCellValue("Redemptions", "B2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "2500.5", raw)

	empty, err := f.GetCellValue("Redemptions", "C3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRenderReceipt(t *testing.T) {
	out, err := RenderReceipt(Receipt{
		Title:    "GreenFin Claim Receipt",
		Subtitle: "Claim APPROVED",
		Lines: []ReceiptLine{
			{Label: "Product", Value: "Solar Panel 5kW"},
			{Label: "Credits Redeemed", Value: "INR 2500.00"},
		},
		Note:     "Backed by CSR funding.",
		IssuedAt: time.Now(),
	}, DefaultPDFOptions())

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestWriteCSV(t *testing.T) {
	at := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	columns := []Column{
		{Key: "product", Label: "Product"},
		{Key: "credits", Label: "Credits"},
		{Key: "at", Label: "Processed At"},
	}
	rows := []map[string]interface{}{
		{"product": "Solar Panel, 5kW", "credits": decimal.RequireFromString("2500.5"), "at": at},
		{"product": "LED bulb", "credits": decimal.NewFromInt(90), "at": (*time.Time)(nil)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, columns, rows, DefaultCSVOptions()))

	want := "Product,Credits,Processed At\n" +
		"\"Solar Panel, 5kW\",2500.50,2025-03-14T10:30:00Z\n" +
		"LED bulb,90.00,\n"
	assert.Equal(t, want, buf.String())
}
