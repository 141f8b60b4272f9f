package invoice

import "strings"

var invoiceKeywords = []string{
	"invoice",
	"tax invoice",
	"gst",
	"vat",
	"bill to",
	"ship to",
	"invoice number",
	"invoice no",
	"invoice #",
	"subtotal",
	"total",
	"amount due",
	"grand total",
	"hsn",
}

// IsLikelyInvoiceText reports whether at least two invoice markers appear
func IsLikelyInvoiceText(text string) bool {
	if text == "" {
		return false
	}
	normalized := strings.ToLower(text)
	hits := 0
	for _, kw := range invoiceKeywords {
		if strings.Contains(normalized, kw) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
