package verification

import (
	"fmt"
	"strings"
)

const baseSystemPrompt = `You are a green product verification assistant for GreenFin.
Your job is to determine if a product qualifies for green credit redemption.

ELIGIBLE PRODUCTS (renewable energy or eco-friendly):
- Solar panels, solar water heaters, solar inverters
- Electric vehicles (EVs), e-bikes, electric scooters
- Home batteries, energy storage systems
- Energy efficient appliances (5-star rated)
- LED lighting systems
- Heat pumps, smart thermostats, insulation
- Rainwater harvesting and composting systems
- Bicycles, public transport passes

NOT ELIGIBLE:
- Regular vehicles (petrol/diesel)
- Standard home appliances
- Electronics (phones, laptops, TVs)
- Clothing, furniture, food
- Any non-environmental products`

const invoiceInstructions = `

An invoice was uploaded and its text was extracted by OCR (it may contain recognition errors).
- Cross-check the claimed product and price against the invoice text.
- If the invoice clearly describes a different product, or the amounts are wildly inconsistent, the claim is not eligible.
- Extract the product name, the total amount, the seller and the invoice date when present.`

const responseFormat = `

Respond in JSON format:
{
  "isGreenProduct": boolean,
  "reason": "Brief explanation",
  "productCategory": "Category name or 'Not Eligible'",
  "confidence": "high" | "medium" | "low",
  "estimatedPrice": number (estimated market price in INR)%s
}`

const detailsFormat = `,
  "extractedDetails": {
    "productName": "string",
    "detectedAmount": number,
    "seller": "string",
    "date": "string"
  }`

func buildSystemPrompt(hasInvoice bool) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if hasInvoice {
		b.WriteString(invoiceInstructions)
		b.WriteString(fmt.Sprintf(responseFormat, detailsFormat))
	} else {
		b.WriteString(fmt.Sprintf(responseFormat, ""))
	}
	return b.String()
}

func buildUserPrompt(req Request, invoiceText string) string {
	var b strings.Builder
	b.WriteString("Verify this product for green credit redemption:\n\n")
	fmt.Fprintf(&b, "Product Name: %s\n", req.ProductName)
	fmt.Fprintf(&b, "Claimed Price: ₹%s\n", req.ProductPrice.StringFixed(2))
	fmt.Fprintf(&b, "User's Available Credits: ₹%s\n", req.UserCredits.StringFixed(2))
	if invoiceText != "" {
		b.WriteString("\nInvoice text (OCR):\n\"\"\"\n")
		b.WriteString(invoiceText)
		b.WriteString("\n\"\"\"\n")
	}
	b.WriteString("\nIs this a valid green/renewable energy product? Respond with JSON only.")
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// extractJSONObject returns the outermost {...} span of a completion
func extractJSONObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}
