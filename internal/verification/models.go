package verification

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method identifies which path produced a verdict
type Method string

const (
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
)

const (
	CategoryNotEligible  = "Not Eligible"
	CategoryGreenProduct = "Green Product"
)

// ExtractedDetails is invoice metadata the model read from the OCR'd text
type ExtractedDetails struct {
	ProductName    string   `json:"productName,omitempty"`
	DetectedAmount *float64 `json:"detectedAmount,omitempty"`
	Seller         string   `json:"seller,omitempty"`
	Date           string   `json:"date,omitempty"`
}

// Verdict is the eligibility decision for one claim
type Verdict struct {
	IsGreenProduct   bool              `json:"isGreenProduct"`
	Reason           string            `json:"reason"`
	ProductCategory  string            `json:"productCategory"`
	Confidence       Confidence        `json:"confidence"`
	EstimatedPrice   *float64          `json:"estimatedPrice,omitempty"`
	ExtractedDetails *ExtractedDetails `json:"extractedDetails,omitempty"`
}

// Request carries everything the verifier may look at
type Request struct {
	ProductName  string
	ProductPrice decimal.Decimal
	UserCredits  decimal.Decimal
	InvoiceText  string
}

// Outcome wraps a verdict with how it was reached. Degraded is set when an
// external model was configured but could not produce a usable answer, in
// which case Cause holds the reason and the verdict comes from the fallback.
type Outcome struct {
	Verdict    Verdict
	Method     Method
	Degraded   bool
	Cause      error
	Overridden bool
}

// modelVerdict mirrors the JSON the model is asked to return. Numbers are
// accepted as JSON numbers or as formatted strings ("₹1,45,000").
type modelVerdict struct {
	IsGreenProduct   bool         `json:"isGreenProduct"`
	Reason           string       `json:"reason"`
	ProductCategory  string       `json:"productCategory"`
	Confidence       string       `json:"confidence"`
	EstimatedPrice   flexFloat    `json:"estimatedPrice"`
	ExtractedDetails *modelDetail `json:"extractedDetails"`
}

type modelDetail struct {
	ProductName    string    `json:"productName"`
	DetectedAmount flexFloat `json:"detectedAmount"`
	Seller         string    `json:"seller"`
	Date           string    `json:"date"`
}

type flexFloat struct {
	Value *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		f.Value = &v
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, v)
		if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
			f.Value = &parsed
		}
	}
	return nil
}

func (m modelVerdict) toVerdict() Verdict {
	v := Verdict{
		IsGreenProduct:  m.IsGreenProduct,
		Reason:          strings.TrimSpace(m.Reason),
		ProductCategory: strings.TrimSpace(m.ProductCategory),
		Confidence:      parseConfidence(m.Confidence),
		EstimatedPrice:  m.EstimatedPrice.Value,
	}
	if d := m.ExtractedDetails; d != nil {
		details := &ExtractedDetails{
			ProductName:    strings.TrimSpace(d.ProductName),
			DetectedAmount: d.DetectedAmount.Value,
			Seller:         strings.TrimSpace(d.Seller),
			Date:           strings.TrimSpace(d.Date),
		}
		if *details != (ExtractedDetails{}) {
			v.ExtractedDetails = details
		}
	}
	return v
}

func parseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceLow:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// normalize guarantees a populated category and a non-empty reason
func normalize(v Verdict) Verdict {
	if v.ProductCategory == "" {
		if v.IsGreenProduct {
			v.ProductCategory = CategoryGreenProduct
		} else {
			v.ProductCategory = CategoryNotEligible
		}
	}
	if v.Reason == "" {
		if v.IsGreenProduct {
			v.Reason = "Product qualifies as a green purchase"
		} else {
			v.Reason = "Product not eligible for green credits"
		}
	}
	if v.Confidence == "" {
		v.Confidence = ConfidenceMedium
	}
	return v
}
