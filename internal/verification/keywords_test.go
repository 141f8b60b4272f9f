package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchGreenCategory(t *testing.T) {
	tests := []struct {
		name     string
		product  string
		category string
		ok       bool
	}{
		{"solar panel", "Luminous Solar Panel 540W", "Solar Energy", true},
		{"ev as a word", "Tata Nexon EV Max", "Electric Mobility", true},
		{"ev inside a word", "Seven seater SUV", "", false},
		{"every is not ev", "Everyday backpack", "", false},
		{"five star", "LG 5-Star inverter AC", "Energy Efficient Appliance", true},
		{"led bulb", "Philips LED Bulb 9W", "LED Lighting", true},
		{"bicycle", "Hercules bicycle", "Sustainable Transport", true},
		{"bare led", "Philips 9W LED", "LED Lighting", true},
		{"led inside a word", "Ledger notebook", "", false},
		{"hyphenated heat pump", "Daikin Heat-Pump", "Energy Efficiency", true},
		{"spaced e-bike", "Hero E Bike", "Electric Mobility", true},
		{"e bike needs a word start", "The bike shop voucher", "", false},
		{"phone", "iPhone 15 Pro", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, ok := MatchGreenCategory(tt.product)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.category, category)
		})
	}
}

func TestKeywordFallbackSecondaryWord(t *testing.T) {
	v := KeywordFallback("Eco friendly tote")

	assert.True(t, v.IsGreenProduct)
	assert.Equal(t, CategoryGreenProduct, v.ProductCategory)
	assert.Equal(t, ConfidenceLow, v.Confidence)
}

func TestKeywordFallbackSecondaryWordNeedsWholeWord(t *testing.T) {
	v := KeywordFallback("Economy class ticket")

	assert.False(t, v.IsGreenProduct)
	assert.Equal(t, CategoryNotEligible, v.ProductCategory)
}

func TestApplyKeywordOverrideIgnoresSecondaryWords(t *testing.T) {
	rejected := Verdict{IsGreenProduct: false, Reason: "not green", ProductCategory: CategoryNotEligible, Confidence: ConfidenceHigh}

	v, overridden := applyKeywordOverride("Green tea", rejected)

	assert.False(t, overridden)
	assert.Equal(t, rejected, v)
}

func TestApplyKeywordOverrideKeepsApproval(t *testing.T) {
	approved := Verdict{IsGreenProduct: true, Reason: "ok", ProductCategory: "Solar Energy", Confidence: ConfidenceHigh}

	v, overridden := applyKeywordOverride("Solar panel", approved)

	assert.False(t, overridden)
	assert.Equal(t, ConfidenceHigh, v.Confidence)
}

func TestApplyKeywordOverrideHyphenatedPhrase(t *testing.T) {
	rejected := Verdict{IsGreenProduct: false, Reason: "not green", ProductCategory: CategoryNotEligible, Confidence: ConfidenceHigh}

	v, overridden := applyKeywordOverride("Daikin Heat-Pump", rejected)

	assert.True(t, overridden)
	assert.True(t, v.IsGreenProduct)
	assert.Equal(t, "Energy Efficiency", v.ProductCategory)
}
