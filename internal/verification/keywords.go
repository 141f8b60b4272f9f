package verification

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type greenKeyword struct {
	phrase   string
	category string
}

// Phrases of three letters or fewer match whole words only so that "ev"
// does not hit "seven" or "every". Longer phrases must start on a word
// boundary. Hyphens and spaces are interchangeable.
var greenCategories = []greenKeyword{
	{"solar panel", "Solar Energy"},
	{"solar water heater", "Solar Energy"},
	{"solar inverter", "Solar Energy"},
	{"rooftop solar", "Solar Energy"},
	{"electric vehicle", "Electric Mobility"},
	{"electric car", "Electric Mobility"},
	{"electric scooter", "Electric Mobility"},
	{"e-scooter", "Electric Mobility"},
	{"e-bike", "Electric Mobility"},
	{"e-bicycle", "Electric Mobility"},
	{"ev", "Electric Mobility"},
	{"battery storage", "Energy Storage"},
	{"home battery", "Energy Storage"},
	{"wind turbine", "Wind Energy"},
	{"energy efficient appliance", "Energy Efficient Appliance"},
	{"5-star", "Energy Efficient Appliance"},
	{"led light", "LED Lighting"},
	{"led bulb", "LED Lighting"},
	{"led", "LED Lighting"},
	{"smart thermostat", "Energy Efficiency"},
	{"insulation", "Energy Efficiency"},
	{"heat pump", "Energy Efficiency"},
	{"rainwater harvesting", "Water Conservation"},
	{"composting system", "Waste Management"},
	{"bicycle", "Sustainable Transport"},
	{"public transport pass", "Public Transport"},
	{"transit pass", "Public Transport"},
	{"metro card", "Public Transport"},
}

var greenWords = []string{"solar", "electric", "eco", "green", "sustainable", "renewable"}

// MatchGreenCategory reports the category of the first green phrase found in
// the product name.
func MatchGreenCategory(productName string) (string, bool) {
	lower := normalizeText(productName)
	words := tokenize(lower)
	for _, kw := range greenCategories {
		if len(kw.phrase) <= 3 {
			if containsWord(words, kw.phrase) {
				return kw.category, true
			}
			continue
		}
		if containsPhrase(lower, normalizeText(kw.phrase)) {
			return kw.category, true
		}
	}
	return "", false
}

func normalizeText(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", " ")
}

// containsPhrase finds phrase at a word start, so "e bike" matches
// "hero e bike" but not "the bike"
func containsPhrase(text, phrase string) bool {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); start == 0 || !isWordRune(prev) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func matchGreenWord(productName string) (string, bool) {
	words := tokenize(strings.ToLower(productName))
	for _, w := range greenWords {
		if containsWord(words, w) {
			return w, true
		}
	}
	return "", false
}

// KeywordFallback decides eligibility from the product name alone
func KeywordFallback(productName string) Verdict {
	if category, ok := MatchGreenCategory(productName); ok {
		return Verdict{
			IsGreenProduct:  true,
			Reason:          "Product matches green category keywords",
			ProductCategory: category,
			Confidence:      ConfidenceMedium,
		}
	}
	if word, ok := matchGreenWord(productName); ok {
		return Verdict{
			IsGreenProduct:  true,
			Reason:          "Product name suggests a green purchase (" + word + ")",
			ProductCategory: CategoryGreenProduct,
			Confidence:      ConfidenceLow,
		}
	}
	return Verdict{
		IsGreenProduct:  false,
		Reason:          "Product does not match any green category",
		ProductCategory: CategoryNotEligible,
		Confidence:      ConfidenceMedium,
	}
}

// applyKeywordOverride flips a rejection to approval when the name contains
// a known green phrase. Approvals are left untouched.
func applyKeywordOverride(productName string, v Verdict) (Verdict, bool) {
	if v.IsGreenProduct {
		return v, false
	}
	category, ok := MatchGreenCategory(productName)
	if !ok {
		return v, false
	}
	v.IsGreenProduct = true
	v.Reason = "Product contains green keyword: " + productName
	v.ProductCategory = category
	v.Confidence = ConfidenceMedium
	return v, true
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}
