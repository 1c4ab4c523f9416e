package util

import (
	"regexp"
	"strconv"
	"strings"
)

var brlPattern = regexp.MustCompile(`R\$\s?([0-9]{1,3}(?:\.[0-9]{3})*|[0-9]+)(?:,([0-9]{2}))?`)

// ParseBRL parses a Brazilian-formatted price ("R$ 1.234,56") into a float.
// Returns 0 when nothing parseable is found.
func ParseBRL(s string) float64 {
	m := brlPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	whole := strings.ReplaceAll(m[1], ".", "")
	value, err := strconv.ParseFloat(whole, 64)
	if err != nil {
		return 0
	}
	if m[2] != "" {
		cents, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			value += cents / 100
		}
	}
	return value
}

// ExtractBRLPrices returns every Brazilian-formatted price found in s, in
// order of appearance.
func ExtractBRLPrices(s string) []float64 {
	matches := brlPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	prices := make([]float64, 0, len(matches))
	for _, m := range matches {
		if p := ParseBRL(m); p > 0 {
			prices = append(prices, p)
		}
	}
	return prices
}

// DiscountPercent derives the rounded discount percentage from an original
// and current price, clamped to [0, 100]. Zero when the original price is
// missing or not above the current one.
func DiscountPercent(original, current float64) int {
	if original <= 0 || current < 0 || current >= original {
		return 0
	}
	pct := int((original-current)/original*100 + 0.5)
	if pct > 100 {
		pct = 100
	}
	return pct
}
