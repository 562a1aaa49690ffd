package match

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Prices use the "thousands-dot, decimal-comma" convention and must sit next to
// a currency marker on either side. Grouped thousands are tried first so that
// "1.234" is read as 1234 rather than 1.
const (
	numberPattern = `(\d{1,3}(?:\.\d{3})+|\d+)(?:,(\d{1,2}))?`
	markerPattern = `(?:€|euro|eur)`
)

var priceRe = regexp.MustCompile(`(?i)` +
	markerPattern + `\s*` + numberPattern +
	`|` +
	numberPattern + `\s*` + markerPattern)

// ExtractPrices returns every price found in text, in order of appearance.
// Numbers without an adjacent currency marker are never returned.
func ExtractPrices(text string) []decimal.Decimal {
	if text == "" {
		return nil
	}
	var out []decimal.Decimal
	for _, m := range priceRe.FindAllStringSubmatchIndex(text, -1) {
		// Groups 1,2: marker-first form. Groups 3,4: marker-last form.
		intPart, fracPart := group(text, m, 1), group(text, m, 2)
		if intPart == "" {
			intPart, fracPart = group(text, m, 3), group(text, m, 4)
		}
		if intPart == "" {
			continue
		}
		// Skip the tail of a malformed number such as "1,555€" (three decimals):
		// the leftmost scan would otherwise read it as 555.
		if start := m[0]; numberFirst(m) && start > 0 && isDigitOrSep(text[start-1]) {
			continue
		}
		if p, ok := parseAmount(intPart, fracPart); ok {
			out = append(out, p)
		}
	}
	return out
}

// MinPrice returns the lowest price, or false when prices is empty.
func MinPrice(prices []decimal.Decimal) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.Min(prices[0], prices[1:]...), true
}

func parseAmount(intPart, fracPart string) (decimal.Decimal, bool) {
	raw := strings.ReplaceAll(intPart, ".", "")
	if fracPart != "" {
		raw += "." + fracPart
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func group(s string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

// numberFirst reports whether the match is the "NUMBER MARKER" form.
func numberFirst(m []int) bool {
	return len(m) > 6 && m[6] == m[0]
}

func isDigitOrSep(b byte) bool {
	return (b >= '0' && b <= '9') || b == ',' || b == '.'
}
