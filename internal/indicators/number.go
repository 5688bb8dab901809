package indicators

import (
	"strings"

	"github.com/shopspring/decimal"
)

var nullTokens = map[string]bool{
	"":     true,
	"...":  true,
	"..":   true,
	"-":    true,
	"--":   true,
	"nan":  true,
	"none": true,
	"null": true,
	"x":    true,
}

// ParseNumber parses Brazilian and international number formats.
//
//	"49.493"    -> 49.493
//	"49,493"    -> 49.493
//	"1.234,56"  -> 1234.56
//	"1 234"     -> 1234
//
// A comma is the decimal separator only when no dot is present; when both
// appear, dots are thousand separators. Sentinels ("...", "-", "nan", "None",
// empty) are null.
func ParseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\t", "").Replace(s)
	if nullTokens[strings.ToLower(s)] {
		return decimal.Decimal{}, false
	}
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = strings.TrimSuffix(s, "%")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
