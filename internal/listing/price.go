package listing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const amount = `(\d[\d,]*(?:\.\d+)?)`

var (
	rangePattern  = regexp.MustCompile(`\$?\s*` + amount + `\s*[-–]\s*\$?\s*` + amount)
	dollarPattern = regexp.MustCompile(`\$\s*` + amount)
	barePattern   = regexp.MustCompile(`^\s*` + amount + `\s*$`)
)

// ExtractPrice estimates a price from a free-text value range. It is a
// heuristic: a range yields its midpoint, a dollar amount yields itself, a
// string that is only a number yields that number, anything else yields 0.
// The result is rounded to cents.
func ExtractPrice(valueRange string) float64 {
	if m := rangePattern.FindStringSubmatch(valueRange); m != nil {
		low, errLow := parseAmount(m[1])
		high, errHigh := parseAmount(m[2])
		if errLow == nil && errHigh == nil {
			return low.Add(high).Div(decimal.NewFromInt(2)).Round(2).InexactFloat64()
		}
	}

	for _, re := range []*regexp.Regexp{dollarPattern, barePattern} {
		if m := re.FindStringSubmatch(valueRange); m != nil {
			if v, err := parseAmount(m[1]); err == nil {
				return v.Round(2).InexactFloat64()
			}
		}
	}

	return 0
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

// roundCents rounds a non-negative price to cents; negatives become 0
func roundCents(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
