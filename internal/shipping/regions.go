package shipping

import (
	"strings"

	"github.com/shopspring/decimal"
)

// The CEP prefix (first two digits) partitions the country into five
// macro-regions. Carrier costs scale by the region's multiplier; prefixes
// outside every band use the default.
type regionBand struct {
	name       string
	lowPrefix  int
	highPrefix int
	multiplier decimal.Decimal
}

var regionBands = []regionBand{
	{name: "sudeste", lowPrefix: 1, highPrefix: 39, multiplier: decimal.RequireFromString("1.0")},
	{name: "nordeste", lowPrefix: 40, highPrefix: 65, multiplier: decimal.RequireFromString("1.45")},
	{name: "norte", lowPrefix: 66, highPrefix: 69, multiplier: decimal.RequireFromString("1.6")},
	{name: "centro-oeste", lowPrefix: 70, highPrefix: 79, multiplier: decimal.RequireFromString("1.3")},
	{name: "sul", lowPrefix: 80, highPrefix: 99, multiplier: decimal.RequireFromString("1.15")},
}

var defaultMultiplier = decimal.RequireFromString("1.25")

// regionMultiplier resolves the carrier multiplier for a postal code.
func regionMultiplier(postalCode string) (string, decimal.Decimal) {
	digits := digitsOnly(postalCode)
	if len(digits) < 2 {
		return "", defaultMultiplier
	}

	prefix := int(digits[0]-'0')*10 + int(digits[1]-'0')
	for _, band := range regionBands {
		if prefix >= band.lowPrefix && prefix <= band.highPrefix {
			return band.name, band.multiplier
		}
	}
	return "", defaultMultiplier
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
