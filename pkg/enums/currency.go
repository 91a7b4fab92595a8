package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code the storefront can charge in. Every supported currency has two
// minor-unit digits.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyAUD Currency = "AUD"
	CurrencyCAD Currency = "CAD"
)

var validCurrencies = []Currency{
	CurrencyINR,
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyAUD,
	CurrencyCAD,
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if c.IsValid() {
		return c, nil
	}
	return "", fmt.Errorf("unsupported currency %q", value)
}
