package payment

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace/apperr"
)

const DefaultCurrency = "usd"

// Catalog prices are stored in USD and converted with a fixed table.
var exchangeRates = map[string]decimal.Decimal{
	"usd": decimal.NewFromInt(1),
	"eur": decimal.RequireFromString("0.85"),
	"mad": decimal.RequireFromString("10.5"),
}

var hundred = decimal.NewFromInt(100)

func SupportedCurrencies() []string {
	out := make([]string, 0, len(exchangeRates))
	for c := range exchangeRates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// NormalizeCurrency lower-cases the code and defaults an empty one to usd.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency, nil
	}
	if _, ok := exchangeRates[c]; !ok {
		return "", apperr.ValidationFields("unsupported currency", map[string]string{
			"currency": "must be one of " + strings.Join(SupportedCurrencies(), ", "),
		})
	}
	return c, nil
}

// UnitAmount converts a USD unit price into minor units of currency,
// rounding half away from zero per unit.
func UnitAmount(price decimal.Decimal, currency string) (int64, error) {
	rate, ok := exchangeRates[currency]
	if !ok {
		return 0, apperr.Validation("unsupported currency " + currency)
	}
	return price.Mul(rate).Mul(hundred).Round(0).IntPart(), nil
}
