package models

import "github.com/shopspring/decimal"

// DefaultCoinsPerFiatUnit is the fixed peg between the internal coin unit
// and one unit of the platform's fiat currency.
const DefaultCoinsPerFiatUnit = 10

// CashEquivalent converts a coin amount to its fiat value at the fixed peg,
// rounded to 2 decimal places.
func CashEquivalent(coins, coinsPerFiatUnit int64) decimal.Decimal {
	if coinsPerFiatUnit <= 0 {
		coinsPerFiatUnit = DefaultCoinsPerFiatUnit
	}
	return decimal.NewFromInt(coins).Div(decimal.NewFromInt(coinsPerFiatUnit)).Round(2)
}
