package payment

import "github.com/shopspring/decimal"

// CoinPack represents a purchasable coin pack. Prices and grants are fixed
// server-side; a caller-supplied price is never trusted.
type CoinPack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Coins       int64           `json:"coins"`
	PriceFiat   decimal.Decimal `json:"price_fiat"`
	PriceCents  int64           `json:"price_cents"`
}

// Predefined coin packs
var CoinPacks = []CoinPack{
	{
		ID:          "p1",
		Name:        "Starter Pack",
		Description: "4 coins",
		Coins:       4,
		PriceFiat:   decimal.NewFromInt(5),
		PriceCents:  500,
	},
	{
		ID:          "p2",
		Name:        "Basic Pack",
		Description: "20 coins",
		Coins:       20,
		PriceFiat:   decimal.NewFromInt(20),
		PriceCents:  2000,
	},
	{
		ID:          "p3",
		Name:        "Plus Pack",
		Description: "60 coins",
		Coins:       60,
		PriceFiat:   decimal.NewFromInt(50),
		PriceCents:  5000,
	},
	{
		ID:          "p4",
		Name:        "Mega Pack",
		Description: "150 coins",
		Coins:       150,
		PriceFiat:   decimal.NewFromInt(100),
		PriceCents:  10000,
	},
}

// FindPack looks up a coin pack by ID
func FindPack(id string) (*CoinPack, bool) {
	for i := range CoinPacks {
		if CoinPacks[i].ID == id {
			return &CoinPacks[i], true
		}
	}
	return nil, false
}
