package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCashEquivalent(t *testing.T) {
	cases := []struct {
		name  string
		coins int64
		peg   int64
		want  string
	}{
		{"exact division", 500, 10, "50"},
		{"rounds to cents", 55, 10, "5.5"},
		{"sub-coin remainder", 33, 10, "3.3"},
		{"single coin", 1, 10, "0.1"},
		{"zero coins", 0, 10, "0"},
		{"non-default peg", 300, 20, "15"},
		{"thirds round to 2dp", 100, 3, "33.33"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CashEquivalent(tc.coins, tc.peg)
			want, err := decimal.NewFromString(tc.want)
			assert.NoError(t, err)
			assert.True(t, got.Equal(want), "CashEquivalent(%d, %d) = %s, want %s", tc.coins, tc.peg, got, want)
		})
	}
}

func TestCashEquivalent_InvalidPegFallsBack(t *testing.T) {
	assert.True(t, CashEquivalent(50, 0).Equal(decimal.NewFromInt(5)))
	assert.True(t, CashEquivalent(50, -7).Equal(decimal.NewFromInt(5)))
}

func TestAccountIsCreator(t *testing.T) {
	assert.True(t, (&Account{AccountType: AccountTypeCreator}).IsCreator())
	assert.False(t, (&Account{AccountType: AccountTypeUser}).IsCreator())
}
