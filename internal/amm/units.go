// Package amm replicates AMM swap formulas in exact integer arithmetic and
// converts between base units and human units.
package amm

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ten = big.NewInt(10)

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// ToHuman converts a base-unit amount to human units without rounding.
func ToHuman(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FormatUnits renders a base-unit amount as a minimal human-unit string.
func FormatUnits(amount *big.Int, decimals uint8) string {
	return ToHuman(amount, decimals).String()
}

// ToBaseUnits converts a human-unit amount to base units. Amounts with more
// fractional digits than the token supports are rejected.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount: %s", amount)
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}
