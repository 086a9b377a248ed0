package model

import "math/big"

// SwapQuote is a full-size quote in base units.
// Approximate is set when the venue fell back to a local curve approximation.
type SwapQuote struct {
	Venue       string
	FeeTier     uint32
	PoolAddress string
	AmountIn    *big.Int
	AmountOut   *big.Int
	Approximate bool
}
