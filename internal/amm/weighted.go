package amm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const weightedPrecision = 36

// maxInRatio is the largest share of balanceIn a weighted pool accepts per swap.
var maxInRatio = decimal.NewFromFloat(0.3)

// WeightedAmountOut implements the weighted-pool out-given-in invariant:
//
//	out = balanceOut * (1 - (balanceIn / (balanceIn + amountIn*(1-fee))) ^ (weightIn/weightOut))
//
// The result is rounded down.
func WeightedAmountOut(amountIn, balanceIn, balanceOut *big.Int, weightIn, weightOut, swapFee decimal.Decimal) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if balanceIn == nil || balanceOut == nil || balanceIn.Sign() <= 0 || balanceOut.Sign() <= 0 {
		return nil, ErrEmptyReserves
	}
	if !weightIn.IsPositive() || !weightOut.IsPositive() {
		return nil, ErrEmptyReserves
	}

	in := decimal.NewFromBigInt(amountIn, 0)
	bIn := decimal.NewFromBigInt(balanceIn, 0)
	bOut := decimal.NewFromBigInt(balanceOut, 0)
	if in.GreaterThan(bIn.Mul(maxInRatio)) {
		return nil, ErrInsufficientLiquidity
	}

	inAfterFee := in.Mul(decimal.NewFromInt(1).Sub(swapFee))
	base := bIn.DivRound(bIn.Add(inAfterFee), weightedPrecision)
	exponent := weightIn.DivRound(weightOut, weightedPrecision)

	power := base
	if !exponent.Equal(decimal.NewFromInt(1)) {
		var err error
		power, err = base.PowWithPrecision(exponent, weightedPrecision)
		if err != nil {
			return nil, err
		}
	}

	out := bOut.Mul(decimal.NewFromInt(1).Sub(power)).Floor()
	if out.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if out.GreaterThanOrEqual(bOut) {
		return nil, ErrInsufficientLiquidity
	}
	return out.BigInt(), nil
}
