package amm

import "math/big"

// Fee is a multiplicative fee: the share of input kept is Numerator/Denominator.
type Fee struct {
	Numerator   int64
	Denominator int64
}

// UniswapV2Fee is the 0.3% fee used by Uniswap V2 and its clones.
var UniswapV2Fee = Fee{Numerator: 997, Denominator: 1000}

// FeeFromPips converts a fee in hundredths of a basis point (V3 fee tiers).
func FeeFromPips(pips uint32) Fee {
	return Fee{Numerator: 1_000_000 - int64(pips), Denominator: 1_000_000}
}

// GetAmountOutInto computes the constant-product output using caller-provided
// temporaries. dst must not alias any input.
func GetAmountOutInto(dst, t1, t2 *big.Int, amountIn, reserveIn, reserveOut *big.Int, fee Fee) *big.Int {
	// t1 = amountIn * feeNum
	t1.Mul(amountIn, big.NewInt(fee.Numerator))
	// t2 = reserveIn * feeDen + t1
	t2.Mul(reserveIn, big.NewInt(fee.Denominator))
	t2.Add(t2, t1)
	// dst = t1 * reserveOut / t2
	dst.Mul(t1, reserveOut)
	return dst.Div(dst, t2)
}

// GetAmountOut mirrors UniswapV2Library.getAmountOut.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, fee Fee) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	var dst, t1, t2 big.Int
	out := GetAmountOutInto(&dst, &t1, &t2, amountIn, reserveIn, reserveOut, fee)
	return new(big.Int).Set(out), nil
}

// GetAmountIn mirrors UniswapV2Library.getAmountIn.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int, fee Fee) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, big.NewInt(fee.Denominator))
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, big.NewInt(fee.Numerator))

	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}
