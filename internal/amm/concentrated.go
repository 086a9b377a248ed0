package amm

import "math/big"

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// VirtualReserves returns the constant-product reserves implied by a
// concentrated-liquidity pool's active liquidity at its current price:
// x = L * 2^96 / sqrtP, y = L * sqrtP / 2^96.
func VirtualReserves(liquidity, sqrtPriceX96 *big.Int) (*big.Int, *big.Int, error) {
	if liquidity == nil || sqrtPriceX96 == nil || liquidity.Sign() <= 0 || sqrtPriceX96.Sign() <= 0 {
		return nil, nil, ErrEmptyReserves
	}
	reserve0 := new(big.Int).Mul(liquidity, q96)
	reserve0.Div(reserve0, sqrtPriceX96)
	reserve1 := new(big.Int).Mul(liquidity, sqrtPriceX96)
	reserve1.Div(reserve1, q96)
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return nil, nil, ErrEmptyReserves
	}
	return reserve0, reserve1, nil
}

// ApproximateAmountOut quotes a concentrated-liquidity pool as if its active
// liquidity extended over the whole curve. It ignores tick crossings, so it is
// an approximation of the real swap, not a replica.
func ApproximateAmountOut(amountIn, liquidity, sqrtPriceX96 *big.Int, zeroForOne bool, feePips uint32) (*big.Int, error) {
	reserve0, reserve1, err := VirtualReserves(liquidity, sqrtPriceX96)
	if err != nil {
		return nil, err
	}
	if zeroForOne {
		return GetAmountOut(amountIn, reserve0, reserve1, FeeFromPips(feePips))
	}
	return GetAmountOut(amountIn, reserve1, reserve0, FeeFromPips(feePips))
}
