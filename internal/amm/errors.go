package amm

import "errors"

var (
	// ErrInsufficientLiquidity means the pool cannot serve the requested size.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInsufficientInput means the input amount is zero or negative.
	ErrInsufficientInput = errors.New("insufficient input amount")
	// ErrEmptyReserves means one side of the pool holds nothing.
	ErrEmptyReserves = errors.New("empty reserves")
)
