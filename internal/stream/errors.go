// Package stream sizes streamed trades: how many streams, how much gas to
// authorize and what splitting saves against a single swap.
package stream

import "errors"

var (
	// ErrQuoteUnavailable means a required market input (gas price, ETH/USD, venue quote) could not be read.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrBudgetTooSmall means the per-stream USD budget buys less than one gas unit.
	ErrBudgetTooSmall = errors.New("per-stream budget below gas price")
)
