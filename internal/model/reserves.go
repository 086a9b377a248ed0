package model

import "time"

// AmountPair holds two amounts in caller order: Token0 is tokenA, Token1 is tokenB.
type AmountPair struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}

// DecimalsPair holds token decimals in caller order.
type DecimalsPair struct {
	Token0 uint8 `json:"token0"`
	Token1 uint8 `json:"token1"`
}

// ReserveSnapshot is one venue's liquidity for a pair, expressed in human units.
type ReserveSnapshot struct {
	Venue       string       `json:"venue"`
	FeeTier     uint32       `json:"fee_tier,omitempty"`
	PoolAddress string       `json:"pool_address"`
	Reserves    AmountPair   `json:"reserves"`
	Decimals    DecimalsPair `json:"decimals"`
	Timestamp   time.Time    `json:"timestamp"`
}

// PriceQuote is the output for a 1-unit probe of tokenA into tokenB.
type PriceQuote struct {
	Venue       string    `json:"venue"`
	FeeTier     uint32    `json:"fee_tier,omitempty"`
	Price       string    `json:"price"`
	Approximate bool      `json:"approximate,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
