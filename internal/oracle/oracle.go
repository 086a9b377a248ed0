// Package oracle supplies the ETH/USD reference price used for gas budgeting.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"streamSwap/internal/chain"
	"streamSwap/internal/dex"
)

// MainnetETHUSDFeed is the Chainlink ETH/USD aggregator on Ethereum mainnet.
var MainnetETHUSDFeed = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

var (
	ErrNonPositiveAnswer = errors.New("feed answer is not positive")
	ErrStaleAnswer       = errors.New("feed answer is stale")
)

// Static returns a configured price.
type Static struct {
	Price decimal.Decimal
}

func (s Static) ETHUSD(context.Context) (decimal.Decimal, error) {
	if !s.Price.IsPositive() {
		return decimal.Zero, ErrNonPositiveAnswer
	}
	return s.Price, nil
}

// Chainlink reads latestRoundData from an aggregator feed.
type Chainlink struct {
	caller chain.ContractCaller
	feed   common.Address
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	decimals *uint8
}

// NewChainlink creates a feed reader. A zero maxAge disables the staleness check.
func NewChainlink(caller chain.ContractCaller, feed common.Address, maxAge time.Duration) *Chainlink {
	return &Chainlink{caller: caller, feed: feed, maxAge: maxAge, now: time.Now}
}

func (c *Chainlink) ETHUSD(ctx context.Context) (decimal.Decimal, error) {
	feedABI, err := dex.AggregatorV3ABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse aggregator abi: %w", err)
	}

	decimals, err := c.feedDecimals(ctx, feedABI)
	if err != nil {
		return decimal.Zero, fmt.Errorf("feed %s decimals: %w", c.feed.Hex(), err)
	}

	values, err := dex.Call(ctx, c.caller, c.feed, feedABI, "latestRoundData")
	if err != nil {
		return decimal.Zero, fmt.Errorf("feed %s: %w", c.feed.Hex(), err)
	}
	if len(values) < 4 {
		return decimal.Zero, fmt.Errorf("feed %s: short latestRoundData", c.feed.Hex())
	}
	answer, err := dex.AsBigInt(values[1])
	if err != nil {
		return decimal.Zero, fmt.Errorf("answer: %w", err)
	}
	if answer.Sign() <= 0 {
		return decimal.Zero, ErrNonPositiveAnswer
	}
	if c.maxAge > 0 {
		updatedAt, err := dex.AsBigInt(values[3])
		if err != nil {
			return decimal.Zero, fmt.Errorf("updatedAt: %w", err)
		}
		if c.now().Sub(time.Unix(updatedAt.Int64(), 0)) > c.maxAge {
			return decimal.Zero, fmt.Errorf("%w: updated %s", ErrStaleAnswer, time.Unix(updatedAt.Int64(), 0).UTC())
		}
	}
	return decimal.NewFromBigInt(new(big.Int).Set(answer), -int32(decimals)), nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, feedABI abi.ABI) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decimals != nil {
		return *c.decimals, nil
	}
	values, err := dex.Call(ctx, c.caller, c.feed, feedABI, "decimals")
	if err != nil {
		return 0, err
	}
	dec, err := dex.AsUint8(values[0])
	if err != nil {
		return 0, err
	}
	c.decimals = &dec
	return dec, nil
}
