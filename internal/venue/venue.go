// Package venue adapts individual AMM protocols to one capability set:
// reserves for a pair, a 1-unit probe price and a full-size quote.
package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"streamSwap/internal/amm"
	"streamSwap/internal/chain"
	"streamSwap/internal/model"
)

// Venue identifiers.
const (
	UniswapV2 = "uniswap-v2"
	UniswapV3 = "uniswap-v3"
	SushiSwap = "sushiswap"
	Balancer  = "balancer"
)

// ErrUnknownVenue is returned for identifiers the registry cannot build.
var ErrUnknownVenue = errors.New("unknown venue")

// Adapter is implemented once per protocol family. Lookups return
// (zero, false, nil) when the venue has no pool for the pair.
type Adapter interface {
	Name() string
	FeeTier() uint32
	Reserves(ctx context.Context, tokenA, tokenB common.Address) (model.ReserveSnapshot, bool, error)
	Price(ctx context.Context, tokenA, tokenB common.Address) (model.PriceQuote, bool, error)
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, bool, error)
}

// TokenResolver supplies token decimals.
type TokenResolver interface {
	TokenInfo(ctx context.Context, address string) (model.TokenInfo, error)
}

// Deps are the collaborators every adapter shares.
type Deps struct {
	Caller chain.ContractCaller
	Tokens TokenResolver
	Logger *zap.Logger
	Clock  func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// ID renders a venue identifier, suffixing the fee tier when present.
func ID(name string, feeTier uint32) string {
	if feeTier == 0 {
		return name
	}
	return fmt.Sprintf("%s-%d", name, feeTier)
}

// AdapterID returns the identifier of an adapter.
func AdapterID(a Adapter) string {
	return ID(a.Name(), a.FeeTier())
}

// base carries the snapshot and price plumbing shared by all adapters.
type base struct {
	name    string
	feeTier uint32
	deps    Deps
}

func (b *base) Name() string    { return b.name }
func (b *base) FeeTier() uint32 { return b.feeTier }

func (b *base) decimals(ctx context.Context, tokenA, tokenB common.Address) (uint8, uint8, error) {
	infoA, err := b.deps.Tokens.TokenInfo(ctx, tokenA.Hex())
	if err != nil {
		return 0, 0, err
	}
	infoB, err := b.deps.Tokens.TokenInfo(ctx, tokenB.Hex())
	if err != nil {
		return 0, 0, err
	}
	return infoA.Decimals, infoB.Decimals, nil
}

// snapshot normalizes base-unit reserves given in caller order.
func (b *base) snapshot(ctx context.Context, pool common.Address, tokenA, tokenB common.Address, reserveA, reserveB *big.Int) (model.ReserveSnapshot, error) {
	decA, decB, err := b.decimals(ctx, tokenA, tokenB)
	if err != nil {
		return model.ReserveSnapshot{}, err
	}
	return model.ReserveSnapshot{
		Venue:       b.name,
		FeeTier:     b.feeTier,
		PoolAddress: pool.Hex(),
		Reserves: model.AmountPair{
			Token0: amm.FormatUnits(reserveA, decA),
			Token1: amm.FormatUnits(reserveB, decB),
		},
		Decimals:  model.DecimalsPair{Token0: decA, Token1: decB},
		Timestamp: b.deps.Clock(),
	}, nil
}

type quoteFunc func(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, bool, error)

// probePrice quotes one whole unit of tokenA and reports the output in human units of tokenB.
func (b *base) probePrice(ctx context.Context, quote quoteFunc, tokenA, tokenB common.Address) (model.PriceQuote, bool, error) {
	decA, decB, err := b.decimals(ctx, tokenA, tokenB)
	if err != nil {
		return model.PriceQuote{}, false, err
	}
	q, ok, err := quote(ctx, tokenA, tokenB, amm.Pow10(decA))
	if err != nil || !ok {
		return model.PriceQuote{}, ok, err
	}
	return model.PriceQuote{
		Venue:       b.name,
		FeeTier:     b.feeTier,
		Price:       amm.FormatUnits(q.AmountOut, decB),
		Approximate: q.Approximate,
		Timestamp:   b.deps.Clock(),
	}, true, nil
}

func (b *base) swapQuote(pool common.Address, amountIn, amountOut *big.Int, approximate bool) model.SwapQuote {
	return model.SwapQuote{
		Venue:       b.name,
		FeeTier:     b.feeTier,
		PoolAddress: pool.Hex(),
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   amountOut,
		Approximate: approximate,
	}
}

func isZero(addr common.Address) bool {
	return addr == (common.Address{})
}
