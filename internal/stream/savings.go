package stream

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"streamSwap/internal/amm"
	"streamSwap/internal/cache"
	"streamSwap/internal/model"
)

// Quoter is the slice of a venue adapter the savings calculator needs.
type Quoter interface {
	Name() string
	FeeTier() uint32
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, bool, error)
}

// SavingsCalculator compares one swap of the full volume with N swaps of
// volume/N on the same venue. Each chunk is quoted against current state.
type SavingsCalculator struct {
	cache *cache.Calculations
}

func NewSavingsCalculator(calc *cache.Calculations) *SavingsCalculator {
	return &SavingsCalculator{cache: calc}
}

// SavingsInput describes one savings computation. Volume is in base units of
// TokenIn; Snapshot pins the reserves the result is valid for.
type SavingsInput struct {
	TokenIn        common.Address
	TokenOut       common.Address
	Volume         *big.Int
	Streams        int64
	OutputDecimals uint8
	Snapshot       model.ReserveSnapshot
}

func (s *SavingsCalculator) Savings(ctx context.Context, q Quoter, in SavingsInput) (model.SlippageSavings, error) {
	if in.Volume == nil || in.Volume.Sign() <= 0 {
		return model.SlippageSavings{}, amm.ErrInsufficientInput
	}
	if in.Streams < 1 {
		return model.SlippageSavings{}, fmt.Errorf("stream count must be >= 1, got %d", in.Streams)
	}
	streams := big.NewInt(in.Streams)
	chunk := new(big.Int).Quo(in.Volume, streams)
	if chunk.Sign() == 0 {
		return model.SlippageSavings{}, fmt.Errorf("%w: volume %s split into %d streams", amm.ErrInsufficientInput, in.Volume, in.Streams)
	}

	key := cache.Key("slippage_savings", fmt.Sprintf("%s/%d/%s>%s", in.Volume, in.Streams, in.TokenIn.Hex(), in.TokenOut.Hex()),
		venueKey(q.Name(), q.FeeTier()), in.Snapshot.PoolAddress, in.Snapshot.Reserves.Token0, in.Snapshot.Reserves.Token1)
	if v, ok := s.cache.Get(key, 0); ok {
		if res, ok := v.(model.SlippageSavings); ok {
			return res, nil
		}
	}

	single, err := s.quote(ctx, q, in.TokenIn, in.TokenOut, in.Volume)
	if err != nil {
		return model.SlippageSavings{}, err
	}
	part, err := s.quote(ctx, q, in.TokenIn, in.TokenOut, chunk)
	if err != nil {
		return model.SlippageSavings{}, err
	}
	streamed := new(big.Int).Mul(part.AmountOut, streams)
	savings := new(big.Int).Sub(streamed, single.AmountOut)

	bps := decimal.Zero
	if single.AmountOut.Sign() > 0 {
		bps = decimal.NewFromBigInt(savings, 4).DivRound(decimal.NewFromBigInt(single.AmountOut, 0), 2)
	}

	res := model.SlippageSavings{
		Venue:                    q.Name(),
		FeeTier:                  q.FeeTier(),
		StreamCount:              in.Streams,
		SingleShotOutput:         amm.FormatUnits(single.AmountOut, in.OutputDecimals),
		StreamedEquivalentOutput: amm.FormatUnits(streamed, in.OutputDecimals),
		Savings:                  amm.FormatUnits(savings, in.OutputDecimals),
		SavingsBps:               bps.StringFixed(2),
		Approximate:              single.Approximate || part.Approximate,
	}
	s.cache.Set(key, res, 0)
	return res, nil
}

func (s *SavingsCalculator) quote(ctx context.Context, q Quoter, tokenIn, tokenOut common.Address, amount *big.Int) (model.SwapQuote, error) {
	quote, ok, err := q.Quote(ctx, tokenIn, tokenOut, amount)
	if err != nil {
		return model.SwapQuote{}, err
	}
	if !ok {
		return model.SwapQuote{}, fmt.Errorf("%w: %s has no pool", ErrQuoteUnavailable, venueKey(q.Name(), q.FeeTier()))
	}
	return quote, nil
}
