package aggregate

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"streamSwap/internal/model"
	"streamSwap/internal/venue"
)

const (
	DefaultPriceRetries    = 2
	DefaultPriceRetryDelay = 500 * time.Millisecond
	DefaultPricePacing     = 200 * time.Millisecond
)

// PricesConfig controls rate-limit friendly price collection.
type PricesConfig struct {
	Retries    int
	RetryDelay time.Duration
	Pacing     time.Duration
}

// DefaultPricesConfig returns two retries at a fixed delay and a short pacing pause.
func DefaultPricesConfig() PricesConfig {
	return PricesConfig{
		Retries:    DefaultPriceRetries,
		RetryDelay: DefaultPriceRetryDelay,
		Pacing:     DefaultPricePacing,
	}
}

// Prices queries venues one at a time with a pause between calls.
type Prices struct {
	adapters []venue.Adapter
	cfg      PricesConfig
	logger   *zap.Logger
}

func NewPrices(adapters []venue.Adapter, cfg PricesConfig, logger *zap.Logger) *Prices {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prices{adapters: adapters, cfg: cfg, logger: logger}
}

// FromVenue queries a single adapter, retrying failures at a fixed delay.
// Exhausted retries yield absence, not an error.
func (p *Prices) FromVenue(ctx context.Context, adapter venue.Adapter, tokenA, tokenB common.Address) (model.PriceQuote, bool) {
	var (
		quote model.PriceQuote
		found bool
	)
	err := withRetry(ctx, p.cfg.Retries, p.cfg.RetryDelay, func(ctx context.Context) error {
		q, ok, err := adapter.Price(ctx, tokenA, tokenB)
		if err != nil {
			p.logger.Debug("venue price attempt failed", zap.String("venue", venue.AdapterID(adapter)), zap.Error(err))
			return err
		}
		quote, found = q, ok
		return nil
	})
	if err != nil {
		p.logger.Warn("venue price unavailable", zap.String("venue", venue.AdapterID(adapter)), zap.Error(err))
		return model.PriceQuote{}, false
	}
	return quote, found
}

// All queries every adapter sequentially in priority order.
func (p *Prices) All(ctx context.Context, tokenA, tokenB common.Address) []model.PriceQuote {
	return p.From(ctx, p.adapters, tokenA, tokenB)
}

// From queries the given adapters sequentially, pausing between calls.
func (p *Prices) From(ctx context.Context, adapters []venue.Adapter, tokenA, tokenB common.Address) []model.PriceQuote {
	out := make([]model.PriceQuote, 0, len(adapters))
	for i, adapter := range adapters {
		if i > 0 {
			if err := sleep(ctx, p.cfg.Pacing); err != nil {
				break
			}
		}
		if q, ok := p.FromVenue(ctx, adapter, tokenA, tokenB); ok {
			out = append(out, q)
		}
	}
	return out
}
