// Package aggregate collects per-venue results for a token pair.
package aggregate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"streamSwap/internal/model"
	"streamSwap/internal/venue"
)

// Reserves fans out to every adapter concurrently.
type Reserves struct {
	adapters []venue.Adapter
	logger   *zap.Logger
}

func NewReserves(adapters []venue.Adapter, logger *zap.Logger) *Reserves {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reserves{adapters: adapters, logger: logger}
}

// All returns every venue's snapshot for the pair in adapter priority order.
// A failing or panicking adapter is logged and skipped; it never cancels the others.
func (r *Reserves) All(ctx context.Context, tokenA, tokenB common.Address) []model.ReserveSnapshot {
	return r.collect(ctx, r.adapters, tokenA, tokenB)
}

// From queries only the given adapters, keeping their order.
func (r *Reserves) From(ctx context.Context, adapters []venue.Adapter, tokenA, tokenB common.Address) []model.ReserveSnapshot {
	return r.collect(ctx, adapters, tokenA, tokenB)
}

func (r *Reserves) collect(ctx context.Context, adapters []venue.Adapter, tokenA, tokenB common.Address) []model.ReserveSnapshot {
	type slot struct {
		snap model.ReserveSnapshot
		ok   bool
	}
	slots := make([]slot, len(adapters))

	// Plain errgroup, not WithContext: one venue failing must not cancel the rest.
	var g errgroup.Group
	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("venue reserves panicked", zap.String("venue", venue.AdapterID(adapter)), zap.Any("panic", rec))
					err = fmt.Errorf("%s: panic: %v", venue.AdapterID(adapter), rec)
				}
			}()
			snap, ok, err := adapter.Reserves(ctx, tokenA, tokenB)
			if err != nil {
				r.logger.Warn("venue reserves failed", zap.String("venue", venue.AdapterID(adapter)), zap.Error(err))
				return nil
			}
			if ok {
				slots[i] = slot{snap: snap, ok: true}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.ReserveSnapshot, 0, len(adapters))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.snap)
		}
	}
	return out
}
