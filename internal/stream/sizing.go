package stream

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"streamSwap/internal/amm"
	"streamSwap/internal/cache"
	"streamSwap/internal/model"
)

const floatPrec = 256

// SizingConfig bounds the recommended stream count.
type SizingConfig struct {
	MinStreams int64
	MaxStreams int64 // 0 means uncapped
}

// Sizer computes the sweet-spot stream count
//
//	alpha = max(Rin, Rout) / min(Rin, Rout)^2
//	N     = round(sqrt(alpha * V^2))
//
// clamped to [MinStreams, MaxStreams].
type Sizer struct {
	cfg   SizingConfig
	cache *cache.Calculations
}

func NewSizer(cfg SizingConfig, calc *cache.Calculations) *Sizer {
	if cfg.MinStreams < 1 {
		cfg.MinStreams = 1
	}
	if cfg.MaxStreams != 0 && cfg.MaxStreams < cfg.MinStreams {
		cfg.MaxStreams = cfg.MinStreams
	}
	return &Sizer{cfg: cfg, cache: calc}
}

// SweetSpot sizes a trade of volume (human units of the input token) against
// a snapshot whose Token0 side is the input token.
func (s *Sizer) SweetSpot(volume decimal.Decimal, snap model.ReserveSnapshot) (model.StreamSizing, error) {
	reserveIn, err := decimal.NewFromString(snap.Reserves.Token0)
	if err != nil {
		return model.StreamSizing{}, fmt.Errorf("reserve in %q: %w", snap.Reserves.Token0, err)
	}
	reserveOut, err := decimal.NewFromString(snap.Reserves.Token1)
	if err != nil {
		return model.StreamSizing{}, fmt.Errorf("reserve out %q: %w", snap.Reserves.Token1, err)
	}

	key := cache.Key("sweet_spot", volume.String(), venueKey(snap.Venue, snap.FeeTier), snap.PoolAddress, snap.Reserves.Token0, snap.Reserves.Token1)
	if v, ok := s.cache.Get(key, 0); ok {
		if n, ok := v.(int64); ok {
			return s.result(n, volume, snap), nil
		}
	}

	n, err := s.Count(volume, reserveIn, reserveOut)
	if err != nil {
		return model.StreamSizing{}, err
	}
	s.cache.Set(key, n, 0)
	return s.result(n, volume, snap), nil
}

// Count applies the sweet-spot formula to human-unit reserves.
func (s *Sizer) Count(volume, reserveIn, reserveOut decimal.Decimal) (int64, error) {
	if !volume.IsPositive() {
		return 0, amm.ErrInsufficientInput
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return 0, amm.ErrEmptyReserves
	}

	hi, lo := reserveIn, reserveOut
	if lo.GreaterThan(hi) {
		hi, lo = lo, hi
	}

	alpha := new(big.Float).SetPrec(floatPrec).Quo(toFloat(hi), new(big.Float).Mul(toFloat(lo), toFloat(lo)))
	v := toFloat(volume)
	x := new(big.Float).SetPrec(floatPrec).Mul(alpha, new(big.Float).Mul(v, v))
	root := new(big.Float).SetPrec(floatPrec).Sqrt(x)
	root.Add(root, big.NewFloat(0.5))

	rounded, _ := root.Int(nil)
	return s.clamp(rounded), nil
}

func (s *Sizer) clamp(n *big.Int) int64 {
	if s.cfg.MaxStreams > 0 && n.Cmp(big.NewInt(s.cfg.MaxStreams)) > 0 {
		return s.cfg.MaxStreams
	}
	if !n.IsInt64() {
		return math.MaxInt64
	}
	if v := n.Int64(); v > s.cfg.MinStreams {
		return v
	}
	return s.cfg.MinStreams
}

func (s *Sizer) result(n int64, volume decimal.Decimal, snap model.ReserveSnapshot) model.StreamSizing {
	return model.StreamSizing{
		SweetSpotCount: n,
		Volume:         volume.String(),
		ReserveIn:      snap.Reserves.Token0,
		ReserveOut:     snap.Reserves.Token1,
	}
}

func toFloat(d decimal.Decimal) *big.Float {
	f, _, err := big.ParseFloat(d.String(), 10, floatPrec, big.ToNearestEven)
	if err != nil {
		return new(big.Float).SetPrec(floatPrec)
	}
	return f
}

func venueKey(name string, feeTier uint32) string {
	return fmt.Sprintf("%s-%d", name, feeTier)
}
