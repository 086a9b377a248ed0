// Package engine answers liquidity, price and stream-sizing queries for a token pair.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"streamSwap/internal/aggregate"
	"streamSwap/internal/amm"
	"streamSwap/internal/cache"
	"streamSwap/internal/model"
	"streamSwap/internal/stream"
	"streamSwap/internal/venue"
)

var (
	ErrInvalidAddress = errors.New("invalid token address")
	ErrSameToken      = errors.New("tokenA and tokenB are the same")
	ErrNoLiquidity    = errors.New("no venue has liquidity for pair")
	ErrInvalidVolume  = errors.New("invalid trade volume")
	ErrUnknownVenue   = venue.ErrUnknownVenue
)

// ResponseCache short-circuits repeated requests. It only affects latency.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Config holds engine policy.
type Config struct {
	Venues      []string
	Prices      aggregate.PricesConfig
	Sizing      stream.SizingConfig
	ResponseTTL time.Duration
}

// Deps are the engine's collaborators. Responses may be nil.
type Deps struct {
	Registry  *venue.Registry
	Tokens    venue.TokenResolver
	Calc      *cache.Calculations
	Gas       *stream.GasCalculator
	Responses ResponseCache
	Logger    *zap.Logger
}

type Engine struct {
	cfg       Config
	registry  *venue.Registry
	adapters  []venue.Adapter
	tokens    venue.TokenResolver
	reserves  *aggregate.Reserves
	prices    *aggregate.Prices
	sizer     *stream.Sizer
	gas       *stream.GasCalculator
	savings   *stream.SavingsCalculator
	responses ResponseCache
	logger    *zap.Logger
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("venue registry is nil")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token resolver is nil")
	}
	if deps.Gas == nil {
		return nil, fmt.Errorf("gas calculator is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	adapters, err := deps.Registry.Adapters(cfg.Venues)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		registry:  deps.Registry,
		adapters:  adapters,
		tokens:    deps.Tokens,
		reserves:  aggregate.NewReserves(adapters, logger),
		prices:    aggregate.NewPrices(adapters, cfg.Prices, logger),
		sizer:     stream.NewSizer(cfg.Sizing, deps.Calc),
		gas:       deps.Gas,
		savings:   stream.NewSavingsCalculator(deps.Calc),
		responses: deps.Responses,
		logger:    logger,
	}, nil
}

// Liquidity returns each venue's reserves for the pair in venue priority
// order. venueID optionally narrows the query to one venue.
func (e *Engine) Liquidity(ctx context.Context, tokenA, tokenB, venueID string) ([]model.ReserveSnapshot, error) {
	a, b, err := parsePair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	adapters, err := e.adaptersFor(venueID)
	if err != nil {
		return nil, err
	}

	key := responseKey("liquidity", a, b, venueID)
	var out []model.ReserveSnapshot
	if e.cached(ctx, key, &out) {
		return out, nil
	}
	out = e.reserves.From(ctx, adapters, a, b)
	e.store(ctx, key, out)
	return out, nil
}

// Prices returns each venue's 1-unit probe price, queried sequentially.
func (e *Engine) Prices(ctx context.Context, tokenA, tokenB, venueID string) ([]model.PriceQuote, error) {
	a, b, err := parsePair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	adapters, err := e.adaptersFor(venueID)
	if err != nil {
		return nil, err
	}

	key := responseKey("prices", a, b, venueID)
	var out []model.PriceQuote
	if e.cached(ctx, key, &out) {
		return out, nil
	}
	out = e.prices.From(ctx, adapters, a, b)
	e.store(ctx, key, out)
	return out, nil
}

// Recommend sizes a trade of volume (human units of tokenIn) into tokenOut:
// the stream count for the chosen venue, the gas allowance for that many
// streams and the output gained by streaming.
func (e *Engine) Recommend(ctx context.Context, tokenIn, tokenOut, volume, venueID string) (model.Recommendation, error) {
	in, out, err := parsePair(tokenIn, tokenOut)
	if err != nil {
		return model.Recommendation{}, err
	}
	volumeHuman, err := decimal.NewFromString(strings.TrimSpace(volume))
	if err != nil || !volumeHuman.IsPositive() {
		return model.Recommendation{}, fmt.Errorf("%w: %q", ErrInvalidVolume, volume)
	}
	adapters, err := e.adaptersFor(venueID)
	if err != nil {
		return model.Recommendation{}, err
	}

	key := responseKey("recommend:"+volumeHuman.String(), in, out, venueID)
	var rec model.Recommendation
	if e.cached(ctx, key, &rec) {
		return rec, nil
	}

	infoIn, err := e.tokens.TokenInfo(ctx, in.Hex())
	if err != nil {
		return model.Recommendation{}, err
	}
	infoOut, err := e.tokens.TokenInfo(ctx, out.Hex())
	if err != nil {
		return model.Recommendation{}, err
	}
	volumeBase, err := amm.ToBaseUnits(volumeHuman, infoIn.Decimals)
	if err != nil {
		return model.Recommendation{}, fmt.Errorf("%w: %v", ErrInvalidVolume, err)
	}

	snaps := e.reserves.From(ctx, adapters, in, out)
	snap, ok := deepest(snaps)
	if !ok {
		return model.Recommendation{}, fmt.Errorf("%w: %s/%s", ErrNoLiquidity, infoIn.Symbol, infoOut.Symbol)
	}
	adapter, err := e.registry.Adapter(snap.Venue, snap.FeeTier)
	if err != nil {
		return model.Recommendation{}, err
	}

	sizing, err := e.sizer.SweetSpot(volumeHuman, snap)
	if err != nil {
		return model.Recommendation{}, fmt.Errorf("size on %s: %w", venue.AdapterID(adapter), err)
	}
	gas, err := e.gas.Allowance(ctx, sizing.SweetSpotCount)
	if err != nil {
		return model.Recommendation{}, err
	}
	savings, err := e.savings.Savings(ctx, adapter, stream.SavingsInput{
		TokenIn:        in,
		TokenOut:       out,
		Volume:         volumeBase,
		Streams:        sizing.SweetSpotCount,
		OutputDecimals: infoOut.Decimals,
		Snapshot:       snap,
	})
	if err != nil {
		return model.Recommendation{}, fmt.Errorf("savings on %s: %w", venue.AdapterID(adapter), err)
	}

	rec = model.Recommendation{
		TokenIn:  infoIn,
		TokenOut: infoOut,
		Volume:   volumeHuman.String(),
		Reserves: snap,
		Sizing:   sizing,
		Gas:      gas.Model(),
		Savings:  savings,
	}
	e.logger.Debug("recommendation",
		zap.String("venue", venue.AdapterID(adapter)),
		zap.Int64("streams", sizing.SweetSpotCount),
		zap.String("savings", savings.Savings),
	)
	e.store(ctx, key, rec)
	return rec, nil
}

// adaptersFor returns the adapters a query should use. An empty id means every
// configured venue; a bare concentrated-liquidity name means all its fee tiers.
func (e *Engine) adaptersFor(venueID string) ([]venue.Adapter, error) {
	venueID = strings.TrimSpace(venueID)
	if venueID == "" {
		return e.adapters, nil
	}
	name, tier, err := venue.ParseID(venueID)
	if err != nil {
		return nil, err
	}
	if tier == 0 && name == venue.UniswapV3 {
		return e.registry.Adapters([]string{name})
	}
	a, err := e.registry.Adapter(name, tier)
	if err != nil {
		return nil, err
	}
	return []venue.Adapter{a}, nil
}

func (e *Engine) cached(ctx context.Context, key string, dst interface{}) bool {
	if e.responses == nil {
		return false
	}
	payload, ok, err := e.responses.Get(ctx, key)
	if err != nil {
		e.logger.Warn("response cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := sonnet.Unmarshal(payload, dst); err != nil {
		e.logger.Warn("response cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) store(ctx context.Context, key string, value interface{}) {
	if e.responses == nil || e.cfg.ResponseTTL <= 0 {
		return
	}
	payload, err := sonnet.Marshal(value)
	if err != nil {
		e.logger.Warn("response cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := e.responses.Set(ctx, key, payload, e.cfg.ResponseTTL); err != nil {
		e.logger.Warn("response cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// ParseAddress accepts only 0x-prefixed 40-hex-digit addresses.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func parsePair(tokenA, tokenB string) (common.Address, common.Address, error) {
	a, err := ParseAddress(tokenA)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	b, err := ParseAddress(tokenB)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if a == b {
		return common.Address{}, common.Address{}, ErrSameToken
	}
	return a, b, nil
}

// deepest picks the snapshot with the largest input-side reserve. Ties keep
// priority order.
func deepest(snaps []model.ReserveSnapshot) (model.ReserveSnapshot, bool) {
	var (
		best  model.ReserveSnapshot
		depth decimal.Decimal
		found bool
	)
	for _, snap := range snaps {
		reserveIn, err := decimal.NewFromString(snap.Reserves.Token0)
		if err != nil || !reserveIn.IsPositive() {
			continue
		}
		out, err := decimal.NewFromString(snap.Reserves.Token1)
		if err != nil || !out.IsPositive() {
			continue
		}
		if !found || reserveIn.GreaterThan(depth) {
			best, depth, found = snap, reserveIn, true
		}
	}
	return best, found
}

func responseKey(op string, a, b common.Address, venueID string) string {
	return strings.ToLower(strings.Join([]string{op, a.Hex(), b.Hex(), strings.TrimSpace(venueID)}, ":"))
}
