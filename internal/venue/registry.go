package venue

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Mainnet protocol deployments.
var (
	MainnetUniswapV2Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	MainnetSushiSwapFactory = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	MainnetV3Factory        = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	MainnetV3QuoterV2       = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	MainnetBalancerVault    = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")
)

// DefaultFeeTiers are the Uniswap V3 fee tiers in hundredths of a basis point.
var DefaultFeeTiers = []uint32{100, 500, 3000, 10000}

// DefaultVenues is the venue priority order used by the aggregators.
var DefaultVenues = []string{UniswapV2, UniswapV3, SushiSwap, Balancer}

// Settings holds protocol deployment addresses for one chain.
type Settings struct {
	ChainID          uint64
	UniswapV2Factory common.Address
	SushiSwapFactory common.Address
	V3Factory        common.Address
	V3Quoter         common.Address
	V3FeeTiers       []uint32
	BalancerVault    common.Address
	BalancerPools    []common.Address
}

// MainnetSettings returns the Ethereum mainnet deployments.
func MainnetSettings() Settings {
	return Settings{
		ChainID:          1,
		UniswapV2Factory: MainnetUniswapV2Factory,
		SushiSwapFactory: MainnetSushiSwapFactory,
		V3Factory:        MainnetV3Factory,
		V3Quoter:         MainnetV3QuoterV2,
		V3FeeTiers:       append([]uint32(nil), DefaultFeeTiers...),
		BalancerVault:    MainnetBalancerVault,
	}
}

type registryKey struct {
	venue   string
	feeTier uint32
	chainID uint64
}

// Registry builds adapters by venue identifier and memoizes them per
// (venue, fee tier, chain).
type Registry struct {
	settings Settings
	deps     Deps

	mu       sync.Mutex
	adapters map[registryKey]Adapter
}

func NewRegistry(settings Settings, deps Deps) *Registry {
	if len(settings.V3FeeTiers) == 0 {
		settings.V3FeeTiers = append([]uint32(nil), DefaultFeeTiers...)
	}
	return &Registry{
		settings: settings,
		deps:     deps.withDefaults(),
		adapters: make(map[registryKey]Adapter),
	}
}

// Adapter returns the adapter for venue at feeTier. Fee tiers only apply to
// concentrated-liquidity venues and must be zero elsewhere.
func (r *Registry) Adapter(venue string, feeTier uint32) (Adapter, error) {
	venue = strings.ToLower(strings.TrimSpace(venue))
	key := registryKey{venue: venue, feeTier: feeTier, chainID: r.settings.ChainID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[key]; ok {
		return a, nil
	}
	a, err := r.build(venue, feeTier)
	if err != nil {
		return nil, err
	}
	r.adapters[key] = a
	return a, nil
}

func (r *Registry) build(venue string, feeTier uint32) (Adapter, error) {
	if venue != UniswapV3 && feeTier != 0 {
		return nil, fmt.Errorf("%w: %s has no fee tiers", ErrUnknownVenue, venue)
	}
	switch venue {
	case UniswapV2:
		return NewConstantProduct(UniswapV2, r.settings.UniswapV2Factory, r.deps), nil
	case SushiSwap:
		return NewConstantProduct(SushiSwap, r.settings.SushiSwapFactory, r.deps), nil
	case UniswapV3:
		if !r.hasFeeTier(feeTier) {
			return nil, fmt.Errorf("%w: %s fee tier %d", ErrUnknownVenue, venue, feeTier)
		}
		return NewConcentratedLiquidity(UniswapV3, r.settings.V3Factory, r.settings.V3Quoter, feeTier, r.deps), nil
	case Balancer:
		return NewWeighted(Balancer, r.settings.BalancerVault, r.settings.BalancerPools, r.deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, venue)
	}
}

func (r *Registry) hasFeeTier(feeTier uint32) bool {
	for _, tier := range r.settings.V3FeeTiers {
		if tier == feeTier {
			return true
		}
	}
	return false
}

// Adapters expands venue identifiers into adapters in priority order. A bare
// concentrated venue name expands to one adapter per configured fee tier.
func (r *Registry) Adapters(venues []string) ([]Adapter, error) {
	if len(venues) == 0 {
		venues = DefaultVenues
	}
	var out []Adapter
	for _, id := range venues {
		name, tier, err := ParseID(id)
		if err != nil {
			return nil, err
		}
		if name == UniswapV3 && tier == 0 {
			for _, tier := range r.settings.V3FeeTiers {
				a, err := r.Adapter(name, tier)
				if err != nil {
					return nil, err
				}
				out = append(out, a)
			}
			continue
		}
		a, err := r.Adapter(name, tier)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ParseID splits a venue identifier into its name and fee tier.
func ParseID(id string) (string, uint32, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", 0, fmt.Errorf("%w: empty", ErrUnknownVenue)
	}
	idx := strings.LastIndex(id, "-")
	if idx > 0 && strings.HasPrefix(id, UniswapV3+"-") {
		tier, err := strconv.ParseUint(id[idx+1:], 10, 32)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %s", ErrUnknownVenue, id)
		}
		return id[:idx], uint32(tier), nil
	}
	return id, 0, nil
}
