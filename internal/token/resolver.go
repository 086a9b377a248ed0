// Package token resolves and caches ERC20 decimals and symbols.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"streamSwap/internal/chain"
	"streamSwap/internal/dex"
	"streamSwap/internal/model"
)

// DefaultFetchTimeout bounds one shared metadata fetch.
const DefaultFetchTimeout = 15 * time.Second

// ErrInvalidAddress is wrapped by ResolutionError for malformed addresses.
var ErrInvalidAddress = errors.New("invalid token address")

// ResolutionError reports a token whose metadata could not be resolved.
type ResolutionError struct {
	Address string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve token %s: %v", e.Address, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Store persists resolved metadata below the in-memory cache.
type Store interface {
	LoadToken(ctx context.Context, address string) (model.TokenInfo, bool, error)
	UpsertTokens(ctx context.Context, tokens []model.TokenInfo) error
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithStore adds a persistent second-level cache.
func WithStore(store Store) Option {
	return func(r *Resolver) { r.store = store }
}

// WithDecimalOverrides pins decimals for specific addresses instead of reading them on chain.
func WithDecimalOverrides(overrides map[string]uint8) Option {
	return func(r *Resolver) {
		for addr, dec := range overrides {
			r.overrides[strings.ToLower(addr)] = dec
		}
	}
}

// WithFetchTimeout bounds a metadata fetch shared by concurrent callers.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver caches token metadata by lowercase address for the process lifetime.
type Resolver struct {
	caller    chain.ContractCaller
	store     Store
	overrides map[string]uint8
	logger    *zap.Logger

	fetchTimeout time.Duration

	mu    sync.RWMutex
	data  map[string]model.TokenInfo
	group singleflight.Group
}

func NewResolver(caller chain.ContractCaller, opts ...Option) *Resolver {
	r := &Resolver{
		caller:    caller,
		overrides: make(map[string]uint8),
		logger:    zap.NewNop(),
		data:      make(map[string]model.TokenInfo),

		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TokenInfo returns metadata for address, reading the chain at most once per token.
func (r *Resolver) TokenInfo(ctx context.Context, address string) (model.TokenInfo, error) {
	if !common.IsHexAddress(address) {
		return model.TokenInfo{}, &ResolutionError{Address: address, Err: ErrInvalidAddress}
	}
	key := strings.ToLower(common.HexToAddress(address).Hex())

	if info, ok := r.cached(key); ok {
		return info, nil
	}

	// The fetch is shared, so it must outlive any single caller's deadline.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		if info, ok := r.cached(key); ok {
			return info, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		info, err := r.resolve(fetchCtx, common.HexToAddress(address))
		if err != nil {
			return model.TokenInfo{}, err
		}
		r.mu.Lock()
		r.data[key] = info
		r.mu.Unlock()
		return info, nil
	})

	select {
	case <-ctx.Done():
		return model.TokenInfo{}, &ResolutionError{Address: address, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return model.TokenInfo{}, res.Err
		}
		return res.Val.(model.TokenInfo), nil
	}
}

func (r *Resolver) cached(key string) (model.TokenInfo, bool) {
	r.mu.RLock()
	info, ok := r.data[key]
	r.mu.RUnlock()
	return info, ok
}

func (r *Resolver) resolve(ctx context.Context, token common.Address) (model.TokenInfo, error) {
	key := strings.ToLower(token.Hex())
	if r.store != nil {
		info, ok, err := r.store.LoadToken(ctx, key)
		if err != nil {
			r.logger.Warn("token store load failed", zap.String("token", token.Hex()), zap.Error(err))
		} else if ok {
			info.Address = token.Hex()
			if dec, pinned := r.overrides[key]; pinned {
				info.Decimals = dec
			}
			return info, nil
		}
	}

	info, err := r.fetch(ctx, token)
	if err != nil {
		return model.TokenInfo{}, &ResolutionError{Address: token.Hex(), Err: err}
	}

	if r.store != nil {
		if err := r.store.UpsertTokens(ctx, []model.TokenInfo{info}); err != nil {
			r.logger.Warn("token store upsert failed", zap.String("token", token.Hex()), zap.Error(err))
		}
	}
	return info, nil
}

func (r *Resolver) fetch(ctx context.Context, token common.Address) (model.TokenInfo, error) {
	info := model.TokenInfo{Address: token.Hex()}

	stringABI, err := dex.ERC20ABI()
	if err != nil {
		return info, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := dex.ERC20Bytes32ABI()
	if err != nil {
		return info, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	if dec, ok := r.overrides[strings.ToLower(token.Hex())]; ok {
		info.Decimals = dec
	} else {
		values, err := dex.Call(ctx, r.caller, token, stringABI, "decimals")
		if err != nil {
			return info, err
		}
		decimals, err := dex.AsUint8(values[0])
		if err != nil {
			return info, fmt.Errorf("decimals: %w", err)
		}
		info.Decimals = decimals
	}

	if values, err := dex.Call(ctx, r.caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			info.Symbol = symbol
			return info, nil
		}
	}
	values, err := dex.Call(ctx, r.caller, token, bytes32ABI, "symbol")
	if err != nil {
		return info, err
	}
	symbol, ok := dex.Bytes32ToString(values[0])
	if !ok {
		return info, fmt.Errorf("symbol: unsupported type %T", values[0])
	}
	info.Symbol = symbol
	return info, nil
}
