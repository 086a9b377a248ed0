package venue

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"streamSwap/internal/amm"
	"streamSwap/internal/dex"
	"streamSwap/internal/model"
)

// twoTokenSpecialization is the vault specialization tag of two-token pools.
const twoTokenSpecialization = 2

// Weighted serves Balancer V2 weighted pools registered in one vault. The
// vault has no pair lookup, so candidate pools come from configuration.
type Weighted struct {
	base
	vault common.Address
	pools []common.Address

	mu      sync.RWMutex
	poolIDs map[common.Address][32]byte
}

func NewWeighted(name string, vault common.Address, pools []common.Address, deps Deps) *Weighted {
	return &Weighted{
		base:    base{name: name, deps: deps.withDefaults()},
		vault:   vault,
		pools:   append([]common.Address(nil), pools...),
		poolIDs: make(map[common.Address][32]byte),
	}
}

type weightedState struct {
	pool       common.Address
	balanceIn  *big.Int
	balanceOut *big.Int
	weightIn   decimal.Decimal
	weightOut  decimal.Decimal
	// equalWeights is set when the pool does not report weights.
	equalWeights bool
}

func (v *Weighted) Reserves(ctx context.Context, tokenA, tokenB common.Address) (model.ReserveSnapshot, bool, error) {
	state, ok, err := v.find(ctx, tokenA, tokenB)
	if err != nil || !ok {
		return model.ReserveSnapshot{}, ok, err
	}
	snap, err := v.snapshot(ctx, state.pool, tokenA, tokenB, state.balanceIn, state.balanceOut)
	if err != nil {
		return model.ReserveSnapshot{}, false, err
	}
	return snap, true, nil
}

func (v *Weighted) Price(ctx context.Context, tokenA, tokenB common.Address) (model.PriceQuote, bool, error) {
	return v.probePrice(ctx, v.Quote, tokenA, tokenB)
}

func (v *Weighted) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, bool, error) {
	state, ok, err := v.find(ctx, tokenIn, tokenOut)
	if err != nil || !ok {
		return model.SwapQuote{}, ok, err
	}
	fee, err := v.swapFee(ctx, state.pool)
	if err != nil {
		return model.SwapQuote{}, false, err
	}
	out, err := amm.WeightedAmountOut(amountIn, state.balanceIn, state.balanceOut, state.weightIn, state.weightOut, fee)
	if err != nil {
		return model.SwapQuote{}, false, fmt.Errorf("%s quote %s: %w", v.name, state.pool.Hex(), err)
	}
	return v.swapQuote(state.pool, amountIn, out, state.equalWeights), true, nil
}

// find returns the first configured pool holding both tokens.
func (v *Weighted) find(ctx context.Context, tokenIn, tokenOut common.Address) (weightedState, bool, error) {
	for _, pool := range v.pools {
		state, ok, err := v.load(ctx, pool, tokenIn, tokenOut)
		if err != nil {
			return weightedState{}, false, err
		}
		if ok {
			return state, true, nil
		}
	}
	return weightedState{}, false, nil
}

func (v *Weighted) load(ctx context.Context, pool, tokenIn, tokenOut common.Address) (weightedState, bool, error) {
	poolID, err := v.poolID(ctx, pool)
	if err != nil {
		return weightedState{}, false, err
	}
	vaultABI, err := dex.BalancerVaultABI()
	if err != nil {
		return weightedState{}, false, fmt.Errorf("parse vault abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, v.vault, vaultABI, "getPoolTokens", poolID)
	if err != nil {
		if dex.IsRevert(err) {
			v.deps.Logger.Debug("pool not registered", zap.String("pool", pool.Hex()), zap.Error(err))
			return weightedState{}, false, nil
		}
		return weightedState{}, false, fmt.Errorf("%s getPoolTokens %s: %w", v.name, pool.Hex(), err)
	}
	if len(values) < 2 {
		return weightedState{}, false, fmt.Errorf("%s getPoolTokens %s: short result", v.name, pool.Hex())
	}
	tokens, err := dex.AsAddresses(values[0])
	if err != nil {
		return weightedState{}, false, err
	}
	balances, err := dex.AsBigInts(values[1])
	if err != nil {
		return weightedState{}, false, err
	}
	if len(tokens) != len(balances) {
		return weightedState{}, false, fmt.Errorf("%s getPoolTokens %s: %d tokens, %d balances", v.name, pool.Hex(), len(tokens), len(balances))
	}

	weights, assumed, err := v.weights(ctx, pool, len(tokens))
	if err != nil {
		return weightedState{}, false, err
	}
	tokens, balances, weights = filterPlaceholders(tokens, balances, weights)

	in, out := -1, -1
	for i, token := range tokens {
		switch token {
		case tokenIn:
			in = i
		case tokenOut:
			out = i
		}
	}
	if in < 0 || out < 0 {
		return weightedState{}, false, nil
	}
	return weightedState{
		pool:         pool,
		balanceIn:    balances[in],
		balanceOut:   balances[out],
		weightIn:     weights[in],
		weightOut:    weights[out],
		equalWeights: assumed,
	}, true, nil
}

// poolID asks the pool for its vault id and derives one from the address when
// the pool does not expose it. Only ids confirmed by the pool or by a revert
// are memoized.
func (v *Weighted) poolID(ctx context.Context, pool common.Address) ([32]byte, error) {
	v.mu.RLock()
	id, ok := v.poolIDs[pool]
	v.mu.RUnlock()
	if ok {
		return id, nil
	}

	poolABI, err := dex.BalancerPoolABI()
	if err != nil {
		return [32]byte{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, pool, poolABI, "getPoolId")
	switch {
	case err == nil:
		id, err = dex.AsBytes32(values[0])
		if err != nil {
			return [32]byte{}, fmt.Errorf("%s getPoolId %s: %w", v.name, pool.Hex(), err)
		}
	case dex.IsRevert(err):
		v.deps.Logger.Debug("getPoolId unavailable, deriving", zap.String("pool", pool.Hex()), zap.Error(err))
		id = DerivePoolID(pool, twoTokenSpecialization, 0)
	default:
		return [32]byte{}, fmt.Errorf("%s getPoolId %s: %w", v.name, pool.Hex(), err)
	}

	v.mu.Lock()
	v.poolIDs[pool] = id
	v.mu.Unlock()
	return id, nil
}

// weights returns normalized weights. When the pool reverts on
// getNormalizedWeights it assumes equal weights and reports that it did.
func (v *Weighted) weights(ctx context.Context, pool common.Address, n int) ([]decimal.Decimal, bool, error) {
	poolABI, err := dex.BalancerPoolABI()
	if err != nil {
		return nil, false, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, pool, poolABI, "getNormalizedWeights")
	if err != nil {
		if !dex.IsRevert(err) {
			return nil, false, fmt.Errorf("%s weights %s: %w", v.name, pool.Hex(), err)
		}
		v.deps.Logger.Debug("normalized weights unavailable, assuming equal", zap.String("pool", pool.Hex()), zap.Error(err))
		return equalWeights(n), true, nil
	}
	raw, err := dex.AsBigInts(values[0])
	if err != nil {
		return nil, false, fmt.Errorf("%s weights %s: %w", v.name, pool.Hex(), err)
	}
	if len(raw) != n {
		return nil, false, fmt.Errorf("%s weights %s: %d weights for %d tokens", v.name, pool.Hex(), len(raw), n)
	}
	out := make([]decimal.Decimal, n)
	for i, w := range raw {
		out[i] = decimal.NewFromBigInt(w, -18)
	}
	return out, false, nil
}

func equalWeights(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	if n == 0 {
		return out
	}
	equal := decimal.NewFromInt(1).DivRound(decimal.NewFromInt(int64(n)), 18)
	for i := range out {
		out[i] = equal
	}
	return out
}

func (v *Weighted) swapFee(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	poolABI, err := dex.BalancerPoolABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, pool, poolABI, "getSwapFeePercentage")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s swap fee %s: %w", v.name, pool.Hex(), err)
	}
	fee, err := dex.AsBigInt(values[0])
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(fee, -18), nil
}

// DerivePoolID builds a vault pool id: the pool address, a two-byte
// specialization tag and a ten-byte registration nonce.
func DerivePoolID(pool common.Address, specialization uint16, nonce uint64) [32]byte {
	var id [32]byte
	copy(id[:20], pool.Bytes())
	binary.BigEndian.PutUint16(id[20:22], specialization)
	binary.BigEndian.PutUint64(id[24:32], nonce)
	return id
}

// filterPlaceholders drops zero-address token slots along with their
// balances and weights so the remaining arrays stay index-aligned.
func filterPlaceholders(tokens []common.Address, balances []*big.Int, weights []decimal.Decimal) ([]common.Address, []*big.Int, []decimal.Decimal) {
	outTokens := make([]common.Address, 0, len(tokens))
	outBalances := make([]*big.Int, 0, len(balances))
	outWeights := make([]decimal.Decimal, 0, len(weights))
	for i, token := range tokens {
		if isZero(token) {
			continue
		}
		outTokens = append(outTokens, token)
		outBalances = append(outBalances, balances[i])
		if i < len(weights) {
			outWeights = append(outWeights, weights[i])
		} else {
			outWeights = append(outWeights, decimal.Zero)
		}
	}
	return outTokens, outBalances, outWeights
}
