package venue

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"streamSwap/internal/amm"
	"streamSwap/internal/dex"
	"streamSwap/internal/model"
)

// ConcentratedLiquidity serves one Uniswap V3 fee tier.
type ConcentratedLiquidity struct {
	base
	factory common.Address
	quoter  common.Address
}

func NewConcentratedLiquidity(name string, factory, quoter common.Address, feeTier uint32, deps Deps) *ConcentratedLiquidity {
	return &ConcentratedLiquidity{
		base:    base{name: name, feeTier: feeTier, deps: deps.withDefaults()},
		factory: factory,
		quoter:  quoter,
	}
}

// Reserves reports the pool's token balances, which are already in caller order.
func (v *ConcentratedLiquidity) Reserves(ctx context.Context, tokenA, tokenB common.Address) (model.ReserveSnapshot, bool, error) {
	pool, ok, err := v.pool(ctx, tokenA, tokenB)
	if err != nil || !ok {
		return model.ReserveSnapshot{}, ok, err
	}
	balanceA, err := v.balanceOf(ctx, tokenA, pool)
	if err != nil {
		return model.ReserveSnapshot{}, false, err
	}
	balanceB, err := v.balanceOf(ctx, tokenB, pool)
	if err != nil {
		return model.ReserveSnapshot{}, false, err
	}
	snap, err := v.snapshot(ctx, pool, tokenA, tokenB, balanceA, balanceB)
	if err != nil {
		return model.ReserveSnapshot{}, false, err
	}
	return snap, true, nil
}

func (v *ConcentratedLiquidity) Price(ctx context.Context, tokenA, tokenB common.Address) (model.PriceQuote, bool, error) {
	return v.probePrice(ctx, v.Quote, tokenA, tokenB)
}

// Quote simulates the swap through QuoterV2. When the simulation fails the
// pool's active liquidity is treated as a constant-product curve and the
// result is flagged approximate.
func (v *ConcentratedLiquidity) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, bool, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return model.SwapQuote{}, false, amm.ErrInsufficientInput
	}
	pool, ok, err := v.pool(ctx, tokenIn, tokenOut)
	if err != nil || !ok {
		return model.SwapQuote{}, ok, err
	}

	out, simErr := v.simulate(ctx, tokenIn, tokenOut, amountIn)
	if simErr == nil {
		return v.swapQuote(pool, amountIn, out, false), true, nil
	}
	if ctx.Err() != nil {
		return model.SwapQuote{}, false, ctx.Err()
	}

	v.deps.Logger.Warn("quoter simulation failed, using constant-product approximation",
		zap.String("venue", ID(v.name, v.feeTier)),
		zap.String("pool", pool.Hex()),
		zap.Error(simErr),
	)
	out, err = v.approximate(ctx, pool, tokenIn, tokenOut, amountIn)
	if err != nil {
		return model.SwapQuote{}, false, fmt.Errorf("%s quote %s: simulation: %v; fallback: %w", ID(v.name, v.feeTier), pool.Hex(), simErr, err)
	}
	return v.swapQuote(pool, amountIn, out, true), true, nil
}

func (v *ConcentratedLiquidity) pool(ctx context.Context, tokenA, tokenB common.Address) (common.Address, bool, error) {
	factoryABI, err := dex.V3FactoryABI()
	if err != nil {
		return common.Address{}, false, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, v.factory, factoryABI, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(v.feeTier)))
	if err != nil {
		if dex.IsRevert(err) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, fmt.Errorf("%s getPool: %w", ID(v.name, v.feeTier), err)
	}
	pool, err := dex.AsAddress(values[0])
	if err != nil {
		return common.Address{}, false, fmt.Errorf("%s getPool: %w", ID(v.name, v.feeTier), err)
	}
	if isZero(pool) {
		return common.Address{}, false, nil
	}
	return pool, true, nil
}

func (v *ConcentratedLiquidity) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20ABI, err := dex.ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return dex.AsBigInt(values[0])
}

// simulate encodes quoteExactInputSingle by hand so a revert surfaces as an
// error here instead of inside a bound contract wrapper.
func (v *ConcentratedLiquidity) simulate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if isZero(v.quoter) {
		return nil, fmt.Errorf("no quoter configured")
	}
	quoterABI, err := dex.V3QuoterABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	data, err := quoterABI.Pack("quoteExactInputSingle", dex.QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(v.feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("pack quoteExactInputSingle: %w", err)
	}
	resp, err := dex.CallRaw(ctx, v.deps.Caller, v.quoter, data)
	if err != nil {
		return nil, err
	}
	values, err := quoterABI.Unpack("quoteExactInputSingle", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack quoteExactInputSingle: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack quoteExactInputSingle: empty result")
	}
	return dex.AsBigInt(values[0])
}

func (v *ConcentratedLiquidity) approximate(ctx context.Context, pool, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := dex.Call(ctx, v.deps.Caller, pool, poolABI, "liquidity")
	if err != nil {
		return nil, err
	}
	liquidity, err := dex.AsBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	values, err = dex.Call(ctx, v.deps.Caller, pool, poolABI, "slot0")
	if err != nil {
		return nil, err
	}
	sqrtPriceX96, err := dex.AsBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("slot0: %w", err)
	}

	// V3 pools sort their tokens, so token0 is the lower address.
	zeroForOne := bytes.Compare(tokenIn.Bytes(), tokenOut.Bytes()) < 0
	return amm.ApproximateAmountOut(amountIn, liquidity, sqrtPriceX96, zeroForOne, v.feeTier)
}
