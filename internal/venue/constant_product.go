package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"streamSwap/internal/amm"
	"streamSwap/internal/dex"
	"streamSwap/internal/model"
)

// ConstantProduct serves Uniswap V2 and its forks, which share the pair ABI and fee.
type ConstantProduct struct {
	base
	factory common.Address
	fee     amm.Fee
}

func NewConstantProduct(name string, factory common.Address, deps Deps) *ConstantProduct {
	return &ConstantProduct{
		base:    base{name: name, deps: deps.withDefaults()},
		factory: factory,
		fee:     amm.UniswapV2Fee,
	}
}

func (v *ConstantProduct) Reserves(ctx context.Context, tokenA, tokenB common.Address) (model.ReserveSnapshot, bool, error) {
	pair, reserveA, reserveB, ok, err := v.pairState(ctx, tokenA, tokenB)
	if err != nil || !ok {
		return model.ReserveSnapshot{}, ok, err
	}
	snap, err := v.snapshot(ctx, pair, tokenA, tokenB, reserveA, reserveB)
	if err != nil {
		return model.ReserveSnapshot{}, false, err
	}
	return snap, true, nil
}

func (v *ConstantProduct) Price(ctx context.Context, tokenA, tokenB common.Address) (model.PriceQuote, bool, error) {
	return v.probePrice(ctx, v.Quote, tokenA, tokenB)
}

func (v *ConstantProduct) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, bool, error) {
	pair, reserveIn, reserveOut, ok, err := v.pairState(ctx, tokenIn, tokenOut)
	if err != nil || !ok {
		return model.SwapQuote{}, ok, err
	}
	out, err := amm.GetAmountOut(amountIn, reserveIn, reserveOut, v.fee)
	if err != nil {
		return model.SwapQuote{}, false, fmt.Errorf("%s quote %s: %w", v.name, pair.Hex(), err)
	}
	return v.swapQuote(pair, amountIn, out, false), true, nil
}

// pairState returns the pair and its reserves oriented to (tokenA, tokenB).
func (v *ConstantProduct) pairState(ctx context.Context, tokenA, tokenB common.Address) (common.Address, *big.Int, *big.Int, bool, error) {
	factoryABI, err := dex.V2FactoryABI()
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("parse factory abi: %w", err)
	}
	pairABI, err := dex.V2PairABI()
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := dex.Call(ctx, v.deps.Caller, v.factory, factoryABI, "getPair", tokenA, tokenB)
	if err != nil {
		if dex.IsRevert(err) {
			v.deps.Logger.Debug("getPair reverted", zap.String("venue", v.name), zap.Error(err))
			return common.Address{}, nil, nil, false, nil
		}
		return common.Address{}, nil, nil, false, fmt.Errorf("%s getPair: %w", v.name, err)
	}
	pair, err := dex.AsAddress(values[0])
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("%s getPair: %w", v.name, err)
	}
	if isZero(pair) {
		return common.Address{}, nil, nil, false, nil
	}

	values, err = dex.Call(ctx, v.deps.Caller, pair, pairABI, "getReserves")
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("%s getReserves %s: %w", v.name, pair.Hex(), err)
	}
	if len(values) < 2 {
		return common.Address{}, nil, nil, false, fmt.Errorf("%s getReserves %s: short result", v.name, pair.Hex())
	}
	reserve0, err := dex.AsBigInt(values[0])
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := dex.AsBigInt(values[1])
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("reserve1: %w", err)
	}

	values, err = dex.Call(ctx, v.deps.Caller, pair, pairABI, "token0")
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("%s token0 %s: %w", v.name, pair.Hex(), err)
	}
	token0, err := dex.AsAddress(values[0])
	if err != nil {
		return common.Address{}, nil, nil, false, fmt.Errorf("token0: %w", err)
	}

	if token0 == tokenA {
		return pair, reserve0, reserve1, true, nil
	}
	return pair, reserve1, reserve0, true, nil
}
