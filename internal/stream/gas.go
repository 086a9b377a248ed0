package stream

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"streamSwap/internal/chain"
	"streamSwap/internal/model"
)

// PriceSource reports the ETH/USD reference price.
type PriceSource interface {
	ETHUSD(ctx context.Context) (decimal.Decimal, error)
}

// GasCalculator converts a USD budget per stream into a total wei allowance.
type GasCalculator struct {
	gas          chain.GasPricer
	eth          PriceSource
	usdPerStream decimal.Decimal
	logger       *zap.Logger
}

func NewGasCalculator(gas chain.GasPricer, eth PriceSource, usdPerStream decimal.Decimal, logger *zap.Logger) *GasCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GasCalculator{gas: gas, eth: eth, usdPerStream: usdPerStream, logger: logger}
}

// Allowance returns gasPrice * gasUnits * streams where gasPrice * gasUnits
// spends at most the per-stream USD budget.
func (g *GasCalculator) Allowance(ctx context.Context, streams int64) (GasResult, error) {
	if streams < 1 {
		return GasResult{}, fmt.Errorf("stream count must be >= 1, got %d", streams)
	}
	if !g.usdPerStream.IsPositive() {
		return GasResult{}, fmt.Errorf("%w: usd per stream %s", ErrBudgetTooSmall, g.usdPerStream)
	}

	gasPrice, err := g.gas.SuggestGasPrice(ctx)
	if err != nil {
		return GasResult{}, fmt.Errorf("%w: gas price: %v", ErrQuoteUnavailable, err)
	}
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		return GasResult{}, fmt.Errorf("%w: gas price is zero", ErrQuoteUnavailable)
	}

	ethUSD, err := g.eth.ETHUSD(ctx)
	if err != nil {
		return GasResult{}, fmt.Errorf("%w: eth/usd: %v", ErrQuoteUnavailable, err)
	}
	if !ethUSD.IsPositive() {
		return GasResult{}, fmt.Errorf("%w: eth/usd is %s", ErrQuoteUnavailable, ethUSD)
	}

	return Allowance(gasPrice, streams, g.usdPerStream, ethUSD)
}

// GasResult carries the allowance in wei.
type GasResult struct {
	GasPrice          *big.Int
	GasUnitsPerStream *big.Int
	Streams           int64
	Total             *big.Int
}

// Model renders the result for responses.
func (r GasResult) Model() model.GasAllowance {
	return model.GasAllowance{
		GasPriceWei:       r.GasPrice.String(),
		GasUnitsPerStream: r.GasUnitsPerStream.String(),
		StreamCount:       r.Streams,
		TotalWei:          r.Total.String(),
	}
}

// Allowance is the pure form of GasCalculator.Allowance.
func Allowance(gasPrice *big.Int, streams int64, usdPerStream, ethUSD decimal.Decimal) (GasResult, error) {
	perStreamWei := usdPerStream.Shift(18).DivRound(ethUSD, 8).Floor()
	gasUnits := new(big.Int).Quo(perStreamWei.BigInt(), gasPrice)
	if gasUnits.Sign() <= 0 {
		return GasResult{}, fmt.Errorf("%w: %s wei per stream at gas price %s", ErrBudgetTooSmall, perStreamWei, gasPrice)
	}

	total := new(big.Int).Mul(gasPrice, gasUnits)
	total.Mul(total, big.NewInt(streams))
	return GasResult{
		GasPrice:          new(big.Int).Set(gasPrice),
		GasUnitsPerStream: gasUnits,
		Streams:           streams,
		Total:             total,
	}, nil
}
