package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "streamsizer",
		Short:        "Multi-venue AMM liquidity and stream sizing",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	reservesCmd := &cobra.Command{
		Use:   "reserves",
		Short: "Show each venue's reserves for a token pair",
		RunE:  runReserves,
	}
	addPairFlags(reservesCmd)
	root.AddCommand(reservesCmd)

	pricesCmd := &cobra.Command{
		Use:   "prices",
		Short: "Probe each venue with a 1-unit swap of token A",
		RunE:  runPrices,
	}
	addPairFlags(pricesCmd)
	pricesCmd.Flags().Int("price-retries", 2, "retries per venue before the venue is skipped")
	pricesCmd.Flags().Duration("price-retry-delay", 500*time.Millisecond, "delay between retries")
	pricesCmd.Flags().Duration("price-pacing", 200*time.Millisecond, "pause between venue queries")
	root.AddCommand(pricesCmd)

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a stream count, gas allowance and slippage savings for a trade",
		RunE:  runRecommend,
	}
	addPairFlags(recommendCmd)
	recommendCmd.Flags().String("volume", "", "trade size in human units of token A")
	recommendCmd.Flags().String("gas-usd-per-stream", "1", "USD gas budget per stream")
	recommendCmd.Flags().String("eth-usd-price", "", "fixed ETH/USD price (default: read the Chainlink feed)")
	recommendCmd.Flags().String("eth-usd-feed", "", "Chainlink ETH/USD aggregator address")
	recommendCmd.Flags().Int64("min-streams", 1, "lower bound on the stream count")
	recommendCmd.Flags().Int64("max-streams", 0, "upper bound on the stream count, 0 means uncapped")
	root.AddCommand(recommendCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPairFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().Duration("rpc-timeout", 15*time.Second, "deadline for one command's chain queries")
	cmd.Flags().String("token-a", "", "input token address")
	cmd.Flags().String("token-b", "", "output token address")
	cmd.Flags().String("venue", "", "restrict to one venue, e.g. sushiswap or uniswap-v3-500")
	cmd.Flags().StringSlice("venues", nil, "venue priority order (comma-separated)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the token metadata store")
	cmd.Flags().String("token-db", "", "SQLite path for the token metadata store")
	cmd.Flags().String("redis-addr", "", "Redis address for the response cache")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runReserves(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		snaps, err := a.engine.Liquidity(ctx, a.tokenA, a.tokenB, a.venue)
		if err != nil {
			return err
		}
		a.logger.Info("reserves", zap.Int("venues", len(snaps)))
		return writeJSON(cmd, snaps)
	})
}

func runPrices(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		quotes, err := a.engine.Prices(ctx, a.tokenA, a.tokenB, a.venue)
		if err != nil {
			return err
		}
		a.logger.Info("prices", zap.Int("venues", len(quotes)))
		return writeJSON(cmd, quotes)
	})
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	volume, _ := cmd.Flags().GetString("volume")
	if volume == "" {
		return fmt.Errorf("volume is required")
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		rec, err := a.engine.Recommend(ctx, a.tokenA, a.tokenB, volume, a.venue)
		if err != nil {
			return err
		}
		a.logger.Info("recommendation",
			zap.String("venue", rec.Reserves.Venue),
			zap.Int64("streams", rec.Sizing.SweetSpotCount),
			zap.String("total_wei", rec.Gas.TotalWei),
			zap.String("savings_bps", rec.Savings.SavingsBps),
		)
		return writeJSON(cmd, rec)
	})
}

// withApp loads configuration, wires the engine and runs fn under a
// signal-aware context bounded by the RPC timeout.
func withApp(cmd *cobra.Command, fn func(context.Context, *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return fn(ctx, a)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
