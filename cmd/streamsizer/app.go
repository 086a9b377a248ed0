package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"streamSwap/internal/aggregate"
	"streamSwap/internal/cache"
	"streamSwap/internal/cache/redis"
	"streamSwap/internal/chain"
	"streamSwap/internal/config"
	"streamSwap/internal/engine"
	"streamSwap/internal/oracle"
	"streamSwap/internal/storage/postgres"
	"streamSwap/internal/storage/sqlite"
	"streamSwap/internal/stream"
	"streamSwap/internal/token"
	"streamSwap/internal/venue"
)

var errChainMismatch = errors.New("chain id mismatch")

type app struct {
	engine  *engine.Engine
	logger  *zap.Logger
	timeout time.Duration

	tokenA string
	tokenB string
	venue  string

	closers []func()
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger, timeout: cfg.RPCTimeout}
	a.tokenA, _ = cmd.Flags().GetString("token-a")
	a.tokenB, _ = cmd.Flags().GetString("token-b")
	a.venue, _ = cmd.Flags().GetString("venue")
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.wire(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg config.Config) error {
	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	if err := checkChainID(ctx, client, cfg.ChainID); err != nil {
		return err
	}

	opts := []token.Option{
		token.WithDecimalOverrides(cfg.TokenDecimals),
		token.WithLogger(a.logger),
		token.WithFetchTimeout(cfg.RPCTimeout),
	}
	store, err := a.tokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		opts = append(opts, token.WithStore(store))
	}
	resolver := token.NewResolver(client, opts...)

	registry := venue.NewRegistry(cfg.VenueSettings(), venue.Deps{
		Caller: client,
		Tokens: resolver,
		Logger: a.logger,
	})

	var responses engine.ResponseCache
	if cfg.RedisAddr != "" {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		responses = rc
	}

	gas := stream.NewGasCalculator(client, priceSource(client, cfg), cfg.GasUSDPerStream, a.logger)

	eng, err := engine.New(engine.Config{
		Venues: cfg.Venues,
		Prices: aggregate.PricesConfig{
			Retries:    cfg.PriceRetries,
			RetryDelay: cfg.PriceRetryDelay,
			Pacing:     cfg.PricePacing,
		},
		Sizing: stream.SizingConfig{
			MinStreams: cfg.MinStreams,
			MaxStreams: cfg.MaxStreams,
		},
		ResponseTTL: cfg.ResponseTTL,
	}, engine.Deps{
		Registry:  registry,
		Tokens:    resolver,
		Calc:      cache.New(cfg.CalcCacheTTL, cache.WithSoftLimit(cfg.CalcCacheSoftLimit)),
		Gas:       gas,
		Responses: responses,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	a.engine = eng

	a.logger.Debug("streamsizer wired",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Strings("venues", cfg.Venues),
		zap.Bool("token_store", store != nil),
		zap.Bool("response_cache", responses != nil),
	)
	return nil
}

func (a *app) tokenStore(ctx context.Context, cfg config.Config) (token.Store, error) {
	switch {
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case cfg.TokenDB != "":
		store, err := sqlite.Open(ctx, cfg.TokenDB, cfg.ChainID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return nil, nil
	}
}

type chainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// checkChainID fails when the RPC endpoint serves a different chain than the
// configured deployments belong to.
func checkChainID(ctx context.Context, src chainIDReader, want uint64) error {
	id, err := src.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != want {
		return fmt.Errorf("%w: rpc reports %s, configured %d", errChainMismatch, id, want)
	}
	return nil
}

// priceSource prefers a configured fixed ETH/USD price over the feed.
func priceSource(caller chain.ContractCaller, cfg config.Config) stream.PriceSource {
	if cfg.ETHUSDPrice.IsPositive() {
		return oracle.Static{Price: cfg.ETHUSDPrice}
	}
	feed := oracle.MainnetETHUSDFeed
	if cfg.ETHUSDFeed != "" {
		feed = common.HexToAddress(cfg.ETHUSDFeed)
	}
	return oracle.NewChainlink(caller, feed, cfg.ETHUSDMaxAge)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	payload, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
