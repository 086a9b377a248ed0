package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CalcCacheTTL != 30*time.Second || cfg.CalcCacheSoftLimit != 100 {
		t.Fatalf("unexpected cache defaults: %s %d", cfg.CalcCacheTTL, cfg.CalcCacheSoftLimit)
	}
	if cfg.PriceRetries != 2 || cfg.MinStreams != 1 {
		t.Fatalf("unexpected defaults: retries=%d min=%d", cfg.PriceRetries, cfg.MinStreams)
	}
	if len(cfg.V3FeeTiers) != 4 || cfg.V3FeeTiers[2] != 3000 {
		t.Fatalf("unexpected fee tiers %v", cfg.V3FeeTiers)
	}
	if len(cfg.Venues) != 4 {
		t.Fatalf("unexpected venues %v", cfg.Venues)
	}
	if !errors.Is(cfg.Validate(), ErrMissingRPC) {
		t.Fatalf("expected missing rpc error")
	}
}

func TestLoadFlagsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamsizer.yaml")
	content := []byte("rpc: http://localhost:8545\nmax-streams: 50\ntoken-decimals:\n  \"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48\": 6\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("gas-usd-per-stream", "1", "")
	flags.StringSlice("venues", nil, "")
	if err := flags.Parse([]string{"--gas-usd-per-stream=2.5", "--venues=uniswap-v2,sushiswap"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.MaxStreams != 50 || cfg.GasUSDPerStream.String() != "2.5" {
		t.Fatalf("unexpected values: max=%d gas=%s", cfg.MaxStreams, cfg.GasUSDPerStream)
	}
	if len(cfg.Venues) != 2 || cfg.Venues[1] != "sushiswap" {
		t.Fatalf("unexpected venues %v", cfg.Venues)
	}
	if cfg.TokenDecimals["0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"] != 6 {
		t.Fatalf("unexpected token decimals %v", cfg.TokenDecimals)
	}

	settings := cfg.VenueSettings()
	if settings.ChainID != 1 || len(settings.V3FeeTiers) != 4 {
		t.Fatalf("unexpected venue settings %+v", settings)
	}
}

func TestValidateRejectsBadVenue(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.RPCURL = "http://localhost:8545"
	cfg.Venues = []string{"uniswap-v3-abc"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid venue error")
	}
}

func TestValidateRejectsTwoTokenStores(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.RPCURL = "http://localhost:8545"
	cfg.PGDSN = "postgres://localhost/streamsizer"
	cfg.TokenDB = filepath.Join(t.TempDir(), "tokens.db")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for pg-dsn with token-db")
	}
}
