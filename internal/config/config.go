package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"streamSwap/internal/venue"
)

// ErrMissingRPC is returned when no RPC endpoint is configured.
var ErrMissingRPC = errors.New("rpc url is required")

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL     string
	RPCTimeout time.Duration
	ChainID    uint64
	LogLevel   string

	Venues           []string
	UniswapV2Factory string
	SushiSwapFactory string
	V3Factory        string
	V3Quoter         string
	V3FeeTiers       []uint32
	BalancerVault    string
	BalancerPools    []string

	CalcCacheTTL       time.Duration
	CalcCacheSoftLimit int

	PriceRetries    int
	PriceRetryDelay time.Duration
	PricePacing     time.Duration

	GasUSDPerStream decimal.Decimal
	ETHUSDPrice     decimal.Decimal
	ETHUSDFeed      string
	ETHUSDMaxAge    time.Duration
	MinStreams      int64
	MaxStreams      int64
	TokenDecimals   map[string]uint8

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ResponseTTL   time.Duration

	PGDSN   string
	TokenDB string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STREAMSIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("rpc-timeout", 15*time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("venues", strings.Join(venue.DefaultVenues, ","))
	v.SetDefault("uniswap-v2-factory", venue.MainnetUniswapV2Factory.Hex())
	v.SetDefault("sushiswap-factory", venue.MainnetSushiSwapFactory.Hex())
	v.SetDefault("v3-factory", venue.MainnetV3Factory.Hex())
	v.SetDefault("v3-quoter", venue.MainnetV3QuoterV2.Hex())
	v.SetDefault("v3-fee-tiers", "100,500,3000,10000")
	v.SetDefault("balancer-vault", venue.MainnetBalancerVault.Hex())
	v.SetDefault("calc-cache-ttl", 30*time.Second)
	v.SetDefault("calc-cache-soft-limit", 100)
	v.SetDefault("price-retries", 2)
	v.SetDefault("price-retry-delay", 500*time.Millisecond)
	v.SetDefault("price-pacing", 200*time.Millisecond)
	v.SetDefault("gas-usd-per-stream", "1")
	v.SetDefault("eth-usd-price", "")
	v.SetDefault("eth-usd-feed", "")
	v.SetDefault("eth-usd-max-age", time.Hour)
	v.SetDefault("min-streams", 1)
	v.SetDefault("max-streams", 0)
	v.SetDefault("redis-db", 0)
	v.SetDefault("response-ttl", 15*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	feeTiers, err := parseFeeTiers(getStringSlice(v, "v3-fee-tiers"))
	if err != nil {
		return Config{}, err
	}
	gasUSD, err := parseDecimal(v, "gas-usd-per-stream")
	if err != nil {
		return Config{}, err
	}
	ethUSD, err := parseDecimal(v, "eth-usd-price")
	if err != nil {
		return Config{}, err
	}
	tokenDecimals, err := parseDecimals(getStringMap(v, "token-decimals"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		RPCTimeout:         v.GetDuration("rpc-timeout"),
		ChainID:            v.GetUint64("chain-id"),
		LogLevel:           v.GetString("log-level"),
		Venues:             getStringSlice(v, "venues"),
		UniswapV2Factory:   v.GetString("uniswap-v2-factory"),
		SushiSwapFactory:   v.GetString("sushiswap-factory"),
		V3Factory:          v.GetString("v3-factory"),
		V3Quoter:           v.GetString("v3-quoter"),
		V3FeeTiers:         feeTiers,
		BalancerVault:      v.GetString("balancer-vault"),
		BalancerPools:      getStringSlice(v, "balancer-pools"),
		CalcCacheTTL:       v.GetDuration("calc-cache-ttl"),
		CalcCacheSoftLimit: v.GetInt("calc-cache-soft-limit"),
		PriceRetries:       v.GetInt("price-retries"),
		PriceRetryDelay:    v.GetDuration("price-retry-delay"),
		PricePacing:        v.GetDuration("price-pacing"),
		GasUSDPerStream:    gasUSD,
		ETHUSDPrice:        ethUSD,
		ETHUSDFeed:         v.GetString("eth-usd-feed"),
		ETHUSDMaxAge:       v.GetDuration("eth-usd-max-age"),
		MinStreams:         v.GetInt64("min-streams"),
		MaxStreams:         v.GetInt64("max-streams"),
		TokenDecimals:      tokenDecimals,
		RedisAddr:          v.GetString("redis-addr"),
		RedisPassword:      v.GetString("redis-password"),
		RedisDB:            v.GetInt("redis-db"),
		ResponseTTL:        v.GetDuration("response-ttl"),
		PGDSN:              v.GetString("pg-dsn"),
		TokenDB:            v.GetString("token-db"),
	}

	return cfg, nil
}

// Validate fails fast on configuration that would only surface as errors
// after network calls had been made.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return ErrMissingRPC
	}
	for key, addr := range map[string]string{
		"uniswap-v2-factory": c.UniswapV2Factory,
		"sushiswap-factory":  c.SushiSwapFactory,
		"v3-factory":         c.V3Factory,
		"balancer-vault":     c.BalancerVault,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q", key, addr)
		}
	}
	if c.V3Quoter != "" && !common.IsHexAddress(c.V3Quoter) {
		return fmt.Errorf("v3-quoter: invalid address %q", c.V3Quoter)
	}
	if c.ETHUSDFeed != "" && !common.IsHexAddress(c.ETHUSDFeed) {
		return fmt.Errorf("eth-usd-feed: invalid address %q", c.ETHUSDFeed)
	}
	for _, pool := range c.BalancerPools {
		if !common.IsHexAddress(pool) {
			return fmt.Errorf("balancer-pools: invalid address %q", pool)
		}
	}
	for _, name := range c.Venues {
		if _, _, err := venue.ParseID(name); err != nil {
			return err
		}
	}
	if c.MaxStreams != 0 && c.MaxStreams < c.MinStreams {
		return fmt.Errorf("max-streams %d below min-streams %d", c.MaxStreams, c.MinStreams)
	}
	if !c.GasUSDPerStream.IsPositive() {
		return fmt.Errorf("gas-usd-per-stream must be positive")
	}
	if c.PGDSN != "" && c.TokenDB != "" {
		return fmt.Errorf("pg-dsn and token-db are mutually exclusive")
	}
	return nil
}

// VenueSettings converts the protocol addresses for the venue registry.
func (c Config) VenueSettings() venue.Settings {
	pools := make([]common.Address, 0, len(c.BalancerPools))
	for _, pool := range c.BalancerPools {
		pools = append(pools, common.HexToAddress(pool))
	}
	var quoter common.Address
	if c.V3Quoter != "" {
		quoter = common.HexToAddress(c.V3Quoter)
	}
	return venue.Settings{
		ChainID:          c.ChainID,
		UniswapV2Factory: common.HexToAddress(c.UniswapV2Factory),
		SushiSwapFactory: common.HexToAddress(c.SushiSwapFactory),
		V3Factory:        common.HexToAddress(c.V3Factory),
		V3Quoter:         quoter,
		V3FeeTiers:       append([]uint32(nil), c.V3FeeTiers...),
		BalancerVault:    common.HexToAddress(c.BalancerVault),
		BalancerPools:    pools,
	}
}

func parseFeeTiers(items []string) ([]uint32, error) {
	out := make([]uint32, 0, len(items))
	for _, item := range items {
		tier, err := strconv.ParseUint(item, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("v3-fee-tiers: %q: %w", item, err)
		}
		out = append(out, uint32(tier))
	}
	return out, nil
}

func parseDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseDecimals(items map[string]string) (map[string]uint8, error) {
	out := make(map[string]uint8, len(items))
	for addr, raw := range items {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("token-decimals: invalid address %q", addr)
		}
		dec, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("token-decimals: %s: %w", addr, err)
		}
		out[strings.ToLower(addr)] = uint8(dec)
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
