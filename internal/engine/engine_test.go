package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"streamSwap/internal/cache"
	"streamSwap/internal/chain/chaintest"
	"streamSwap/internal/dex"
	"streamSwap/internal/oracle"
	"streamSwap/internal/stream"
	"streamSwap/internal/token"
	"streamSwap/internal/venue"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	v2Factory    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	sushiFactory = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	v2Pair       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fixedGas struct{ price *big.Int }

func (f fixedGas) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.price), nil
}

type memResponses struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func (m *memResponses) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memResponses) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = payload
	m.sets++
	return nil
}

func newCaller() *chaintest.Caller {
	caller := chaintest.NewCaller()
	erc20 := dex.MustABI(dex.ERC20ABI)
	caller.Return(usdc, erc20, "decimals", uint8(6))
	caller.Return(usdc, erc20, "symbol", "USDC")
	caller.Return(weth, erc20, "decimals", uint8(18))
	caller.Return(weth, erc20, "symbol", "WETH")

	factoryABI := dex.MustABI(dex.V2FactoryABI)
	pairABI := dex.MustABI(dex.V2PairABI)
	caller.Return(v2Factory, factoryABI, "getPair", v2Pair)
	caller.Return(sushiFactory, factoryABI, "getPair", common.Address{})

	usdcReserve, _ := new(big.Int).SetString("1000000000000", 10)
	wethReserve, _ := new(big.Int).SetString("500000000000000000000", 10)
	caller.Return(v2Pair, pairABI, "getReserves", usdcReserve, wethReserve, uint32(1))
	caller.Return(v2Pair, pairABI, "token0", usdc)
	caller.Return(v2Pair, pairABI, "token1", weth)
	return caller
}

func newEngine(t *testing.T, caller *chaintest.Caller, responses ResponseCache) *Engine {
	t.Helper()
	resolver := token.NewResolver(caller)
	registry := venue.NewRegistry(venue.Settings{
		ChainID:          1,
		UniswapV2Factory: v2Factory,
		SushiSwapFactory: sushiFactory,
	}, venue.Deps{Caller: caller, Tokens: resolver})

	gas := stream.NewGasCalculator(
		fixedGas{price: big.NewInt(20_000_000_000)},
		oracle.Static{Price: decimal.NewFromInt(2000)},
		decimal.NewFromInt(1),
		nil,
	)
	eng, err := New(Config{
		Venues:      []string{venue.UniswapV2, venue.SushiSwap},
		Sizing:      stream.SizingConfig{MinStreams: 1},
		ResponseTTL: time.Minute,
	}, Deps{
		Registry:  registry,
		Tokens:    resolver,
		Calc:      cache.New(cache.DefaultTTL),
		Gas:       gas,
		Responses: responses,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func TestInvalidAddressMakesNoCalls(t *testing.T) {
	caller := newCaller()
	eng := newEngine(t, caller, nil)

	cases := []string{"", "0x123", "A0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xZZb86991c6218b36c1d19D4a2e9Eb0cE3606eB48"}
	for _, bad := range cases {
		if _, err := eng.Liquidity(context.Background(), bad, weth.Hex(), ""); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("liquidity %q: expected ErrInvalidAddress, got %v", bad, err)
		}
		if _, err := eng.Recommend(context.Background(), usdc.Hex(), bad, "1000", ""); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("recommend %q: expected ErrInvalidAddress, got %v", bad, err)
		}
	}
	if got := caller.Calls(); got != 0 {
		t.Fatalf("expected no chain calls, got %d", got)
	}
}

func TestSameTokenRejected(t *testing.T) {
	eng := newEngine(t, newCaller(), nil)
	if _, err := eng.Prices(context.Background(), usdc.Hex(), usdc.Hex(), ""); !errors.Is(err, ErrSameToken) {
		t.Fatalf("expected ErrSameToken, got %v", err)
	}
}

func TestUnknownVenue(t *testing.T) {
	eng := newEngine(t, newCaller(), nil)
	if _, err := eng.Liquidity(context.Background(), usdc.Hex(), weth.Hex(), "curve"); !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("expected ErrUnknownVenue, got %v", err)
	}
}

func TestLiquiditySkipsAbsentVenues(t *testing.T) {
	eng := newEngine(t, newCaller(), nil)

	snaps, err := eng.Liquidity(context.Background(), usdc.Hex(), weth.Hex(), "")
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected one venue, got %d", len(snaps))
	}
	if snaps[0].Venue != venue.UniswapV2 || snaps[0].Reserves.Token0 != "1000000" || snaps[0].Reserves.Token1 != "500" {
		t.Fatalf("unexpected snapshot: %+v", snaps[0])
	}
}

func TestRecommendScenario(t *testing.T) {
	eng := newEngine(t, newCaller(), nil)

	rec, err := eng.Recommend(context.Background(), usdc.Hex(), weth.Hex(), "1000", "")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.TokenIn.Symbol != "USDC" || rec.TokenOut.Decimals != 18 {
		t.Fatalf("unexpected tokens: %+v %+v", rec.TokenIn, rec.TokenOut)
	}
	if rec.Sizing.SweetSpotCount != 2000 {
		t.Fatalf("expected 2000 streams, got %d", rec.Sizing.SweetSpotCount)
	}
	if rec.Gas.GasUnitsPerStream != "25000" || rec.Gas.StreamCount != 2000 {
		t.Fatalf("unexpected gas: %+v", rec.Gas)
	}
	if rec.Gas.TotalWei != "1000000000000000000" {
		t.Fatalf("unexpected total wei: %s", rec.Gas.TotalWei)
	}
	savings, err := decimal.NewFromString(rec.Savings.Savings)
	if err != nil {
		t.Fatalf("parse savings: %v", err)
	}
	if !savings.IsPositive() {
		t.Fatalf("expected streaming to save output, got %s", rec.Savings.Savings)
	}
	if rec.Savings.Approximate {
		t.Fatalf("constant product quotes are exact")
	}
}

func TestRecommendRejectsBadVolume(t *testing.T) {
	eng := newEngine(t, newCaller(), nil)
	for _, v := range []string{"", "abc", "0", "-5", "1.0000001"} {
		if _, err := eng.Recommend(context.Background(), usdc.Hex(), weth.Hex(), v, ""); !errors.Is(err, ErrInvalidVolume) {
			t.Fatalf("volume %q: expected ErrInvalidVolume, got %v", v, err)
		}
	}
}

func TestRecommendNoLiquidity(t *testing.T) {
	eng := newEngine(t, newCaller(), nil)
	_, err := eng.Recommend(context.Background(), usdc.Hex(), weth.Hex(), "1000", venue.SushiSwap)
	if !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestResponseCacheShortCircuits(t *testing.T) {
	caller := newCaller()
	responses := &memResponses{}
	eng := newEngine(t, caller, responses)

	first, err := eng.Liquidity(context.Background(), usdc.Hex(), weth.Hex(), venue.UniswapV2)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	calls := caller.Calls()
	second, err := eng.Liquidity(context.Background(), usdc.Hex(), weth.Hex(), venue.UniswapV2)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if caller.Calls() != calls {
		t.Fatalf("cached response should not touch the chain")
	}
	if responses.sets != 1 {
		t.Fatalf("expected one cache write, got %d", responses.sets)
	}
	if len(second) != 1 || second[0].Reserves != first[0].Reserves || !second[0].Timestamp.Equal(first[0].Timestamp) {
		t.Fatalf("cached response differs: %+v vs %+v", second, first)
	}
}
