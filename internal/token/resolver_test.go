package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"streamSwap/internal/chain/chaintest"
	"streamSwap/internal/dex"
	"streamSwap/internal/model"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	mkr  = common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
)

func newCaller() *chaintest.Caller {
	caller := chaintest.NewCaller()
	erc20 := dex.MustABI(dex.ERC20ABI)
	caller.Return(usdc, erc20, "decimals", uint8(6))
	caller.Return(usdc, erc20, "symbol", "USDC")

	var raw [32]byte
	copy(raw[:], "MKR")
	caller.Return(mkr, erc20, "decimals", uint8(18))
	caller.Return(mkr, dex.MustABI(dex.ERC20Bytes32ABI), "symbol", raw)
	return caller
}

func TestResolverCachesByLowercaseAddress(t *testing.T) {
	caller := newCaller()
	r := NewResolver(caller)

	info, err := r.TokenInfo(context.Background(), usdc.Hex())
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	if info.Decimals != 6 || info.Symbol != "USDC" {
		t.Fatalf("unexpected info: %+v", info)
	}
	calls := caller.Calls()

	again, err := r.TokenInfo(context.Background(), strings.ToLower(usdc.Hex()))
	if err != nil {
		t.Fatalf("token info (cached): %v", err)
	}
	if again != info {
		t.Fatalf("cached info mismatch: %+v != %+v", again, info)
	}
	if caller.Calls() != calls {
		t.Fatalf("expected no extra calls, got %d more", caller.Calls()-calls)
	}
}

func TestResolverBytes32SymbolFallback(t *testing.T) {
	r := NewResolver(newCaller())
	info, err := r.TokenInfo(context.Background(), mkr.Hex())
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	if info.Symbol != "MKR" || info.Decimals != 18 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestResolverDecimalOverride(t *testing.T) {
	r := NewResolver(newCaller(), WithDecimalOverrides(map[string]uint8{usdc.Hex(): 8}))
	info, err := r.TokenInfo(context.Background(), usdc.Hex())
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	if info.Decimals != 8 {
		t.Fatalf("expected override decimals 8, got %d", info.Decimals)
	}
}

func TestResolverResolutionError(t *testing.T) {
	r := NewResolver(newCaller())

	_, err := r.TokenInfo(context.Background(), "0x000000000000000000000000000000000000dEaD")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}

	_, err = r.TokenInfo(context.Background(), "not-an-address")
	if !errors.As(err, &resErr) || !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address resolution error, got %v", err)
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string]model.TokenInfo
}

func (m *memStore) LoadToken(_ context.Context, address string) (model.TokenInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.data[address]
	return info, ok, nil
}

func (m *memStore) UpsertTokens(_ context.Context, tokens []model.TokenInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range tokens {
		m.data[strings.ToLower(tok.Address)] = tok
	}
	return nil
}

func TestResolverUsesStore(t *testing.T) {
	store := &memStore{data: make(map[string]model.TokenInfo)}
	caller := newCaller()

	first := NewResolver(caller, WithStore(store))
	if _, err := first.TokenInfo(context.Background(), usdc.Hex()); err != nil {
		t.Fatalf("token info: %v", err)
	}
	if _, ok, _ := store.LoadToken(context.Background(), strings.ToLower(usdc.Hex())); !ok {
		t.Fatalf("expected resolved token to be stored")
	}

	calls := caller.Calls()
	second := NewResolver(caller, WithStore(store))
	info, err := second.TokenInfo(context.Background(), usdc.Hex())
	if err != nil {
		t.Fatalf("token info from store: %v", err)
	}
	if info.Symbol != "USDC" || caller.Calls() != calls {
		t.Fatalf("expected store hit without chain calls, info=%+v calls=%d", info, caller.Calls()-calls)
	}
}

func TestResolverSharedFetchOutlivesCanceledCaller(t *testing.T) {
	caller := newCaller()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	caller.Handle(usdc, dex.MustABI(dex.ERC20ABI), "decimals", func([]interface{}) ([]interface{}, error) {
		once.Do(func() { close(started) })
		<-release
		return []interface{}{uint8(6)}, nil
	})
	r := NewResolver(caller)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.TokenInfo(ctx, usdc.Hex())
		firstErr <- err
	}()
	<-started
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled caller to return its own error, got %v", err)
	}

	type result struct {
		info model.TokenInfo
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := r.TokenInfo(context.Background(), usdc.Hex())
		second <- result{info, err}
	}()
	close(release)

	res := <-second
	if res.err != nil {
		t.Fatalf("waiter failed with the first caller's cancellation: %v", res.err)
	}
	if res.info.Symbol != "USDC" || res.info.Decimals != 6 {
		t.Fatalf("unexpected info %+v", res.info)
	}
}
