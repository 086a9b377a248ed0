package venue

import (
	"errors"
	"testing"

	"streamSwap/internal/chain/chaintest"
)

func TestRegistryMemoizesAdapters(t *testing.T) {
	r := NewRegistry(MainnetSettings(), testDeps(chaintest.NewCaller()))

	a, err := r.Adapter(UniswapV3, 500)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	b, err := r.Adapter("Uniswap-V3", 500)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	if a != b {
		t.Fatalf("expected memoized adapter")
	}
	if AdapterID(a) != "uniswap-v3-500" {
		t.Fatalf("unexpected id %s", AdapterID(a))
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry(MainnetSettings(), testDeps(chaintest.NewCaller()))
	adapters, err := r.Adapters(nil)
	if err != nil {
		t.Fatalf("adapters: %v", err)
	}
	want := []string{"uniswap-v2", "uniswap-v3-100", "uniswap-v3-500", "uniswap-v3-3000", "uniswap-v3-10000", "sushiswap", "balancer"}
	if len(adapters) != len(want) {
		t.Fatalf("expected %d adapters, got %d", len(want), len(adapters))
	}
	for i, a := range adapters {
		if AdapterID(a) != want[i] {
			t.Fatalf("adapter %d: got %s want %s", i, AdapterID(a), want[i])
		}
	}
}

func TestRegistryUnknownVenue(t *testing.T) {
	r := NewRegistry(MainnetSettings(), testDeps(chaintest.NewCaller()))
	if _, err := r.Adapter("curve", 0); !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("expected unknown venue, got %v", err)
	}
	if _, err := r.Adapter(UniswapV3, 42); !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("expected unknown fee tier, got %v", err)
	}
	if _, err := r.Adapter(SushiSwap, 3000); !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("expected fee tier rejection on constant-product venue, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	name, tier, err := ParseID("Uniswap-V3-3000")
	if err != nil || name != UniswapV3 || tier != 3000 {
		t.Fatalf("unexpected parse: %s %d %v", name, tier, err)
	}
	name, tier, err = ParseID("uniswap-v2")
	if err != nil || name != UniswapV2 || tier != 0 {
		t.Fatalf("unexpected parse: %s %d %v", name, tier, err)
	}
	if _, _, err := ParseID("uniswap-v3-abc"); !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestRegistryAdaptersAcceptsTieredIDs(t *testing.T) {
	r := NewRegistry(MainnetSettings(), testDeps(chaintest.NewCaller()))
	adapters, err := r.Adapters([]string{"sushiswap", "uniswap-v3-3000"})
	if err != nil {
		t.Fatalf("adapters: %v", err)
	}
	if len(adapters) != 2 || AdapterID(adapters[1]) != "uniswap-v3-3000" {
		t.Fatalf("unexpected adapters %d", len(adapters))
	}
}
