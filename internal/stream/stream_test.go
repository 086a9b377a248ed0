package stream

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"streamSwap/internal/amm"
	"streamSwap/internal/cache"
	"streamSwap/internal/model"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func snapshot(in, out string) model.ReserveSnapshot {
	return model.ReserveSnapshot{
		Venue:       "uniswap-v2",
		PoolAddress: "0x00000000000000000000000000000000000000a1",
		Reserves:    model.AmountPair{Token0: in, Token1: out},
		Decimals:    model.DecimalsPair{Token0: 6, Token1: 18},
	}
}

func TestSweetSpotScenario(t *testing.T) {
	calc := cache.New(time.Minute)
	s := NewSizer(SizingConfig{}, calc)

	res, err := s.SweetSpot(decimal.NewFromInt(1000), snapshot("1000000", "500"))
	if err != nil {
		t.Fatalf("sweet spot: %v", err)
	}
	// alpha = 1e6 / 500^2 = 4, N = sqrt(4 * 1000^2) = 2000
	if res.SweetSpotCount != 2000 {
		t.Fatalf("expected 2000 streams, got %d", res.SweetSpotCount)
	}
	if calc.Len() != 1 {
		t.Fatalf("expected result cached, len=%d", calc.Len())
	}

	again, err := s.SweetSpot(decimal.NewFromInt(1000), snapshot("1000000", "500"))
	if err != nil || again.SweetSpotCount != 2000 {
		t.Fatalf("cached sweet spot: %+v %v", again, err)
	}
}

func TestSweetSpotMonotonicInVolume(t *testing.T) {
	s := NewSizer(SizingConfig{}, nil)
	in, out := decimal.NewFromInt(1_000_000), decimal.NewFromInt(500)

	prev := int64(0)
	for _, v := range []string{"0.0001", "0.2", "1", "3.7", "10", "999", "1000", "1000.5", "250000"} {
		n, err := s.Count(decimal.RequireFromString(v), in, out)
		if err != nil {
			t.Fatalf("count(%s): %v", v, err)
		}
		if n < prev {
			t.Fatalf("stream count decreased at volume %s: %d < %d", v, n, prev)
		}
		prev = n
	}
}

func TestSweetSpotNonIncreasingInDepth(t *testing.T) {
	s := NewSizer(SizingConfig{}, nil)
	volume := decimal.NewFromInt(500)

	prev := int64(-1)
	for _, k := range []int64{1, 2, 10, 100, 1000} {
		in := decimal.NewFromInt(1_000_000 * k)
		out := decimal.NewFromInt(500 * k)
		n, err := s.Count(volume, in, out)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if prev >= 0 && n > prev {
			t.Fatalf("deeper pool needs more streams: %d > %d", n, prev)
		}
		prev = n
	}
}

func TestSweetSpotBounds(t *testing.T) {
	in, out := decimal.NewFromInt(1_000_000), decimal.NewFromInt(500)

	n, err := NewSizer(SizingConfig{}, nil).Count(decimal.RequireFromString("0.0001"), in, out)
	if err != nil || n != 1 {
		t.Fatalf("expected floor of 1, got %d %v", n, err)
	}
	n, err = NewSizer(SizingConfig{MinStreams: 4}, nil).Count(decimal.RequireFromString("0.0001"), in, out)
	if err != nil || n != 4 {
		t.Fatalf("expected configured floor of 4, got %d %v", n, err)
	}
	n, err = NewSizer(SizingConfig{MaxStreams: 100}, nil).Count(decimal.NewFromInt(1000), in, out)
	if err != nil || n != 100 {
		t.Fatalf("expected cap of 100, got %d %v", n, err)
	}
	if _, err := NewSizer(SizingConfig{}, nil).Count(decimal.NewFromInt(1), decimal.Zero, out); !errors.Is(err, amm.ErrEmptyReserves) {
		t.Fatalf("expected empty reserves, got %v", err)
	}
	if _, err := NewSizer(SizingConfig{}, nil).Count(decimal.Zero, in, out); !errors.Is(err, amm.ErrInsufficientInput) {
		t.Fatalf("expected insufficient input, got %v", err)
	}
}

type fakeGas struct {
	price *big.Int
	err   error
}

func (f fakeGas) SuggestGasPrice(context.Context) (*big.Int, error) { return f.price, f.err }

type fakeETH struct {
	price decimal.Decimal
	err   error
}

func (f fakeETH) ETHUSD(context.Context) (decimal.Decimal, error) { return f.price, f.err }

func TestGasAllowance(t *testing.T) {
	g := NewGasCalculator(fakeGas{price: big.NewInt(20_000_000_000)}, fakeETH{price: decimal.NewFromInt(2000)}, decimal.NewFromInt(1), nil)

	res, err := g.Allowance(context.Background(), 10)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if res.GasUnitsPerStream.Int64() != 25_000 {
		t.Fatalf("expected 25000 gas units per stream, got %s", res.GasUnitsPerStream)
	}
	if res.Total.String() != "5000000000000000" {
		t.Fatalf("unexpected total %s", res.Total)
	}
	if m := res.Model(); m.TotalWei != "5000000000000000" || m.StreamCount != 10 {
		t.Fatalf("unexpected model %+v", m)
	}
}

func TestGasAllowanceErrors(t *testing.T) {
	eth := fakeETH{price: decimal.NewFromInt(2000)}
	usd := decimal.NewFromInt(1)

	cases := []struct {
		name string
		calc *GasCalculator
		want error
	}{
		{"rpc failure", NewGasCalculator(fakeGas{err: errors.New("timeout")}, eth, usd, nil), ErrQuoteUnavailable},
		{"zero price", NewGasCalculator(fakeGas{price: big.NewInt(0)}, eth, usd, nil), ErrQuoteUnavailable},
		{"no eth price", NewGasCalculator(fakeGas{price: big.NewInt(1)}, fakeETH{err: errors.New("stale")}, usd, nil), ErrQuoteUnavailable},
		{"budget too small", NewGasCalculator(fakeGas{price: big.NewInt(1_000_000_000_000_000)}, eth, usd, nil), ErrBudgetTooSmall},
	}
	for _, tc := range cases {
		if _, err := tc.calc.Allowance(context.Background(), 3); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

type cpQuoter struct {
	reserveIn, reserveOut *big.Int
	absent                bool
	approximate           bool
	calls                 int
}

func (q *cpQuoter) Name() string    { return "uniswap-v2" }
func (q *cpQuoter) FeeTier() uint32 { return 0 }

func (q *cpQuoter) Quote(_ context.Context, _, _ common.Address, amountIn *big.Int) (model.SwapQuote, bool, error) {
	q.calls++
	if q.absent {
		return model.SwapQuote{}, false, nil
	}
	out, err := amm.GetAmountOut(amountIn, q.reserveIn, q.reserveOut, amm.UniswapV2Fee)
	if err != nil {
		return model.SwapQuote{}, false, err
	}
	return model.SwapQuote{AmountIn: amountIn, AmountOut: out, Approximate: q.approximate}, true, nil
}

func newQuoter() *cpQuoter {
	rIn, _ := new(big.Int).SetString("1000000000000", 10)
	rOut, _ := new(big.Int).SetString("500000000000000000000", 10)
	return &cpQuoter{reserveIn: rIn, reserveOut: rOut}
}

func TestSlippageSavings(t *testing.T) {
	q := newQuoter()
	calc := NewSavingsCalculator(cache.New(time.Minute))
	in := SavingsInput{
		TokenIn:        usdc,
		TokenOut:       weth,
		Volume:         big.NewInt(100_000_000_000), // 100,000 USDC
		Streams:        10,
		OutputDecimals: 18,
		Snapshot:       snapshot("1000000", "500"),
	}

	res, err := calc.Savings(context.Background(), q, in)
	if err != nil {
		t.Fatalf("savings: %v", err)
	}
	savings := decimal.RequireFromString(res.Savings)
	if !savings.IsPositive() {
		t.Fatalf("expected positive savings, got %s", res.Savings)
	}
	single := decimal.RequireFromString(res.SingleShotOutput)
	streamed := decimal.RequireFromString(res.StreamedEquivalentOutput)
	if !streamed.Sub(single).Equal(savings) {
		t.Fatalf("savings %s != %s - %s", savings, streamed, single)
	}
	if q.calls != 2 {
		t.Fatalf("expected two quotes, got %d", q.calls)
	}

	if _, err := calc.Savings(context.Background(), q, in); err != nil {
		t.Fatalf("cached savings: %v", err)
	}
	if q.calls != 2 {
		t.Fatalf("expected cache hit, got %d quotes", q.calls)
	}
}

func TestSlippageSavingsCacheKeyedByDirection(t *testing.T) {
	q := newQuoter()
	calc := NewSavingsCalculator(cache.New(time.Minute))
	forward := SavingsInput{
		TokenIn:        usdc,
		TokenOut:       weth,
		Volume:         big.NewInt(1_000_000_000),
		Streams:        10,
		OutputDecimals: 18,
		Snapshot:       snapshot("1000", "1000"),
	}
	reverse := forward
	reverse.TokenIn, reverse.TokenOut = weth, usdc

	if _, err := calc.Savings(context.Background(), q, forward); err != nil {
		t.Fatalf("forward savings: %v", err)
	}
	if _, err := calc.Savings(context.Background(), q, reverse); err != nil {
		t.Fatalf("reverse savings: %v", err)
	}
	if q.calls != 4 {
		t.Fatalf("reverse direction must not reuse the forward result, got %d quotes", q.calls)
	}
}

func TestSlippageSavingsErrors(t *testing.T) {
	calc := NewSavingsCalculator(nil)
	base := SavingsInput{TokenIn: usdc, TokenOut: weth, Volume: big.NewInt(1000), Streams: 10, OutputDecimals: 18}

	absent := newQuoter()
	absent.absent = true
	if _, err := calc.Savings(context.Background(), absent, base); !errors.Is(err, ErrQuoteUnavailable) {
		t.Fatalf("expected quote unavailable, got %v", err)
	}

	tooMany := base
	tooMany.Streams = 5000
	if _, err := calc.Savings(context.Background(), newQuoter(), tooMany); !errors.Is(err, amm.ErrInsufficientInput) {
		t.Fatalf("expected insufficient input for empty chunks, got %v", err)
	}

	approx := newQuoter()
	approx.approximate = true
	res, err := calc.Savings(context.Background(), approx, base)
	if err != nil {
		t.Fatalf("savings: %v", err)
	}
	if !res.Approximate {
		t.Fatalf("approximate quotes must mark the result approximate")
	}
}
