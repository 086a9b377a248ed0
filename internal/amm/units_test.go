package amm

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"1000000000000", 6, "1000000"},
		{"500000000000000000000", 18, "500"},
		{"1500000", 6, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"0", 6, "0"},
	}
	for _, tc := range cases {
		v, _ := new(big.Int).SetString(tc.amount, 10)
		if got := FormatUnits(v, tc.decimals); got != tc.want {
			t.Fatalf("FormatUnits(%s, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestToBaseUnits(t *testing.T) {
	got, err := ToBaseUnits(decimal.RequireFromString("1000.25"), 6)
	if err != nil {
		t.Fatalf("to base units: %v", err)
	}
	if got.String() != "1000250000" {
		t.Fatalf("unexpected base units: %s", got)
	}
	if _, err := ToBaseUnits(decimal.RequireFromString("0.0000001"), 6); err == nil {
		t.Fatalf("expected error for excess precision")
	}
	if _, err := ToBaseUnits(decimal.NewFromInt(-1), 6); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
