package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"
)

func defaultCalc() *Calculator {
	return NewCalculator(nil)
}

func TestComputeSelectsBestROI(t *testing.T) {
	calc := defaultCalc()
	markets := map[string]decimal.Decimal{
		"cgm":      decimal.NewFromFloat(12),
		"skinport": decimal.NewFromFloat(13),
	}

	result := calc.Compute(decimal.NewFromInt(10), markets, decimal.NewFromInt(90))

	// cgm: 12*0.93 = 11.16; skinport: 13*0.88 = 11.44, so skinport wins.
	if result.Best != "skinport" {
		t.Fatalf("expected best skinport, got %q", result.Best)
	}
	if len(result.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(result.Markets))
	}
	if !result.BestROI.Equal(result.Markets["skinport"].ROI) {
		t.Fatalf("best roi should match the winning market")
	}
}

func TestComputeReferenceScenario(t *testing.T) {
	calc := defaultCalc()
	markets := map[string]decimal.Decimal{"cgm": decimal.NewFromFloat(12.0)}

	result := calc.Compute(decimal.NewFromFloat(10.0), markets, decimal.NewFromInt(90))

	cgm := result.Markets["cgm"]
	if !cgm.NetUSD.Equal(decimal.NewFromFloat(11.16)) {
		t.Fatalf("net expected 11.16, got %s", cgm.NetUSD)
	}
	if !cgm.ProfitUSD.Equal(decimal.NewFromFloat(1.16)) {
		t.Fatalf("profit expected 1.16, got %s", cgm.ProfitUSD)
	}
	if !cgm.ROI.Equal(decimal.NewFromFloat(11.6)) {
		t.Fatalf("roi expected 11.6, got %s", cgm.ROI)
	}
	if result.Best != "cgm" {
		t.Fatalf("best expected cgm, got %q", result.Best)
	}
}

func TestComputeEmptyMarkets(t *testing.T) {
	calc := defaultCalc()

	result := calc.Compute(decimal.NewFromInt(10), nil, decimal.NewFromInt(90))

	if result.Best != "" {
		t.Fatalf("best should be empty, got %q", result.Best)
	}
	if !result.BestROI.IsZero() {
		t.Fatalf("best roi should be zero, got %s", result.BestROI)
	}
	if result.Markets == nil {
		t.Fatal("markets map should be non-nil even when empty")
	}
}

func TestComputeZeroBuyPrice(t *testing.T) {
	calc := defaultCalc()
	markets := map[string]decimal.Decimal{"cgm": decimal.NewFromInt(10)}

	result := calc.Compute(decimal.Zero, markets, decimal.NewFromInt(90))

	if !result.Markets["cgm"].ROI.IsZero() {
		t.Fatalf("roi must be zero for zero buy price, got %s", result.Markets["cgm"].ROI)
	}
	if !result.BestROI.IsZero() {
		t.Fatalf("best roi must be zero, got %s", result.BestROI)
	}
}

func TestComputeSkipsNonPositivePrices(t *testing.T) {
	calc := defaultCalc()
	markets := map[string]decimal.Decimal{
		"cgm":      decimal.Zero,
		"skinport": decimal.NewFromInt(-3),
	}

	result := calc.Compute(decimal.NewFromInt(10), markets, decimal.NewFromInt(90))

	if len(result.Markets) != 0 {
		t.Fatalf("non-positive prices must be dropped, got %d markets", len(result.Markets))
	}
	if result.Best != "" {
		t.Fatalf("best should be empty, got %q", result.Best)
	}
}

func TestComputeTieResolvesToFirstName(t *testing.T) {
	// Equal fees and equal prices produce an exact ROI tie.
	calc := NewCalculator(map[string]float64{"a": 0.10, "b": 0.10})
	markets := map[string]decimal.Decimal{
		"b": decimal.NewFromInt(20),
		"a": decimal.NewFromInt(20),
	}

	result := calc.Compute(decimal.NewFromInt(10), markets, decimal.NewFromInt(90))

	if result.Best != "a" {
		t.Fatalf("tie must resolve to the lexicographically first market, got %q", result.Best)
	}
}

func TestComputeRUBFigures(t *testing.T) {
	calc := defaultCalc()
	markets := map[string]decimal.Decimal{"cgm": decimal.NewFromFloat(12.0)}

	result := calc.Compute(decimal.NewFromFloat(10.0), markets, decimal.NewFromInt(90))

	cgm := result.Markets["cgm"]
	if !cgm.NetRUB.Equal(decimal.NewFromFloat(1004.4)) {
		t.Fatalf("net rub expected 1004.4, got %s", cgm.NetRUB)
	}
	if cgm.NetRUB.Round(0).String() != "1004" {
		t.Fatalf("display rounding should be whole units, got %s", cgm.NetRUB.Round(0))
	}
}

func TestLiquidityLabel(t *testing.T) {
	cases := []struct {
		sellNum int
		want    string
	}{
		{51, "high"},
		{50, "med"},
		{16, "med"},
		{15, "low"},
		{0, "low"},
	}
	for _, tc := range cases {
		if got := LiquidityLabel(tc.sellNum); got != tc.want {
			t.Fatalf("LiquidityLabel(%d) = %q, want %q", tc.sellNum, got, tc.want)
		}
	}
}
