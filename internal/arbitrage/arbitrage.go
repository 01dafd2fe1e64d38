package arbitrage

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Seller-side commissions per destination market.
var defaultFees = map[string]float64{
	"cgm":      0.07,
	"skinport": 0.12,
	"steam":    0.15,
	"csfloat":  0.02,
}

var labels = map[string]string{
	"buff":     "Buff.163",
	"cgm":      "CSGOMarket",
	"skinport": "Skinport",
	"steam":    "Steam",
	"csfloat":  "CSFloat",
}

var hundred = decimal.NewFromInt(100)

// MarketResult holds per-destination proceeds. Figures are unrounded; the
// stored and compared values never carry display rounding.
type MarketResult struct {
	Label     string
	SellPrice decimal.Decimal
	NetUSD    decimal.Decimal
	NetRUB    decimal.Decimal
	ProfitUSD decimal.Decimal
	ProfitRUB decimal.Decimal
	ROI       decimal.Decimal
}

// Result is the outcome of one arbitrage computation. With no destination
// data the zero markets map, empty Best, and zero BestROI form the
// well-formed "no opportunity" shape.
type Result struct {
	Markets       map[string]MarketResult
	Best          string
	BestROI       decimal.Decimal
	BestProfitUSD decimal.Decimal
	BestProfitRUB decimal.Decimal
}

// Calculator applies a fixed per-market fee table.
type Calculator struct {
	fees map[string]decimal.Decimal
}

// NewCalculator builds a calculator from a fee fraction table. A nil table
// selects the platform defaults.
func NewCalculator(fees map[string]float64) *Calculator {
	if len(fees) == 0 {
		fees = defaultFees
	}
	converted := make(map[string]decimal.Decimal, len(fees))
	for market, fee := range fees {
		converted[market] = decimal.NewFromFloat(fee)
	}
	return &Calculator{fees: converted}
}

// Compute maps a buy-side price and destination sell prices to net proceeds,
// profit, and ROI per market, and picks the best destination. Markets are
// walked in lexicographic order and a later market wins only on strictly
// greater ROI, so ties resolve to the first name.
func (c *Calculator) Compute(buyUSD decimal.Decimal, markets map[string]decimal.Decimal, usdRUB decimal.Decimal) Result {
	result := Result{Markets: make(map[string]MarketResult, len(markets))}

	names := make([]string, 0, len(markets))
	for name := range markets {
		names = append(names, name)
	}
	sort.Strings(names)

	first := true
	for _, name := range names {
		sell := markets[name]
		if !sell.IsPositive() {
			continue
		}

		fee := c.fees[name]
		net := sell.Mul(decimal.NewFromInt(1).Sub(fee))
		profit := net.Sub(buyUSD)

		roi := decimal.Zero
		if buyUSD.IsPositive() {
			roi = profit.Div(buyUSD).Mul(hundred)
		}

		result.Markets[name] = MarketResult{
			Label:     Label(name),
			SellPrice: sell,
			NetUSD:    net,
			NetRUB:    net.Mul(usdRUB),
			ProfitUSD: profit,
			ProfitRUB: profit.Mul(usdRUB),
			ROI:       roi,
		}

		if first || roi.GreaterThan(result.BestROI) {
			result.Best = name
			result.BestROI = roi
			result.BestProfitUSD = profit
			result.BestProfitRUB = profit.Mul(usdRUB)
			first = false
		}
	}

	return result
}

// Label resolves the display name of a market.
func Label(market string) string {
	if label, ok := labels[market]; ok {
		return label
	}
	return market
}

// LiquidityLabel buckets the live listing count.
func LiquidityLabel(sellNum int) string {
	switch {
	case sellNum > 50:
		return "high"
	case sellNum > 15:
		return "med"
	default:
		return "low"
	}
}
