package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"skinarb/internal/arbitrage"
	"skinarb/internal/notify"
)

// SimulateAlert 通过给定的价格模拟一次告警推送，验证通知链路。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("telegram notifier is not enabled")
	}
	if !opts.BuffUSD.IsPositive() {
		return errors.New("--buff price must be positive")
	}

	markets := make(map[string]decimal.Decimal, 2)
	if opts.CGMUSD.IsPositive() {
		markets["cgm"] = opts.CGMUSD
	}
	if opts.SkinportUSD.IsPositive() {
		markets["skinport"] = opts.SkinportUSD
	}

	calc := arbitrage.NewCalculator(a.Config.Fees)
	arb := calc.Compute(opts.BuffUSD, markets, opts.USDRUB)

	buff := opts.BuffUSD
	note := notify.Notification{
		ChatID:       opts.ChatID,
		Kind:         notify.KindAlertTriggered,
		ItemName:     opts.ItemName,
		Condition:    "simulated",
		BuffPriceUSD: &buff,
		BestROI:      arb.BestROI,
		BestMarket:   arb.Best,
		USDRUB:       opts.USDRUB,
	}
	if best, ok := arb.Markets[arb.Best]; ok {
		note.NetUSD = best.NetUSD
		note.NetRUB = best.NetRUB
	}

	return notifier.Notify(ctx, note)
}
