package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"skinarb/internal/arbitrage"
	"skinarb/internal/config"
	"skinarb/internal/fetcher"
	"skinarb/internal/notify"
	"skinarb/internal/pricecache"
	"skinarb/internal/scheduler"
	"skinarb/internal/storage"
)

// PriceMap is a bulk source catalog keyed by item name.
type PriceMap = map[string]decimal.Decimal

// Deps carries the service's collaborators. The storage surface is split on
// purpose: only the collector receives the cycle writer, every other loop
// sees snapshots through the read-only interface.
type Deps struct {
	Buff     fetcher.PageFetcher
	CGM      *pricecache.Cache[PriceMap]
	Skinport *pricecache.Cache[PriceMap]
	FX       *pricecache.Cache[decimal.Decimal]

	Snapshots   storage.SnapshotReader
	Cycles      storage.CycleWriter
	Alerts      storage.AlertStore
	Portfolio   storage.PortfolioStore
	Credentials storage.CredentialStore
	Locker      storage.AdvisoryLocker

	Notifier notify.Notifier
}

// Service runs the four scheduled loops: price collection, alert
// evaluation, portfolio unlocks, and credential freshness.
type Service struct {
	cfg    *config.Config
	deps   Deps
	calc   *arbitrage.Calculator
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs the service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		deps:   deps,
		calc:   arbitrage.NewCalculator(cfg.Fees),
		logger: logger.With().Str("component", "service").Logger(),
		now:    time.Now,
	}
}

// Run starts all loops and blocks until ctx is cancelled. Loops swallow
// their own cycle faults, so a failing upstream never takes down a sibling
// loop; only cancellation ends the group.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	loops := []struct {
		opts scheduler.Options
		tick scheduler.TickFunc
	}{
		{
			opts: scheduler.Options{
				Name:         "collector",
				Interval:     s.cfg.Collector.Interval,
				AlignToStart: s.cfg.Collector.AlignToBucket,
				StartupDelay: s.cfg.Collector.StartupDelay,
			},
			tick: s.CollectCycle,
		},
		{
			opts: scheduler.Options{Name: "alerts", Interval: s.cfg.Alerts.Interval},
			tick: s.EvaluateAlerts,
		},
		{
			opts: scheduler.Options{Name: "portfolio", Interval: s.cfg.Portfolio.Interval, Immediate: true},
			tick: s.EvaluateUnlocks,
		},
		{
			opts: scheduler.Options{Name: "credentials", Interval: s.cfg.Credentials.Interval, Immediate: true},
			tick: s.CheckCredentials,
		},
	}

	for _, entry := range loops {
		loop := scheduler.New(entry.opts, s.logger)
		tick := entry.tick
		g.Go(func() error {
			return loop.Run(ctx, tick)
		})
	}

	return g.Wait()
}

// sleep waits the given duration, returning early on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
