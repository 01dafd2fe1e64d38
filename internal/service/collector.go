package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"skinarb/internal/arbitrage"
	"skinarb/internal/fetcher"
	"skinarb/internal/notify"
	"skinarb/internal/storage"
)

// CollectCycle runs one fetch-and-reconcile pass: refresh caches, paginate
// Buff with the freshest stored session, join bulk catalogs by exact item
// name, compute arbitrage, and persist snapshots plus history in one
// transaction.
func (s *Service) CollectCycle(ctx context.Context, now time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", now).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	cnyUSD := s.deps.FX.Get(ctx)
	cgmPrices := s.deps.CGM.Get(ctx)
	spPrices := s.deps.Skinport.Get(ctx)

	cred, err := s.deps.Credentials.FreshestCredentialUser(ctx)
	if err != nil {
		return fmt.Errorf("select credential: %w", err)
	}
	if cred == nil {
		s.logger.Warn().Msg("no user with a buff session, skipping cycle")
		return nil
	}

	records, expired, err := s.paginateBuff(ctx, cred.Session, cnyUSD)
	if err != nil {
		return err
	}
	if expired {
		// Stale authenticated data is worse than no update: surface the
		// expiry and leave the previous snapshots untouched.
		s.notifyCredentialExpired(ctx, cred)
		return nil
	}
	if len(records) == 0 {
		s.logger.Warn().Msg("buff returned no records, nothing to persist")
		return nil
	}

	snapshots := make([]storage.Snapshot, 0, len(records))
	observations := make([]storage.Observation, 0, len(records)*2)
	stamp := s.now().UTC()

	for _, rec := range records {
		markets := make(map[string]decimal.Decimal, 2)
		cgmPrice, hasCGM := cgmPrices[rec.Name]
		if hasCGM {
			markets["cgm"] = cgmPrice
		}
		spPrice, hasSP := spPrices[rec.Name]
		if hasSP {
			markets["skinport"] = spPrice
		}

		arb := s.calc.Compute(rec.PriceUSD, markets, cred.User.USDRUB)

		snapshots = append(snapshots, buildSnapshot(rec, cgmPrice, hasCGM, spPrice, hasSP, arb, stamp))

		// The reference price always leaves a history point; destination
		// markets only when they had data this cycle.
		observations = append(observations, storage.Observation{
			Name: rec.Name, Source: "buff", PriceUSD: rec.PriceUSD, ObservedAt: stamp,
		})
		if hasCGM {
			observations = append(observations, storage.Observation{
				Name: rec.Name, Source: "cgm", PriceUSD: cgmPrice, ObservedAt: stamp,
			})
		}
		if hasSP {
			observations = append(observations, storage.Observation{
				Name: rec.Name, Source: "skinport", PriceUSD: spPrice, ObservedAt: stamp,
			})
		}
	}

	if err := s.deps.Cycles.PersistCycle(ctx, snapshots, observations); err != nil {
		return fmt.Errorf("persist cycle: %w", err)
	}

	s.logger.Info().
		Int("snapshots", len(snapshots)).
		Int("observations", len(observations)).
		Str("cny_usd", cnyUSD.StringFixed(4)).
		Msg("collection cycle persisted")
	return nil
}

// paginateBuff walks the primary source until an empty page, the page cap,
// or a throttle. The expired flag is reported separately so the caller can
// skip persistence without treating it as a loop fault.
func (s *Service) paginateBuff(ctx context.Context, session string, cnyUSD decimal.Decimal) ([]fetcher.Record, bool, error) {
	all := make([]fetcher.Record, 0, 128)

	for page := 1; page <= s.cfg.Collector.MaxPages; page++ {
		records, err := s.deps.Buff.FetchPage(ctx, session, page, cnyUSD)
		switch {
		case errors.Is(err, fetcher.ErrSessionExpired):
			return nil, true, nil
		case errors.Is(err, fetcher.ErrThrottled):
			s.logger.Warn().Int("page", page).Dur("cooldown", s.cfg.Collector.ThrottleCooldown).
				Msg("buff throttled, cooling down and ending pagination for this cycle")
			if err := sleep(ctx, s.cfg.Collector.ThrottleCooldown); err != nil {
				return nil, false, err
			}
			return all, false, nil
		case err != nil:
			return nil, false, fmt.Errorf("fetch buff page %d: %w", page, err)
		}

		if len(records) == 0 {
			break
		}
		all = append(all, records...)

		if page < s.cfg.Collector.MaxPages {
			if err := sleep(ctx, s.cfg.Collector.PageDelay); err != nil {
				return nil, false, err
			}
		}
	}

	s.logger.Info().Int("records", len(all)).Msg("buff pagination finished")
	return all, false, nil
}

func buildSnapshot(rec fetcher.Record, cgmPrice decimal.Decimal, hasCGM bool, spPrice decimal.Decimal, hasSP bool, arb arbitrage.Result, stamp time.Time) storage.Snapshot {
	snap := storage.Snapshot{
		Name:       rec.Name,
		SellNum:    rec.SellNum,
		BuyNum:     rec.BuyNum,
		Liquidity:  arbitrage.LiquidityLabel(rec.SellNum),
		BestROI:    arb.BestROI,
		SteamPrice: rec.SteamUSD,
		UpdatedAt:  stamp,
	}

	buffPrice := rec.PriceUSD
	snap.BuffPrice = &buffPrice

	if rec.IconPath != "" {
		icon := rec.IconPath
		snap.IconURL = &icon
	}
	if hasCGM {
		price := cgmPrice
		snap.CGMPrice = &price
	}
	if hasSP {
		price := spPrice
		snap.SkinportPrice = &price
	}
	if arb.Best != "" {
		best := arb.Best
		snap.BestMarket = &best
	}

	return snap
}

func (s *Service) notifyCredentialExpired(ctx context.Context, cred *storage.CredentialUser) {
	s.logger.Error().Int64("user_id", cred.User.UserID).Msg("buff session expired, cycle skipped")
	if s.deps.Notifier == nil {
		return
	}
	note := notify.Notification{
		ChatID: cred.User.ChatID,
		Kind:   notify.KindCredentialExpired,
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", cred.User.ChatID).Msg("failed to dispatch expiry notification")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.cfg.Collector.AdvisoryLockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.cfg.Collector.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
