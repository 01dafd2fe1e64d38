package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"skinarb/internal/notify"
	"skinarb/internal/storage"
)

// EvaluateAlerts joins active alerts against the latest snapshots and fires
// a notification per satisfied condition. An alert whose item has no
// snapshot yet is skipped, not failed. Conditions that stay true keep
// re-triggering every cycle; re-arming is a user action.
func (s *Service) EvaluateAlerts(ctx context.Context, now time.Time) error {
	alerts, err := s.deps.Alerts.ListActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}

	triggered := 0
	for _, alert := range alerts {
		snap, err := s.deps.Snapshots.GetSnapshot(ctx, alert.ItemName)
		if err != nil {
			s.logger.Error().Err(err).Str("item", alert.ItemName).Msg("snapshot lookup failed")
			continue
		}
		if snap == nil {
			continue
		}

		if !conditionHolds(alert, snap) {
			continue
		}
		triggered++

		if err := s.deps.Alerts.MarkAlertTriggered(ctx, alert.ID, now.UTC()); err != nil {
			s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to stamp alert trigger")
		}

		// Delivery is best-effort: the alert counts as triggered even when
		// the message never arrives.
		if alert.User.NotifyOptIn && s.deps.Notifier != nil {
			if err := s.deps.Notifier.Notify(ctx, s.alertNotification(alert, snap)); err != nil {
				s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to dispatch alert notification")
			}
		}
	}

	if triggered > 0 {
		s.logger.Info().Int("checked", len(alerts)).Int("triggered", triggered).Msg("alert evaluation finished")
	}
	return nil
}

func conditionHolds(alert storage.Alert, snap *storage.Snapshot) bool {
	switch alert.Condition {
	case storage.ConditionROIAtLeast:
		return alert.Threshold != nil && snap.BestROI.GreaterThanOrEqual(*alert.Threshold)
	case storage.ConditionPriceAtMost:
		return alert.Threshold != nil && snap.BuffPrice != nil &&
			snap.BuffPrice.IsPositive() && snap.BuffPrice.LessThanOrEqual(*alert.Threshold)
	case storage.ConditionAppeared:
		return snap.BuffPrice != nil
	default:
		return false
	}
}

// alertNotification recomputes the best-route proceeds from the snapshot so
// the message carries net figures in the user's display currency.
func (s *Service) alertNotification(alert storage.Alert, snap *storage.Snapshot) notify.Notification {
	note := notify.Notification{
		ChatID:       alert.User.ChatID,
		Kind:         notify.KindAlertTriggered,
		ItemName:     alert.ItemName,
		Condition:    alert.Condition,
		Threshold:    alert.Threshold,
		BuffPriceUSD: snap.BuffPrice,
		BestROI:      snap.BestROI,
		USDRUB:       alert.User.USDRUB,
	}
	if snap.BestMarket != nil {
		note.BestMarket = *snap.BestMarket
	}

	if snap.BuffPrice == nil {
		return note
	}

	markets := make(map[string]decimal.Decimal, 3)
	if snap.CGMPrice != nil {
		markets["cgm"] = *snap.CGMPrice
	}
	if snap.SkinportPrice != nil {
		markets["skinport"] = *snap.SkinportPrice
	}
	if snap.SteamPrice != nil {
		markets["steam"] = *snap.SteamPrice
	}

	// The figures must describe the market named in the header, so they are
	// keyed by the stored best, not by whichever market wins the recompute
	// (steam is in the recompute but never in the stored best).
	arb := s.calc.Compute(*snap.BuffPrice, markets, alert.User.USDRUB)
	if best, ok := arb.Markets[note.BestMarket]; ok {
		note.NetUSD = best.NetUSD
		note.NetRUB = best.NetRUB
	}
	return note
}
