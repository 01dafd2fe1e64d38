package service

import (
	"context"
	"fmt"
	"time"

	"skinarb/internal/notify"
)

// EvaluateUnlocks transitions matured positions out of the trade lock. The
// conditional update is the only idempotence guarantee: once a row is ready
// it no longer matches, so repeated runs notify at most once per position.
func (s *Service) EvaluateUnlocks(ctx context.Context, now time.Time) error {
	positions, err := s.deps.Portfolio.ListUnlockablePositions(ctx, now.UTC())
	if err != nil {
		return fmt.Errorf("list unlockable positions: %w", err)
	}

	unlocked := 0
	for _, pos := range positions {
		transitioned, err := s.deps.Portfolio.MarkPositionReady(ctx, pos.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("position_id", pos.ID).Msg("failed to unlock position")
			continue
		}
		if !transitioned {
			// Another run won the conditional update; that run also owns
			// the notification.
			continue
		}
		unlocked++

		if pos.User.NotifyOptIn && s.deps.Notifier != nil {
			note := notify.Notification{
				ChatID:      pos.User.ChatID,
				Kind:        notify.KindPositionReady,
				ItemName:    pos.ItemName,
				Quantity:    pos.Quantity,
				BuyPriceUSD: pos.BuyPriceUSD,
				SellMarket:  pos.SellMarket,
			}
			if err := s.deps.Notifier.Notify(ctx, note); err != nil {
				s.logger.Error().Err(err).Int64("position_id", pos.ID).Msg("failed to dispatch unlock notification")
			}
		}
	}

	if unlocked > 0 {
		s.logger.Info().Int("unlocked", unlocked).Msg("positions released from trade lock")
	}
	return nil
}
