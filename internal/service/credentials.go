package service

import (
	"context"
	"fmt"
	"time"

	"skinarb/internal/notify"
)

// CheckCredentials warns users whose Buff session is aging out. The warning
// repeats every cycle the condition holds; the cycle is daily, so no
// further backoff is applied.
func (s *Service) CheckCredentials(ctx context.Context, now time.Time) error {
	users, err := s.deps.Credentials.ListCredentialUsers(ctx)
	if err != nil {
		return fmt.Errorf("list credential users: %w", err)
	}

	for _, user := range users {
		if user.UpdatedAt.IsZero() {
			continue
		}
		ageDays := int(now.UTC().Sub(user.UpdatedAt) / (24 * time.Hour))
		if ageDays < s.cfg.Credentials.MaxAgeDays {
			continue
		}

		s.logger.Warn().Int64("user_id", user.User.UserID).Int("age_days", ageDays).Msg("buff session aging out")
		if s.deps.Notifier == nil {
			continue
		}
		note := notify.Notification{
			ChatID:  user.User.ChatID,
			Kind:    notify.KindCredentialExpiring,
			AgeDays: ageDays,
		}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", user.User.ChatID).Msg("failed to dispatch session warning")
		}
	}

	return nil
}
