package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogDispatcher stands in for mail delivery when no mail provider is
// configured. Secrets are only written to the log when Reveal is set, which
// is meant for local development.
type LogDispatcher struct {
	Reveal bool
}

// SendVerificationCode implements identity.NotificationDispatcher
func (d LogDispatcher) SendVerificationCode(_ context.Context, email, code string, ttl time.Duration) error {
	if d.Reveal {
		zap.S().Infow("verification code (not emailed)", "email", email, "code", code, "ttl", ttl)
		return nil
	}
	zap.S().Warnw("no mail provider configured, verification code not emailed", "email", email)
	return nil
}

// SendResetToken implements identity.NotificationDispatcher
func (d LogDispatcher) SendResetToken(_ context.Context, email, token string, ttl time.Duration) error {
	if d.Reveal {
		zap.S().Infow("reset token (not emailed)", "email", email, "token", token, "ttl", ttl)
		return nil
	}
	zap.S().Warnw("no mail provider configured, reset token not emailed", "email", email)
	return nil
}
