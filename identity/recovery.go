package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RecoveryConfig wires a PasswordRecoveryFlow
type RecoveryConfig struct {
	Users    UserDirectory
	Resets   CredentialResetStore
	Notifier NotificationDispatcher
	Secrets  SecretGenerator
	Clock    Clock

	// DirectDelivery returns issued tokens to the caller instead of mailing them
	DirectDelivery bool
	ResetTTL       time.Duration
}

// PasswordRecoveryFlow issues and redeems single-use password reset tokens
// stored on the account itself.
type PasswordRecoveryFlow struct {
	users    UserDirectory
	resets   CredentialResetStore
	notifier NotificationDispatcher
	secrets  SecretGenerator
	now      Clock

	directDelivery bool
	resetTTL       time.Duration
}

// ResetIssue describes a freshly issued reset token. Token is only set when
// the flow delivers tokens directly.
type ResetIssue struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"token,omitempty"`
}

// NewPasswordRecoveryFlow fills in defaults for anything left unset in cfg
func NewPasswordRecoveryFlow(cfg RecoveryConfig) *PasswordRecoveryFlow {
	f := &PasswordRecoveryFlow{
		users:          cfg.Users,
		resets:         cfg.Resets,
		notifier:       cfg.Notifier,
		secrets:        cfg.Secrets,
		now:            cfg.Clock,
		directDelivery: cfg.DirectDelivery,
		resetTTL:       cfg.ResetTTL,
	}
	if f.secrets == nil {
		f.secrets = RandomSecrets{}
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.resetTTL <= 0 {
		f.resetTTL = DefaultResetTTL
	}
	return f
}

// RequestReset issues a reset token for the account registered to email,
// invalidating any token issued before it.
func (f *PasswordRecoveryFlow) RequestReset(ctx context.Context, email string) (*ResetIssue, error) {
	email, err := normalizeAndValidateEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := f.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		zap.S().Errorw("failed to look up account", "email", email, "error", err)
		return nil, wrapStore("look up account", err)
	}

	token, err := f.secrets.ResetToken()
	if err != nil {
		return nil, Dependency("generate reset token", err)
	}
	expiresAt := f.now().Add(f.resetTTL)

	if err := f.resets.IssueReset(ctx, user.ID.Hex(), HashToken(token), expiresAt); err != nil {
		zap.S().Errorw("failed to store reset token", "userId", user.ID.Hex(), "error", err)
		return nil, wrapStore("store reset token", err)
	}

	issue := &ResetIssue{Email: email, ExpiresAt: expiresAt}
	if f.directDelivery {
		issue.Token = token
		zap.S().Infow("reset token issued for direct delivery", "userId", user.ID.Hex(), "expiresAt", expiresAt)
		return issue, nil
	}

	if err := f.notifier.SendResetToken(ctx, email, token, f.resetTTL); err != nil {
		zap.S().Errorw("failed to send reset token", "email", email, "error", err)
		return nil, Delivery(err)
	}
	zap.S().Infow("reset token issued", "userId", user.ID.Hex(), "expiresAt", expiresAt)
	return issue, nil
}

// Redeem sets newPassword on the account holding token. The token is cleared
// in the same update, so it can be used once.
func (f *PasswordRecoveryFlow) Redeem(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return Invalid("token", "token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := f.resets.RedeemReset(ctx, HashToken(token), newPassword, f.now())
	if err != nil {
		if KindOf(err) == KindDependency {
			zap.S().Errorw("failed to redeem reset token", "error", err)
		}
		return wrapStore("redeem reset token", err)
	}
	zap.S().Infow("password reset", "userId", user.ID.Hex())
	return nil
}
