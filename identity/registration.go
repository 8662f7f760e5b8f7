package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/laundry-api/models"
)

// RegistrationConfig wires a RegistrationFlow
type RegistrationConfig struct {
	Pending  PendingVerificationStore
	Users    UserDirectory
	Notifier NotificationDispatcher
	Bearer   BearerIssuer
	Secrets  SecretGenerator
	Clock    Clock

	// VerificationRequired false lets Register create verified accounts without a code
	VerificationRequired bool
	// DirectDelivery returns issued codes to the caller instead of mailing them
	DirectDelivery bool
	CodeTTL        time.Duration
}

// RegistrationFlow takes an email from "no account" through a pending
// verification to a created, verified account.
type RegistrationFlow struct {
	pending  PendingVerificationStore
	users    UserDirectory
	notifier NotificationDispatcher
	bearer   BearerIssuer
	secrets  SecretGenerator
	now      Clock

	verificationRequired bool
	directDelivery       bool
	codeTTL              time.Duration
}

// CodeIssue describes a freshly issued verification code. Code is only set
// when the flow delivers codes directly.
type CodeIssue struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"code,omitempty"`
}

// NewRegistrationFlow fills in defaults for anything left unset in cfg
func NewRegistrationFlow(cfg RegistrationConfig) *RegistrationFlow {
	f := &RegistrationFlow{
		pending:              cfg.Pending,
		users:                cfg.Users,
		notifier:             cfg.Notifier,
		bearer:               cfg.Bearer,
		secrets:              cfg.Secrets,
		now:                  cfg.Clock,
		verificationRequired: cfg.VerificationRequired,
		directDelivery:       cfg.DirectDelivery,
		codeTTL:              cfg.CodeTTL,
	}
	if f.secrets == nil {
		f.secrets = RandomSecrets{}
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.codeTTL <= 0 {
		f.codeTTL = DefaultCodeTTL
	}
	return f
}

// VerificationRequired reports whether accounts can only be created through a code
func (f *RegistrationFlow) VerificationRequired() bool {
	return f.verificationRequired
}

// CheckAvailability reports whether email can still be registered
func (f *RegistrationFlow) CheckAvailability(ctx context.Context, email string) (bool, error) {
	email, err := normalizeAndValidateEmail(email)
	if err != nil {
		return false, err
	}
	err = f.ensureNoAccount(ctx, email)
	if errors.Is(err, ErrAlreadyRegistered) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RequestCode issues a new verification code for email, superseding any
// earlier one. If delivery fails the code is still stored and redeemable.
func (f *RegistrationFlow) RequestCode(ctx context.Context, email string) (*CodeIssue, error) {
	email, err := normalizeAndValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := f.ensureNoAccount(ctx, email); err != nil {
		return nil, err
	}

	code, err := f.secrets.VerificationCode()
	if err != nil {
		return nil, Dependency("generate verification code", err)
	}

	entry, err := f.pending.Put(ctx, email, code, f.codeTTL)
	if err != nil {
		zap.S().Errorw("failed to store pending verification", "email", email, "error", err)
		return nil, wrapStore("store pending verification", err)
	}

	issue := &CodeIssue{Email: email, ExpiresAt: entry.ExpiresAt}
	if f.directDelivery {
		issue.Code = code
		zap.S().Infow("verification code issued for direct delivery", "email", email, "expiresAt", entry.ExpiresAt)
		return issue, nil
	}

	if err := f.notifier.SendVerificationCode(ctx, email, code, f.codeTTL); err != nil {
		zap.S().Errorw("failed to send verification code", "email", email, "error", err)
		return nil, Delivery(err)
	}
	zap.S().Infow("verification code issued", "email", email, "expiresAt", entry.ExpiresAt)
	return issue, nil
}

// ConfirmAndCreate redeems code for email and creates the account. Only one
// of several concurrent confirmations for the same code can succeed; the rest
// see ErrNoPendingRequest or ErrAlreadyRegistered.
func (f *RegistrationFlow) ConfirmAndCreate(ctx context.Context, email, code string, fields AccountFields) (*Session, error) {
	email, err := normalizeAndValidateEmail(email)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if err := validateAccountFields(fields); err != nil {
		return nil, err
	}

	// the code is spent before the account check, so a replay after a
	// successful confirmation reports ErrNoPendingRequest
	if _, err := f.pending.Consume(ctx, email, code); err != nil {
		if KindOf(err) == KindDependency {
			zap.S().Errorw("failed to consume pending verification", "email", email, "error", err)
		}
		return nil, wrapStore("consume pending verification", err)
	}

	if err := f.ensureNoAccount(ctx, email); err != nil {
		return nil, err
	}

	return f.createAccount(ctx, email, fields)
}

// Register creates a verified account without a code. It is only available
// when verification is not required.
func (f *RegistrationFlow) Register(ctx context.Context, fields AccountFields) (*Session, error) {
	if f.verificationRequired {
		return nil, ErrVerificationRequired
	}
	email, err := normalizeAndValidateEmail(fields.Email)
	if err != nil {
		return nil, err
	}
	if err := validateAccountFields(fields); err != nil {
		return nil, err
	}
	if err := f.ensureNoAccount(ctx, email); err != nil {
		return nil, err
	}

	session, err := f.createAccount(ctx, email, fields)
	if err != nil {
		return nil, err
	}
	if err := f.pending.Remove(ctx, email); err != nil {
		zap.S().Warnw("failed to remove pending verification after direct registration", "email", email, "error", err)
	}
	return session, nil
}

func (f *RegistrationFlow) ensureNoAccount(ctx context.Context, email string) error {
	_, err := f.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrAlreadyRegistered
	case errors.Is(err, ErrAccountNotFound):
		return nil
	default:
		zap.S().Errorw("failed to look up account", "email", email, "error", err)
		return wrapStore("look up account", err)
	}
}

// createAccount relies on the directory's unique email constraint to settle
// races between concurrent registrations.
func (f *RegistrationFlow) createAccount(ctx context.Context, email string, fields AccountFields) (*Session, error) {
	now := f.now()
	details := models.UserDetails{
		Email:         email,
		Name:          strings.TrimSpace(fields.Name),
		Phone:         strings.TrimSpace(fields.Phone),
		Address:       strings.TrimSpace(fields.Address),
		EmailVerified: true,
		Status:        models.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	user, err := f.users.Create(ctx, details, fields.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrAlreadyRegistered
		}
		zap.S().Errorw("failed to create account", "email", email, "error", err)
		return nil, wrapStore("create account", err)
	}
	zap.S().Infow("account created", "email", email, "userId", user.ID.Hex())

	return issueSession(f.bearer, user)
}

func issueSession(bearer BearerIssuer, user *models.User) (*Session, error) {
	token, err := bearer.Issue(user)
	if err != nil {
		zap.S().Errorw("failed to issue bearer token", "userId", user.ID.Hex(), "error", err)
		return nil, Dependency("issue bearer token", err)
	}
	return &Session{Token: token, User: user.Public()}, nil
}
