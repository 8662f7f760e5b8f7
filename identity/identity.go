// Package identity holds the registration, verification and password
// recovery flows. It owns the short-lived secrets (verification codes and
// reset tokens) and talks to account storage, mail and token issuance only
// through the interfaces declared here.
package identity

import (
	"context"
	"time"

	"github.com/linesmerrill/laundry-api/models"
)

// Default lifetimes
const (
	DefaultCodeTTL     = 10 * time.Minute
	DefaultResetTTL    = 10 * time.Minute
	DefaultMaxAttempts = 5
)

// UserDirectory is the durable account store. Create must enforce email
// uniqueness on its own and report a collision as ErrDuplicateEmail.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, details models.UserDetails, password string) (*models.User, error)
	// UpdateCredential hashes and stores a new password and clears any reset token
	UpdateCredential(ctx context.Context, id string, newPassword string) error
	VerifyPassword(user *models.User, candidate string) bool
}

// CredentialResetStore keeps at most one outstanding reset token per account
type CredentialResetStore interface {
	// IssueReset overwrites any previous token on the account
	IssueReset(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error
	// RedeemReset sets the new password and clears the token in one step, but
	// only if an account holds tokenHash with an expiry after now. It returns
	// ErrInvalidOrExpiredToken otherwise.
	RedeemReset(ctx context.Context, tokenHash string, newPassword string, now time.Time) (*models.User, error)
}

// NotificationDispatcher delivers secrets to the user
type NotificationDispatcher interface {
	SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error
	SendResetToken(ctx context.Context, email, token string, ttl time.Duration) error
}

// BearerIssuer mints the opaque credential returned after login or registration
type BearerIssuer interface {
	Issue(user *models.User) (string, error)
}

// AccountFields are the caller-supplied fields of a new account
type AccountFields struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// Session is returned when an account is created or logs in
type Session struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time
