package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/linesmerrill/laundry-api/models"
)

// Accounts covers login and the signed-in user's own profile
type Accounts struct {
	Users  UserDirectory
	Bearer BearerIssuer
}

// Login checks a password and issues a bearer token. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (a Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, Invalid("email", "email and password are required")
	}

	user, err := a.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		zap.S().Errorw("failed to look up account", "email", email, "error", err)
		return nil, wrapStore("look up account", err)
	}
	if !a.Users.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Details.Status != "" && user.Details.Status != models.StatusActive {
		return nil, ErrInvalidCredentials
	}

	return issueSession(a.Bearer, user)
}

// Profile returns the public view of the account with id
func (a Accounts) Profile(ctx context.Context, id string) (*models.PublicUser, error) {
	user, err := a.Users.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStore("look up account", err)
	}
	public := user.Public()
	return &public, nil
}

// ChangePassword replaces the password after checking the current one. Any
// outstanding reset token is cleared with it.
func (a Accounts) ChangePassword(ctx context.Context, id, current, next string) error {
	if current == "" {
		return Invalid("currentPassword", "current password is required")
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	user, err := a.Users.FindByID(ctx, id)
	if err != nil {
		return wrapStore("look up account", err)
	}
	if !a.Users.VerifyPassword(user, current) {
		return ErrInvalidCredentials
	}
	if err := a.Users.UpdateCredential(ctx, id, next); err != nil {
		zap.S().Errorw("failed to update password", "userId", id, "error", err)
		return wrapStore("update password", err)
	}
	zap.S().Infow("password changed", "userId", id)
	return nil
}
