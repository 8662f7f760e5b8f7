// Package testhelpers holds in-memory stand-ins for the account directory and
// the mail dispatcher, shared by the flow and handler tests.
package testhelpers

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

// Users is an identity.UserDirectory and identity.CredentialResetStore with a
// real uniqueness check on email
type Users struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]string

	// FailAll makes FindByEmail and Create fail with this error
	FailAll error
}

// NewUsers returns an empty directory
func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (d *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll != nil {
		return nil, d.FailAll
	}
	id, ok := d.byEmail[email]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	u := *d.byID[id]
	return &u, nil
}

func (d *Users) FindByID(_ context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *Users) Create(_ context.Context, details models.UserDetails, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll != nil {
		return nil, d.FailAll
	}
	if _, ok := d.byEmail[details.Email]; ok {
		return nil, identity.ErrDuplicateEmail
	}
	details.Password = string(hash)
	u := &models.User{ID: primitive.NewObjectID(), Details: details}
	d.byID[u.ID.Hex()] = u
	d.byEmail[details.Email] = u.ID.Hex()
	cp := *u
	return &cp, nil
}

func (d *Users) UpdateCredential(_ context.Context, id string, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return identity.ErrAccountNotFound
	}
	u.Details.Password = string(hash)
	u.Details.ResetPasswordToken = ""
	u.Details.ResetPasswordExpires = nil
	return nil
}

func (d *Users) VerifyPassword(user *models.User, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(candidate)) == nil
}

func (d *Users) IssueReset(_ context.Context, id string, tokenHash string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return identity.ErrAccountNotFound
	}
	u.Details.ResetPasswordToken = tokenHash
	u.Details.ResetPasswordExpires = &expiresAt
	return nil
}

func (d *Users) RedeemReset(_ context.Context, tokenHash string, newPassword string, now time.Time) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byID {
		if u.Details.ResetPasswordToken != tokenHash || u.Details.ResetPasswordExpires == nil {
			continue
		}
		if !now.Before(*u.Details.ResetPasswordExpires) {
			continue
		}
		u.Details.Password = string(hash)
		u.Details.ResetPasswordToken = ""
		u.Details.ResetPasswordExpires = nil
		cp := *u
		return &cp, nil
	}
	return nil, identity.ErrInvalidOrExpiredToken
}

// Count reports how many accounts exist
func (d *Users) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID)
}

// Sent is one secret handed to the Notifier
type Sent struct {
	Email  string
	Secret string
}

// Notifier remembers everything it was asked to send
type Notifier struct {
	mu     sync.Mutex
	codes  []Sent
	resets []Sent

	// Err makes every send fail with this error
	Err error
}

func (n *Notifier) SendVerificationCode(_ context.Context, email, code string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.codes = append(n.codes, Sent{Email: email, Secret: code})
	return nil
}

func (n *Notifier) SendResetToken(_ context.Context, email, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.resets = append(n.resets, Sent{Email: email, Secret: token})
	return nil
}

// Codes returns the verification codes sent so far
func (n *Notifier) Codes() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.codes...)
}

// Resets returns the reset tokens sent so far
func (n *Notifier) Resets() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.resets...)
}

// LastCode returns the most recent verification code, or ""
func (n *Notifier) LastCode() string {
	codes := n.Codes()
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1].Secret
}

// LastReset returns the most recent reset token, or ""
func (n *Notifier) LastReset() string {
	resets := n.Resets()
	if len(resets) == 0 {
		return ""
	}
	return resets[len(resets)-1].Secret
}
