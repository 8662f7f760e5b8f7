package identity_test

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/linesmerrill/laundry-api/api/testhelpers"
	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type (
	memoryDirectory   = testhelpers.Users
	recordingNotifier = testhelpers.Notifier
)

func newMemoryDirectory() *memoryDirectory {
	return testhelpers.NewUsers()
}

// sequenceSecrets hands out a fixed sequence of codes and tokens
type sequenceSecrets struct {
	mu     sync.Mutex
	codes  []string
	tokens []string
}

func (s *sequenceSecrets) VerificationCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return "", errors.New("no codes left")
	}
	c := s.codes[0]
	s.codes = s.codes[1:]
	return c, nil
}

func (s *sequenceSecrets) ResetToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return "", errors.New("no tokens left")
	}
	t := s.tokens[0]
	s.tokens = s.tokens[1:]
	return t, nil
}

type stubBearer struct{}

func (stubBearer) Issue(user *models.User) (string, error) {
	return "bearer-" + user.ID.Hex(), nil
}

func fields(email string) identity.AccountFields {
	return identity.AccountFields{
		Email:    email,
		Password: "correct-horse",
		Name:     "Ada " + strings.Split(email, "@")[0],
		Phone:    "555-0100",
		Address:  "1 Spin Cycle Way",
	}
}
