package identity

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/linesmerrill/laundry-api/models"
)

// PendingVerificationStore holds verification codes for emails that do not
// have an account yet, keyed by normalized email.
//
// Implementations treat an entry whose ExpiresAt has been reached as absent on
// every read path, whether or not SweepExpired has run.
type PendingVerificationStore interface {
	// Put replaces any entry for email with a fresh code that expires after ttl
	Put(ctx context.Context, email, code string, ttl time.Duration) (models.PendingVerification, error)
	// Get returns ErrNoPendingRequest when there is no live entry
	Get(ctx context.Context, email string) (*models.PendingVerification, error)
	// Remove is idempotent
	Remove(ctx context.Context, email string) error
	// SweepExpired deletes every entry with ExpiresAt <= now and reports how many went
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// Consume atomically compares code against the entry for email and
	// deletes it on a match. It returns ErrNoPendingRequest, ErrCodeExpired
	// (entry evicted), ErrCodeMismatch (attempt recorded) or
	// ErrTooManyAttempts (entry evicted).
	Consume(ctx context.Context, email, code string) (*models.PendingVerification, error)
}

// CodesEqual compares two codes in constant time
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MemoryPendingStore is a process-local PendingVerificationStore. Entries are
// lost on restart, which is fine since codes can be requested again.
type MemoryPendingStore struct {
	mu          sync.Mutex
	entries     map[string]models.PendingVerification
	now         Clock
	maxAttempts int
}

// NewMemoryPendingStore creates an empty store. A nil clock means time.Now and
// maxAttempts <= 0 means DefaultMaxAttempts.
func NewMemoryPendingStore(clock Clock, maxAttempts int) *MemoryPendingStore {
	if clock == nil {
		clock = time.Now
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryPendingStore{
		entries:     make(map[string]models.PendingVerification),
		now:         clock,
		maxAttempts: maxAttempts,
	}
}

// Put implements PendingVerificationStore
func (s *MemoryPendingStore) Put(_ context.Context, email, code string, ttl time.Duration) (models.PendingVerification, error) {
	now := s.now()
	entry := models.PendingVerification{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.entries[email] = entry
	s.mu.Unlock()
	return entry, nil
}

// Get implements PendingVerificationStore
func (s *MemoryPendingStore) Get(_ context.Context, email string) (*models.PendingVerification, error) {
	s.mu.Lock()
	entry, ok := s.entries[email]
	s.mu.Unlock()

	if !ok || entry.Expired(s.now()) {
		return nil, ErrNoPendingRequest
	}
	return &entry, nil
}

// Remove implements PendingVerificationStore
func (s *MemoryPendingStore) Remove(_ context.Context, email string) error {
	s.mu.Lock()
	delete(s.entries, email)
	s.mu.Unlock()
	return nil
}

// SweepExpired implements PendingVerificationStore
func (s *MemoryPendingStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for email, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, email)
			removed++
		}
	}
	return removed, nil
}

// Consume implements PendingVerificationStore
func (s *MemoryPendingStore) Consume(_ context.Context, email, code string) (*models.PendingVerification, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[email]
	if !ok {
		return nil, ErrNoPendingRequest
	}
	if entry.Expired(now) {
		delete(s.entries, email)
		return nil, ErrCodeExpired
	}
	if !CodesEqual(entry.Code, code) {
		entry.Attempts++
		if entry.Attempts >= s.maxAttempts {
			delete(s.entries, email)
			return nil, ErrTooManyAttempts
		}
		s.entries[email] = entry
		return nil, ErrCodeMismatch
	}

	delete(s.entries, email)
	return &entry, nil
}

// Len reports how many entries are held, expired or not
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
