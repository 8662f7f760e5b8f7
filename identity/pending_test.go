package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/laundry-api/identity"
)

func TestMemoryPendingStore_PutOverwrites(t *testing.T) {
	clock := newFakeClock()
	s := identity.NewMemoryPendingStore(clock.Now, 0)
	ctx := context.Background()

	first, err := s.Put(ctx, "a@b.com", "111111", 10*time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := s.Put(ctx, "a@b.com", "222222", 10*time.Minute)
	require.NoError(t, err)

	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", got.Code)
	assert.Equal(t, 0, got.Attempts)
}

func TestMemoryPendingStore_GetHidesExpired(t *testing.T) {
	clock := newFakeClock()
	s := identity.NewMemoryPendingStore(clock.Now, 0)
	ctx := context.Background()

	_, err := s.Put(ctx, "a@b.com", "111111", time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Get(ctx, "a@b.com")
	assert.ErrorIs(t, err, identity.ErrNoPendingRequest)
	assert.Equal(t, 1, s.Len(), "Get must not need the reaper to hide an expired entry")
}

func TestMemoryPendingStore_RemoveIsIdempotent(t *testing.T) {
	s := identity.NewMemoryPendingStore(nil, 0)
	ctx := context.Background()

	assert.NoError(t, s.Remove(ctx, "a@b.com"))
	_, err := s.Put(ctx, "a@b.com", "111111", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, s.Remove(ctx, "a@b.com"))
	assert.NoError(t, s.Remove(ctx, "a@b.com"))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryPendingStore_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	s := identity.NewMemoryPendingStore(clock.Now, 0)
	ctx := context.Background()

	_, _ = s.Put(ctx, "old@b.com", "111111", time.Minute)
	_, _ = s.Put(ctx, "edge@b.com", "222222", 2*time.Minute)
	_, _ = s.Put(ctx, "new@b.com", "333333", 10*time.Minute)

	removed, err := s.SweepExpired(ctx, clock.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, "new@b.com")
	assert.NoError(t, err)
}

func TestMemoryPendingStore_Consume(t *testing.T) {
	clock := newFakeClock()
	s := identity.NewMemoryPendingStore(clock.Now, 2)
	ctx := context.Background()

	_, err := s.Consume(ctx, "a@b.com", "111111")
	assert.ErrorIs(t, err, identity.ErrNoPendingRequest)

	_, _ = s.Put(ctx, "a@b.com", "111111", time.Minute)
	_, err = s.Consume(ctx, "a@b.com", "999999")
	assert.ErrorIs(t, err, identity.ErrCodeMismatch)

	got, err := s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	entry, err := s.Consume(ctx, "a@b.com", "111111")
	require.NoError(t, err)
	assert.Equal(t, "111111", entry.Code)
	assert.Equal(t, 0, s.Len())

	_, _ = s.Put(ctx, "a@b.com", "111111", time.Minute)
	_, _ = s.Consume(ctx, "a@b.com", "000000")
	_, err = s.Consume(ctx, "a@b.com", "000000")
	assert.ErrorIs(t, err, identity.ErrTooManyAttempts)
	assert.Equal(t, 0, s.Len())

	_, _ = s.Put(ctx, "a@b.com", "111111", time.Minute)
	clock.Advance(time.Minute)
	_, err = s.Consume(ctx, "a@b.com", "111111")
	assert.ErrorIs(t, err, identity.ErrCodeExpired)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryPendingStore_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	s := identity.NewMemoryPendingStore(nil, 0)
	ctx := context.Background()
	_, _ = s.Put(ctx, "a@b.com", "111111", time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "a@b.com", "111111"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestRandomSecrets(t *testing.T) {
	var g identity.RandomSecrets
	for i := 0; i < 100; i++ {
		code, err := g.VerificationCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, code)
	}

	token, err := g.ResetToken()
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{64}$`, token)

	other, err := g.ResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, identity.HashToken("abc"), identity.HashToken("abc"))
	assert.NotEqual(t, identity.HashToken("abc"), identity.HashToken("ABC"))
	assert.Len(t, identity.HashToken("abc"), 64)
}
