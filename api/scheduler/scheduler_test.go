package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/laundry-api/identity"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) SweepExpired(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestSchedulerSweepOnceRemovesExpired(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	store := identity.NewMemoryPendingStore(func() time.Time { return clock }, 0)
	ctx := context.Background()

	_, err := store.Put(ctx, "old@x.com", "111111", 10*time.Minute)
	require.NoError(t, err)
	_, err = store.Put(ctx, "new@x.com", "222222", 30*time.Minute)
	require.NoError(t, err)

	s := NewScheduler(store, "")
	s.now = func() time.Time { return base.Add(10 * time.Minute) }

	removed, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestSchedulerSweepOnceReportsStoreError(t *testing.T) {
	s := NewScheduler(&countingSweeper{err: errors.New("mongo down")}, "")

	_, err := s.SweepOnce(context.Background())
	assert.EqualError(t, err, "mongo down")
}

func TestSchedulerStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, "every now and then")
	assert.Error(t, s.Start())
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, "@every 1s")

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
	stopped := sweeper.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.calls.Load())
}

func TestSchedulerRestartRegistersSweepOnce(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, "@every 1h")

	require.NoError(t, s.Start())
	s.Stop()
	assert.Empty(t, s.cron.Entries())

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 1)
}
