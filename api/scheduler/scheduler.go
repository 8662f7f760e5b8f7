package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule sweeps expired pending verifications every ten minutes
const DefaultSchedule = "@every 10m"

const sweepTimeout = 2 * time.Minute

// Sweeper removes every entry that has expired by now and reports how many went
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the expiry reaper against the pending verification store.
// Reads already hide expired entries, so the reaper only reclaims space.
type Scheduler struct {
	cron       *cron.Cron
	store      Sweeper
	schedule   string
	now        func() time.Time
	instanceID string

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// NewScheduler creates a new scheduler instance. An empty schedule means
// DefaultSchedule.
func NewScheduler(store Sweeper, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	// Heroku sets this to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		store:      store,
		schedule:   schedule,
		now:        time.Now,
		instanceID: instanceID,
	}
}

// Start registers the sweep job and begins the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}

	id, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("register expiry sweep %q: %w", s.schedule, err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true
	zap.S().Infow("expiry reaper started", "schedule", s.schedule, "instance", s.instanceID)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running sweep to finish.
// The sweep job is unregistered so a later Start adds it exactly once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron.Remove(s.entryID)
	s.running = false
	zap.S().Info("expiry reaper stopped")
}

// SweepOnce runs a single sweep outside the schedule
func (s *Scheduler) SweepOnce(ctx context.Context) (int, error) {
	removed, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		zap.S().Infow("expired pending verifications removed", "removed", removed, "instance", s.instanceID)
	}
	return removed, nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.SweepOnce(ctx); err != nil {
		zap.S().Errorw("failed to sweep expired pending verifications", "error", err, "instance", s.instanceID)
	}
}
