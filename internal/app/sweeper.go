package app

import (
	"context"
	"log"
	"time"
)

// Sweeper moves sessions stuck past their deadline to ABANDONED so they are
// excluded from leaderboard aggregation instead of staying open forever.
type Sweeper struct {
	store    SessionStore
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store SessionStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps on the configured interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce abandons every non-terminal session whose deadline has passed.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	n, err := s.store.AbandonExpired(ctx, s.now())
	if err != nil {
		log.Printf("session sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("abandoned %d expired sessions", n)
	}
}
