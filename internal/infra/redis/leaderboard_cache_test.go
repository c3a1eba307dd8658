package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"reading-fluency-service/internal/domain"
)

type countingAggregator struct {
	calls int
}

func (a *countingAggregator) Leaderboard(_ context.Context, competitionID string, group domain.LeaderboardGroup) (domain.Leaderboard, error) {
	a.calls++
	return domain.Leaderboard{
		CompetitionID: competitionID,
		Group:         group,
		Entries: []domain.LeaderboardEntry{
			{StudentID: "u1", Rank: 1, TotalScore: 91.5},
		},
	}, nil
}

func TestLeaderboardCacheServesSnapshot(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	agg := &countingAggregator{}
	cache := NewLeaderboardCache(newClient(mr), agg, time.Minute)

	lb, err := cache.Leaderboard(context.Background(), "week-1", domain.GroupChampion)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].StudentID != "u1" {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
	if agg.calls != 1 {
		t.Fatalf("expected one recompute, got %d", agg.calls)
	}
	if !mr.Exists("leaderboard:week-1:champion") {
		t.Fatalf("expected snapshot key to be set")
	}

	if _, err := cache.Leaderboard(context.Background(), "week-1", domain.GroupChampion); err != nil {
		t.Fatalf("leaderboard 2: %v", err)
	}
	if agg.calls != 1 {
		t.Fatalf("expected snapshot hit, recomputes=%d", agg.calls)
	}
}

func TestLeaderboardCacheInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	agg := &countingAggregator{}
	cache := NewLeaderboardCache(newClient(mr), agg, time.Minute)

	if _, err := cache.Leaderboard(context.Background(), "week-1", domain.GroupFastReader); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	cache.Invalidate(context.Background(), "week-1")
	if mr.Exists("leaderboard:week-1:fast_reader") {
		t.Fatalf("expected snapshot removed")
	}

	if _, err := cache.Leaderboard(context.Background(), "week-1", domain.GroupFastReader); err != nil {
		t.Fatalf("leaderboard after invalidate: %v", err)
	}
	if agg.calls != 2 {
		t.Fatalf("expected recompute after invalidate, got %d", agg.calls)
	}
}
