package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"reading-fluency-service/internal/app"
	"reading-fluency-service/internal/domain"
)

// LeaderboardCache serves leaderboard projections from Redis, recomputing
// them through the wrapped aggregator when the snapshot expires. Snapshots
// are stored as: SET leaderboard:{competitionID}:{group} {json}.
//
// The cache is disposable: the aggregator rebuilds every view from the
// authoritative session store, so a flushed Redis only costs a recompute.
type LeaderboardCache struct {
	client *redis.Client
	next   app.Aggregator
	ttl    time.Duration
	sf     singleflight.Group
}

func NewLeaderboardCache(client *redis.Client, next app.Aggregator, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, next: next, ttl: ttl}
}

func (c *LeaderboardCache) Leaderboard(ctx context.Context, competitionID string, group domain.LeaderboardGroup) (domain.Leaderboard, error) {
	key := c.key(competitionID, group)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var lb domain.Leaderboard
		if err := json.Unmarshal(raw, &lb); err == nil {
			return lb, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		lb, err := c.next.Leaderboard(ctx, competitionID, group)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		if data, err := json.Marshal(lb); err == nil {
			// best-effort snapshot
			_ = c.client.Set(ctx, key, data, c.ttl).Err()
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// Invalidate drops the cached snapshots for a competition so the next read
// recomputes from session data.
func (c *LeaderboardCache) Invalidate(ctx context.Context, competitionID string) {
	for _, group := range []domain.LeaderboardGroup{
		domain.GroupChampion, domain.GroupFastReader, domain.GroupAccurateReader, domain.GroupTestMaster,
	} {
		_ = c.client.Del(ctx, c.key(competitionID, group)).Err()
	}
}

func (c *LeaderboardCache) key(competitionID string, group domain.LeaderboardGroup) string {
	return "leaderboard:" + competitionID + ":" + string(group)
}
