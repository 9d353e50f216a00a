package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a distributed sliding-window counter shared across
// processes, for deployments running more than one Orchestrator instance
// against the same provider quota. It implements the same allow(n)
// contract as the in-process windower but is driven explicitly rather
// than selected via Strategy, since it needs a shared client and key.
type RedisWindow struct {
	client *redis.Client
	key    string
	limit  int
}

// NewRedisWindow builds a distributed window counting against key,
// capped at limit hits per rolling minute.
func NewRedisWindow(client *redis.Client, key string, limit int) *RedisWindow {
	return &RedisWindow{client: client, key: key, limit: limit}
}

// Allow records n more hits against the shared counter, evicting entries
// older than one minute from the backing sorted set first. It reports
// whether the hit fits under limit and, if not, how long until the
// oldest counted hit ages out.
func (w *RedisWindow) Allow(ctx context.Context, n int) (time.Duration, bool, error) {
	if w.limit <= 0 {
		return 0, true, nil
	}
	now := time.Now()
	cutoff := now.Add(-time.Minute)

	if err := w.client.ZRemRangeByScore(ctx, w.key, "-inf", strconv.FormatInt(cutoff.UnixMilli(), 10)).Err(); err != nil {
		return 0, false, err
	}
	count, err := w.client.ZCard(ctx, w.key).Result()
	if err != nil {
		return 0, false, err
	}
	if int(count)+n > w.limit {
		oldest, err := w.client.ZRangeWithScores(ctx, w.key, 0, 0).Result()
		if err != nil {
			return 0, false, err
		}
		if len(oldest) == 0 {
			return time.Minute, false, nil
		}
		oldestAt := time.UnixMilli(int64(oldest[0].Score))
		return oldestAt.Add(time.Minute).Sub(now), false, nil
	}

	pipe := w.client.Pipeline()
	for i := 0; i < n; i++ {
		member := fmt.Sprintf("%d-%d-%d", now.UnixNano(), i, now.UnixMilli())
		pipe.ZAdd(ctx, w.key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	}
	pipe.Expire(ctx, w.key, 2*time.Minute)
	_, err = pipe.Exec(ctx)
	return 0, true, err
}
