package stats

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Recorder is the statistics sink: any counter store satisfies it.
type Recorder interface {
	Increment(ctx context.Context, platform, date, metric string) error
	Count(ctx context.Context, platform, date, metric string) (int64, error)
}

// RedisRecorder keeps per-platform, per-day counters in Redis.
type RedisRecorder struct {
	client *redis.Client
}

// NewRedisRecorder creates a recorder on an existing client.
func NewRedisRecorder(client *redis.Client) *RedisRecorder {
	return &RedisRecorder{client: client}
}

// Increment bumps the counter for a platform, date and metric.
func (r *RedisRecorder) Increment(ctx context.Context, platform, date, metric string) error {
	if err := r.client.Incr(ctx, counterKey(platform, date, metric)).Err(); err != nil {
		return errors.Wrap(err, "failed to increment counter")
	}
	return nil
}

// Count reads back a counter, returning zero when it was never incremented.
func (r *RedisRecorder) Count(ctx context.Context, platform, date, metric string) (int64, error) {
	count, err := r.client.Get(ctx, counterKey(platform, date, metric)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read counter")
	}
	return count, nil
}

func counterKey(platform, date, metric string) string {
	return fmt.Sprintf("stats:%s:%s:%s", platform, date, metric)
}
