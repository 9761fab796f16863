package idgen

import (
	"context"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/redis/go-redis/v9"
)

// Clock is the time source of a Snowflake generator.
type Clock interface {
	// Now returns Unix time in milliseconds.
	Now() int64
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

// RedisClock reads time from a Redis server so that several API replicas
// share one time source.
type RedisClock struct {
	client  redis.Cmdable
	timeout time.Duration
}

func NewRedisClock(client redis.Cmdable) *RedisClock {
	return &RedisClock{client: client, timeout: 500 * time.Millisecond}
}

// Now falls back to the local clock when Redis cannot be reached.
func (r *RedisClock) Now() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	t, err := r.client.Time(ctx).Result()
	if err != nil {
		logger.Warnw("redis clock unavailable, using local time", "error", err.Error())
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
