package redislimiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter is a Redis-backed sliding window limiter using ZSETs, shared across
// every API replica.
type Limiter struct {
	rdb     *redis.Client
	limits  map[string]Limit
	prefix  string
	timeout time.Duration
}

func New(rdb *redis.Client, limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{rdb: rdb, limits: limits, prefix: "prokit:rl:", timeout: 500 * time.Millisecond}
}

func (l *Limiter) get(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// AllowNamed matches ginutil.RateLimiter.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("bucket and key required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	lim := l.get(bucket)
	now := time.Now().UnixNano()
	start := now - lim.Window.Nanoseconds()
	k := l.prefix + bucket + ":" + key
	member := strconv.FormatInt(now, 10)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(start, 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: member})
	count := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", bucket, err)
	}
	if count.Val() > int64(lim.Limit) {
		l.rdb.ZRem(ctx, k, member)
		return false, nil
	}
	return true, nil
}
