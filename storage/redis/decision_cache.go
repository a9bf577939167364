package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
	"github.com/redis/go-redis/v9"
)

// DecisionCache stores resolved entitlement decisions in Redis.
type DecisionCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

// NewDecisionCache creates a Redis-backed decision cache. ttl is used when Put
// receives a non-positive duration.
func NewDecisionCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *DecisionCache {
	if keyPrefix == "" {
		keyPrefix = "prokit:decision:"
	}
	if ttl <= 0 {
		ttl = entitlements.DefaultCacheTTL
	}
	return &DecisionCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (c *DecisionCache) key(userID string) string { return c.keyNS + userID }

func (c *DecisionCache) Put(ctx context.Context, userID string, d entitlements.Decision, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(userID), b, ttl).Err()
}

func (c *DecisionCache) Get(ctx context.Context, userID string) (entitlements.Decision, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entitlements.Decision{}, false, nil
	}
	if err != nil {
		return entitlements.Decision{}, false, err
	}
	var d entitlements.Decision
	if err := json.Unmarshal(val, &d); err != nil {
		// A value we cannot read is a miss; the next Put overwrites it.
		return entitlements.Decision{}, false, nil
	}
	return d, true, nil
}

func (c *DecisionCache) Del(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, c.key(userID)).Err()
}
