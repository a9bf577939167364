package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
)

// DecisionCache is an in-memory entitlements.DecisionCache with per-entry TTL.
type DecisionCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	data   map[string]item
	now    func() time.Time
	closed chan struct{}
	once   sync.Once
}

type item struct {
	v   entitlements.Decision
	exp time.Time
}

// NewDecisionCache creates a cache whose entries default to ttl when Put is
// called with a non-positive duration. If ttl <= 0, 10 minutes is used.
// A background goroutine sweeps expired entries every minute until Close.
func NewDecisionCache(ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = entitlements.DefaultCacheTTL
	}
	c := &DecisionCache{ttl: ttl, data: make(map[string]item), now: time.Now, closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

func (c *DecisionCache) Put(ctx context.Context, userID string, d entitlements.Decision, ttl time.Duration) error {
	_ = ctx
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[userID] = item{v: d, exp: c.now().Add(ttl)}
	return nil
}

func (c *DecisionCache) Get(ctx context.Context, userID string) (entitlements.Decision, bool, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.data[userID]
	if !ok {
		return entitlements.Decision{}, false, nil
	}
	if !c.now().Before(it.exp) {
		delete(c.data, userID)
		return entitlements.Decision{}, false, nil
	}
	return it.v, true, nil
}

func (c *DecisionCache) Del(ctx context.Context, userID string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, userID)
	return nil
}

func (c *DecisionCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.closed:
			return
		}
	}
}

func (c *DecisionCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, v := range c.data {
		if !now.Before(v.exp) {
			delete(c.data, k)
		}
	}
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (c *DecisionCache) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
