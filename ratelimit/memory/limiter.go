package memorylimiter

import (
	"errors"
	"sync"
	"time"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter is an in-memory sliding-window rate limiter for single-node
// deployments and tests.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets map[string][]time.Time
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New constructs a limiter with per-bucket limits. A "default" entry applies to
// buckets without their own limit; otherwise 100 per minute.
func New(limits map[string]Limit, opts ...Option) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	l := &Limiter{limits: limits, buckets: make(map[string][]time.Time), now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
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

// AllowNamed records a hit for key in bucket and reports whether it fits the
// bucket's window. Denied hits are not recorded.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("bucket and key required")
	}
	lim := l.get(bucket)
	now := l.now()
	cutoff := now.Add(-lim.Window)
	k := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.buckets[k]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	if len(ts) >= lim.Limit {
		l.buckets[k] = ts
		return false, nil
	}
	l.buckets[k] = append(ts, now)
	return true, nil
}
