// Package ratelimit provides per-key token buckets on top of x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Keyed hands out one token bucket per key (typically a user ID). Buckets
// start full, so a fresh key may spend its whole burst immediately.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewKeyed returns a limiter allowing n events per period for each key.
func NewKeyed(n int, per time.Duration) *Keyed {
	if n < 1 {
		n = 1
	}
	return &Keyed{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(per / time.Duration(n)),
		burst:    n,
	}
}

func (k *Keyed) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	return l
}

// Allow consumes one token for key and reports whether it was available.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).Allow()
}

// AllowAt is Allow with an explicit clock, for tests.
func (k *Keyed) AllowAt(key string, now time.Time) bool {
	return k.get(key).AllowN(now, 1)
}

// Wait blocks until a token for key is available or ctx is done.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	return k.get(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
