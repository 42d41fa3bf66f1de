// Package ratelimit implements per-owner, per-action fixed-window limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"commandops/internal/config"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts one attempt of action by owner and decides if it may run.
type Limiter interface {
	Allow(ctx context.Context, action, ownerID string) (Decision, error)
}

func windowBounds(now time.Time, window time.Duration) (start, end time.Time) {
	start = now.Truncate(window)
	return start, start.Add(window)
}

func decide(count int64, limit int, now, end time.Time) Decision {
	d := Decision{Allowed: count <= int64(limit), Limit: limit}
	if d.Allowed {
		d.Remaining = limit - int(count)
	} else {
		d.RetryAfter = end.Sub(now)
	}
	return d
}

// RedisLimiter keeps counters in Redis so limits hold across processes.
type RedisLimiter struct {
	Client redis.UniversalClient
	Rules  config.RateLimit
	Now    func() time.Time
}

func NewRedis(client redis.UniversalClient, rules config.RateLimit) *RedisLimiter {
	return &RedisLimiter{Client: client, Rules: rules, Now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, action, ownerID string) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	start, end := windowBounds(now, l.Rules.Window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", action, ownerID, start.Unix())

	var incr *redis.IntCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.Rules.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", action, err)
	}
	return decide(incr.Val(), l.Rules.Limit(action), now, end), nil
}

type counter struct {
	start time.Time
	count int64
}

// MemoryLimiter is the single-process limiter used when Redis is not
// configured.
type MemoryLimiter struct {
	Rules config.RateLimit
	Now   func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func NewMemory(rules config.RateLimit) *MemoryLimiter {
	return &MemoryLimiter{Rules: rules, Now: time.Now, counters: map[string]*counter{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, action, ownerID string) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	start, end := windowBounds(now, l.Rules.Window)
	key := action + ":" + ownerID

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counters == nil {
		l.counters = map[string]*counter{}
	}
	c, ok := l.counters[key]
	if !ok || !c.start.Equal(start) {
		l.prune(start)
		c = &counter{start: start}
		l.counters[key] = c
	}
	c.count++
	return decide(c.count, l.Rules.Limit(action), now, end), nil
}

// prune drops counters from earlier windows.
func (l *MemoryLimiter) prune(current time.Time) {
	for k, c := range l.counters {
		if c.start.Before(current) {
			delete(l.counters, k)
		}
	}
}
