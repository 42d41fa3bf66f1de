// Package cache holds short-lived analytics snapshots per owner.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"commandops/internal/domain"
)

// Snapshots stores computed analytics. A miss is reported with ok=false and
// a nil error. A non-positive TTL disables storage.
type Snapshots interface {
	Get(ctx context.Context, ownerID string) (a domain.Analytics, ok bool, err error)
	Put(ctx context.Context, ownerID string, a domain.Analytics) error
	Invalidate(ctx context.Context, ownerID string) error
}

type RedisSnapshots struct {
	Client redis.UniversalClient
	TTL    time.Duration
	Prefix string
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{Client: client, TTL: ttl, Prefix: "analytics"}
}

func (c *RedisSnapshots) key(ownerID string) string {
	return c.Prefix + ":" + ownerID
}

func (c *RedisSnapshots) Get(ctx context.Context, ownerID string) (domain.Analytics, bool, error) {
	data, err := c.Client.Get(ctx, c.key(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Analytics{}, false, nil
	}
	if err != nil {
		return domain.Analytics{}, false, err
	}
	var a domain.Analytics
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Analytics{}, false, err
	}
	return a, true, nil
}

func (c *RedisSnapshots) Put(ctx context.Context, ownerID string, a domain.Analytics) error {
	if c.TTL <= 0 {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.key(ownerID), data, c.TTL).Err()
}

func (c *RedisSnapshots) Invalidate(ctx context.Context, ownerID string) error {
	return c.Client.Del(ctx, c.key(ownerID)).Err()
}

type entry struct {
	value   domain.Analytics
	expires time.Time
}

// MemorySnapshots is the in-process variant used without Redis.
type MemorySnapshots struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewMemory(ttl time.Duration) *MemorySnapshots {
	return &MemorySnapshots{TTL: ttl, Now: time.Now, entries: map[string]entry{}}
}

func (c *MemorySnapshots) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *MemorySnapshots) Get(_ context.Context, ownerID string) (domain.Analytics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ownerID]
	if !ok {
		return domain.Analytics{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, ownerID)
		return domain.Analytics{}, false, nil
	}
	return e.value, true, nil
}

func (c *MemorySnapshots) Put(_ context.Context, ownerID string, a domain.Analytics) error {
	if c.TTL <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]entry{}
	}
	c.entries[ownerID] = entry{value: a, expires: c.now().Add(c.TTL)}
	return nil
}

func (c *MemorySnapshots) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ownerID)
	return nil
}
