package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Claimer is a best-effort lock taken before the database claim, so replicas
// sharing a lock store do not race on the same reminder. The database claim
// stays authoritative.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryClaimer holds claims in process memory until their TTL passes.
type MemoryClaimer struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]time.Time
}

func NewMemoryClaimer(clock clockwork.Clock) *MemoryClaimer {
	return &MemoryClaimer{clock: clock, entries: make(map[string]time.Time)}
}

func (c *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, expires := range c.entries {
		if !now.Before(expires) {
			delete(c.entries, k)
		}
	}
	if _, held := c.entries[key]; held {
		return false, nil
	}
	c.entries[key] = now.Add(ttl)
	return true, nil
}

type redisSetter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisClaimer claims with SET NX so every replica sees the same claims.
type RedisClaimer struct {
	client redisSetter
}

func NewRedisClaimer(client redisSetter) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}

// NewRedisClient connects to the Redis instance at url and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
