// Package dedup suppresses duplicate trigger deliveries within a provider-specific window.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	KeyPrefix  = "webhook:dedup:"
	DefaultTTL = time.Hour
)

// ProviderTTLs is how long a key stays claimed, by provider.
var ProviderTTLs = map[string]time.Duration{
	"github":  30 * time.Minute,
	"slack":   5 * time.Minute,
	"generic": 15 * time.Minute,
}

// TTL returns the window of provider, falling back to DefaultTTL.
func TTL(provider string) time.Duration {
	if ttl, ok := ProviderTTLs[strings.ToLower(provider)]; ok {
		return ttl
	}

	return DefaultTTL
}

// Guard claims dedup keys. Claim reports false when the key was already claimed inside its window.
// Release drops a claim whose activation never got recorded, so a redelivery is accepted.
type Guard interface {
	Claim(ctx context.Context, provider, key string) (bool, error)
	Release(ctx context.Context, provider, key string) error
}

// RedisGuard claims keys with SET NX and an expiry, so the window is shared by every process.
type RedisGuard struct {
	client redis.UniversalClient
}

func NewRedisGuard(client redis.UniversalClient) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Claim(ctx context.Context, provider, key string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, redisKey(provider, key), time.Now().UTC().Format(time.RFC3339), TTL(provider)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dedup key: %w", err)
	}

	return claimed, nil
}

func (g *RedisGuard) Release(ctx context.Context, provider, key string) error {
	if err := g.client.Del(ctx, redisKey(provider, key)).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}

	return nil
}

func redisKey(provider, key string) string {
	return KeyPrefix + strings.ToLower(provider) + ":" + key
}

// MemoryGuard is a single-process Guard.
type MemoryGuard struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

func NewMemoryGuard(now func() time.Time) *MemoryGuard {
	if now == nil {
		now = time.Now
	}

	return &MemoryGuard{now: now, expires: make(map[string]time.Time)}
}

func (g *MemoryGuard) Claim(_ context.Context, provider, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	k := redisKey(provider, key)

	if expiresAt, ok := g.expires[k]; ok && now.Before(expiresAt) {
		return false, nil
	}

	g.expires[k] = now.Add(TTL(provider))

	for other, expiresAt := range g.expires {
		if !now.Before(expiresAt) {
			delete(g.expires, other)
		}
	}

	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, provider, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.expires, redisKey(provider, key))

	return nil
}
