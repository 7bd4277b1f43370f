// Package credentials resolves the OAuth or API token a reaction needs for a user's linked service.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/area/pkg/faults"
	redis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "area:service_tokens:"

// TokenProvider returns a token wrapping faults.ErrServiceNotConnected when the user never linked
// the service.
type TokenProvider interface {
	Token(ctx context.Context, userID, serviceKey string) (string, error)
}

func notConnected(serviceKey string) error {
	return faults.Auth("credentials.Token", "service not connected: "+serviceKey, faults.ErrServiceNotConnected)
}

// RedisProvider stores one hash per user, keyed by service.
type RedisProvider struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisProvider(client redis.UniversalClient, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisProvider{client: client, prefix: prefix}
}

func (p *RedisProvider) Token(ctx context.Context, userID, serviceKey string) (string, error) {
	token, err := p.client.HGet(ctx, p.prefix+userID, serviceKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", notConnected(serviceKey)
		}

		return "", faults.Transient("credentials.Token", "token lookup failed", err)
	}

	if token == "" {
		return "", notConnected(serviceKey)
	}

	return token, nil
}

func (p *RedisProvider) SetToken(ctx context.Context, userID, serviceKey, token string) error {
	if err := p.client.HSet(ctx, p.prefix+userID, serviceKey, token).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

func (p *RedisProvider) RevokeToken(ctx context.Context, userID, serviceKey string) error {
	if err := p.client.HDel(ctx, p.prefix+userID, serviceKey).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

// StaticProvider keeps tokens in memory.
type StaticProvider struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{tokens: make(map[string]string)}
}

func (p *StaticProvider) Set(userID, serviceKey, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tokens[userID+"/"+serviceKey] = token
}

func (p *StaticProvider) Token(_ context.Context, userID, serviceKey string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	token, ok := p.tokens[userID+"/"+serviceKey]
	if !ok || token == "" {
		return "", notConnected(serviceKey)
	}

	return token, nil
}
