// Package redis stores each visitor's entries in one Redis hash so every
// write lands in a single HSET.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"optin/internal/storage"
	"optin/pkg/platform/sentinel"
)

const visitorKeyPrefix = "optin:visitor:"

// Backend is a Redis-backed storage.Backend shared by all server instances.
type Backend struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithTTL expires a visitor's hash ttl after its last write.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.ttl = ttl
	}
}

func New(client *redis.Client, opts ...Option) *Backend {
	b := &Backend{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func visitorKey(visitorID string) string {
	return visitorKeyPrefix + visitorID
}

func (b *Backend) Get(ctx context.Context, visitorID, key string) (string, error) {
	value, err := b.client.HGet(ctx, visitorKey(visitorID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("visitor %s key %q: %w", visitorID, key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("hget %q: %w", key, err)
	}
	return value, nil
}

// SetMany writes all items with one HSET; with a TTL the HSET and EXPIRE run
// in one MULTI/EXEC.
func (b *Backend) SetMany(ctx context.Context, visitorID string, items []storage.Item) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]any, 0, len(items)*2)
	for _, item := range items {
		values = append(values, item.Key, item.Value)
	}
	key := visitorKey(visitorID)

	if b.ttl <= 0 {
		if err := b.client.HSet(ctx, key, values...).Err(); err != nil {
			return fmt.Errorf("hset: %w", err)
		}
		return nil
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, b.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset with ttl: %w", err)
	}
	return nil
}

// Health pings the server.
func (b *Backend) Health(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
