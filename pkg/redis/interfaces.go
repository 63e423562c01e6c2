package redis

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or hash does not exist
var ErrNotFound = errors.New("redis: key not found")

// Client represents a Redis client interface for testing and abstraction
type Client interface {
	// HSet sets the given fields of a hash
	HSet(ctx context.Context, key string, fields map[string]interface{}) error

	// HGetAll gets all fields from a hash, ErrNotFound when the hash is missing
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// ReplaceHash atomically replaces a hash with fields and sets its TTL;
	// a zero ttl leaves the hash without expiry
	ReplaceHash(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error

	// Del removes keys
	Del(ctx context.Context, keys ...string) error

	// Keys returns all keys matching a pattern
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Expire sets a TTL on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks the connection to Redis
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}
