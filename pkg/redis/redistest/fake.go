// Package redistest provides an in-memory redis.Client for tests.
package redistest

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// Fake is an in-memory hash store. TTLs are recorded, never enforced.
type Fake struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	TTLs   map[string]time.Duration

	// Err, when set, is returned by every call
	Err error
}

// New creates an empty fake
func New() *Fake {
	return &Fake{
		hashes: make(map[string]map[string]string),
		TTLs:   make(map[string]time.Duration),
	}
}

func (f *Fake) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}

	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = fmt.Sprint(v)
	}
	return nil
}

func (f *Fake) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	h, ok := f.hashes[key]
	if !ok {
		return nil, fmt.Errorf("hash %s: %w", key, redis.ErrNotFound)
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// ReplaceHash swaps the hash in one step under the fake's lock
func (f *Fake) ReplaceHash(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}

	delete(f.TTLs, key)
	if len(fields) == 0 {
		delete(f.hashes, key)
		return nil
	}
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = fmt.Sprint(v)
	}
	f.hashes[key] = h
	if ttl > 0 {
		f.TTLs[key] = ttl
	}
	return nil
}

func (f *Fake) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, k := range keys {
		delete(f.hashes, k)
		delete(f.TTLs, k)
	}
	return nil
}

func (f *Fake) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var keys []string
	for k := range f.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *Fake) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.TTLs[key] = ttl
	return nil
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.Err
}

func (f *Fake) Close() error {
	return nil
}
