// Package cache is the boundary between the ingestion pipeline and
// request-serving code. Results reach consumers only through a key-value
// Store; the Distributor adds the short-TTL plus stale-backup contract.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get for absent or expired keys.
var ErrMiss = errors.New("cache: miss")

// Store is the key-value contract the pipeline depends on.
type Store interface {
	// Set writes value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value under key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Push prepends value to the list under key and trims it to maxLen.
	Push(ctx context.Context, key string, value []byte, maxLen int) error
	// Range returns the whole list under key, newest first.
	Range(ctx context.Context, key string) ([][]byte, error)
}

// Publisher fans payloads out to out-of-process subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
