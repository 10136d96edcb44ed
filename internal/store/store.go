// Package store provides the byte stores and codecs behind the query
// cache's persistence tier.
package store

import (
	"context"
	"errors"
	"time"
)

// Provider is a byte store with TTLs. Get returns exactly the bytes passed
// to Set. Implementations must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value. ttl <= 0 means no expiry where supported.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// ErrInvalidKey indicates an empty store key.
var ErrInvalidKey = errors.New("store: invalid key")
