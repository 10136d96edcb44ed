package query

import (
	"context"
	"time"
)

// Snapshot is a persisted cache value.
type Snapshot struct {
	Data      any
	UpdatedAt time.Time
	// Invalidated is set when a prefix covering the key was invalidated
	// after UpdatedAt.
	Invalidated bool
}

// Persister is an optional second tier behind the in-memory entries. It
// lets last-known values survive GC and process restarts. Failures are
// logged by the client and never fail a fetch.
type Persister interface {
	Load(ctx context.Context, key Key) (Snapshot, bool, error)
	Save(ctx context.Context, key Key, data any, updatedAt time.Time) error
	Invalidate(ctx context.Context, prefix Key) error
}
