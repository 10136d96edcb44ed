package query

import (
	"context"
	"time"

	"github.com/smileynet/eventdeck/internal/logging"
)

// SendFunc delivers a mutation to the backend.
type SendFunc func(ctx context.Context) error

// Strategy selects how Update treats the cache while the request is out.
type Strategy int

const (
	// Pessimistic waits for the backend, then invalidates.
	Pessimistic Strategy = iota
	// Optimistic writes the proposed value first and rolls back on failure.
	Optimistic
)

func (s Strategy) String() string {
	switch s {
	case Pessimistic:
		return "pessimistic"
	case Optimistic:
		return "optimistic"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config value to a Strategy. The empty string is
// Pessimistic.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "", "pessimistic":
		return Pessimistic, true
	case "optimistic":
		return Optimistic, true
	default:
		return Pessimistic, false
	}
}

// UpdateOptions configure Update.
type UpdateOptions struct {
	Strategy Strategy
	// Invalidate lists the prefixes invalidated once the update settles.
	// Empty means the updated key itself.
	Invalidate []Key
}

// DeleteOptions configure Delete.
type DeleteOptions struct {
	// Invalidate lists the prefixes marked stale after a successful delete.
	// Empty means the deleted key itself.
	Invalidate []Key
	// Refetch defaults to RefetchNone: deleted data is not worth reloading
	// until someone looks at it again.
	Refetch *RefetchMode
}

// Update sends an update for key and reconciles the cache with the result.
// The cache is consistent with the backend's acknowledged state by the time
// Update returns.
func (c *Client) Update(ctx context.Context, key Key, value any, send SendFunc, opts UpdateOptions) error {
	prefixes := opts.Invalidate
	if len(prefixes) == 0 {
		prefixes = []Key{key}
	}
	if opts.Strategy == Optimistic {
		return c.updateOptimistic(ctx, key, value, send, prefixes)
	}

	if err := send(ctx); err != nil {
		c.log.Warn("query: update failed", logging.Fields{"key": key.Display(), "err": err})
		return &MutationError{Op: "update", Key: key.Clone(), Err: err}
	}
	c.invalidateAll(ctx, prefixes, RefetchActive)
	c.log.Info("query: update settled", logging.Fields{"key": key.Display()})
	return nil
}

type snapshot struct {
	data      any
	hasData   bool
	status    Status
	err       error
	updatedAt time.Time
}

func (c *Client) updateOptimistic(ctx context.Context, key Key, value any, send SendFunc, prefixes []Key) error {
	// A fetch that started before the write must not overwrite it.
	c.Cancel(key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	e := c.entryLocked(key)
	prev := snapshot{data: e.data, hasData: e.hasData, status: e.status, err: e.err, updatedAt: e.updatedAt}
	c.setLocked(e, value)
	notify := c.changedLocked(e)
	c.mu.Unlock()
	notify()

	err := send(ctx)
	if err != nil {
		c.mu.Lock()
		if cur, ok := c.entries[key.String()]; ok && cur == e {
			e.gen++
			c.detachLocked(e, false)
			e.data, e.hasData = prev.data, prev.hasData
			e.status, e.err, e.updatedAt = prev.status, prev.err, prev.updatedAt
			if !e.hasData && e.status == StatusSuccess {
				e.status = StatusIdle
			}
			notify = c.changedLocked(e)
		} else {
			notify = func() {}
		}
		c.mu.Unlock()
		notify()
		c.log.Warn("query: optimistic update rolled back", logging.Fields{"key": key.Display(), "err": err})
	}

	c.invalidateAll(ctx, prefixes, RefetchActive)
	if err != nil {
		return &MutationError{Op: "update", Key: key.Clone(), Err: err}
	}
	c.log.Info("query: update settled", logging.Fields{"key": key.Display(), "strategy": Optimistic.String()})
	return nil
}

// Delete sends a delete for key. On success any fetch of key still in
// flight is cancelled and the invalidation prefixes are marked stale. On
// failure the cache is left untouched.
func (c *Client) Delete(ctx context.Context, key Key, send SendFunc, opts DeleteOptions) error {
	if err := send(ctx); err != nil {
		c.log.Warn("query: delete failed", logging.Fields{"key": key.Display(), "err": err})
		return &MutationError{Op: "delete", Key: key.Clone(), Err: err}
	}
	c.Cancel(key)

	prefixes := opts.Invalidate
	if len(prefixes) == 0 {
		prefixes = []Key{key}
	}
	mode := RefetchNone
	if opts.Refetch != nil {
		mode = *opts.Refetch
	}
	c.invalidateAll(ctx, prefixes, mode)
	c.log.Info("query: delete settled", logging.Fields{"key": key.Display()})
	return nil
}

// Mutate runs an arbitrary mutation and invalidates prefixes once it
// succeeds. op names the mutation in errors.
func (c *Client) Mutate(ctx context.Context, op string, key Key, send SendFunc, prefixes []Key, mode RefetchMode) error {
	if err := send(ctx); err != nil {
		c.log.Warn("query: mutation failed", logging.Fields{"op": op, "key": key.Display(), "err": err})
		return &MutationError{Op: op, Key: key.Clone(), Err: err}
	}
	c.invalidateAll(ctx, prefixes, mode)
	c.log.Info("query: mutation settled", logging.Fields{"op": op, "key": key.Display()})
	return nil
}

// invalidateAll runs Invalidate for each prefix. A caller that has already
// given up still gets the cache marked stale; only the refetch is skipped.
func (c *Client) invalidateAll(ctx context.Context, prefixes []Key, mode RefetchMode) {
	if ctx.Err() != nil {
		mode = RefetchNone
	}
	for _, p := range prefixes {
		if err := c.Invalidate(ctx, p, mode); err != nil {
			c.log.Debug("query: invalidate skipped", logging.Fields{"prefix": p.Display(), "err": err})
		}
	}
}
