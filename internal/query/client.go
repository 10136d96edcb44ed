// Package query implements a process-wide keyed query cache: read-through
// loading with in-flight deduplication and a staleness window, generation
// guarded writes, invalidation, cancellation, subscriptions, and mutation
// executors that keep the cache consistent with the backend.
package query

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/smileynet/eventdeck/internal/logging"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultStaleTime = 10 * time.Second
	DefaultGCTime    = 5 * time.Minute
)

// FetchFunc loads the value for a key. It must honor ctx cancellation.
type FetchFunc func(ctx context.Context) (any, error)

// Options configure a Client.
type Options struct {
	StaleTime time.Duration // freshness window; 0 => DefaultStaleTime, <0 => always stale
	GCTime    time.Duration // unobserved entries older than this are collected; 0 => DefaultGCTime
	Logger    logging.Logger
	Persister Persister // optional second tier
	Now       func() time.Time
}

// Client is the cache. It is safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	entries  map[string]*entry
	sf       singleflight.Group
	nextID   uint64
	closed   bool
	sched    *cron.Cron
	stale    time.Duration
	gcTime   time.Duration
	log      logging.Logger
	persist  Persister
	now      func() time.Time
	inflight sync.WaitGroup
}

type entry struct {
	key         Key
	data        any
	hasData     bool
	status      Status
	err         error
	updatedAt   time.Time
	invalidated bool
	gen         uint64
	version     uint64
	flight      *flight
	fetchFn     FetchFunc
	staleTime   time.Duration
	lastAccess  time.Time
	hydrated    bool
	subs        map[uint64]func(State)
}

// flight is one network fetch shared by every caller that joined it.
type flight struct {
	id         string
	gen        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	waiters    int
	prevStatus Status
	settled    bool
	val        any
	err        error
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		entries: make(map[string]*entry),
		stale:   opts.StaleTime,
		gcTime:  opts.GCTime,
		log:     opts.Logger,
		persist: opts.Persister,
		now:     opts.Now,
	}
	if c.stale == 0 {
		c.stale = DefaultStaleTime
	}
	if c.gcTime <= 0 {
		c.gcTime = DefaultGCTime
	}
	if c.log == nil {
		c.log = logging.Nop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// FetchOption tunes a single Fetch or Observe call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	staleTime time.Duration
}

// WithStaleTime overrides the client's freshness window for one call.
func WithStaleTime(d time.Duration) FetchOption {
	return func(o *fetchOptions) {
		o.staleTime = d
	}
}

func (c *Client) fetchOptions(opts []FetchOption) fetchOptions {
	o := fetchOptions{staleTime: c.stale}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Fetch returns the value for key, loading it with fn unless a fresh value
// is cached. Concurrent callers for the same key share one request. When
// every caller has given up (ctx done), the request is cancelled and its
// result is never written to the cache.
func (c *Client) Fetch(ctx context.Context, key Key, fn FetchFunc, opts ...FetchOption) (any, error) {
	o := c.fetchOptions(opts)
	c.hydrate(ctx, key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	now := c.now()
	e.lastAccess = now
	e.fetchFn = fn
	e.staleTime = o.staleTime
	if e.freshLocked(now) {
		v := e.data
		c.mu.Unlock()
		c.log.Debug("query: cache hit", logging.Fields{"key": key.Display()})
		return v, nil
	}
	fl, notify := c.joinLocked(ctx, e)
	c.mu.Unlock()
	notify()

	return c.wait(ctx, e, fl, fn)
}

// Observe returns the current state of key and, when the entry is missing,
// stale or invalidated, refreshes it in the background for as long as ctx
// lives. Cached data is returned even when stale.
func (c *Client) Observe(ctx context.Context, key Key, fn FetchFunc, opts ...FetchOption) State {
	o := c.fetchOptions(opts)
	c.hydrate(ctx, key)

	c.mu.Lock()
	e := c.entryLocked(key)
	now := c.now()
	e.lastAccess = now
	e.fetchFn = fn
	e.staleTime = o.staleTime
	if c.closed || e.freshLocked(now) {
		st := e.snapshotLocked()
		c.mu.Unlock()
		return st
	}
	// Joining an existing flight keeps it alive for as long as this
	// observer's ctx does.
	fl, notify := c.joinLocked(ctx, e)
	st := e.snapshotLocked()
	// Added under the lock so Close, which sets closed under the same
	// lock, never waits on a counter that can still grow.
	c.inflight.Add(1)
	c.mu.Unlock()
	notify()

	go func() {
		defer c.inflight.Done()
		if _, err := c.wait(ctx, e, fl, fn); err != nil {
			c.log.Debug("query: background refresh failed", logging.Fields{"key": key.Display(), "err": err})
		}
	}()
	return st
}

// joinLocked attaches the caller to the entry's in-flight fetch, starting
// one if none is running. It returns a func that delivers notifications and
// must be called after c.mu is released.
func (c *Client) joinLocked(ctx context.Context, e *entry) (*flight, func()) {
	notify := func() {}
	fl := e.flight
	if fl == nil {
		c.nextID++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{
			id:         fmt.Sprintf("%s#%d", e.key.String(), c.nextID),
			gen:        e.gen,
			ctx:        fctx,
			cancel:     cancel,
			prevStatus: e.status,
		}
		e.flight = fl
		if !e.hasData {
			e.status = StatusLoading
		}
		notify = c.changedLocked(e)
		c.log.Debug("query: fetch started", logging.Fields{"key": e.key.Display(), "gen": fl.gen})
	}
	fl.waiters++
	return fl, notify
}

// wait runs or joins the flight through singleflight and waits for its
// result or for ctx to end.
func (c *Client) wait(ctx context.Context, e *entry, fl *flight, fn FetchFunc) (any, error) {
	ch := c.sf.DoChan(fl.id, func() (any, error) {
		return c.execute(e, fl, fn)
	})
	select {
	case r := <-ch:
		c.leave(e, fl, false)
		return r.Val, r.Err
	case <-ctx.Done():
		c.leave(e, fl, true)
		return nil, ctx.Err()
	}
}

// execute performs the network call once per flight. A caller that reaches
// singleflight after the flight settled gets the stored result.
func (c *Client) execute(e *entry, fl *flight, fn FetchFunc) (any, error) {
	c.mu.Lock()
	if fl.settled {
		v, err := fl.val, fl.err
		c.mu.Unlock()
		return v, err
	}
	c.mu.Unlock()

	v, err := fn(fl.ctx)
	if err != nil {
		err = &FetchError{Key: e.key.Clone(), Err: err}
	}

	c.mu.Lock()
	fl.settled = true
	fl.val, fl.err = v, err
	applied := false
	notify := func() {}
	if e.flight == fl && e.gen == fl.gen && !c.closed {
		e.flight = nil
		applied = true
		if err != nil {
			e.status = StatusError
			e.err = err
		} else {
			e.data = v
			e.hasData = true
			e.status = StatusSuccess
			e.err = nil
			e.updatedAt = c.now()
			e.invalidated = false
		}
		notify = c.changedLocked(e)
	}
	updatedAt := e.updatedAt
	c.mu.Unlock()
	notify()
	fl.cancel()

	switch {
	case !applied:
		c.log.Debug("query: fetch result discarded", logging.Fields{"key": e.key.Display(), "gen": fl.gen})
	case err != nil:
		c.log.Warn("query: fetch failed", logging.Fields{"key": e.key.Display(), "err": err})
	case c.persist != nil:
		if perr := c.persist.Save(context.WithoutCancel(fl.ctx), e.key, v, updatedAt); perr != nil {
			c.log.Warn("query: persist failed", logging.Fields{"key": e.key.Display(), "err": perr})
		}
	}
	return v, err
}

// leave detaches a waiter. The last waiter to give up cancels the request.
func (c *Client) leave(e *entry, fl *flight, cancelled bool) {
	c.mu.Lock()
	fl.waiters--
	notify := func() {}
	switch {
	case !cancelled || fl.waiters > 0:
	case e.flight == fl:
		c.detachLocked(e, true)
		notify = c.changedLocked(e)
		c.log.Debug("query: fetch cancelled", logging.Fields{"key": e.key.Display()})
	default:
		// Superseded by an invalidation: nobody else can join it.
		fl.cancel()
		c.log.Debug("query: superseded fetch cancelled", logging.Fields{"key": e.key.Display()})
	}
	c.mu.Unlock()
	notify()
}

// detachLocked disconnects the in-flight fetch from e so its result will
// not be applied. Cancelling the request also bumps the generation.
func (c *Client) detachLocked(e *entry, cancel bool) {
	fl := e.flight
	if fl == nil {
		return
	}
	e.flight = nil
	if e.status == StatusLoading {
		e.status = fl.prevStatus
		if e.status == StatusLoading {
			e.status = StatusIdle
		}
	}
	if cancel {
		e.gen++
		fl.cancel()
	}
}

// hydrate seeds an empty entry from the persister, at most once per entry.
func (c *Client) hydrate(ctx context.Context, key Key) {
	if c.persist == nil {
		return
	}
	c.mu.Lock()
	e := c.entryLocked(key)
	if c.closed || e.hydrated || e.hasData {
		c.mu.Unlock()
		return
	}
	e.hydrated = true
	gen := e.gen
	c.mu.Unlock()

	snap, ok, err := c.persist.Load(ctx, key)
	if err != nil {
		c.log.Warn("query: persisted load failed", logging.Fields{"key": key.Display(), "err": err})
		return
	}
	if !ok {
		return
	}

	c.mu.Lock()
	notify := func() {}
	if !e.hasData && e.gen == gen && c.entries[key.String()] == e {
		e.data = snap.Data
		e.hasData = true
		e.updatedAt = snap.UpdatedAt
		e.invalidated = snap.Invalidated
		if e.status != StatusLoading {
			e.status = StatusSuccess
		}
		notify = c.changedLocked(e)
	}
	c.mu.Unlock()
	notify()
	c.log.Debug("query: hydrated from persister", logging.Fields{"key": key.Display()})
}

func (c *Client) entryLocked(key Key) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{
			key:        key.Clone(),
			staleTime:  c.stale,
			lastAccess: c.now(),
			subs:       make(map[uint64]func(State)),
		}
		c.entries[k] = e
	}
	return e
}

func (e *entry) freshLocked(now time.Time) bool {
	if !e.hasData || e.invalidated || e.staleTime < 0 {
		return false
	}
	return now.Before(e.updatedAt.Add(e.staleTime))
}

func (e *entry) snapshotLocked() State {
	st := State{
		Key:         e.key.Clone(),
		Data:        e.data,
		HasData:     e.hasData,
		Status:      e.status,
		Err:         e.err,
		UpdatedAt:   e.updatedAt,
		Invalidated: e.invalidated,
		Fetching:    e.flight != nil,
		Version:     e.version,
	}
	if e.hasData && e.staleTime > 0 {
		st.StaleAt = e.updatedAt.Add(e.staleTime)
	} else if e.hasData {
		st.StaleAt = e.updatedAt
	}
	return st
}

// changedLocked bumps the entry version and returns a func delivering the
// new snapshot to subscribers once the lock is released.
func (c *Client) changedLocked(e *entry) func() {
	e.version++
	if len(e.subs) == 0 {
		return func() {}
	}
	st := e.snapshotLocked()
	ids := make([]uint64, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(State), len(ids))
	for i, id := range ids {
		fns[i] = e.subs[id]
	}
	return func() {
		for _, fn := range fns {
			fn(st)
		}
	}
}

// State returns a snapshot of key, if the entry exists.
func (c *Client) State(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{}, false
	}
	return e.snapshotLocked(), true
}

// GetData returns the cached value of key without fetching.
func (c *Client) GetData(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// SetData replaces the value of key as if it had just been fetched. Any
// in-flight fetch for key is superseded.
func (c *Client) SetData(key Key, v any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.setLocked(e, v)
	updatedAt := e.updatedAt
	notify := c.changedLocked(e)
	c.mu.Unlock()
	notify()

	if c.persist != nil {
		if err := c.persist.Save(context.Background(), key, v, updatedAt); err != nil {
			c.log.Warn("query: persist failed", logging.Fields{"key": key.Display(), "err": err})
		}
	}
}

func (c *Client) setLocked(e *entry, v any) {
	e.gen++
	c.detachLocked(e, false)
	e.data = v
	e.hasData = true
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	e.invalidated = false
}

// Subscribe registers fn to receive a snapshot of key after every change.
// fn runs on the goroutine that made the change and must not block.
func (c *Client) Subscribe(key Key, fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.nextID++
	id := c.nextID
	e.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.subs, id)
			e.lastAccess = c.now()
			c.mu.Unlock()
		})
	}
}

// Cancel cancels in-flight fetches for every entry matching prefix. Their
// results are never written; entries keep their previous data and status.
func (c *Client) Cancel(prefix Key) {
	c.mu.Lock()
	var notifies []func()
	for _, e := range c.entries {
		if e.flight == nil || !e.key.HasPrefix(prefix) {
			continue
		}
		c.detachLocked(e, true)
		notifies = append(notifies, c.changedLocked(e))
	}
	c.mu.Unlock()
	for _, n := range notifies {
		n()
	}
}

// Remove drops the entry for key. Subscribers are forgotten.
func (c *Client) Remove(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key.String()]; ok {
		c.detachLocked(e, true)
		delete(c.entries, key.String())
	}
	c.mu.Unlock()
}

// RefetchMode controls what Invalidate does with observed entries.
type RefetchMode int

const (
	RefetchActive RefetchMode = iota // refetch entries that have subscribers, and wait
	RefetchNone                      // mark stale only; refetch when next observed
)

// Invalidate marks every entry matching prefix stale and supersedes their
// in-flight fetches, so any read issued afterwards goes to the backend.
// With RefetchActive, observed entries are refetched before it returns;
// refetch failures are recorded on the entries, not returned.
func (c *Client) Invalidate(ctx context.Context, prefix Key, mode RefetchMode) error {
	type refetch struct {
		key   Key
		fn    FetchFunc
		stale time.Duration
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var (
		notifies []func()
		pending  []refetch
	)
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.gen++
		c.detachLocked(e, false)
		notifies = append(notifies, c.changedLocked(e))
		if mode == RefetchActive && len(e.subs) > 0 && e.fetchFn != nil {
			pending = append(pending, refetch{key: e.key.Clone(), fn: e.fetchFn, stale: e.staleTime})
		}
	}
	c.mu.Unlock()
	for _, n := range notifies {
		n()
	}
	c.log.Debug("query: invalidated", logging.Fields{"prefix": prefix.Display(), "refetch": len(pending)})

	if c.persist != nil {
		if err := c.persist.Invalidate(context.WithoutCancel(ctx), prefix); err != nil {
			c.log.Warn("query: persisted invalidate failed", logging.Fields{"prefix": prefix.Display(), "err": err})
		}
	}

	var wg sync.WaitGroup
	for _, r := range pending {
		wg.Add(1)
		go func(r refetch) {
			defer wg.Done()
			_, _ = c.Fetch(ctx, r.key, r.fn, WithStaleTime(r.stale))
		}(r)
	}
	wg.Wait()
	return nil
}

// Close cancels every in-flight fetch, stops the GC schedule and releases
// the client. Further Fetch calls return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, e := range c.entries {
		c.detachLocked(e, true)
	}
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()

	if sched != nil {
		<-sched.Stop().Done()
	}
	c.inflight.Wait()
	return nil
}
