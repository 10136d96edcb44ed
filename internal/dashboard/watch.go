package dashboard

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/query"
)

// watch ties a view to one cache key: a subscription delivering changes to
// the Bridge and a context that keeps the view's fetch alive. Stopping the
// watch cancels that fetch if nobody else is waiting on it.
type watch struct {
	key    query.Key
	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
}

// startWatch subscribes to key and derives the view context from parent.
func startWatch(parent context.Context, store EventStore, bridge *Bridge, key query.Key) watch {
	ctx, cancel := context.WithCancel(parent)
	return watch{
		key:    key,
		ctx:    ctx,
		cancel: cancel,
		unsub:  store.Subscribe(key, bridge.Push),
	}
}

// active reports whether the watch has been started and not stopped.
func (w watch) active() bool {
	return w.ctx != nil && w.ctx.Err() == nil
}

// stop unsubscribes and cancels the view context. Stopping a zero watch is
// a no-op.
func (w watch) stop() {
	if w.unsub != nil {
		w.unsub()
	}
	if w.cancel != nil {
		w.cancel()
	}
}

// observe returns a command reading the current state through fn. Observe
// may touch the persistence tier, so it never runs on the update loop.
func (w watch) observe(fn func(ctx context.Context) query.State) tea.Cmd {
	ctx := w.ctx
	return func() tea.Msg {
		if ctx.Err() != nil {
			return nil
		}
		return StateMsg{State: fn(ctx)}
	}
}

// viewState is the cache snapshot a view renders, with out-of-order
// deliveries dropped.
type viewState struct {
	st   query.State
	seen bool
}

// apply records st when it is at least as new as the held snapshot.
func (v viewState) apply(st query.State) viewState {
	if v.seen && st.Version < v.st.Version {
		return v
	}
	return viewState{st: st, seen: true}
}

// loading reports whether nothing can be rendered yet.
func (v viewState) loading() bool {
	if !v.seen {
		return true
	}
	if v.st.HasData || v.st.Status == query.StatusError {
		return false
	}
	return true
}
