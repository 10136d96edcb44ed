package dashboard

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/query"
)

// Bridge carries cache notifications from subscription callbacks, which run
// on arbitrary goroutines, into the Bubble Tea update loop. Pushes never
// block: only the latest snapshot per key is kept until the loop drains it.
type Bridge struct {
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	latest map[string]query.State
	order  []string
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		latest: make(map[string]query.State),
	}
}

// Push records st as the latest snapshot of its key. It is safe to pass
// directly to query.Client.Subscribe.
func (b *Bridge) Push(st query.State) {
	k := st.Key.String()
	b.mu.Lock()
	prev, ok := b.latest[k]
	if ok && prev.Version > st.Version {
		b.mu.Unlock()
		return
	}
	if !ok {
		b.order = append(b.order, k)
	}
	b.latest[k] = st
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// drain returns and forgets every pending snapshot in arrival order.
func (b *Bridge) drain() []query.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]query.State, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.latest[k])
	}
	clear(b.latest)
	b.order = b.order[:0]
	return out
}

// Wait returns a command that blocks until snapshots are pending and
// delivers them as one StatesMsg. The receiver must call Wait again to keep
// listening. After Close the command returns nil.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.done:
			return nil
		case <-b.wake:
		}
		states := b.drain()
		if len(states) == 0 {
			return StatesMsg{}
		}
		return StatesMsg{States: states}
	}
}

// Close releases any command blocked in Wait.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}
