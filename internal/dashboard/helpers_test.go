package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// containsText is a test alias for strings.Contains.
func containsText(s, sub string) bool {
	return strings.Contains(s, sub)
}

// stripANSI removes ANSI escape sequences from a string.
func stripANSI(s string) string {
	var out []byte
	i := 0
	for i < len(s) {
		if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 'A' || s[j] > 'Z') && (s[j] < 'a' || s[j] > 'z') {
				j++
			}
			if j < len(s) {
				j++
			}
			i = j
		} else {
			out = append(out, s[i])
			i++
		}
	}
	return string(out)
}

// containsPlainText checks if s contains sub after stripping ANSI escapes.
func containsPlainText(s, sub string) bool {
	return strings.Contains(stripANSI(s), sub)
}

// execBatch executes a tea.Cmd, handling both single commands and batch
// commands. It returns all resulting messages. Spinner ticks and the
// blocking bridge listener are skipped.
func execBatch(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			if c != nil {
				result := c()
				// Skip spinner ticks to avoid recursion.
				if _, isTick := result.(spinner.TickMsg); !isTick && result != nil {
					msgs = append(msgs, result)
				}
			}
		}
		return msgs
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

// keyMsg builds a tea.KeyMsg for a key name as reported by KeyMsg.String.
func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

// fakeAPI is an in-memory events backend. Writes can be made to fail or to
// block until released.
type fakeAPI struct {
	mu        sync.Mutex
	events    map[string]event.Event
	order     []string
	gets      int
	saveErr   error
	deleteErr error
	hold      chan struct{} // when set, writes wait for it to close
	nextID    int
}

func newFakeAPI(evs ...event.Event) *fakeAPI {
	f := &fakeAPI{events: make(map[string]event.Event)}
	for _, ev := range evs {
		f.events[ev.ID] = ev
		f.order = append(f.order, ev.ID)
	}
	return f
}

func (f *fakeAPI) wait(ctx context.Context) error {
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()
	if hold == nil {
		return nil
	}
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAPI) Get(_ context.Context, id string) (event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	ev, ok := f.events[id]
	if !ok {
		return event.Event{}, &event.HTTPError{StatusCode: http.StatusNotFound, Info: event.ErrorInfo{Message: "Could not find event"}}
	}
	return ev, nil
}

func (f *fakeAPI) List(_ context.Context, p event.ListParams) ([]event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []event.Event{}
	for _, id := range f.order {
		ev, ok := f.events[id]
		if !ok {
			continue
		}
		if p.Search != "" && !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(p.Search)) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeAPI) Update(ctx context.Context, ev event.Event) (event.Event, error) {
	if err := f.wait(ctx); err != nil {
		return event.Event{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return event.Event{}, f.saveErr
	}
	f.events[ev.ID] = ev
	return ev, nil
}

func (f *fakeAPI) Delete(ctx context.Context, id string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.events, id)
	return nil
}

func (f *fakeAPI) Create(ctx context.Context, ev event.Event) (event.Event, error) {
	if err := f.wait(ctx); err != nil {
		return event.Event{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return event.Event{}, f.saveErr
	}
	f.nextID++
	ev.ID = "n" + string(rune('0'+f.nextID))
	f.events[ev.ID] = ev
	f.order = append(f.order, ev.ID)
	return ev, nil
}

func (f *fakeAPI) get(id string) (event.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	return ev, ok
}

var errBackend = errors.New("backend down")

func sampleEvents() []event.Event {
	return []event.Event{
		{ID: "e1", Title: "Launch party", Date: "2024-06-01", Time: "18:30", Location: "Hall A", Description: "Drinks and demos", Image: "launch.jpg"},
		{ID: "e2", Title: "Retro", Date: "2024-06-02", Location: "Room 4"},
		{ID: "e3", Title: "Hackathon", Date: "2024-06-10", Location: "Lab"},
	}
}

// newTestStore returns a Service over api with its own query cache.
func newTestStore(t *testing.T, api event.API) *event.Service {
	t.Helper()
	c := query.New(query.Options{})
	t.Cleanup(func() { _ = c.Close() })
	return event.NewService(api, c, event.ServiceOptions{})
}

// successState returns a settled snapshot of key holding data.
func successState(key query.Key, data any, version uint64) query.State {
	return query.State{Key: key, Data: data, HasData: true, Status: query.StatusSuccess, Version: version}
}
