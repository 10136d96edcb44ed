package dashboard

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
)

// cmdTimeout bounds how long send waits on a command. Cursor blink ticks
// outlast it and are dropped.
const cmdTimeout = 300 * time.Millisecond

// send delivers msg to m and follows the resulting chain of commands.
func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	for range 10 {
		updated, cmd := m.Update(msg)
		m = updated.(Model)
		if cmd == nil {
			return m
		}
		ch := make(chan tea.Msg, 1)
		go func() { ch <- cmd() }()
		select {
		case msg = <-ch:
		case <-time.After(cmdTimeout):
			return m
		}
		if msg == nil {
			return m
		}
		if _, ok := msg.(tea.QuitMsg); ok {
			return m
		}
	}
	return m
}

// pump feeds bridge deliveries into m until cond holds.
func pump(t *testing.T, m Model, cond func(Model) bool) Model {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond(m) {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; screen %v, view:\n%s", m.screen, stripANSI(m.View()))
		}
		updated, _ := m.Update(waitMsg(t, m.bridge.Wait()))
		m = updated.(Model)
	}
	return m
}

// startModel builds a sized model over api and runs its startup load.
func startModel(t *testing.T, api *fakeAPI, opts Options) Model {
	t.Helper()
	opts.Store = newTestStore(t, api)
	m := NewModel(opts)
	t.Cleanup(m.Close)
	m = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	for _, cmd := range m.startup {
		if cmd != nil {
			if msg := cmd(); msg != nil {
				m = send(t, m, msg)
			}
		}
	}
	return m
}

func listLoaded(n int) func(Model) bool {
	return func(m Model) bool { return m.list.view.seen && len(m.list.events) == n && !m.list.view.loading() }
}

func detailLoaded(title string) func(Model) bool {
	return func(m Model) bool {
		ev, ok := m.detail.data()
		return ok && ev.Title == title
	}
}

func TestNewModel_DefaultScreen(t *testing.T) {
	m := NewModel(Options{Store: newTestStore(t, newFakeAPI())})
	defer m.Close()

	if m.Screen() != ScreenList {
		t.Errorf("screen = %v, want list", m.Screen())
	}
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() before sizing = %q", got)
	}
}

func TestModel_StartScreens(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		screen Screen
	}{
		{"list", Options{}, ScreenList},
		{"detail", Options{Screen: ScreenDetail, ID: "e1"}, ScreenDetail},
		{"edit", Options{Screen: ScreenEdit, ID: "e1"}, ScreenEdit},
		{"create", Options{Screen: ScreenEdit}, ScreenEdit},
		{"detail without id falls back to list", Options{Screen: ScreenDetail}, ScreenList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Store = newTestStore(t, newFakeAPI(sampleEvents()...))
			m := NewModel(tt.opts)
			defer m.Close()
			if m.Screen() != tt.screen {
				t.Errorf("screen = %v, want %v", m.Screen(), tt.screen)
			}
		})
	}
}

func TestModel_ListLoadsThroughCache(t *testing.T) {
	m := startModel(t, newFakeAPI(sampleEvents()...), Options{})

	m = pump(t, m, listLoaded(3))

	if !containsPlainText(m.View(), "Launch party") {
		t.Errorf("list view missing event, got:\n%s", stripANSI(m.View()))
	}
}

func TestModel_OpenDetailFromList(t *testing.T) {
	m := startModel(t, newFakeAPI(sampleEvents()...), Options{})
	m = pump(t, m, listLoaded(3))

	// When: the second row is opened
	m = send(t, m, keyMsg("j"))
	m = send(t, m, keyMsg("enter"))

	// Then: the detail view shows it
	if m.Screen() != ScreenDetail {
		t.Fatalf("screen = %v, want detail", m.Screen())
	}
	m = pump(t, m, detailLoaded("Retro"))
	if !containsPlainText(m.View(), "Room 4") {
		t.Errorf("detail view missing location, got:\n%s", stripANSI(m.View()))
	}
}

func TestModel_DeleteSuccessNavigatesToListWithoutEvent(t *testing.T) {
	api := newFakeAPI(sampleEvents()...)
	m := startModel(t, api, Options{})
	m = pump(t, m, listLoaded(3))
	m = send(t, m, keyMsg("enter"))
	m = pump(t, m, detailLoaded("Launch party"))

	// When: the delete is confirmed
	m = send(t, m, keyMsg("d"))
	m = send(t, m, keyMsg("enter"))

	// Then: the list is shown, the detail view is dropped, and the stale list
	// is reloaded without the event
	if m.Screen() != ScreenList {
		t.Fatalf("screen = %v, want list", m.Screen())
	}
	if m.detailWatch.active() {
		t.Error("detail watch still active after delete")
	}
	if _, ok := api.get("e1"); ok {
		t.Error("backend still has e1")
	}
	m = pump(t, m, listLoaded(2))
	if containsPlainText(m.View(), "Launch party") {
		t.Errorf("deleted event still listed:\n%s", stripANSI(m.View()))
	}
}

func TestModel_DeleteFailureStaysOnDetail(t *testing.T) {
	api := newFakeAPI(sampleEvents()...)
	api.deleteErr = &event.HTTPError{StatusCode: 409, Info: event.ErrorInfo{Message: "event has attendees"}}
	m := startModel(t, api, Options{Screen: ScreenDetail, ID: "e1"})
	m = pump(t, m, detailLoaded("Launch party"))

	m = send(t, m, keyMsg("d"))
	m = send(t, m, keyMsg("enter"))

	if m.Screen() != ScreenDetail {
		t.Fatalf("screen = %v, want detail", m.Screen())
	}
	view := stripANSI(m.View())
	if !containsText(view, "Failed to delete event") || !containsText(view, "event has attendees") {
		t.Errorf("delete error missing, got:\n%s", view)
	}
}

func TestModel_EditSaveReturnsToRefetchedDetail(t *testing.T) {
	api := newFakeAPI(sampleEvents()...)
	m := startModel(t, api, Options{Screen: ScreenDetail, ID: "e1"})
	m = pump(t, m, detailLoaded("Launch party"))

	// When: the title is extended and saved
	m = send(t, m, keyMsg("e"))
	if m.Screen() != ScreenEdit {
		t.Fatalf("screen = %v, want edit", m.Screen())
	}
	m = pump(t, m, func(m Model) bool { return m.edit.filled })
	for _, r := range " 2" {
		m = send(t, m, keyMsg(string(r)))
	}
	m = send(t, m, keyMsg("ctrl+s"))

	// Then: the detail view shows the saved title
	if m.Screen() != ScreenDetail {
		t.Fatalf("screen = %v, want detail", m.Screen())
	}
	m = pump(t, m, detailLoaded("Launch party 2"))
	if ev, _ := api.get("e1"); ev.Title != "Launch party 2" {
		t.Errorf("backend title = %q", ev.Title)
	}
	if m.editWatch.active() {
		t.Error("edit watch still active after save")
	}
}

func TestModel_EditSaveFailureKeepsForm(t *testing.T) {
	api := newFakeAPI(sampleEvents()...)
	api.saveErr = &event.HTTPError{StatusCode: 500, Info: event.ErrorInfo{Message: "write failed"}}
	m := startModel(t, api, Options{Screen: ScreenEdit, ID: "e1"})
	m = pump(t, m, func(m Model) bool { return m.edit.filled })

	m = send(t, m, keyMsg("ctrl+s"))

	if m.Screen() != ScreenEdit {
		t.Fatalf("screen = %v, want edit", m.Screen())
	}
	if m.edit.pending() {
		t.Error("form still pending after failure")
	}
	if !containsPlainText(m.View(), "write failed") {
		t.Errorf("save error missing, got:\n%s", stripANSI(m.View()))
	}
}

func TestModel_EditEscReturnsToDetail(t *testing.T) {
	m := startModel(t, newFakeAPI(sampleEvents()...), Options{Screen: ScreenEdit, ID: "e2"})
	m = pump(t, m, func(m Model) bool { return m.edit.filled })

	m = send(t, m, keyMsg("esc"))

	if m.Screen() != ScreenDetail || m.detail.id != "e2" {
		t.Errorf("screen = %v id = %q, want detail of e2", m.Screen(), m.detail.id)
	}
}

func TestModel_CreateOpensNewEvent(t *testing.T) {
	api := newFakeAPI(sampleEvents()...)
	m := startModel(t, api, Options{})
	m = pump(t, m, listLoaded(3))

	// When: a new event is typed and submitted
	m = send(t, m, keyMsg("n"))
	if m.Screen() != ScreenEdit || !m.edit.creating() {
		t.Fatalf("n should open the create form, screen %v", m.Screen())
	}
	for _, r := range "Picnic" {
		m = send(t, m, keyMsg(string(r)))
	}
	m = send(t, m, keyMsg("tab"))
	m = send(t, m, keyMsg("tab"))
	for _, r := range "2024-07-04" {
		m = send(t, m, keyMsg(string(r)))
	}
	m = send(t, m, keyMsg("ctrl+s"))

	// Then: its detail view is shown from the seeded cache
	if m.Screen() != ScreenDetail {
		t.Fatalf("screen = %v, want detail; view:\n%s", m.Screen(), stripANSI(m.View()))
	}
	m = pump(t, m, detailLoaded("Picnic"))
	if _, ok := api.get(m.detail.id); !ok {
		t.Errorf("backend has no event %q", m.detail.id)
	}
}

func TestModel_CreateEscReturnsToList(t *testing.T) {
	m := startModel(t, newFakeAPI(sampleEvents()...), Options{})
	m = pump(t, m, listLoaded(3))
	m = send(t, m, keyMsg("n"))

	m = send(t, m, keyMsg("esc"))

	if m.Screen() != ScreenList {
		t.Errorf("screen = %v, want list", m.Screen())
	}
}

func TestModel_SearchReplacesListQuery(t *testing.T) {
	m := startModel(t, newFakeAPI(sampleEvents()...), Options{})
	m = pump(t, m, listLoaded(3))

	m = send(t, m, SearchMsg{Search: "hack"})

	if m.list.params.Search != "hack" {
		t.Errorf("params.Search = %q", m.list.params.Search)
	}
	m = pump(t, m, listLoaded(1))
	if m.list.SelectedID() != "e3" {
		t.Errorf("SelectedID() = %q, want e3", m.list.SelectedID())
	}
}

func TestModel_DetailEscOpensList(t *testing.T) {
	m := startModel(t, newFakeAPI(sampleEvents()...), Options{Screen: ScreenDetail, ID: "e1"})
	m = pump(t, m, detailLoaded("Launch party"))

	m = send(t, m, keyMsg("esc"))

	if m.Screen() != ScreenList {
		t.Fatalf("screen = %v, want list", m.Screen())
	}
	pump(t, m, listLoaded(3))
}

func TestModel_NotFoundShowsErrorBlock(t *testing.T) {
	m := startModel(t, newFakeAPI(), Options{Screen: ScreenDetail, ID: "missing"})

	m = pump(t, m, func(m Model) bool { return m.detail.view.seen && !m.detail.view.loading() })

	view := stripANSI(m.View())
	if !containsText(view, "Failed to find event") || !containsText(view, "Could not find event") {
		t.Errorf("not-found view incomplete, got:\n%s", view)
	}
}

func TestModel_QuitKeys(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		key      string
		wantQuit bool
	}{
		{"q on list", Options{}, "q", true},
		{"ctrl+c on list", Options{}, "ctrl+c", true},
		{"q on detail", Options{Screen: ScreenDetail, ID: "e1"}, "q", true},
		{"q on form is typed", Options{Screen: ScreenEdit}, "q", false},
		{"ctrl+c on form", Options{Screen: ScreenEdit}, "ctrl+c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Store = newTestStore(t, newFakeAPI(sampleEvents()...))
			m := NewModel(tt.opts)
			defer m.Close()

			_, cmd := m.Update(keyMsg(tt.key))

			quit := false
			if cmd != nil {
				_, quit = waitMsgOrNil(cmd).(tea.QuitMsg)
			}
			if quit != tt.wantQuit {
				t.Errorf("quit = %v, want %v", quit, tt.wantQuit)
			}
		})
	}
}

// waitMsgOrNil runs cmd, giving up on slow timers.
func waitMsgOrNil(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(cmdTimeout):
		return nil
	}
}

func TestModel_CloseCancelsViewContexts(t *testing.T) {
	m := NewModel(Options{Store: newTestStore(t, newFakeAPI(sampleEvents()...)), Screen: ScreenDetail, ID: "e1"})
	ctx := m.detailWatch.ctx

	m.Close()

	if ctx.Err() != context.Canceled {
		t.Errorf("detail ctx err = %v, want context.Canceled", ctx.Err())
	}
}
