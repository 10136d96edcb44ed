// Package dashboard implements the eventdeck TUI: an event list, a detail
// view with delete confirmation, and an edit form shared with event
// creation. Views render cache state only; every read and write goes
// through an EventStore.
package dashboard

import (
	"context"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// Screen identifies the view that has the keyboard.
type Screen int

const (
	ScreenList   Screen = iota // Event list.
	ScreenDetail               // One event, with delete confirmation.
	ScreenEdit                 // Edit or create form.
)

func (s Screen) String() string {
	switch s {
	case ScreenList:
		return "list"
	case ScreenDetail:
		return "detail"
	case ScreenEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// --- Consumer-side interfaces ---

// EventStore is the cache-backed event surface the views use.
// *event.Service implements it.
type EventStore interface {
	Observe(ctx context.Context, id string) query.State
	ObserveList(ctx context.Context, p event.ListParams) query.State
	Subscribe(key query.Key, fn func(query.State)) func()
	Refresh(ctx context.Context, key query.Key) error
	Save(ctx context.Context, ev event.Event) error
	Remove(ctx context.Context, id string) error
	Create(ctx context.Context, ev event.Event) (event.Event, error)
}

// --- tea.Msg types ---

// StateMsg carries a cache snapshot for one key.
type StateMsg struct {
	State query.State
}

// StatesMsg carries the snapshots drained from a Bridge in one batch.
type StatesMsg struct {
	States []query.State
}

// SavedMsg reports the result of an edit submission.
type SavedMsg struct {
	ID  string
	Err error
}

// CreatedMsg reports the result of a create submission.
type CreatedMsg struct {
	Event event.Event
	Err   error
}

// DeletedMsg reports the result of a confirmed delete.
type DeletedMsg struct {
	ID  string
	Err error
}

// OpenEventMsg asks the model to show the detail view of an event.
type OpenEventMsg struct {
	ID string
}

// EditEventMsg asks the model to open the edit form of an event.
type EditEventMsg struct {
	ID string
}

// NewEventMsg asks the model to open an empty create form.
type NewEventMsg struct{}

// BackMsg asks the model to leave the current view.
type BackMsg struct{}

// RefreshMsg asks the model to reload the event list.
// listState emits this on 'r'; Model.Update intercepts it.
type RefreshMsg struct{}

// SearchMsg asks the model to replace the list query.
type SearchMsg struct {
	Search string
}
