package dashboard

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// detailState shows one event and owns its delete confirmation.
type detailState struct {
	id      string
	view    viewState
	confirm confirmState
}

// newDetailState returns a detailState for id in the loading state.
func newDetailState(id string) detailState {
	return detailState{id: id}
}

// key returns the cache key of the event.
func (ds detailState) key() query.Key {
	return event.Key(ds.id)
}

// data returns the event when the snapshot carries one.
func (ds detailState) data() (event.Event, bool) {
	return query.Data[event.Event](ds.view.st)
}

// pending reports whether a delete is in flight.
func (ds detailState) pending() bool {
	return ds.confirm.mutation.Pending()
}

// Update processes messages for the detail view. remove starts the delete
// request for an id.
func (ds detailState) Update(msg tea.Msg, remove func(string) tea.Cmd) (detailState, tea.Cmd) {
	if ds.confirm.open {
		var cmd tea.Cmd
		ds.confirm, cmd = ds.confirm.Update(msg, ds.id, remove)
		return ds, cmd
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return ds, nil
	}
	switch km.String() {
	case "esc":
		return ds, func() tea.Msg { return BackMsg{} }
	case "d":
		if _, ok := ds.data(); ok {
			ds.confirm = confirmState{open: true}
		}
		return ds, nil
	case "e":
		if _, ok := ds.data(); ok {
			id := ds.id
			return ds, func() tea.Msg { return EditEventMsg{ID: id} }
		}
		return ds, nil
	}
	return ds, nil
}

// View renders the event, or the loading and error states.
func (ds detailState) View(width int, spin, imageBase string, now time.Time) string {
	if ds.view.loading() {
		return spin + " Loading event..."
	}

	var b strings.Builder
	st := ds.view.st
	if st.Status == query.StatusError {
		b.WriteString(ErrorBlock("Failed to find event", event.Message(st.Err, "Failed to find event")))
		b.WriteString("\n")
	}

	ev, ok := ds.data()
	if !ok {
		b.WriteString("\n" + DimStyle().Render("Press esc to go back."))
		return b.String()
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	if ds.confirm.open {
		b.WriteString(ds.confirm.View())
		b.WriteString("\n\n")
	}

	b.WriteString(TitleStyle().Render(ev.Title))
	if badge := StatusBadge(st, now); badge != "" {
		b.WriteString("  " + badge)
	}
	b.WriteString("\n\n")
	if ev.Location != "" {
		b.WriteString(ev.Location + "\n")
	}
	when := ev.Date
	if ev.Time != "" {
		when += " " + ev.Time
	}
	if when != "" {
		b.WriteString(when + "\n")
	}
	if ev.Image != "" {
		b.WriteString(DimStyle().Render(truncate(event.ImageURL(imageBase, ev.Image), width)) + "\n")
	}
	if ev.Description != "" {
		b.WriteString("\n" + ev.Description + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
