package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// CursorMarker is the prefix shown on the selected event row.
const CursorMarker = "▸ "

// listState manages the event list, cursor and search box.
type listState struct {
	params    event.ListParams
	view      viewState
	events    []event.Event
	cursor    int
	searching bool
	search    textinput.Model
}

// newListState returns a listState for p in the loading state.
func newListState(p event.ListParams) listState {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "search events"
	ti.CharLimit = 120
	ti.SetValue(p.Search)
	return listState{params: p, search: ti}
}

// key returns the cache key of the list query.
func (ls listState) key() query.Key {
	return event.ListKey(ls.params)
}

// apply takes a new cache snapshot. The cursor stays on the same event id
// when it is still listed.
func (ls listState) apply(st query.State) listState {
	ls.view = ls.view.apply(st)
	evs, ok := query.Data[[]event.Event](ls.view.st)
	if !ok {
		if !ls.view.st.HasData {
			ls.events = nil
			ls.cursor = 0
		}
		return ls
	}
	selected := ls.SelectedID()
	ls.events = append([]event.Event(nil), evs...)
	ls.cursor = 0
	for i, ev := range ls.events {
		if ev.ID == selected {
			ls.cursor = i
			break
		}
	}
	return ls
}

// Update processes key messages for the list.
func (ls listState) Update(msg tea.Msg) (listState, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return ls, nil
	}
	if ls.searching {
		return ls.handleSearchKey(km)
	}
	return ls.handleKey(km)
}

func (ls listState) handleKey(msg tea.KeyMsg) (listState, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if len(ls.events) > 0 {
			ls.cursor--
			if ls.cursor < 0 {
				ls.cursor = len(ls.events) - 1
			}
		}
		return ls, nil

	case "down", "j":
		if len(ls.events) > 0 {
			ls.cursor++
			if ls.cursor >= len(ls.events) {
				ls.cursor = 0
			}
		}
		return ls, nil

	case "enter":
		if id := ls.SelectedID(); id != "" {
			return ls, func() tea.Msg { return OpenEventMsg{ID: id} }
		}
		return ls, nil

	case "r":
		return ls, func() tea.Msg { return RefreshMsg{} }

	case "n":
		return ls, func() tea.Msg { return NewEventMsg{} }

	case "/":
		ls.searching = true
		ls.search.SetValue(ls.params.Search)
		ls.search.CursorEnd()
		return ls, ls.search.Focus()
	}

	return ls, nil
}

func (ls listState) handleSearchKey(msg tea.KeyMsg) (listState, tea.Cmd) {
	switch msg.String() {
	case "enter":
		ls.searching = false
		ls.search.Blur()
		term := strings.TrimSpace(ls.search.Value())
		if term == ls.params.Search {
			return ls, nil
		}
		return ls, func() tea.Msg { return SearchMsg{Search: term} }
	case "esc":
		ls.searching = false
		ls.search.Blur()
		ls.search.SetValue(ls.params.Search)
		return ls, nil
	}
	var cmd tea.Cmd
	ls.search, cmd = ls.search.Update(msg)
	return ls, cmd
}

// SelectedID returns the event ID at the current cursor position,
// or "" if the list is empty or still loading.
func (ls listState) SelectedID() string {
	if ls.cursor < 0 || ls.cursor >= len(ls.events) {
		return ""
	}
	return ls.events[ls.cursor].ID
}

// View renders the list for the given width.
func (ls listState) View(width int, spin string, now time.Time) string {
	var b strings.Builder

	head := "All events"
	if ls.params.Search != "" {
		head = fmt.Sprintf("Events matching %q", ls.params.Search)
	}
	b.WriteString(TitleStyle().Render(head))
	if badge := StatusBadge(ls.view.st, now); badge != "" && ls.view.seen {
		b.WriteString("  " + badge)
	}
	b.WriteString("\n")
	if ls.searching {
		b.WriteString(ls.search.View() + "\n")
	}
	b.WriteString("\n")

	switch {
	case ls.view.loading():
		b.WriteString(spin + " Loading events...")
		return b.String()
	case ls.view.st.Status == query.StatusError:
		b.WriteString(ErrorBlock("Failed to load events", event.Message(ls.view.st.Err, "Failed to load events")))
		b.WriteString("\n\n")
		if len(ls.events) == 0 {
			b.WriteString(DimStyle().Render("Press r to retry."))
			return b.String()
		}
	}

	if len(ls.events) == 0 {
		b.WriteString(DimStyle().Render("No events found."))
		return b.String()
	}

	for i, ev := range ls.events {
		marker := "  "
		if i == ls.cursor {
			marker = CursorMarker
		}
		date := ev.Date
		if ev.Time != "" {
			date += " " + ev.Time
		}
		line := fmt.Sprintf("%s%-16s %s", marker, date, ev.Title)
		b.WriteString(truncate(line, width))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
