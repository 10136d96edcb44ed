package dashboard

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// confirmState is the delete confirmation dialog of the detail view.
type confirmState struct {
	open     bool
	mutation query.MutationState
}

// Update processes messages for the dialog. id is the event being deleted.
// While the request is pending every key is ignored.
func (cs confirmState) Update(msg tea.Msg, id string, remove func(string) tea.Cmd) (confirmState, tea.Cmd) {
	switch msg := msg.(type) {
	case DeletedMsg:
		if msg.ID != id || !cs.mutation.Pending() {
			return cs, nil
		}
		cs.mutation = cs.mutation.Settle(msg.Err)
		return cs, nil

	case tea.KeyMsg:
		if cs.mutation.Pending() {
			return cs, nil
		}
		switch msg.String() {
		case "enter":
			cs.mutation = cs.mutation.Start()
			return cs, remove(id)
		case "esc":
			return confirmState{}, nil
		}
	}
	return cs, nil
}

// View renders the dialog.
func (cs confirmState) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle().Render("Are you sure?"))
	b.WriteString("\n\nDo you really want to delete this event? This action cannot be undone.\n\n")
	if cs.mutation.Pending() {
		b.WriteString("Deleting, please wait....")
	} else {
		b.WriteString("  [Esc] Cancel   [Enter] Delete")
	}
	if cs.mutation.Status == query.MutationFailed {
		b.WriteString("\n\n")
		b.WriteString(ErrorBlock("Failed to delete event", event.Message(cs.mutation.Err, "Failed to delete event")))
	}
	return DialogBorder().Render(b.String())
}
