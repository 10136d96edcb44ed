package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// Form fields in tab order.
const (
	fieldTitle = iota
	fieldDescription
	fieldDate
	fieldTime
	fieldLocation
	fieldImage
	fieldCount
)

var fieldLabels = [fieldCount]string{"Title", "Description", "Date", "Time", "Location", "Image"}

// editState is the event form. With an empty id it creates a new event.
type editState struct {
	id       string
	view     viewState
	filled   bool
	inputs   []textinput.Model
	focus    int
	mutation query.MutationState
}

func newInputs() []textinput.Model {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 200
		inputs[i] = ti
	}
	inputs[fieldDescription].CharLimit = 2000
	inputs[fieldDate].Placeholder = "YYYY-MM-DD"
	inputs[fieldDate].CharLimit = len(event.DateLayout)
	inputs[fieldTime].Placeholder = "HH:MM (optional)"
	inputs[fieldTime].CharLimit = len(event.TimeLayout)
	inputs[fieldImage].Placeholder = "path relative to the image base URL"
	inputs[0].Focus()
	return inputs
}

// newEditState returns a form for the event id, empty until its data
// arrives.
func newEditState(id string) editState {
	return editState{id: id, inputs: newInputs()}
}

// newCreateState returns an empty form for a new event.
func newCreateState() editState {
	return editState{inputs: newInputs(), filled: true}
}

// creating reports whether the form makes a new event.
func (es editState) creating() bool {
	return es.id == ""
}

// key returns the cache key the form was loaded from.
func (es editState) key() query.Key {
	return event.Key(es.id)
}

// pending reports whether a submission is in flight.
func (es editState) pending() bool {
	return es.mutation.Pending()
}

// apply takes a new cache snapshot. The form is filled from the first one
// carrying data; later snapshots never overwrite what the user typed.
func (es editState) apply(st query.State) editState {
	es.view = es.view.apply(st)
	if es.filled {
		return es
	}
	ev, ok := query.Data[event.Event](es.view.st)
	if !ok {
		return es
	}
	es.inputs = es.cloneInputs()
	es.inputs[fieldTitle].SetValue(ev.Title)
	es.inputs[fieldDescription].SetValue(ev.Description)
	es.inputs[fieldDate].SetValue(ev.Date)
	es.inputs[fieldTime].SetValue(ev.Time)
	es.inputs[fieldLocation].SetValue(ev.Location)
	es.inputs[fieldImage].SetValue(ev.Image)
	es.filled = true
	return es
}

// value returns the event described by the form.
func (es editState) value() event.Event {
	v := func(i int) string { return strings.TrimSpace(es.inputs[i].Value()) }
	return event.Event{
		ID:          es.id,
		Title:       v(fieldTitle),
		Description: v(fieldDescription),
		Date:        v(fieldDate),
		Time:        v(fieldTime),
		Location:    v(fieldLocation),
		Image:       v(fieldImage),
	}
}

// settle records the result of a submission.
func (es editState) settle(err error) editState {
	if !es.pending() {
		return es
	}
	es.mutation = es.mutation.Settle(err)
	return es
}

// Update processes messages for the form. submit starts the save or create
// request.
func (es editState) Update(msg tea.Msg, submit func(event.Event) tea.Cmd) (editState, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return es, nil
	}
	if es.pending() {
		return es, nil
	}
	if !es.filled {
		switch km.String() {
		case "esc", "enter":
			return es, func() tea.Msg { return BackMsg{} }
		}
		return es, nil
	}

	switch km.String() {
	case "esc":
		return es, func() tea.Msg { return BackMsg{} }
	case "ctrl+s":
		es.mutation = es.mutation.Start()
		return es, submit(es.value())
	case "tab", "down", "enter":
		return es.moveFocus(1), nil
	case "shift+tab", "up":
		return es.moveFocus(-1), nil
	}

	var cmd tea.Cmd
	es.inputs = es.cloneInputs()
	es.inputs[es.focus], cmd = es.inputs[es.focus].Update(km)
	return es, cmd
}

// cloneInputs copies the inputs so earlier copies of the state keep theirs.
func (es editState) cloneInputs() []textinput.Model {
	return append([]textinput.Model(nil), es.inputs...)
}

func (es editState) moveFocus(delta int) editState {
	inputs := es.cloneInputs()
	inputs[es.focus].Blur()
	es.focus = (es.focus + delta + fieldCount) % fieldCount
	inputs[es.focus].Focus()
	es.inputs = inputs
	return es
}

// View renders the form, or the loading and error states.
func (es editState) View(spin string) string {
	var b strings.Builder
	heading, failed, action := "Edit event", "Failed to update event", "Update"
	if es.creating() {
		heading, failed, action = "New event", "Failed to create event", "Create"
	}
	b.WriteString(TitleStyle().Render(heading))
	b.WriteString("\n\n")

	if !es.filled {
		if es.view.loading() {
			b.WriteString(spin + " Loading event...")
			return b.String()
		}
		b.WriteString(ErrorBlock("Failed to load event", event.Message(es.view.st.Err, "Failed to load event")))
		b.WriteString("\n\n  [Enter] Okay")
		return b.String()
	}

	for i, ti := range es.inputs {
		label := fmt.Sprintf("%-12s", fieldLabels[i])
		if i == es.focus {
			label = TitleStyle().Render(label)
		} else {
			label = DimStyle().Render(label)
		}
		b.WriteString(label + " " + ti.View() + "\n")
	}

	if es.mutation.Status == query.MutationFailed {
		b.WriteString("\n")
		b.WriteString(ErrorBlock(failed, event.Message(es.mutation.Err, es.mutation.Err.Error())))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if es.pending() {
		b.WriteString("sending data...")
	} else {
		fmt.Fprintf(&b, "  [Esc] Cancel   [Ctrl+S] %s", action)
	}
	return b.String()
}
