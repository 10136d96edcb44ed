package dashboard

import "github.com/charmbracelet/bubbles/key"

// listKeys holds key bindings for the event list.
type listKeys struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Search  key.Binding
	New     key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns the list bindings for the help bar.
func (k listKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Search, k.New, k.Refresh, k.Quit}
}

// FullHelp returns the list bindings grouped for expanded help.
func (k listKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open},
		{k.Search, k.New, k.Refresh, k.Quit},
	}
}

// detailKeys holds key bindings for the detail view.
type detailKeys struct {
	Edit   key.Binding
	Delete key.Binding
	Back   key.Binding
	Quit   key.Binding
}

// ShortHelp returns the detail bindings for the help bar.
func (k detailKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Edit, k.Delete, k.Back, k.Quit}
}

// FullHelp returns the detail bindings grouped for expanded help.
func (k detailKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Edit, k.Delete},
		{k.Back, k.Quit},
	}
}

// confirmKeys holds key bindings for the delete confirmation dialog.
type confirmKeys struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns the dialog bindings for the help bar.
func (k confirmKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

// FullHelp returns the dialog bindings grouped for expanded help.
func (k confirmKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

// editKeys holds key bindings for the edit form.
type editKeys struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
	Cancel key.Binding
}

// ShortHelp returns the form bindings for the help bar.
func (k editKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Submit, k.Cancel}
}

// FullHelp returns the form bindings grouped for expanded help.
func (k editKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev},
		{k.Submit, k.Cancel},
	}
}

// pendingKeys is shown while a mutation is in flight. It has no bindings
// besides quitting; every other key is ignored.
type pendingKeys struct {
	Quit key.Binding
}

// ShortHelp returns the pending bindings for the help bar.
func (k pendingKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp returns the pending bindings grouped for expanded help.
func (k pendingKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}

func quitBinding() key.Binding {
	return key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	)
}

// ListKeyMap returns the key bindings for the event list.
func ListKeyMap() listKeys {
	return listKeys{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: quitBinding(),
	}
}

// DetailKeyMap returns the key bindings for the detail view.
func DetailKeyMap() detailKeys {
	return detailKeys{
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "all events"),
		),
		Quit: quitBinding(),
	}
}

// ConfirmKeyMap returns the key bindings for the delete dialog.
func ConfirmKeyMap() confirmKeys {
	return confirmKeys{
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "delete"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// EditKeyMap returns the key bindings for the edit form.
func EditKeyMap() editKeys {
	return editKeys{
		Next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "prev field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// PendingKeyMap returns the key bindings shown while a mutation is pending.
func PendingKeyMap() pendingKeys {
	return pendingKeys{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}
