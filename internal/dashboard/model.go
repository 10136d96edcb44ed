package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// helpBarHeight is the number of lines reserved for the help bar at the bottom.
const helpBarHeight = 1

// borderChrome is the number of lines consumed by top + bottom borders.
const borderChrome = 2

// Options configure a Model.
type Options struct {
	Store EventStore
	// Bridge receives cache notifications. Nil creates one.
	Bridge *Bridge
	// Context is the parent of every view context. Nil means Background.
	Context      context.Context
	ImageBaseURL string
	List         event.ListParams
	// Screen and ID select the first view. ScreenEdit with an empty ID
	// opens the create form.
	Screen Screen
	ID     string
	Now    func() time.Time
}

// Model is the root Bubble Tea model for the eventdeck TUI. It routes
// messages to the active screen and owns the cache watches of every view
// that is open.
type Model struct {
	store     EventStore
	bridge    *Bridge
	ctx       context.Context
	imageBase string
	now       func() time.Time

	screen   Screen
	editFrom Screen

	list        listState
	listWatch   watch
	detail      detailState
	detailWatch watch
	edit        editState
	editWatch   watch

	spinner spinner.Model
	help    help.Model
	width   int
	height  int

	startup []tea.Cmd
}

// NewModel creates a Model showing the screen selected by opts.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		store:     opts.Store,
		bridge:    opts.Bridge,
		ctx:       opts.Context,
		imageBase: opts.ImageBaseURL,
		now:       opts.Now,
		list:      newListState(opts.List),
		spinner:   s,
		help:      help.New(),
	}
	if m.bridge == nil {
		m.bridge = NewBridge()
	}
	if m.ctx == nil {
		m.ctx = context.Background()
	}
	if m.now == nil {
		m.now = time.Now
	}

	var cmd tea.Cmd
	switch {
	case opts.Screen == ScreenDetail && opts.ID != "":
		m, cmd = m.openDetail(opts.ID)
	case opts.Screen == ScreenEdit && opts.ID != "":
		m, cmd = m.openEdit(opts.ID)
	case opts.Screen == ScreenEdit:
		m = m.openCreate()
	default:
		m, cmd = m.openList()
	}
	m.startup = []tea.Cmd{cmd}
	return m
}

// Init starts the spinner, the bridge listener and the first view's load.
func (m Model) Init() tea.Cmd {
	cmds := append([]tea.Cmd{m.spinner.Tick, m.bridge.Wait()}, m.startup...)
	return tea.Batch(cmds...)
}

// Screen returns the active screen.
func (m Model) Screen() Screen {
	return m.screen
}

// Close stops every view watch and releases the bridge.
func (m Model) Close() {
	m.listWatch.stop()
	m.detailWatch.stop()
	m.editWatch.stop()
	m.bridge.Close()
}

// Update handles incoming messages with screen-based routing.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StatesMsg:
		for _, st := range msg.States {
			m = m.applyState(st)
		}
		return m, m.bridge.Wait()

	case StateMsg:
		return m.applyState(msg.State), nil

	case OpenEventMsg:
		return m.openDetail(msg.ID)

	case EditEventMsg:
		return m.openEdit(msg.ID)

	case NewEventMsg:
		return m.openCreate(), nil

	case BackMsg:
		return m.back()

	case RefreshMsg:
		return m, m.refresh()

	case SearchMsg:
		return m.search(msg.Search)

	case SavedMsg:
		if m.screen != ScreenEdit || m.edit.id != msg.ID {
			return m, nil
		}
		if msg.Err != nil {
			m.edit = m.edit.settle(msg.Err)
			return m, nil
		}
		m = m.closeEdit()
		return m.openDetail(msg.ID)

	case CreatedMsg:
		if m.screen != ScreenEdit || !m.edit.creating() {
			return m, nil
		}
		if msg.Err != nil {
			m.edit = m.edit.settle(msg.Err)
			return m, nil
		}
		m = m.closeEdit()
		if msg.Event.ID == "" {
			return m.openList()
		}
		return m.openDetail(msg.Event.ID)

	case DeletedMsg:
		if msg.Err == nil && msg.ID == m.detail.id && m.detail.pending() {
			m = m.closeDetail()
			return m.openList()
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg, m.remove)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey processes key messages with global and screen-specific routing.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		if m.quittable() {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	switch m.screen {
	case ScreenList:
		m.list, cmd = m.list.Update(msg)
	case ScreenDetail:
		m.detail, cmd = m.detail.Update(msg, m.remove)
	case ScreenEdit:
		m.edit, cmd = m.edit.Update(msg, m.submit)
	}
	return m, cmd
}

// quittable reports whether 'q' quits rather than being typed or ignored.
func (m Model) quittable() bool {
	switch m.screen {
	case ScreenList:
		return !m.list.searching
	case ScreenDetail:
		return !m.detail.confirm.open
	default:
		return false
	}
}

// applyState hands a cache snapshot to every open view watching its key.
func (m Model) applyState(st query.State) Model {
	if m.listWatch.active() && st.Key.Equal(m.list.key()) {
		m.list = m.list.apply(st)
	}
	if m.detailWatch.active() && st.Key.Equal(m.detail.key()) {
		m.detail.view = m.detail.view.apply(st)
	}
	if m.editWatch.active() && !m.edit.creating() && st.Key.Equal(m.edit.key()) {
		m.edit = m.edit.apply(st)
	}
	return m
}

// --- Navigation ---

func (m Model) openList() (Model, tea.Cmd) {
	if !m.listWatch.active() {
		m.listWatch = startWatch(m.ctx, m.store, m.bridge, m.list.key())
	}
	m.screen = ScreenList
	store, p := m.store, m.list.params
	// Revisiting the list reads it again so data invalidated meanwhile is
	// refetched.
	return m, m.listWatch.observe(func(ctx context.Context) query.State {
		return store.ObserveList(ctx, p)
	})
}

func (m Model) search(term string) (Model, tea.Cmd) {
	m.listWatch.stop()
	m.listWatch = watch{}
	p := m.list.params
	p.Search = term
	m.list = newListState(p)
	return m.openList()
}

func (m Model) refresh() tea.Cmd {
	if !m.listWatch.active() {
		return nil
	}
	ctx, store, key := m.listWatch.ctx, m.store, m.list.key()
	return func() tea.Msg {
		_ = store.Refresh(ctx, key)
		return nil
	}
}

func (m Model) openDetail(id string) (Model, tea.Cmd) {
	if m.detail.id != id || !m.detailWatch.active() {
		m = m.closeDetail()
		m.detail = newDetailState(id)
		m.detailWatch = startWatch(m.ctx, m.store, m.bridge, m.detail.key())
	}
	m.screen = ScreenDetail
	store := m.store
	return m, m.detailWatch.observe(func(ctx context.Context) query.State {
		return store.Observe(ctx, id)
	})
}

// closeDetail drops the detail view. Its fetch is cancelled unless another
// view still waits on it.
func (m Model) closeDetail() Model {
	m.detailWatch.stop()
	m.detailWatch = watch{}
	m.detail = detailState{}
	return m
}

func (m Model) openEdit(id string) (Model, tea.Cmd) {
	m = m.closeEdit()
	m.editFrom = m.screen
	m.edit = newEditState(id)
	m.editWatch = startWatch(m.ctx, m.store, m.bridge, m.edit.key())
	m.screen = ScreenEdit
	store := m.store
	return m, m.editWatch.observe(func(ctx context.Context) query.State {
		return store.Observe(ctx, id)
	})
}

func (m Model) openCreate() Model {
	m = m.closeEdit()
	m.editFrom = m.screen
	m.edit = newCreateState()
	m.screen = ScreenEdit
	return m
}

func (m Model) closeEdit() Model {
	m.editWatch.stop()
	m.editWatch = watch{}
	m.edit = editState{}
	return m
}

// back leaves the current screen: the form returns to the event it edits
// (or wherever a create started), the detail view to the list.
func (m Model) back() (Model, tea.Cmd) {
	switch m.screen {
	case ScreenDetail:
		m = m.closeDetail()
		return m.openList()
	case ScreenEdit:
		creating, id, from := m.edit.creating(), m.edit.id, m.editFrom
		m = m.closeEdit()
		if !creating {
			return m.openDetail(id)
		}
		if from == ScreenDetail && m.detailWatch.active() {
			return m.openDetail(m.detail.id)
		}
		return m.openList()
	}
	return m, nil
}

// --- Mutations ---

func (m Model) remove(id string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		return DeletedMsg{ID: id, Err: store.Remove(ctx, id)}
	}
}

func (m Model) submit(ev event.Event) tea.Cmd {
	ctx, store := m.ctx, m.store
	if ev.ID == "" {
		return func() tea.Msg {
			created, err := store.Create(ctx, ev)
			return CreatedMsg{Event: created, Err: err}
		}
	}
	return func() tea.Msg {
		return SavedMsg{ID: ev.ID, Err: store.Save(ctx, ev)}
	}
}

// pending reports whether the active screen waits on a mutation.
func (m Model) pending() bool {
	switch m.screen {
	case ScreenDetail:
		return m.detail.pending()
	case ScreenEdit:
		return m.edit.pending()
	}
	return false
}

// --- View ---

// contentHeight returns the usable height for pane content,
// accounting for border chrome and the help bar.
func (m Model) contentHeight() int {
	h := m.height - borderChrome - helpBarHeight
	if h < 1 {
		return 1
	}
	return h
}

// View renders the active screen in a bordered pane with the help bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := PaneWidth(m.width) - borderChrome
	spin := m.spinner.View()
	var content string
	switch m.screen {
	case ScreenDetail:
		content = m.detail.View(width, spin, m.imageBase, m.now())
	case ScreenEdit:
		content = m.edit.View(spin)
	default:
		content = m.list.View(width, spin, m.now())
	}

	pane := PaneBorder().
		Width(width).
		Height(m.contentHeight()).
		Render(content)
	helpView := m.help.View(HelpBindings(m.screen, m.detail.confirm.open, m.pending()))

	return lipgloss.JoinVertical(lipgloss.Left, pane, helpView)
}
