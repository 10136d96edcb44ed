package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/eventdeck/internal/config"
	"github.com/smileynet/eventdeck/internal/dashboard"
	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// CLI is the top-level command structure for eventdeck.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Browse  BrowseCmd        `cmd:"" default:"1" help:"Browse events in the interactive TUI."`
	Show    ShowCmd          `cmd:"" help:"Show one event."`
	Edit    EditCmd          `cmd:"" help:"Edit an event in the TUI, or directly with field flags."`
	Delete  DeleteCmd        `cmd:"" help:"Delete an event."`
	List    ListCmd          `cmd:"" help:"List events."`
	Create  CreateCmd        `cmd:"" help:"Create an event."`
	Export  ExportCmd        `cmd:"" help:"Export events as an iCalendar feed."`
}

// Globals are flags shared by every command. They override config files and
// the environment.
type Globals struct {
	Config   string `help:"Config file layered over the user and project config." type:"path" placeholder:"FILE"`
	APIURL   string `name:"api-url" help:"Backend base URL."`
	Strategy string `help:"Update strategy: pessimistic or optimistic." enum:",pessimistic,optimistic" default:""`
	LogLevel string `help:"Log level: debug, info, warn or error." enum:",debug,info,warn,error" default:""`
}

// --- Browse / TUI commands ---

// BrowseCmd opens the event list.
type BrowseCmd struct {
	Search string `help:"Initial search term."`
	Max    int    `help:"Maximum number of events to list (0 for the backend default)."`
}

// Run opens the TUI on the event list.
func (b *BrowseCmd) Run(g *Globals) error {
	return runTUI(g, dashboard.Options{
		Screen: dashboard.ScreenList,
		List:   event.ListParams{Search: b.Search, Max: b.Max},
	})
}

// ShowCmd shows one event, in the TUI on a terminal and as text otherwise.
type ShowCmd struct {
	ID    string `arg:"" help:"Event ID."`
	Plain bool   `help:"Print plain text even if stdout is a TTY."`
	JSON  bool   `name:"json" help:"Print the event as JSON."`
}

// Run executes the show command.
func (s *ShowCmd) Run(g *Globals) error {
	if err := event.ValidateID(s.ID); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	if !s.Plain && !s.JSON && isTTY(os.Stdout) {
		return runTUI(g, dashboard.Options{Screen: dashboard.ScreenDetail, ID: s.ID})
	}
	a, err := newApp(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return s.run(ctx, os.Stdout, a.svc, a.cfg.API.ImageBaseURL)
}

func (s *ShowCmd) run(ctx context.Context, w io.Writer, svc eventService, imageBase string) error {
	ev, err := svc.Load(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("show: %s: %w", event.Message(err, "Failed to find event"), err)
	}
	if s.JSON {
		return writeJSON(w, ev)
	}
	printEvent(w, ev, imageBase)
	return nil
}

// EditCmd edits an event. Without field flags it opens the TUI form.
type EditCmd struct {
	ID          string `arg:"" help:"Event ID."`
	Title       string `help:"New title."`
	Description string `help:"New description."`
	Date        string `help:"New date (YYYY-MM-DD)."`
	Time        string `help:"New time of day (HH:MM)."`
	Location    string `help:"New location."`
	Image       string `help:"New image path."`
}

// Run executes the edit command.
func (e *EditCmd) Run(g *Globals) error {
	if err := event.ValidateID(e.ID); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	if !e.hasChanges() {
		if !isTTY(os.Stdout) {
			return fmt.Errorf("edit: no field flags given and stdout is not a terminal")
		}
		return runTUI(g, dashboard.Options{Screen: dashboard.ScreenEdit, ID: e.ID})
	}
	a, err := newApp(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return e.run(ctx, os.Stdout, a.svc)
}

func (e *EditCmd) hasChanges() bool {
	return e.Title != "" || e.Description != "" || e.Date != "" || e.Time != "" || e.Location != "" || e.Image != ""
}

// apply overlays the flags that were given onto ev.
func (e *EditCmd) apply(ev event.Event) event.Event {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&ev.Title, e.Title)
	set(&ev.Description, e.Description)
	set(&ev.Date, e.Date)
	set(&ev.Time, e.Time)
	set(&ev.Location, e.Location)
	set(&ev.Image, e.Image)
	return ev
}

func (e *EditCmd) run(ctx context.Context, w io.Writer, svc eventService) error {
	ev, err := svc.Load(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("edit: %s: %w", event.Message(err, "Failed to load event"), err)
	}
	if err := svc.Save(ctx, e.apply(ev)); err != nil {
		return fmt.Errorf("edit: %s: %w", event.Message(err, "Failed to update event"), err)
	}
	_, _ = fmt.Fprintf(w, "Updated event %s\n", e.ID)
	return nil
}

// --- Plain commands ---

// DeleteCmd deletes an event after confirmation.
type DeleteCmd struct {
	ID  string `arg:"" help:"Event ID."`
	Yes bool   `short:"y" help:"Do not ask for confirmation."`
}

// Run executes the delete command.
func (d *DeleteCmd) Run(g *Globals) error {
	if err := event.ValidateID(d.ID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	a, err := newApp(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return d.run(ctx, os.Stdout, os.Stdin, a.svc)
}

func (d *DeleteCmd) run(ctx context.Context, w io.Writer, r io.Reader, svc eventService) error {
	if !d.Yes {
		ev, err := svc.Load(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("delete: %s: %w", event.Message(err, "Failed to find event"), err)
		}
		_, _ = fmt.Fprintf(w, "Are you sure? Do you really want to delete %q? This action cannot be undone. [y/N] ", ev.Title)
		line, _ := bufio.NewReader(r).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
		default:
			_, _ = fmt.Fprintln(w, "Cancelled")
			return nil
		}
	}
	if err := svc.Remove(ctx, d.ID); err != nil {
		return fmt.Errorf("delete: %s: %w", event.Message(err, "Failed to delete event"), err)
	}
	_, _ = fmt.Fprintf(w, "Deleted event %s\n", d.ID)
	return nil
}

// ListCmd lists events.
type ListCmd struct {
	Search string `help:"Only events matching this term."`
	Max    int    `help:"Maximum number of events (0 for the backend default)."`
	JSON   bool   `name:"json" help:"Print events as JSON."`
}

// Run executes the list command.
func (l *ListCmd) Run(g *Globals) error {
	a, err := newApp(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return l.run(ctx, os.Stdout, a.svc)
}

func (l *ListCmd) run(ctx context.Context, w io.Writer, svc eventService) error {
	if l.Max < 0 {
		return fmt.Errorf("list: %w: max must be non-negative", errUsage)
	}
	evs, err := svc.LoadList(ctx, event.ListParams{Search: l.Search, Max: l.Max})
	if err != nil {
		return fmt.Errorf("list: %s: %w", event.Message(err, "Failed to load events"), err)
	}
	if l.JSON {
		return writeJSON(w, evs)
	}
	if len(evs) == 0 {
		_, _ = fmt.Fprintln(w, "No events found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tTIME\tTITLE\tLOCATION")
	for _, ev := range evs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.ID, ev.Date, ev.Time, ev.Title, ev.Location)
	}
	return tw.Flush()
}

// CreateCmd creates an event.
type CreateCmd struct {
	Title       string `required:"" help:"Title."`
	Date        string `required:"" help:"Date (YYYY-MM-DD)."`
	Time        string `help:"Time of day (HH:MM)."`
	Description string `help:"Description."`
	Location    string `help:"Location."`
	Image       string `help:"Image path relative to the image base URL."`
}

// Run executes the create command.
func (c *CreateCmd) Run(g *Globals) error {
	a, err := newApp(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.run(ctx, os.Stdout, a.svc)
}

func (c *CreateCmd) run(ctx context.Context, w io.Writer, svc eventService) error {
	created, err := svc.Create(ctx, event.Event{
		Title:       c.Title,
		Description: c.Description,
		Date:        c.Date,
		Time:        c.Time,
		Location:    c.Location,
		Image:       c.Image,
	})
	if err != nil {
		return fmt.Errorf("create: %s: %w", event.Message(err, "Failed to create event"), err)
	}
	_, _ = fmt.Fprintf(w, "Created event %s\n", created.ID)
	return nil
}

// ExportCmd writes events as iCalendar.
type ExportCmd struct {
	IDs    []string `arg:"" optional:"" name:"id" help:"Event IDs. All listed events when omitted."`
	Search string   `help:"Export the events matching this term instead of IDs."`
	Output string   `short:"o" type:"path" help:"Output file (default stdout)."`
}

// Run executes the export command.
func (x *ExportCmd) Run(g *Globals) error {
	a, err := newApp(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var w io.Writer = os.Stdout
	if x.Output != "" {
		f, err := os.Create(x.Output)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		defer f.Close()
		w = f
	}
	return x.run(ctx, w, a.svc, event.ExportOptions{ImageBaseURL: a.cfg.API.ImageBaseURL})
}

func (x *ExportCmd) run(ctx context.Context, w io.Writer, svc eventService, opts event.ExportOptions) error {
	if len(x.IDs) > 0 && x.Search != "" {
		return fmt.Errorf("export: %w: give event IDs or --search, not both", errUsage)
	}
	var evs []event.Event
	if len(x.IDs) == 0 {
		list, err := svc.LoadList(ctx, event.ListParams{Search: x.Search})
		if err != nil {
			return fmt.Errorf("export: %s: %w", event.Message(err, "Failed to load events"), err)
		}
		evs = list
	}
	for _, id := range x.IDs {
		if err := event.ValidateID(id); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		ev, err := svc.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("export: %s: %w", event.Message(err, "Failed to find event"), err)
		}
		evs = append(evs, ev)
	}
	if err := event.Export(w, evs, opts); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// --- Helpers ---

// eventService is the slice of *event.Service the plain commands use.
type eventService interface {
	Load(ctx context.Context, id string) (event.Event, error)
	LoadList(ctx context.Context, p event.ListParams) ([]event.Event, error)
	Save(ctx context.Context, ev event.Event) error
	Remove(ctx context.Context, id string) error
	Create(ctx context.Context, ev event.Event) (event.Event, error)
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// runTUI builds the app and runs the dashboard on the terminal.
func runTUI(g *Globals, opts dashboard.Options) error {
	if !isTTY(os.Stdout) {
		return fmt.Errorf("%w: the interactive view requires a terminal (TTY)", errUsage)
	}
	// The alternate screen owns stderr too; logs go only to a configured file.
	a, err := newApp(g, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	opts.Store = a.svc
	opts.Context = ctx
	opts.ImageBaseURL = a.cfg.API.ImageBaseURL
	m := dashboard.NewModel(opts)
	return runProgram(tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)))
}

// runProgram runs prog and releases the final model's watches.
func runProgram(prog teaRunner) error {
	final, err := prog.Run()
	if m, ok := final.(dashboard.Model); ok {
		m.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// isTTY reports whether f is connected to a terminal.
func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEvent writes ev as human-readable text.
func printEvent(w io.Writer, ev event.Event, imageBase string) {
	_, _ = fmt.Fprintln(w, ev.Title)
	when := ev.Date
	if ev.Time != "" {
		when += " " + ev.Time
	}
	_, _ = fmt.Fprintf(w, "  ID:       %s\n", ev.ID)
	_, _ = fmt.Fprintf(w, "  When:     %s\n", when)
	if ev.Location != "" {
		_, _ = fmt.Fprintf(w, "  Where:    %s\n", ev.Location)
	}
	if ev.Image != "" {
		_, _ = fmt.Fprintf(w, "  Image:    %s\n", event.ImageURL(imageBase, ev.Image))
	}
	if ev.Description != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", ev.Description)
	}
}

// loadConfig loads layered config from user and project paths, then the
// optional --config file, env overrides and flags.
func loadConfig(g *Globals) (*config.Config, error) {
	paths := []string{
		os.ExpandEnv("$HOME/.config/eventdeck/config.yaml"),
		".eventdeck/config.yaml",
	}
	if g.Config != "" {
		if _, err := os.Stat(g.Config); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		paths = append(paths, g.Config)
	}
	cfg, err := config.LoadLayered(paths...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if g.APIURL != "" {
		cfg.API.BaseURL = g.APIURL
	}
	if g.Strategy != "" {
		cfg.Cache.UpdateStrategy = g.Strategy
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Exit codes.
const (
	exitSuccess     = 0
	exitBackend     = 1
	exitSetup       = 2
	exitInterrupted = 130
)

// errUsage marks errors caused by how the command was invoked.
var errUsage = errors.New("usage")

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	if errors.Is(err, errUsage) || errors.Is(err, event.ErrInvalidID) || errors.Is(err, event.ErrInvalidEvent) {
		return exitSetup
	}
	var (
		fe *query.FetchError
		me *query.MutationError
		he *event.HTTPError
	)
	if errors.As(err, &fe) || errors.As(err, &me) || errors.As(err, &he) {
		return exitBackend
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("eventdeck"),
		kong.Description("Browse, edit and export events from the terminal."),
		kong.Vars{"version": version + " " + commit + " " + date},
		kong.Bind(&cli.Globals),
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
