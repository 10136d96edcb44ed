package dashboard

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/eventdeck/internal/query"
)

// MinPaneWidth is the narrowest the content pane is rendered.
const MinPaneWidth = 40

var (
	accentColor = lipgloss.AdaptiveColor{Light: "4", Dark: "12"}
	dimColor    = lipgloss.AdaptiveColor{Light: "240", Dark: "245"}
	errorColor  = lipgloss.AdaptiveColor{Light: "1", Dark: "9"}
	warnColor   = lipgloss.AdaptiveColor{Light: "3", Dark: "11"}
	okColor     = lipgloss.AdaptiveColor{Light: "2", Dark: "10"}
)

// TitleStyle renders headings.
func TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(accentColor)
}

// DimStyle renders secondary text.
func DimStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(dimColor)
}

// PaneBorder returns a lipgloss style with an accent-colored rounded border.
func PaneBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor)
}

// DialogBorder returns the style of modal dialogs such as the delete
// confirmation.
func DialogBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(warnColor).
		Padding(0, 1)
}

// ErrorBlock renders a titled error message.
func ErrorBlock(title, message string) string {
	head := lipgloss.NewStyle().Bold(true).Foreground(errorColor).Render(title)
	body := lipgloss.NewStyle().Foreground(errorColor).Render(message)
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(errorColor).
		PaddingLeft(1).
		Render(head + "\n" + body)
}

// StatusBadge describes how current a cache snapshot is: "updating" while
// a fetch runs, "stale" once it would be refetched, "fresh" otherwise.
func StatusBadge(st query.State, now time.Time) string {
	switch {
	case st.Fetching:
		return lipgloss.NewStyle().Foreground(accentColor).Render("updating")
	case st.HasData && st.IsStale(now):
		return lipgloss.NewStyle().Foreground(warnColor).Render("stale")
	case st.HasData:
		return lipgloss.NewStyle().Foreground(okColor).Render("fresh")
	default:
		return ""
	}
}

// PaneWidth calculates the content width for a total terminal width.
func PaneWidth(totalWidth int) int {
	if totalWidth <= 0 {
		return 0
	}
	return max(totalWidth, MinPaneWidth)
}

// truncate shortens s to width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return strings.TrimSpace(string(r[:width-1])) + "…"
}
