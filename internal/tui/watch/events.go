package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case display.EventCreated, display.EventBootCompleted:
		typeStyle = theme.StatusOK
	case display.EventDestroyed:
		typeStyle = theme.StatusFailed
	case display.EventFlushed, display.EventPaused, display.EventSecure:
		typeStyle = theme.StatusWarn
	case display.EventPerform, display.EventRefresh:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}
	if isFailure(e) {
		typeStyle = theme.StatusFailed
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-24s", e.Type)), describe(e))
}

func isFailure(e events.Event) bool {
	var p struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(e.Data, &p)
	return p.Status == "error"
}

// describe renders the payload as sorted key=value pairs.
func describe(e events.Event) string {
	data := make(map[string]any)
	if err := json.Unmarshal(e.Data, &data); err != nil || len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	out := strings.Join(parts, " ")
	if len(out) > 60 {
		out = out[:60] + "..."
	}
	return out
}
