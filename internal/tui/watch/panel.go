package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hwcd/internal/display"
)

func flag(theme Theme, name string, on bool) string {
	if on {
		return theme.FlagOn.Render("■ " + name)
	}
	return theme.FlagOff.Render("□ " + name)
}

// renderDisplay draws the session flags, refresh policy and fence counters.
func renderDisplay(s display.Snapshot, fps int, theme Theme, width int) string {
	innerWidth := width - 4

	if s.SessionID == "" {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("DISPLAY"),
			theme.Dim.Render("  Waiting for status..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	flags := strings.Join([]string{
		flag(theme, "paused", s.Flags.DisplayPaused),
		flag(theme, "secure", s.Flags.SecureDisplayActive),
		flag(theme, "skip-prepare", s.Flags.SkipPrepare),
		flag(theme, "boot-done", s.Flags.BootAnimationCompleted),
		flag(theme, "refresh-pending", s.Flags.HandleRefresh),
		flag(theme, "cache", s.CacheInUse),
	}, "  ")

	p := s.Refresh
	force := "off"
	if p.Force != 0 {
		force = fmt.Sprintf("%d Hz", p.Force)
	}
	metadata := "off"
	if p.UseMetadata {
		metadata = fmt.Sprintf("%d Hz", p.Metadata)
	}
	policy := fmt.Sprintf(" %s %d Hz  %s %s  %s %s  %s %d fps",
		theme.Label.Render("current"), p.Current,
		theme.Label.Render("force"), force,
		theme.Label.Render("metadata"), metadata,
		theme.Label.Render("observed"), fps,
	)

	settings := fmt.Sprintf(" %s %v  %s %s  %s %s",
		theme.Label.Render("metadata-enabled"), s.Settings.MetadataRefreshEnable,
		theme.Label.Render("mode"), displayMode(s.Settings),
		theme.Label.Render("solid-fill"), solidFill(s.Settings),
	)

	fences := fmt.Sprintf(" %s %dx%d  %s %d  %s %d out, %d adopted, %d closed, %d released",
		theme.Label.Render("fb"), s.FBWidth, s.FBHeight,
		theme.Label.Render("frames"), s.Frames,
		theme.Label.Render("fences"), s.FencesOutstanding, s.Fences.Adopted, s.Fences.Closed, s.Fences.Released,
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("DISPLAY "+s.DisplayID),
		" "+flags,
		policy,
		settings,
		fences,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func solidFill(s display.Settings) string {
	if !s.SolidFill.Enabled {
		return "off"
	}
	return fmt.Sprintf("#%08x", s.SolidFill.Color)
}

func displayMode(s display.Settings) string {
	if !s.DisplayModeSet {
		return "default"
	}
	return fmt.Sprint(s.DisplayMode)
}
