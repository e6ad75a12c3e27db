package watch

import (
	"encoding/json"
	"fmt"
	"strings"
)

const rateHistoryLen = 60

// RateHistory keeps the refresh rate reported by recent frame and refresh
// events, oldest first.
type RateHistory struct {
	rates []uint32
}

func (h *RateHistory) Add(rate uint32) {
	h.rates = append(h.rates, rate)
	if len(h.rates) > rateHistoryLen {
		h.rates = h.rates[len(h.rates)-rateHistoryLen:]
	}
}

// Last returns the most recent rate, 0 when nothing was seen.
func (h RateHistory) Last() uint32 {
	if len(h.rates) == 0 {
		return 0
	}
	return h.rates[len(h.rates)-1]
}

// rateFromEvent extracts refresh_rate from a frame or refresh payload.
func rateFromEvent(data []byte) (uint32, bool) {
	var p struct {
		RefreshRate *uint32 `json:"refresh_rate"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RefreshRate == nil {
		return 0, false
	}
	return *p.RefreshRate, true
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// sparkline scales rates between lo and hi onto block characters.
func sparkline(rates []uint32, lo, hi uint32) string {
	if len(rates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range rates {
		idx := 0
		if hi > lo && r > lo {
			idx = int(uint64(r-lo) * uint64(len(sparks)-1) / uint64(hi-lo))
		}
		if idx >= len(sparks) {
			idx = len(sparks) - 1
		}
		b.WriteRune(sparks[idx])
	}
	return b.String()
}

func renderRates(h RateHistory, min, max uint32, theme Theme, width int) string {
	innerWidth := width - 4

	line := theme.Dim.Render("  Waiting for frames...")
	if len(h.rates) > 0 {
		line = fmt.Sprintf(" %s %s",
			theme.Bar.Render(sparkline(h.rates, min, max)),
			theme.Highlight.Render(fmt.Sprintf("%d Hz", h.Last())),
		)
	}
	bounds := theme.Dim.Render(fmt.Sprintf(" panel %d..%d Hz", min, max))

	content := strings.Join([]string{theme.Title.Render("REFRESH RATE"), line, bounds}, "\n")
	return theme.Border.Width(innerWidth).Render(content)
}
