package watch

import (
	"strings"
	"time"
)

// FrameMeter estimates the observed frame rate from display.frame events
// over a sliding one second window.
type FrameMeter struct {
	stamps []time.Time
}

func (f *FrameMeter) Observe(at time.Time) {
	f.stamps = append(f.stamps, at)
	f.trim(at)
}

func (f *FrameMeter) trim(now time.Time) {
	cut := 0
	for cut < len(f.stamps) && now.Sub(f.stamps[cut]) > time.Second {
		cut++
	}
	f.stamps = f.stamps[cut:]
}

// FPS returns the number of frames seen in the second before now.
func (f *FrameMeter) FPS(now time.Time) int {
	f.trim(now)
	return len(f.stamps)
}

// Activity lights up on non-frame events and fades over ten seconds.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) {
	a.dots = 5
	a.lastEvent = at
}

func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	a.dots = 5 - int(now.Sub(a.lastEvent)/(2*time.Second))
	if a.dots < 0 {
		a.dots = 0
	}
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.FlagOn.Render("●"))
		} else {
			b.WriteString(theme.FlagOff.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}
