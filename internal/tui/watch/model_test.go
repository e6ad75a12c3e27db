package watch

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/events"
)

func testModel(now time.Time) Model {
	m := New("http://127.0.0.1:0", "key")
	m.now = func() time.Time { return now }
	return *m
}

func ev(typ string, at time.Time, data string) events.Event {
	return events.Event{Type: typ, At: at, Data: json.RawMessage(data)}
}

func TestFrameEventsFeedMetersOnly(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := testModel(now)

	for i := 0; i < 3; i++ {
		at := now.Add(time.Duration(i-3) * 100 * time.Millisecond)
		if cmd := m.applyEvent(ev(display.EventFrame, at, `{"frame":1,"refresh_rate":60}`)); cmd != nil {
			t.Fatal("frame events should not trigger a status fetch")
		}
	}

	if len(m.eventLog) != 0 {
		t.Fatalf("frame events should not be logged, got %d", len(m.eventLog))
	}
	if m.status.Frames != 3 {
		t.Fatalf("expected 3 frames, got %d", m.status.Frames)
	}
	if got := m.meter.FPS(now); got != 3 {
		t.Fatalf("expected 3 fps, got %d", got)
	}
	if m.rates.Last() != 60 || m.status.Refresh.Current != 60 {
		t.Fatalf("expected rate 60, got %d/%d", m.rates.Last(), m.status.Refresh.Current)
	}
}

func TestNonFrameEventsAreLogged(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := testModel(now)

	cmd := m.applyEvent(ev(display.EventRefresh, now, `{"result":"invalidated","refresh_rate":30}`))
	if cmd == nil {
		t.Fatal("expected a status fetch command")
	}
	if len(m.eventLog) != 1 || m.eventLog[0].Type != display.EventRefresh {
		t.Fatalf("unexpected event log: %+v", m.eventLog)
	}
	if m.rates.Last() != 30 {
		t.Fatalf("expected rate 30, got %d", m.rates.Last())
	}
	if !m.activity.LastEvent().Equal(now) {
		t.Fatalf("activity not updated")
	}

	for i := 0; i < eventLogLen+5; i++ {
		m.applyEvent(ev(display.EventPerform, now, `{"operation":"set_display_mode","status":"ok"}`))
	}
	if len(m.eventLog) != eventLogLen {
		t.Fatalf("expected log capped at %d, got %d", eventLogLen, len(m.eventLog))
	}
}

func TestUpdateHealthAndStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := testModel(now)

	next, _ := m.Update(healthMsg{Status: "ok", SessionID: "abcdef0123", RefreshRate: 60, DroppedEvents: 2})
	m = next.(Model)
	if !m.health.Connected || m.health.SessionID != "abcdef0123" || m.health.DroppedEvents != 2 {
		t.Fatalf("unexpected health: %+v", m.health)
	}

	snap := display.Snapshot{SessionID: "abcdef0123", DisplayID: "primary", FBWidth: 1080, FBHeight: 1920}
	next, _ = m.Update(statusMsg(snap))
	m = next.(Model)
	if m.status.DisplayID != "primary" {
		t.Fatalf("status not applied: %+v", m.status)
	}

	next, _ = m.Update(sseDisconnectedMsg{})
	m = next.(Model)
	if m.health.Connected || m.lastError == "" {
		t.Fatal("expected disconnected state")
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	view := m.View()
	for _, want := range []string{"HWCD WATCH", "abcdef01", "DISPLAY primary", "REFRESH RATE", "EVENT STREAM"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}
}

func TestViewBeforeResize(t *testing.T) {
	m := testModel(time.Now())
	if got := m.View(); got != "Connecting to hwcd..." {
		t.Fatalf("unexpected initial view %q", got)
	}
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 7",
		"event: display.perform",
		`data: {"operation":"force_refresh_rate","status":"ok"}`,
		"",
		"id: 8",
		"event: display.frame",
		`data: {"frame":2}`,
		"",
	}, "\n")

	ch := make(chan events.Event, 4)
	readSSE(bufio.NewScanner(strings.NewReader(stream)), ch)
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != 7 || got[0].Type != display.EventPerform {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].ID != 8 || string(got[1].Data) != `{"frame":2}` {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline([]uint32{30, 45, 60}, 30, 60); got != "▁▄█" {
		t.Fatalf("sparkline = %q", got)
	}
	if got := sparkline([]uint32{60}, 60, 60); got != "▁" {
		t.Fatalf("flat sparkline = %q", got)
	}
	if sparkline(nil, 0, 60) != "" {
		t.Fatal("expected empty sparkline")
	}
}

func TestRateHistoryCapped(t *testing.T) {
	var h RateHistory
	for i := 0; i < rateHistoryLen+10; i++ {
		h.Add(uint32(i))
	}
	if len(h.rates) != rateHistoryLen || h.Last() != rateHistoryLen+9 {
		t.Fatalf("unexpected history: len=%d last=%d", len(h.rates), h.Last())
	}
}

func TestActivityDecay(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var a Activity
	a.OnEvent(start)
	a.Decay(start.Add(5 * time.Second))
	if a.dots != 3 {
		t.Fatalf("expected 3 dots after 5s, got %d", a.dots)
	}
	a.Decay(start.Add(time.Minute))
	if a.dots != 0 {
		t.Fatalf("expected fully decayed, got %d", a.dots)
	}
}

func TestDescribe(t *testing.T) {
	got := describe(ev(display.EventPerform, time.Now(), `{"status":"ok","operation":"set_display_mode"}`))
	if got != "operation=set_display_mode status=ok" {
		t.Fatalf("describe = %q", got)
	}
	if !isFailure(ev(display.EventPerform, time.Now(), `{"status":"error"}`)) {
		t.Fatal("expected failure")
	}
}
