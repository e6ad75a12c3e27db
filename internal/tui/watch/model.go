package watch

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/events"
)

const eventLogLen = 50

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health   HealthState
	status   display.Snapshot
	rates    RateHistory
	meter    FrameMeter
	activity Activity
	eventLog []events.Event

	theme Theme
	now   func() time.Time

	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 256),
		theme:     NewDefaultTheme(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.activity.Decay(m.now())
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		cmd := m.applyEvent(events.Event(msg))
		m.health.Connected = true
		m.lastError = ""
		return m, tea.Batch(cmd, receiveNextEvent(m.hubEvents))

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.SessionID = msg.SessionID
		m.health.RefreshRate = msg.RefreshRate
		m.health.DroppedEvents = msg.DroppedEvents
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case statusMsg:
		m.status = display.Snapshot(msg)

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

// applyEvent folds one event into the model. Frame events only feed the
// meters; everything else is logged and triggers a status refresh.
func (m *Model) applyEvent(e events.Event) tea.Cmd {
	if rate, ok := rateFromEvent(e.Data); ok {
		m.rates.Add(rate)
		m.status.Refresh.Current = rate
	}
	if e.Type == display.EventFrame {
		m.meter.Observe(e.At)
		m.status.Frames++
		return nil
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > eventLogLen {
		m.eventLog = m.eventLog[:eventLogLen]
	}
	m.activity.OnEvent(e.At)

	return func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) }
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to hwcd..."
	}
	now := m.now()

	header := renderHeader(m.health, m.activity, m.theme, m.width, now)
	panel := renderDisplay(m.status, m.meter.FPS(now), m.theme, m.width)
	rates := renderRates(m.rates, m.status.Refresh.Min, m.status.Refresh.Max, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	parts := []string{header, panel, rates, eventStream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [r] Refresh status"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
