package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SessionID     string `json:"session_id"`
	RefreshRate   uint32 `json:"refresh_rate"`
	DroppedEvents int64  `json:"dropped_events"`
}

type statusMsg display.Snapshot

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// streamTypes are the event prefixes the watch view consumes.
const streamTypes = "display.,properties."

// --- Commands ---

// subscribeToEvents connects to /events and feeds parsed events into ch.
// It returns sseDisconnectedMsg when the stream ends.
func subscribeToEvents(apiURL, apiKey string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events?type="+streamTypes, nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events: %s", resp.Status))
		}

		readSSE(bufio.NewScanner(resp.Body), ch)
		return sseDisconnectedMsg{}
	}
}

// readSSE parses SSE frames until the scanner is exhausted.
func readSSE(scanner *bufio.Scanner, ch chan<- events.Event) {
	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data != nil {
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				ch <- cur
			}
			cur = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = json.RawMessage(line[6:])
		}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func getJSON(apiURL, apiKey, path string, v any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// fetchHealth queries /healthz.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	var h healthMsg
	if err := getJSON(apiURL, apiKey, "/healthz", &h); err != nil {
		return errMsg(err)
	}
	return h
}

// fetchStatus queries the session snapshot.
func fetchStatus(apiURL, apiKey string) tea.Msg {
	var s display.Snapshot
	if err := getJSON(apiURL, apiKey, "/display/", &s); err != nil {
		return errMsg(err)
	}
	return statusMsg(s)
}
