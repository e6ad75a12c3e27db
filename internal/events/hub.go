package events

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mattjoyce/hwcd/internal/metrics"
)

// Event is one published display event.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

type subscriber struct {
	ch       chan Event
	prefixes []string
}

func (s subscriber) wants(eventType string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	clock   clockwork.Clock
	nextID  atomic.Int64
	dropped atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]subscriber
	nextSubID int
}

// NewHub creates a Hub that keeps the last capacity events.
func NewHub(capacity int) *Hub {
	return NewHubWithClock(capacity, clockwork.NewRealClock())
}

// NewHubWithClock is NewHub with an explicit clock for event timestamps.
func NewHubWithClock(capacity int, clock clockwork.Clock) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		clock: clock,
		ring:  make([]Event, capacity),
		subs:  make(map[int]subscriber),
	}
}

// Publish records an event and fans it out. data is marshalled to JSON; a
// nil or unmarshallable payload becomes {}.
func (h *Hub) Publish(eventType string, data any) {
	id := h.nextID.Add(1)

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   h.clock.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, sub := range h.subs {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			metrics.EventsDroppedTotal.Inc()
		}
	}
	h.mu.Unlock()
}

// Subscribe returns a channel of future events whose type starts with one of
// prefixes (all events when none are given) and a cancel func that closes it.
func (h *Hub) Subscribe(prefixes ...string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = subscriber{ch: ch, prefixes: prefixes}

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
