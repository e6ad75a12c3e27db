// Package cpuhint raises a CPU performance hint while the display shows a
// sustained single-layer update workload, such as video playback.
package cpuhint

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/hwcd/internal/display"
	"github.com/mattjoyce/hwcd/internal/metrics"
)

// WindowProperty holds the number of consecutive single-layer frames that
// must be seen before the hint is raised.
const WindowProperty = "sdm.perf_hint_window"

var _ display.CPUHint = (*Hint)(nil)

// ErrUnavailable means the hint cannot be used on this system.
var ErrUnavailable = errors.New("cpu hint unavailable")

// Lock is the platform performance lock the hint drives.
type Lock interface {
	Acquire() (handle int, err error)
	Release(handle int) error
}

// Hint tracks consecutive single-layer frames and holds the performance lock
// once the pre-enable window has elapsed.
type Hint struct {
	lock   Lock
	logger *slog.Logger

	mu        sync.Mutex
	enabled   bool
	window    int
	countdown int
	handle    int
	acquired  bool
}

// New returns a Hint backed by lock. It stays disabled until Init succeeds.
func New(lock Lock, logger *slog.Logger) *Hint {
	return &Hint{
		lock:   lock,
		logger: logger.With("component", "cpuhint"),
	}
}

// Init reads the pre-enable window. A missing lock or a window <= 0 leaves the
// hint disabled and returns ErrUnavailable.
func (h *Hint) Init(props display.Properties) error {
	if h.lock == nil {
		return fmt.Errorf("%w: no performance lock", ErrUnavailable)
	}
	window, _ := props.GetProperty(WindowProperty)
	if window <= 0 {
		return fmt.Errorf("%w: %s=%d", ErrUnavailable, WindowProperty, window)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.window = window
	h.countdown = window
	h.enabled = true
	h.logger.Info("cpu hint enabled", "window", window)
	return nil
}

// Set records one more single-layer frame and acquires the lock once the
// window has run out.
func (h *Hint) Set() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled || h.acquired {
		return
	}
	if h.countdown > 0 {
		h.countdown--
		return
	}

	handle, err := h.lock.Acquire()
	if err != nil {
		h.logger.Warn("acquiring performance lock failed", "error", err)
		return
	}
	h.handle = handle
	h.acquired = true
	metrics.CPUHintActive.Set(1)
	h.logger.Debug("performance lock acquired", "handle", handle)
}

// Reset restarts the window and drops the lock if it is held.
func (h *Hint) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return
	}
	h.countdown = h.window
	if !h.acquired {
		return
	}
	if err := h.lock.Release(h.handle); err != nil {
		h.logger.Warn("releasing performance lock failed", "handle", h.handle, "error", err)
	}
	h.acquired = false
	metrics.CPUHintActive.Set(0)
	h.logger.Debug("performance lock released", "handle", h.handle)
}

// Active reports whether the lock is currently held.
func (h *Hint) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acquired
}

// LogLock is a Lock for systems without a platform performance service. It
// only hands out handles and logs transitions.
type LogLock struct {
	logger *slog.Logger

	mu   sync.Mutex
	next int
}

// NewLogLock returns a LogLock.
func NewLogLock(logger *slog.Logger) *LogLock {
	return &LogLock{logger: logger.With("component", "perf-lock")}
}

func (l *LogLock) Acquire() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.logger.Info("performance hint raised", "handle", l.next)
	return l.next, nil
}

func (l *LogLock) Release(handle int) error {
	l.logger.Info("performance hint dropped", "handle", handle)
	return nil
}
