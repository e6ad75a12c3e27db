package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mattjoyce/hwcd/internal/display"
)

// fallbackRate paces frames while the display reports no rate.
const fallbackRate = 60

// Scheduler drives the display at its current refresh rate and fires the
// idle refresh once content has been static for the idle timeout.
type Scheduler struct {
	display Display
	source  Source
	clock   clockwork.Clock
	idle    time.Duration
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup

	lastUpdate time.Time
	idleFired  bool
	frames     uint64
	static     uint64
}

// New creates a Scheduler. An idleTimeout of zero disables the idle refresh.
func New(d Display, source Source, clock clockwork.Clock, idleTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		display: d,
		source:  source,
		clock:   clock,
		idle:    idleTimeout,
		logger:  logger.With("component", "scheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the vsync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", "idle_timeout", s.idle)
	s.lastUpdate = s.clock.Now()

	s.wg.Add(1)
	go s.vsyncLoop(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped", "frames", s.frames, "static_vsyncs", s.static)
}

// period is the vsync interval at the display's current rate.
func (s *Scheduler) period() time.Duration {
	rate := s.display.RefreshRate()
	if rate == 0 {
		rate = fallbackRate
	}
	return time.Second / time.Duration(rate)
}

func (s *Scheduler) vsyncLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := s.clock.NewTimer(s.period())
	defer timer.Stop()

	for {
		select {
		case <-timer.Chan():
			if !s.tick() {
				return
			}
			// The rate may have moved during the frame.
			timer.Reset(s.period())
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Warn("Scheduler context cancelled, stopping vsync loop")
			return
		}
	}
}

// tick composes one frame if the source posted new content. A static vsync
// only releases the request: the panel keeps scanning out the last frame and
// the refresh rate is left where the arbiter put it. It returns false once
// the display is gone.
func (s *Scheduler) tick() bool {
	now := s.clock.Now()

	contents, changed, err := s.source.Next()
	if err != nil {
		s.logger.Error("Failed to build frame", "error", err)
		return true
	}

	if !changed {
		s.source.Release(contents)
		s.static++
		if s.idle > 0 && !s.idleFired && now.Sub(s.lastUpdate) >= s.idle {
			s.idleFired = true
			return s.idleRefresh()
		}
		return true
	}

	s.lastUpdate = now
	s.idleFired = false

	err = s.display.Frame(contents)
	s.source.Release(contents)
	s.frames++
	switch {
	case errors.Is(err, display.ErrDestroyed):
		s.logger.Info("Display destroyed, stopping vsync loop")
		return false
	case err != nil:
		s.logger.Warn("Frame failed", "frame", s.frames, "error", err)
	}
	return true
}

// idleRefresh asks the display to redraw at its idle rate. An invalidate
// shows up as changed content on the next vsync.
func (s *Scheduler) idleRefresh() bool {
	err := s.display.Refresh()
	switch {
	case err == nil:
		s.logger.Debug("Idle refresh", "refresh_rate", s.display.RefreshRate())
	case errors.Is(err, display.ErrNotSupported), errors.Is(err, display.ErrParameters):
		// Nothing to redraw.
		s.logger.Debug("Idle refresh skipped", "reason", err)
	case errors.Is(err, display.ErrDestroyed):
		s.logger.Info("Display destroyed, stopping vsync loop")
		return false
	default:
		s.logger.Warn("Idle refresh failed", "error", err)
	}
	return true
}
