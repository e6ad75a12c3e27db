package display

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hwcd/internal/driver"
	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
	"github.com/mattjoyce/hwcd/internal/log"
	"github.com/mattjoyce/hwcd/internal/metrics"
	"github.com/mattjoyce/hwcd/internal/pipeline"
	"github.com/mattjoyce/hwcd/internal/refresh"
)

// Event types published by a session.
const (
	EventCreated       = "display.created"
	EventDestroyed     = "display.destroyed"
	EventBootCompleted = "display.boot_completed"
	EventFrame         = "display.frame"
	EventFlushed       = "display.flushed"
	EventPerform       = "display.perform"
	EventSecure        = "display.secure"
	EventPaused        = "display.paused"
	EventRefresh       = "display.refresh"
)

// Deps are the collaborators of a session. Driver is required; a nil
// Invalidator, CPUHint, BootProbe, Publisher or Saver disables the feature
// that needs it.
type Deps struct {
	DisplayID   string
	Driver      driver.Driver
	Properties  Properties
	Invalidator Invalidator
	CPUHint     CPUHint
	BootProbe   BootProbe
	Publisher   Publisher
	Saver       SettingsSaver
	Fences      *fence.Tracker
	Pipeline    pipeline.Options
	Logger      *slog.Logger
}

// Flags are the session-wide state bits.
type Flags struct {
	DisplayPaused          bool `json:"display_paused"`
	SecureDisplayActive    bool `json:"secure_display_active"`
	SkipPrepare            bool `json:"skip_prepare"`
	BootAnimationCompleted bool `json:"boot_animation_completed"`
	HandleRefresh          bool `json:"handle_refresh"`
}

// Snapshot is a consistent view of a session for status reporting.
type Snapshot struct {
	SessionID         string         `json:"session_id"`
	DisplayID         string         `json:"display"`
	Flags             Flags          `json:"flags"`
	Refresh           refresh.Policy `json:"refresh"`
	Settings          Settings       `json:"settings"`
	CacheInUse        bool           `json:"cache_in_use"`
	FBWidth           uint32         `json:"fb_width"`
	FBHeight          uint32         `json:"fb_height"`
	Frames            uint64         `json:"frames"`
	FencesOutstanding int            `json:"fences_outstanding"`
	Fences            fence.Stats    `json:"fences"`
}

// Session is the primary display controller. It owns the frame pipeline, the
// refresh-rate arbiter and the session flags, and serializes frames against
// out-of-band calls with one mutex.
type Session struct {
	id        string
	displayID string
	drv       driver.Driver
	props     Properties
	hint      CPUHint
	boot      BootProbe
	pub       Publisher
	saver     SettingsSaver
	fences    *fence.Tracker
	logger    *slog.Logger

	mu        sync.Mutex
	pipe      *pipeline.Pipeline
	arbiter   *refresh.Arbiter
	inv       Invalidator
	flags     Flags
	settings  Settings
	fbWidth   uint32
	fbHeight  uint32
	frames    uint64
	destroyed bool
}

// Create initializes a session for the display behind deps.Driver. On any
// failure the partially initialized session is torn down.
func Create(deps Deps) (*Session, error) {
	if deps.Driver == nil {
		return nil, fmt.Errorf("display session needs a driver")
	}
	if deps.Properties == nil {
		deps.Properties = noProperties{}
	}
	if deps.Fences == nil {
		deps.Fences = fence.NewTracker()
	}
	if deps.Logger == nil {
		deps.Logger = log.Get()
	}
	if deps.DisplayID == "" {
		deps.DisplayID = "primary"
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		displayID: deps.DisplayID,
		drv:       deps.Driver,
		props:     deps.Properties,
		hint:      deps.CPUHint,
		boot:      deps.BootProbe,
		pub:       deps.Publisher,
		saver:     deps.Saver,
		fences:    deps.Fences,
		inv:       deps.Invalidator,
		settings:  DefaultSettings(),
		logger: deps.Logger.With(
			"component", "display",
			"display", deps.DisplayID,
			"session_id", id,
		),
	}

	attrs, err := s.init(deps.Pipeline)
	if err != nil {
		_ = s.Destroy()
		return nil, err
	}

	width, height := attrs.Width, attrs.Height
	w, _ := s.props.GetProperty(PropFBWidth)
	h, _ := s.props.GetProperty(PropFBHeight)
	if w > 0 && h > 0 {
		s.logger.Info("framebuffer size overridden", "panel_width", width, "panel_height", height,
			"width", w, "height", h)
		width, height = uint32(w), uint32(h)
	}

	if err := s.drv.SetFrameBufferResolution(width, height); err != nil {
		_ = s.Destroy()
		return nil, fmt.Errorf("set framebuffer resolution %dx%d: %w", width, height, err)
	}
	s.fbWidth, s.fbHeight = width, height

	s.observe()
	s.publish(EventCreated, map[string]any{"width": width, "height": height})
	s.logger.Info("display session created",
		"width", width, "height", height,
		"min_refresh_rate", attrs.MinRefreshRate, "max_refresh_rate", attrs.MaxRefreshRate)
	return s, nil
}

func (s *Session) init(opts pipeline.Options) (driver.Attributes, error) {
	if s.hint != nil {
		if err := s.hint.Init(s.props); err != nil {
			s.logger.Info("cpu hint disabled", "error", err)
			s.hint = nil
		}
	}

	attrs, err := s.drv.Attributes()
	if err != nil {
		return driver.Attributes{}, fmt.Errorf("query panel attributes: %w", err)
	}
	arbiter, err := refresh.New(s.drv, attrs.MinRefreshRate, attrs.MaxRefreshRate, s.logger)
	if err != nil {
		return driver.Attributes{}, err
	}
	s.arbiter = arbiter
	if s.metadataDisabled() {
		s.arbiter.SetUseMetadata(false)
	}

	s.pipe = pipeline.New(s.drv, s.fences, opts, s.logger)
	s.flags.BootAnimationCompleted = s.boot == nil
	return attrs, nil
}

// Destroy tears the session down and closes every fence still owned.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true

	if s.hint != nil {
		s.hint.Reset()
	}
	err := s.fences.CloseAll()
	metrics.FencesOutstanding.Set(float64(s.fences.Outstanding()))
	s.publish(EventDestroyed, nil)
	s.logger.Info("display session destroyed", "frames", s.frames)
	return err
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// DisplayID returns the id of the display the session drives.
func (s *Session) DisplayID() string { return s.displayID }

// RegisterInvalidator installs the channel used by Refresh. nil unregisters.
func (s *Session) RegisterInvalidator(inv Invalidator) {
	s.mu.Lock()
	s.inv = inv
	s.mu.Unlock()
}

// Prepare runs the prepare phase for contents. On error the input fences of
// contents are closed and Commit must not be called.
func (s *Session) Prepare(contents *layer.Contents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.prepare(contents)
}

// Commit runs the commit phase for a prepared frame.
func (s *Session) Commit(contents *layer.Contents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.commit(contents)
}

// Frame runs one full cycle. After a secure display transition the cycle is
// replaced by a flush; the flush is retried on the next frame if it fails.
func (s *Session) Frame(contents *layer.Contents) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}

	if s.flags.SkipPrepare {
		if err := s.pipe.Flush(contents); err != nil {
			metrics.FramesTotal.WithLabelValues("flush", "error").Inc()
			s.logger.Error("flush after secure transition failed", "error", err)
			return err
		}
		s.flags.SkipPrepare = false
		metrics.FramesTotal.WithLabelValues("flush", "ok").Inc()
		s.publish(EventFlushed, nil)
		s.observe()
		return nil
	}

	if err := s.prepare(contents); err != nil {
		return err
	}
	if err := s.commit(contents); err != nil {
		return err
	}
	metrics.FrameDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (s *Session) prepare(contents *layer.Contents) error {
	if !s.flags.BootAnimationCompleted {
		s.processBootAnimCompleted()
	}

	if s.flags.DisplayPaused {
		_, err := s.pipe.Prepare(contents, true)
		return err
	}

	res, err := s.pipe.Prepare(contents, false)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("prepare", "error").Inc()
		s.logger.Warn("prepare failed", "error", err)
		s.dropInputs(contents)
		return err
	}

	s.flags.HandleRefresh = res.HandleRefresh
	s.arbiter.SetMetadataRate(res.MetadataRate)
	metrics.GPULayers.Set(float64(res.GPULayers))
	metrics.FramesTotal.WithLabelValues("prepare", "ok").Inc()
	return nil
}

func (s *Session) commit(contents *layer.Contents) error {
	if s.flags.DisplayPaused {
		_, err := s.pipe.Commit(contents, true)
		metrics.FramesTotal.WithLabelValues("commit", "paused").Inc()
		s.observe()
		return err
	}

	res, err := s.pipe.Commit(contents, false)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("commit", "error").Inc()
		s.logger.Error("commit failed", "error", err)
		s.dropInputs(contents)
		return err
	}

	s.arbiter.SetMetadataRefreshRate(res.OneUpdatingLayer)
	s.toggleCPUHint(res.OneUpdatingLayer)
	s.frames++

	metrics.FramesTotal.WithLabelValues("commit", "ok").Inc()
	s.observe()
	s.publish(EventFrame, map[string]any{
		"frame":              s.frames,
		"one_updating_layer": res.OneUpdatingLayer,
		"refresh_rate":       s.arbiter.Current(),
	})
	return nil
}

func (s *Session) processBootAnimCompleted() {
	if !s.boot.Completed() {
		return
	}
	s.flags.BootAnimationCompleted = true
	if err := s.drv.ApplyDefaultDisplayMode(); err != nil {
		s.logger.Error("applying default display mode failed", "error", err)
	}
	s.logger.Info("boot animation completed, default display mode applied")
	s.publish(EventBootCompleted, nil)
}

func (s *Session) toggleCPUHint(set bool) {
	if s.hint == nil {
		return
	}
	if set {
		s.hint.Set()
	} else {
		s.hint.Reset()
	}
}

// Perform dispatches an out-of-band operation. Unknown operations fail with
// ErrInvalidArgument and leave the session untouched. A rejected forced rate
// returns an error wrapping ErrApply; the display keeps running at max.
func (s *Session) Perform(op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.perform(op)
}

func (s *Session) perform(op Operation) error {
	var err error
	switch o := op.(type) {
	case SetMetadataRefreshEnable:
		if s.metadataDisabled() {
			s.logger.Debug("metadata refresh toggle ignored", "property", PropDisableMetadataDynFPS)
			metrics.OperationsTotal.WithLabelValues(o.Tag().String(), "ignored").Inc()
			return nil
		}
		s.arbiter.SetUseMetadata(o.Enable)
	case ForceRefreshRate:
		err = s.arbiter.ForceRefreshRate(o.Rate)
		// Out-of-range requests are ignored, failed ones cleared; record what stuck.
		op = ForceRefreshRate{Rate: s.arbiter.Policy().Force}
	case SetDisplayMode:
		if derr := s.drv.SetDisplayMode(o.Mode); derr != nil {
			err = fmt.Errorf("set display mode %d: %w", o.Mode, derr)
		}
	case SetSolidFill:
		s.pipe.SetSolidFill(layer.SolidFill{Enabled: o.Enable, Color: o.Color})
	default:
		s.logger.Warn("invalid operation", "operation", fmt.Sprintf("%T", op))
		metrics.OperationsTotal.WithLabelValues("unknown", "invalid").Inc()
		return fmt.Errorf("%w: operation %T", ErrInvalidArgument, op)
	}

	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Warn("operation failed", "operation", op.Tag().String(), "error", err)
	}
	if err == nil || errors.Is(err, refresh.ErrApply) {
		s.settings.apply(op)
		s.save()
	}

	metrics.OperationsTotal.WithLabelValues(op.Tag().String(), status).Inc()
	s.observe()
	s.publish(EventPerform, map[string]any{"operation": op.Tag().String(), "status": status})
	return err
}

// Restore replays persisted settings on a fresh session.
func (s *Session) Restore(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}

	var errs []error
	for _, op := range settings.Operations() {
		if err := s.perform(op); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("display settings restored", "operations", len(settings.Operations()))
	return errors.Join(errs...)
}

// SetSecureDisplay records the security state of the content. Only a change
// of state schedules a flush in place of the next frame.
func (s *Session) SetSecureDisplay(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags.SecureDisplayActive == active {
		return
	}
	s.logger.Info("secure display state changed, flush required",
		"from", s.flags.SecureDisplayActive, "to", active)
	s.flags.SecureDisplayActive = active
	s.flags.SkipPrepare = true
	s.observe()
	s.publish(EventSecure, map[string]any{"active": active})
}

// SetPaused pauses or resumes composition. A paused display bypasses the GPU
// and forwards the output fence without composing.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags.DisplayPaused == paused {
		return
	}
	s.flags.DisplayPaused = paused
	s.logger.Info("display pause state changed", "paused", paused)
	s.observe()
	s.publish(EventPaused, map[string]any{"paused": paused})
}

// Refresh handles an out-of-band refresh request. It notifies the
// invalidator only if the last prepare asked for one (otherwise
// ErrNotSupported is returned), and in both cases drops the refresh rate to
// the forced rate or the panel minimum.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if s.inv == nil {
		metrics.RefreshRequestsTotal.WithLabelValues("no_invalidator").Inc()
		return ErrParameters
	}

	var err error
	result := "invalidated"
	if !s.flags.HandleRefresh {
		err = ErrNotSupported
		result = "not_supported"
	} else {
		s.inv.Invalidate()
		metrics.InvalidatesTotal.Inc()
	}

	// The rate is dropped even when no invalidate was pending.
	s.arbiter.ApplyIdleRate()

	metrics.RefreshRequestsTotal.WithLabelValues(result).Inc()
	s.observe()
	s.publish(EventRefresh, map[string]any{"result": result, "refresh_rate": s.arbiter.Current()})
	return err
}

// RefreshRate returns the current refresh rate.
func (s *Session) RefreshRate() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arbiter.Current()
}

// Snapshot returns the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:         s.id,
		DisplayID:         s.displayID,
		Flags:             s.flags,
		Refresh:           s.arbiter.Policy(),
		Settings:          s.settings,
		CacheInUse:        s.pipe.Cache().InUse,
		FBWidth:           s.fbWidth,
		FBHeight:          s.fbHeight,
		Frames:            s.frames,
		FencesOutstanding: s.fences.Outstanding(),
		Fences:            s.fences.Stats(),
	}
}

func (s *Session) metadataDisabled() bool {
	v, _ := s.props.GetProperty(PropDisableMetadataDynFPS)
	return v != 0
}

func (s *Session) dropInputs(contents *layer.Contents) {
	if err := contents.CloseInputs(); err != nil {
		s.logger.Warn("closing input fences failed", "error", err)
	}
}

func (s *Session) save() {
	if s.saver == nil {
		return
	}
	if err := s.saver.SaveSettings(s.displayID, s.settings); err != nil {
		s.logger.Warn("saving display settings failed", "error", err)
	}
}

func (s *Session) publish(eventType string, data any) {
	if s.pub == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	if m, ok := data.(map[string]any); ok {
		m["display"] = s.displayID
	}
	s.pub.Publish(eventType, data)
}

func (s *Session) observe() {
	p := s.arbiter.Policy()
	metrics.RefreshRate.Set(float64(p.Current))
	metrics.ForceRefreshRate.Set(float64(p.Force))
	metrics.FencesOutstanding.Set(float64(s.fences.Outstanding()))
	metrics.SessionFlag.WithLabelValues("display_paused").Set(metrics.Bool(s.flags.DisplayPaused))
	metrics.SessionFlag.WithLabelValues("secure_display_active").Set(metrics.Bool(s.flags.SecureDisplayActive))
	metrics.SessionFlag.WithLabelValues("skip_prepare").Set(metrics.Bool(s.flags.SkipPrepare))
	metrics.SessionFlag.WithLabelValues("boot_animation_completed").Set(metrics.Bool(s.flags.BootAnimationCompleted))
	metrics.SessionFlag.WithLabelValues("handle_refresh").Set(metrics.Bool(s.flags.HandleRefresh))
}

type noProperties struct{}

func (noProperties) GetProperty(string) (int, bool) { return 0, false }
