package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
)

// ErrRateUnsupported is returned by Sim for refresh rates outside the panel range.
var ErrRateUnsupported = errors.New("refresh rate not supported by panel")

// SimStatus is a point-in-time view of the simulated hardware.
type SimStatus struct {
	Commits       int
	Flushes       int
	RefreshRate   uint32
	DisplayMode   uint32
	FBWidth       uint32
	FBHeight      uint32
	LastPlanes    int
	LastGPULayers int
	SolidFill     layer.SolidFill
}

// Sim is an in-memory display driver used when no hardware is attached.
// It waits on acquire fences by closing them. Every post-commit hands back an
// already signaled retire fence; release fences are never produced.
type Sim struct {
	attrs    Attributes
	logger   *slog.Logger
	closer   func(fd int) error
	signaled func() (int, error)

	mu       sync.Mutex
	status   SimStatus
	failures map[string]error
}

// NewSim returns a simulated driver for a panel with attrs.
func NewSim(attrs Attributes, logger *slog.Logger) *Sim {
	return &Sim{
		attrs:    attrs,
		logger:   logger.With("component", "sim-driver"),
		closer:   unix.Close,
		signaled: signaledFence,
		failures: make(map[string]error),
		status:   SimStatus{RefreshRate: attrs.MaxRefreshRate},
	}
}

// FailNext makes the next call to method return err.
func (s *Sim) FailNext(method string, err error) {
	s.mu.Lock()
	s.failures[method] = err
	s.mu.Unlock()
}

// Status returns the current simulated hardware state.
func (s *Sim) Status() SimStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sim) takeFailure(method string) error {
	err, ok := s.failures[method]
	if !ok {
		return nil
	}
	delete(s.failures, method)
	return err
}

func (s *Sim) Attributes() (Attributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("Attributes"); err != nil {
		return Attributes{}, err
	}
	return s.attrs, nil
}

func (s *Sim) SetFrameBufferResolution(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("SetFrameBufferResolution"); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("invalid framebuffer resolution %dx%d", width, height)
	}
	s.status.FBWidth, s.status.FBHeight = width, height
	return nil
}

func (s *Sim) CommitLayerStack(stack *layer.Stack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("CommitLayerStack"); err != nil {
		return err
	}

	planes, gpu := 0, 0
	for _, l := range stack.Layers {
		switch l.Composition {
		case layer.CompositionHWPlane:
			planes++
		case layer.CompositionGPU:
			gpu++
		}
		s.wait(l.AcquireFence)
	}
	s.wait(stack.Output.AcquireFence)

	s.status.Commits++
	s.status.LastPlanes = planes
	s.status.LastGPULayers = gpu
	s.status.SolidFill = stack.SolidFill
	return nil
}

// wait takes ownership of f and, with nothing to scan out, drops it at once.
func (s *Sim) wait(f *fence.Fence) {
	fd := f.Release()
	if fd < 0 {
		return
	}
	if err := s.closer(fd); err != nil {
		s.logger.Warn("close acquire fence failed", "fd", fd, "error", err)
	}
}

func (s *Sim) PostCommitLayerStack(stack *layer.Stack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("PostCommitLayerStack"); err != nil {
		return err
	}
	for _, l := range stack.Layers {
		l.ReleaseFenceFD = fence.Invalid
	}
	stack.RetireFenceFD = fence.Invalid

	fd, err := s.signaled()
	if err != nil {
		s.logger.Warn("creating retire fence failed", "error", err)
		return nil
	}
	stack.RetireFenceFD = fd
	return nil
}

// signaledFence returns an eventfd whose counter is already non-zero, so a
// poll on it completes at once.
func signaledFence() (int, error) {
	return unix.Eventfd(1, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

func (s *Sim) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("Flush"); err != nil {
		return err
	}
	s.status.Flushes++
	return nil
}

func (s *Sim) SetRefreshRate(rate uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("SetRefreshRate"); err != nil {
		return err
	}
	if rate < s.attrs.MinRefreshRate || rate > s.attrs.MaxRefreshRate {
		return fmt.Errorf("%w: %d", ErrRateUnsupported, rate)
	}
	if rate != s.status.RefreshRate {
		s.logger.Debug("refresh rate changed", "from", s.status.RefreshRate, "to", rate)
	}
	s.status.RefreshRate = rate
	return nil
}

func (s *Sim) SetDisplayMode(mode uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("SetDisplayMode"); err != nil {
		return err
	}
	s.status.DisplayMode = mode
	return nil
}

func (s *Sim) ApplyDefaultDisplayMode() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ApplyDefaultDisplayMode"); err != nil {
		return err
	}
	s.status.DisplayMode = 0
	return nil
}
