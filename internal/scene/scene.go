// Package scene synthesizes frame requests for the simulated driver: a fixed
// set of layers whose buffers advance at configured intervals, each update
// carrying an already-signaled acquire fence.
package scene

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/hwcd/internal/config"
	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
)

// Source produces one layer.Contents per vsync.
type Source struct {
	mu      sync.Mutex
	layers  []config.SceneLayer
	screen  layer.Rect
	fences  *fence.Tracker
	newFD   func() (int, error)
	logger  *slog.Logger
	frame   uint64
	buffers []uint64
	redraw  bool
	started bool
}

// New creates a Source for a width x height panel.
func New(cfg config.SceneConfig, width, height uint32, fences *fence.Tracker, logger *slog.Logger) *Source {
	return &Source{
		layers:  cfg.Layers,
		screen:  layer.Rect{Right: int32(width), Bottom: int32(height)},
		fences:  fences,
		newFD:   signaledFD,
		logger:  logger.With("component", "scene"),
		buffers: make([]uint64, len(cfg.Layers)),
	}
}

func signaledFD() (int, error) {
	return unix.Eventfd(1, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

// Invalidate makes every layer post a new buffer on the next frame.
func (s *Source) Invalidate() {
	s.mu.Lock()
	s.redraw = true
	s.mu.Unlock()
}

// Next builds the next frame request. changed reports whether any layer
// posted a new buffer. On error no fences are left open.
func (s *Source) Next() (contents *layer.Contents, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame++
	contents = &layer.Contents{GeometryChanged: !s.started}
	defer func() {
		if err != nil {
			_ = contents.CloseAll()
			contents = nil
		}
	}()

	for i, cfg := range s.layers {
		l := &layer.Layer{
			DisplayFrame: cfg.Frame,
			SourceCrop:   layer.Rect{Right: cfg.Frame.Width(), Bottom: cfg.Frame.Height()},
			FrameRate:    cfg.FrameRate,
			Flags:        flags(cfg),
		}
		if s.updates(cfg) {
			s.buffers[i]++
			changed = true
			if l.AcquireFence, err = s.signaled(); err != nil {
				return contents, false, fmt.Errorf("layer %s: %w", cfg.Name, err)
			}
		}
		l.BufferID = uint64(i+1)<<32 | s.buffers[i]
		contents.Layers = append(contents.Layers, l)
	}

	contents.Layers = append(contents.Layers, &layer.Layer{
		Composition:  layer.CompositionTarget,
		DisplayFrame: s.screen,
		SourceCrop:   s.screen,
	})
	if contents.OutbufAcquireFence, err = s.signaled(); err != nil {
		return contents, false, fmt.Errorf("output buffer: %w", err)
	}

	s.started = true
	s.redraw = false
	return contents, changed, nil
}

// Release drops every fence the finished frame still holds.
func (s *Source) Release(contents *layer.Contents) {
	if err := contents.CloseAll(); err != nil {
		s.logger.Warn("failed to release frame fences", "error", err)
	}
}

func (s *Source) updates(cfg config.SceneLayer) bool {
	if s.redraw || !s.started {
		return true
	}
	return cfg.UpdateEvery > 0 && s.frame%uint64(cfg.UpdateEvery) == 0
}

func (s *Source) signaled() (*fence.Fence, error) {
	fd, err := s.newFD()
	if err != nil {
		return nil, fmt.Errorf("create acquire fence: %w", err)
	}
	return s.fences.Adopt(fd), nil
}

func flags(cfg config.SceneLayer) layer.Flags {
	var f layer.Flags
	if cfg.Skip {
		f |= layer.FlagSkip
	}
	if cfg.Hidden {
		f |= layer.FlagHidden
	}
	if cfg.Secure {
		f |= layer.FlagSecure
	}
	return f
}
