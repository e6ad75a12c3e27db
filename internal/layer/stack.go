package layer

import (
	"errors"

	"github.com/mattjoyce/hwcd/internal/fence"
)

// SolidFill is the diagnostic override that paints the whole display with
// one color instead of the layer contents.
type SolidFill struct {
	Enabled bool   `json:"enabled"`
	Color   uint32 `json:"color"`
}

// StackLayer is the driver-facing view of one layer.
type StackLayer struct {
	Composition  Composition
	DisplayFrame Rect
	SourceCrop   Rect
	Flags        Flags
	BufferID     uint64
	Updating     bool

	// AcquireFence is moved in at commit. The driver takes it with Release.
	AcquireFence *fence.Fence
	// ReleaseFenceFD is filled in by the driver at post-commit.
	ReleaseFenceFD int
}

// OutputBuffer describes the framebuffer target the GPU layers land in.
type OutputBuffer struct {
	Width        uint32
	Height       uint32
	AcquireFence *fence.Fence
}

// Stack is the validated per-frame layer stack handed to the driver.
type Stack struct {
	Layers          []*StackLayer
	Output          OutputBuffer
	SolidFill       SolidFill
	GeometryChanged bool

	// RetireFenceFD is filled in by the driver at post-commit.
	RetireFenceFD int
}

// AppLayers returns the stack layers excluding the framebuffer target.
func (s *Stack) AppLayers() []*StackLayer {
	if len(s.Layers) == 0 {
		return nil
	}
	return s.Layers[:len(s.Layers)-1]
}

// UpdatingCount returns the number of application layers that changed since
// the previous frame.
func (s *Stack) UpdatingCount() int {
	n := 0
	for _, l := range s.AppLayers() {
		if l.Updating {
			n++
		}
	}
	return n
}

// CloseUnclaimed closes every acquire fence the driver did not take and drops
// any output descriptors the driver produced that nobody adopted.
func (s *Stack) CloseUnclaimed(t *fence.Tracker) error {
	var errs []error
	for _, l := range s.Layers {
		errs = append(errs, ignoreConsumed(l.AcquireFence.Close()))
		l.AcquireFence = nil
		if l.ReleaseFenceFD >= 0 {
			errs = append(errs, t.Adopt(l.ReleaseFenceFD).Close())
			l.ReleaseFenceFD = fence.Invalid
		}
	}
	errs = append(errs, ignoreConsumed(s.Output.AcquireFence.Close()))
	s.Output.AcquireFence = nil
	if s.RetireFenceFD >= 0 {
		errs = append(errs, t.Adopt(s.RetireFenceFD).Close())
		s.RetireFenceFD = fence.Invalid
	}
	return errors.Join(errs...)
}

// Cache is the state carried from one frame to the next.
type Cache struct {
	// InUse reports whether the framebuffer holds GPU-composed content that
	// is still valid for reuse.
	InUse bool
	// BufferIDs are the application layer buffers of the last committed frame.
	BufferIDs []uint64
}
