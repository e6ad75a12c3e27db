package layer

import (
	"errors"

	"github.com/mattjoyce/hwcd/internal/fence"
)

// Composition says how a layer reaches the screen.
type Composition int

const (
	// CompositionGPU layers are rendered by the client into the framebuffer target.
	CompositionGPU Composition = iota
	// CompositionHWPlane layers are scanned out directly from a hardware plane.
	CompositionHWPlane
	// CompositionTarget marks the framebuffer target, always the last layer.
	CompositionTarget
)

func (c Composition) String() string {
	switch c {
	case CompositionGPU:
		return "gpu"
	case CompositionHWPlane:
		return "hw_plane"
	case CompositionTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Flags carry per-layer hints from the client.
type Flags uint32

const (
	// FlagSkip forces GPU composition for the layer.
	FlagSkip Flags = 1 << iota
	// FlagHidden layers are not shown and consume no plane.
	FlagHidden
	// FlagSecure layers must never be GPU composed.
	FlagSecure
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Rect is a rectangle in display coordinates. Right and Bottom are exclusive.
type Rect struct {
	Left   int32 `json:"left" yaml:"left"`
	Top    int32 `json:"top" yaml:"top"`
	Right  int32 `json:"right" yaml:"right"`
	Bottom int32 `json:"bottom" yaml:"bottom"`
}

func (r Rect) Width() int32  { return r.Right - r.Left }
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// Valid reports whether the edges are ordered.
func (r Rect) Valid() bool { return r.Right >= r.Left && r.Bottom >= r.Top }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Layer is one visual element of a frame request.
type Layer struct {
	Composition  Composition
	AcquireFence *fence.Fence
	ReleaseFence *fence.Fence
	DisplayFrame Rect
	SourceCrop   Rect
	Flags        Flags

	// BufferID identifies the buffer content; a change means the layer updated.
	BufferID uint64
	// FrameRate is the content frame-rate hint in Hz, 0 when unknown.
	FrameRate uint32

	// Updating is filled in by the pipeline during prepare.
	Updating bool
}

// Contents is a frame request: the ordered layer list whose last entry is
// the framebuffer target, plus the output buffer fences.
type Contents struct {
	Layers             []*Layer
	OutbufAcquireFence *fence.Fence
	RetireFence        *fence.Fence
	GeometryChanged    bool
}

// AppLayerCount is the number of layers excluding the framebuffer target.
func (c *Contents) AppLayerCount() int {
	if c == nil || len(c.Layers) == 0 {
		return 0
	}
	return len(c.Layers) - 1
}

// AppLayers returns the application layers, excluding the target.
func (c *Contents) AppLayers() []*Layer {
	if c.AppLayerCount() == 0 {
		return nil
	}
	return c.Layers[:len(c.Layers)-1]
}

// Target returns the framebuffer target, or nil for an empty request.
func (c *Contents) Target() *Layer {
	if c == nil || len(c.Layers) == 0 {
		return nil
	}
	return c.Layers[len(c.Layers)-1]
}

// CloseAcquireFences closes every layer acquire fence still owned by the request.
func (c *Contents) CloseAcquireFences() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, l := range c.Layers {
		if l == nil {
			continue
		}
		if err := l.AcquireFence.Close(); err != nil && !errors.Is(err, fence.ErrConsumed) {
			errs = append(errs, err)
		}
		l.AcquireFence = nil
	}
	return errors.Join(errs...)
}

// CloseInputs closes the acquire fences of every layer and of the output
// buffer. Used when a frame is abandoned before the driver saw it.
func (c *Contents) CloseInputs() error {
	if c == nil {
		return nil
	}
	err := ignoreConsumed(c.OutbufAcquireFence.Close())
	c.OutbufAcquireFence = nil
	return errors.Join(c.CloseAcquireFences(), err)
}

// CloseAll drops every fence the request still owns, inputs and outputs.
// The owner of a finished frame calls it once it no longer needs them.
func (c *Contents) CloseAll() error {
	if c == nil {
		return nil
	}
	errs := []error{c.CloseAcquireFences()}
	for _, l := range c.Layers {
		if l == nil {
			continue
		}
		errs = append(errs, ignoreConsumed(l.ReleaseFence.Close()))
		l.ReleaseFence = nil
	}
	errs = append(errs,
		ignoreConsumed(c.OutbufAcquireFence.Close()),
		ignoreConsumed(c.RetireFence.Close()),
	)
	c.OutbufAcquireFence = nil
	c.RetireFence = nil
	return errors.Join(errs...)
}

func ignoreConsumed(err error) error {
	if errors.Is(err, fence.ErrConsumed) {
		return nil
	}
	return err
}
