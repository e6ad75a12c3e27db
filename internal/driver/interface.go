package driver

import (
	"github.com/mattjoyce/hwcd/internal/layer"
)

//go:generate mockgen -destination=mocks/mock_driver.go -package=mocks github.com/mattjoyce/hwcd/internal/driver Driver

// Attributes describe the panel behind a display.
type Attributes struct {
	Width          uint32
	Height         uint32
	MinRefreshRate uint32
	MaxRefreshRate uint32
}

// Driver is the lower-level display driver that programs hardware and flips
// buffers. Any non-nil error stops the phase that issued the call.
type Driver interface {
	Attributes() (Attributes, error)
	SetFrameBufferResolution(width, height uint32) error

	// CommitLayerStack composes stack. The driver takes each acquire fence it
	// waits on with Fence.Release.
	CommitLayerStack(stack *layer.Stack) error
	// PostCommitLayerStack fills in the retire and release fence descriptors.
	PostCommitLayerStack(stack *layer.Stack) error
	Flush() error

	SetRefreshRate(rate uint32) error
	SetDisplayMode(mode uint32) error
	ApplyDefaultDisplayMode() error
}
