package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
)

var (
	// ErrAllocation means the frame request has an invalid layer count or geometry.
	ErrAllocation = errors.New("layer stack allocation failed")
	// ErrValidation means the layer configuration cannot be composed.
	ErrValidation = errors.New("layer stack validation failed")
	// ErrNotPrepared means Commit was called without a successful Prepare.
	ErrNotPrepared = errors.New("commit without prepared layer stack")
)

// Driver is the part of the display driver the pipeline talks to.
type Driver interface {
	CommitLayerStack(stack *layer.Stack) error
	PostCommitLayerStack(stack *layer.Stack) error
	Flush() error
}

// Options bound what one frame may contain.
type Options struct {
	// HWPlanes is the number of hardware planes available for app layers
	// and the framebuffer target.
	HWPlanes int
	// MaxLayers caps the number of application layers per frame.
	MaxLayers int
}

// PrepareResult reports the decisions taken while preparing a frame.
type PrepareResult struct {
	// HandleRefresh is set when an asynchronous invalidate is warranted.
	HandleRefresh bool
	GPULayers     int
	AppLayers     int
	// MetadataRate is the frame-rate hint of the single updating layer, 0 if none.
	MetadataRate uint32
}

// CommitResult reports post-commit facts that feed the refresh policy.
type CommitResult struct {
	OneUpdatingLayer bool
}

// Pipeline runs the prepare/commit protocol for one display. It is driven
// by a single caller; frames never overlap.
type Pipeline struct {
	drv    Driver
	fences *fence.Tracker
	opts   Options
	logger *slog.Logger

	stack     *layer.Stack
	cache     layer.Cache
	solidFill layer.SolidFill
}

// New creates a Pipeline.
func New(drv Driver, fences *fence.Tracker, opts Options, logger *slog.Logger) *Pipeline {
	if opts.MaxLayers <= 0 {
		opts.MaxLayers = 32
	}
	return &Pipeline{
		drv:    drv,
		fences: fences,
		opts:   opts,
		logger: logger.With("component", "pipeline"),
	}
}

// SetSolidFill sets the diagnostic fill carried by every following stack.
func (p *Pipeline) SetSolidFill(fill layer.SolidFill) { p.solidFill = fill }

// Cache returns the state carried between frames.
func (p *Pipeline) Cache() layer.Cache { return p.cache }

// Prepare validates contents and assigns a composition type to every layer.
// When paused it only marks layers for GPU bypass. On error Commit must not
// be called for this frame.
func (p *Pipeline) Prepare(contents *layer.Contents, paused bool) (PrepareResult, error) {
	if paused {
		markForGPUBypass(contents)
		return PrepareResult{}, nil
	}

	p.stack = nil
	stack, err := p.allocate(contents)
	if err != nil {
		return PrepareResult{}, err
	}
	if err := p.assign(contents, stack); err != nil {
		return PrepareResult{}, err
	}
	p.stack = stack

	res := PrepareResult{AppLayers: contents.AppLayerCount()}
	for _, l := range stack.AppLayers() {
		if l.Composition == layer.CompositionGPU {
			res.GPULayers++
		}
	}
	if res.AppLayers > 1 {
		// Ask the client to redraw when layers moved off a framebuffer whose
		// cached content is not in use, or when composition is mixed.
		switch {
		case res.GPULayers == 0 && !p.cache.InUse:
			res.HandleRefresh = true
		case res.GPULayers > 0 && res.GPULayers < res.AppLayers:
			res.HandleRefresh = true
		}
	}
	res.MetadataRate = metadataRate(contents)
	p.updateCacheUsage(res, stack.GeometryChanged)

	return res, nil
}

// Commit pushes the prepared stack to the driver. When paused nothing is
// composed: acquire fences are closed, the output buffer fence is forwarded as
// the retire fence and pending hardware state is flushed.
func (p *Pipeline) Commit(contents *layer.Contents, paused bool) (CommitResult, error) {
	if paused {
		p.stack = nil
		p.flushFrame(contents)
		if err := p.drv.Flush(); err != nil {
			p.logger.Error("flush failed", "error", err)
		}
		return CommitResult{}, nil
	}

	stack := p.stack
	p.stack = nil
	if contents == nil {
		return CommitResult{}, fmt.Errorf("%w: no layers", ErrAllocation)
	}
	if stack == nil {
		return CommitResult{}, ErrNotPrepared
	}
	if len(stack.Layers) != len(contents.Layers) {
		return CommitResult{}, fmt.Errorf("%w: prepared %d layers, got %d",
			ErrNotPrepared, len(stack.Layers), len(contents.Layers))
	}
	defer func() {
		if err := stack.CloseUnclaimed(p.fences); err != nil {
			p.logger.Warn("closing unclaimed fences failed", "error", err)
		}
	}()

	for i, l := range contents.Layers {
		stack.Layers[i].AcquireFence = fence.Take(&l.AcquireFence)
	}
	stack.Output.AcquireFence = fence.Take(&contents.OutbufAcquireFence)

	if err := p.drv.CommitLayerStack(stack); err != nil {
		return CommitResult{}, fmt.Errorf("commit layer stack: %w", err)
	}
	if err := p.drv.PostCommitLayerStack(stack); err != nil {
		return CommitResult{}, fmt.Errorf("post-commit layer stack: %w", err)
	}
	p.postCommit(contents, stack)

	return CommitResult{OneUpdatingLayer: stack.UpdatingCount() == 1}, nil
}

// Flush drops the frame without preparing it and flushes the driver. Unlike
// a paused commit, the flush error is returned.
func (p *Pipeline) Flush(contents *layer.Contents) error {
	p.stack = nil
	p.flushFrame(contents)
	if err := p.drv.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// flushFrame consumes the fences of a frame that will not be composed.
func (p *Pipeline) flushFrame(contents *layer.Contents) {
	if contents == nil {
		return
	}
	if out := contents.OutbufAcquireFence; out.Valid() {
		// The client waits on the retire fence and closes it, so hand it a
		// duplicate of the output fence to keep ordering.
		retire, err := out.Dup()
		if err != nil {
			p.logger.Error("duplicating output fence failed", "error", err)
		} else {
			if err := contents.RetireFence.Close(); err != nil && !errors.Is(err, fence.ErrConsumed) {
				p.logger.Warn("closing stale retire fence failed", "error", err)
			}
			contents.RetireFence = retire
		}
		if err := out.Close(); err != nil {
			p.logger.Warn("closing output fence failed", "error", err)
		}
	}
	contents.OutbufAcquireFence = nil

	if err := contents.CloseAcquireFences(); err != nil {
		p.logger.Warn("closing acquire fences failed", "error", err)
	}
}

// postCommit adopts the fences the driver produced and records what was shown.
func (p *Pipeline) postCommit(contents *layer.Contents, stack *layer.Stack) {
	for i, sl := range stack.Layers {
		l := contents.Layers[i]
		if sl.ReleaseFenceFD >= 0 {
			l.ReleaseFence = p.fences.Adopt(sl.ReleaseFenceFD)
			sl.ReleaseFenceFD = fence.Invalid
		}
	}
	if stack.RetireFenceFD >= 0 {
		if err := contents.RetireFence.Close(); err != nil && !errors.Is(err, fence.ErrConsumed) {
			p.logger.Warn("closing stale retire fence failed", "error", err)
		}
		contents.RetireFence = p.fences.Adopt(stack.RetireFenceFD)
		stack.RetireFenceFD = fence.Invalid
	}

	ids := make([]uint64, 0, len(stack.Layers))
	for _, l := range stack.AppLayers() {
		ids = append(ids, l.BufferID)
	}
	p.cache.BufferIDs = ids
}

// updateCacheUsage records whether the framebuffer now holds a complete
// GPU-composed scene the next frames can reuse.
func (p *Pipeline) updateCacheUsage(res PrepareResult, geometryChanged bool) {
	switch {
	case geometryChanged:
		p.cache.InUse = false
	case res.GPULayers > 0 && res.GPULayers == res.AppLayers:
		p.cache.InUse = true
	case res.GPULayers > 0:
		p.cache.InUse = false
	}
}

func markForGPUBypass(contents *layer.Contents) {
	for _, l := range contents.AppLayers() {
		l.Composition = layer.CompositionHWPlane
	}
}

func metadataRate(contents *layer.Contents) uint32 {
	var rate uint32
	n := 0
	for _, l := range contents.AppLayers() {
		if l.Updating {
			n++
			rate = l.FrameRate
		}
	}
	if n != 1 {
		return 0
	}
	return rate
}
