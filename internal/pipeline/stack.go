package pipeline

import (
	"fmt"

	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
)

// allocate builds this frame's stack from contents and marks which layers
// changed since the last committed frame.
func (p *Pipeline) allocate(contents *layer.Contents) (*layer.Stack, error) {
	if contents == nil || len(contents.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrAllocation)
	}
	if n := contents.AppLayerCount(); n > p.opts.MaxLayers {
		return nil, fmt.Errorf("%w: %d app layers exceeds limit %d", ErrAllocation, n, p.opts.MaxLayers)
	}

	target := contents.Target()
	if target == nil || target.Composition != layer.CompositionTarget {
		return nil, fmt.Errorf("%w: last layer is not the framebuffer target", ErrAllocation)
	}

	prev := p.cache.BufferIDs
	sameShape := !contents.GeometryChanged && len(prev) == contents.AppLayerCount()

	stack := &layer.Stack{
		Layers:          make([]*layer.StackLayer, 0, len(contents.Layers)),
		SolidFill:       p.solidFill,
		GeometryChanged: contents.GeometryChanged,
		RetireFenceFD:   fence.Invalid,
	}
	for i, l := range contents.Layers {
		if l == nil {
			return nil, fmt.Errorf("%w: layer %d is nil", ErrAllocation, i)
		}
		if !l.DisplayFrame.Valid() || !l.SourceCrop.Valid() {
			return nil, fmt.Errorf("%w: layer %d has inverted geometry", ErrAllocation, i)
		}
		if i < len(contents.Layers)-1 {
			if l.Composition == layer.CompositionTarget {
				return nil, fmt.Errorf("%w: layer %d is a framebuffer target before the end", ErrAllocation, i)
			}
			l.Updating = !sameShape || prev[i] != l.BufferID
		}

		stack.Layers = append(stack.Layers, &layer.StackLayer{
			Composition:    l.Composition,
			DisplayFrame:   l.DisplayFrame,
			SourceCrop:     l.SourceCrop,
			Flags:          l.Flags,
			BufferID:       l.BufferID,
			Updating:       l.Updating,
			ReleaseFenceFD: fence.Invalid,
		})
	}

	stack.Output.Width = uint32(max(target.DisplayFrame.Width(), 0))
	stack.Output.Height = uint32(max(target.DisplayFrame.Height(), 0))
	return stack, nil
}

// assign validates the application layers and picks a composition type for
// each. Secure layers claim planes first; skip layers always go to the GPU;
// the rest take planes bottom-up until one plane is left for the target.
func (p *Pipeline) assign(contents *layer.Contents, stack *layer.Stack) error {
	app := stack.AppLayers()

	for i, l := range app {
		if l.Flags.Has(layer.FlagHidden) {
			continue
		}
		if l.DisplayFrame.Empty() {
			return fmt.Errorf("%w: layer %d has an empty display frame", ErrValidation, i)
		}
		if l.Flags.Has(layer.FlagSecure | layer.FlagSkip) {
			return fmt.Errorf("%w: layer %d is secure but requires GPU composition", ErrValidation, i)
		}
	}

	visible, skipped := 0, 0
	for _, l := range app {
		switch {
		case l.Flags.Has(layer.FlagHidden):
		case l.Flags.Has(layer.FlagSkip):
			skipped++
		default:
			visible++
		}
	}

	planes := p.opts.HWPlanes
	if skipped > 0 || visible > planes {
		// Some layers land in the framebuffer, which needs a plane of its own.
		planes--
	}
	if planes < 0 {
		planes = 0
	}

	comp := make([]layer.Composition, len(app))
	for i := range comp {
		comp[i] = layer.CompositionGPU
	}
	for i, l := range app {
		if l.Flags.Has(layer.FlagHidden) {
			comp[i] = layer.CompositionHWPlane
		}
	}
	for i, l := range app {
		if !l.Flags.Has(layer.FlagSecure) || l.Flags.Has(layer.FlagHidden) {
			continue
		}
		if planes == 0 {
			return fmt.Errorf("%w: no hardware plane left for secure layer %d", ErrValidation, i)
		}
		comp[i] = layer.CompositionHWPlane
		planes--
	}
	for i, l := range app {
		if planes == 0 {
			break
		}
		if l.Flags.Has(layer.FlagHidden) || l.Flags.Has(layer.FlagSkip) || l.Flags.Has(layer.FlagSecure) {
			continue
		}
		comp[i] = layer.CompositionHWPlane
		planes--
	}

	for i, l := range app {
		l.Composition = comp[i]
		contents.Layers[i].Composition = comp[i]
	}
	return nil
}
