package pipeline

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hwcd/internal/driver/mocks"
	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
	"github.com/mattjoyce/hwcd/internal/log"
)

// recordingOps fakes descriptor syscalls so tests can use literal fds.
type recordingOps struct {
	next   int
	dups   map[int]int
	closed []int
}

func newRecordingOps() *recordingOps {
	return &recordingOps{next: 100, dups: make(map[int]int)}
}

func (o *recordingOps) Dup(fd int) (int, error) {
	o.next++
	o.dups[o.next] = fd
	return o.next, nil
}

func (o *recordingOps) Close(fd int) error {
	o.closed = append(o.closed, fd)
	return nil
}

func (o *recordingOps) closeCount(fd int) int {
	n := 0
	for _, c := range o.closed {
		if c == fd {
			n++
		}
	}
	return n
}

type fixture struct {
	p   *Pipeline
	drv *mocks.MockDriver
	ops *recordingOps
	tr  *fence.Tracker
}

func newFixture(t *testing.T, planes int) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	drv := mocks.NewMockDriver(ctrl)
	ops := newRecordingOps()
	tr := fence.NewTrackerWithOps(ops)
	return &fixture{
		p:   New(drv, tr, Options{HWPlanes: planes, MaxLayers: 8}, log.Discard()),
		drv: drv,
		ops: ops,
		tr:  tr,
	}
}

var screen = layer.Rect{Right: 1080, Bottom: 1920}

func appLayer(id uint64) *layer.Layer {
	return &layer.Layer{
		Composition:  layer.CompositionGPU,
		DisplayFrame: layer.Rect{Right: 100, Bottom: 100},
		SourceCrop:   layer.Rect{Right: 100, Bottom: 100},
		BufferID:     id,
	}
}

func frame(layers ...*layer.Layer) *layer.Contents {
	target := &layer.Layer{Composition: layer.CompositionTarget, DisplayFrame: screen, SourceCrop: screen}
	return &layer.Contents{Layers: append(layers, target)}
}

func TestPrepareHandleRefresh(t *testing.T) {
	tests := []struct {
		name        string
		planes      int
		layers      int
		cacheInUse  bool
		wantGPU     int
		wantRefresh bool
	}{
		{name: "mixed composition", planes: 2, layers: 3, wantGPU: 2, wantRefresh: true},
		{name: "all planes, cache not in use", planes: 4, layers: 2, wantGPU: 0, wantRefresh: true},
		{name: "all planes, cache in use", planes: 4, layers: 2, cacheInUse: true, wantGPU: 0, wantRefresh: false},
		{name: "all gpu", planes: 0, layers: 3, wantGPU: 3, wantRefresh: false},
		{name: "single layer", planes: 4, layers: 1, wantGPU: 0, wantRefresh: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.planes)
			f.p.cache.InUse = tt.cacheInUse

			var layers []*layer.Layer
			for i := range tt.layers {
				layers = append(layers, appLayer(uint64(i+1)))
			}
			res, err := f.p.Prepare(frame(layers...), false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantGPU, res.GPULayers)
			assert.Equal(t, tt.wantRefresh, res.HandleRefresh)
		})
	}
}

func TestPrepareMixedCompositionAlwaysRefreshes(t *testing.T) {
	for n := 2; n <= 6; n++ {
		for planes := 2; planes < n; planes++ {
			f := newFixture(t, planes)
			f.p.cache.InUse = n%2 == 0

			var layers []*layer.Layer
			for i := range n {
				layers = append(layers, appLayer(uint64(i+1)))
			}
			res, err := f.p.Prepare(frame(layers...), false)
			require.NoError(t, err)
			require.Greater(t, res.GPULayers, 0)
			require.Less(t, res.GPULayers, n)
			assert.True(t, res.HandleRefresh, "n=%d planes=%d", n, planes)
		}
	}
}

func TestPrepareCacheUsage(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.p.Prepare(frame(appLayer(1), appLayer(2)), false)
	require.NoError(t, err)
	assert.True(t, f.p.Cache().InUse, "full GPU frame fills the cache")

	c := frame(appLayer(1), appLayer(2))
	c.GeometryChanged = true
	_, err = f.p.Prepare(c, false)
	require.NoError(t, err)
	assert.False(t, f.p.Cache().InUse, "geometry change invalidates the cache")
}

func TestPrepareAllocationErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents *layer.Contents
	}{
		{"nil request", nil},
		{"no layers", &layer.Contents{}},
		{"missing target", &layer.Contents{Layers: []*layer.Layer{appLayer(1)}}},
		{"target before end", &layer.Contents{Layers: []*layer.Layer{
			{Composition: layer.CompositionTarget, DisplayFrame: screen},
			{Composition: layer.CompositionTarget, DisplayFrame: screen},
		}}},
		{"inverted geometry", frame(&layer.Layer{DisplayFrame: layer.Rect{Left: 10, Right: 5}})},
		{"too many layers", frame(appLayer(1), appLayer(2), appLayer(3), appLayer(4), appLayer(5),
			appLayer(6), appLayer(7), appLayer(8), appLayer(9))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 4)
			_, err := f.p.Prepare(tt.contents, false)
			assert.ErrorIs(t, err, ErrAllocation)
		})
	}
}

func TestPrepareValidationErrors(t *testing.T) {
	empty := appLayer(1)
	empty.DisplayFrame = layer.Rect{}

	secureSkip := appLayer(1)
	secureSkip.Flags = layer.FlagSecure | layer.FlagSkip

	secure := appLayer(1)
	secure.Flags = layer.FlagSecure

	tests := []struct {
		name     string
		planes   int
		contents *layer.Contents
	}{
		{"empty visible layer", 4, frame(empty)},
		{"secure layer needing gpu", 4, frame(secureSkip)},
		{"no plane for secure layer", 0, frame(secure, appLayer(2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.planes)
			_, err := f.p.Prepare(tt.contents, false)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPrepareAssignsPlanes(t *testing.T) {
	f := newFixture(t, 3)
	skip := appLayer(2)
	skip.Flags = layer.FlagSkip
	secure := appLayer(4)
	secure.Flags = layer.FlagSecure
	hidden := appLayer(5)
	hidden.Flags = layer.FlagHidden
	hidden.DisplayFrame = layer.Rect{}

	c := frame(appLayer(1), skip, appLayer(3), secure, hidden)
	res, err := f.p.Prepare(c, false)
	require.NoError(t, err)

	// Three planes, one reserved for the target: the secure layer first, then
	// the lowest regular layer.
	assert.Equal(t, layer.CompositionHWPlane, c.Layers[0].Composition)
	assert.Equal(t, layer.CompositionGPU, c.Layers[1].Composition)
	assert.Equal(t, layer.CompositionGPU, c.Layers[2].Composition)
	assert.Equal(t, layer.CompositionHWPlane, c.Layers[3].Composition)
	assert.Equal(t, layer.CompositionHWPlane, c.Layers[4].Composition)
	assert.Equal(t, layer.CompositionTarget, c.Layers[5].Composition)
	assert.Equal(t, 2, res.GPULayers)
}

func TestPausedPrepareBypassesGPU(t *testing.T) {
	f := newFixture(t, 0)
	c := frame(appLayer(1), appLayer(2))

	res, err := f.p.Prepare(c, true)
	require.NoError(t, err)
	assert.False(t, res.HandleRefresh)
	for _, l := range c.AppLayers() {
		assert.Equal(t, layer.CompositionHWPlane, l.Composition)
	}

	_, err = f.p.Commit(c, false)
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestPausedCommitForwardsOutputFence(t *testing.T) {
	f := newFixture(t, 4)
	a, b := appLayer(1), appLayer(2)
	a.AcquireFence = f.tr.Adopt(3)
	b.AcquireFence = f.tr.Adopt(4)
	c := frame(a, b)
	c.Target().AcquireFence = f.tr.Adopt(5)
	c.OutbufAcquireFence = f.tr.Adopt(7)

	f.drv.EXPECT().Flush().Return(nil).Times(1)

	_, err := f.p.Commit(c, true)
	require.NoError(t, err)

	require.True(t, c.RetireFence.Valid())
	assert.Equal(t, 7, f.ops.dups[c.RetireFence.FD()], "retire fence duplicates the output fence")
	assert.Nil(t, c.OutbufAcquireFence)
	for _, fd := range []int{3, 4, 5, 7} {
		assert.Equal(t, 1, f.ops.closeCount(fd), "fd %d closed exactly once", fd)
	}
	assert.Equal(t, 1, f.tr.Outstanding(), "only the retire fence remains")
}

func TestPausedCommitFlushErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, 4)
	f.drv.EXPECT().Flush().Return(errors.New("flush failed"))

	_, err := f.p.Commit(frame(appLayer(1)), true)
	assert.NoError(t, err)
}

func TestFlushReturnsDriverError(t *testing.T) {
	f := newFixture(t, 4)
	c := frame(appLayer(1))
	c.OutbufAcquireFence = f.tr.Adopt(7)
	f.drv.EXPECT().Flush().Return(errors.New("flush failed"))

	assert.Error(t, f.p.Flush(c))
	assert.Equal(t, 1, f.ops.closeCount(7))
}

func TestCommitMovesFencesAndAdoptsOutputs(t *testing.T) {
	f := newFixture(t, 4)
	a, b := appLayer(1), appLayer(2)
	a.AcquireFence = f.tr.Adopt(3)
	b.AcquireFence = f.tr.Adopt(4)
	c := frame(a, b)
	c.OutbufAcquireFence = f.tr.Adopt(5)

	_, err := f.p.Prepare(c, false)
	require.NoError(t, err)

	gomock.InOrder(
		f.drv.EXPECT().CommitLayerStack(gomock.Any()).DoAndReturn(func(s *layer.Stack) error {
			// The driver waits on the first layer only.
			assert.Equal(t, 3, s.Layers[0].AcquireFence.Release())
			return nil
		}),
		f.drv.EXPECT().PostCommitLayerStack(gomock.Any()).DoAndReturn(func(s *layer.Stack) error {
			s.Layers[0].ReleaseFenceFD = 40
			s.RetireFenceFD = 50
			return nil
		}),
	)

	res, err := f.p.Commit(c, false)
	require.NoError(t, err)
	assert.False(t, res.OneUpdatingLayer, "both layers are new")

	assert.Equal(t, 40, c.Layers[0].ReleaseFence.FD())
	assert.Equal(t, 50, c.RetireFence.FD())
	assert.Nil(t, c.Layers[1].AcquireFence)
	assert.Equal(t, 1, f.ops.closeCount(4), "unclaimed acquire fence closed")
	assert.Equal(t, 1, f.ops.closeCount(5), "unclaimed output fence closed")
	assert.Equal(t, 0, f.ops.closeCount(3))
	assert.Equal(t, []uint64{1, 2}, f.p.Cache().BufferIDs)

	require.NoError(t, c.CloseAll())
	assert.Equal(t, 0, f.tr.Outstanding())
}

func TestCommitFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t, 4)
	f.p.cache.BufferIDs = []uint64{9, 9}
	a := appLayer(1)
	a.AcquireFence = f.tr.Adopt(3)
	c := frame(a, appLayer(2))

	c.GeometryChanged = true
	_, err := f.p.Prepare(c, false)
	require.NoError(t, err)

	f.drv.EXPECT().CommitLayerStack(gomock.Any()).Return(errors.New("hw busy"))

	_, err = f.p.Commit(c, false)
	assert.Error(t, err)
	assert.Equal(t, []uint64{9, 9}, f.p.Cache().BufferIDs)
	assert.Equal(t, 1, f.ops.closeCount(3))
	assert.Equal(t, 0, f.tr.Outstanding())
}

func TestPostCommitFailureDropsDriverFences(t *testing.T) {
	f := newFixture(t, 4)
	c := frame(appLayer(1))
	_, err := f.p.Prepare(c, false)
	require.NoError(t, err)

	f.drv.EXPECT().CommitLayerStack(gomock.Any()).Return(nil)
	f.drv.EXPECT().PostCommitLayerStack(gomock.Any()).DoAndReturn(func(s *layer.Stack) error {
		s.RetireFenceFD = 60
		return errors.New("post-commit failed")
	})

	_, err = f.p.Commit(c, false)
	assert.Error(t, err)
	assert.Nil(t, c.RetireFence)
	assert.Equal(t, 1, f.ops.closeCount(60))
}

func TestOneUpdatingLayerAcrossFrames(t *testing.T) {
	f := newFixture(t, 4)
	f.drv.EXPECT().CommitLayerStack(gomock.Any()).Return(nil).Times(2)
	f.drv.EXPECT().PostCommitLayerStack(gomock.Any()).Return(nil).Times(2)

	first := frame(appLayer(1), appLayer(2))
	_, err := f.p.Prepare(first, false)
	require.NoError(t, err)
	res, err := f.p.Commit(first, false)
	require.NoError(t, err)
	assert.False(t, res.OneUpdatingLayer)

	video := appLayer(3)
	video.FrameRate = 24
	second := frame(appLayer(1), video)
	prep, err := f.p.Prepare(second, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(24), prep.MetadataRate)
	assert.False(t, second.Layers[0].Updating)
	assert.True(t, second.Layers[1].Updating)

	res, err = f.p.Commit(second, false)
	require.NoError(t, err)
	assert.True(t, res.OneUpdatingLayer)
}

func TestSolidFillCarriedIntoStack(t *testing.T) {
	f := newFixture(t, 4)
	f.p.SetSolidFill(layer.SolidFill{Enabled: true, Color: 0xff00ff})

	f.drv.EXPECT().CommitLayerStack(gomock.Any()).DoAndReturn(func(s *layer.Stack) error {
		assert.True(t, s.SolidFill.Enabled)
		assert.Equal(t, uint32(0xff00ff), s.SolidFill.Color)
		assert.Equal(t, uint32(1080), s.Output.Width)
		return nil
	})
	f.drv.EXPECT().PostCommitLayerStack(gomock.Any()).Return(nil)

	c := frame(appLayer(1))
	_, err := f.p.Prepare(c, false)
	require.NoError(t, err)
	_, err = f.p.Commit(c, false)
	require.NoError(t, err)
}

func TestNilContentsNeverReachesTheDriver(t *testing.T) {
	f := newFixture(t, 4)

	f.drv.EXPECT().Flush().Return(nil).Times(2)
	_, err := f.p.Commit(nil, true)
	assert.NoError(t, err)
	assert.NoError(t, f.p.Flush(nil))

	_, err = f.p.Prepare(frame(appLayer(1)), false)
	require.NoError(t, err)
	_, err = f.p.Commit(nil, false)
	assert.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, 0, f.tr.Outstanding())
}
