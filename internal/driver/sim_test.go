package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hwcd/internal/fence"
	"github.com/mattjoyce/hwcd/internal/layer"
	"github.com/mattjoyce/hwcd/internal/log"
)

type fakeOps struct{}

func (fakeOps) Dup(fd int) (int, error) { return fd + 1, nil }
func (fakeOps) Close(int) error         { return nil }

func newTestSim() (*Sim, *[]int) {
	s := NewSim(Attributes{Width: 1080, Height: 1920, MinRefreshRate: 30, MaxRefreshRate: 90}, log.Discard())
	var closed []int
	s.closer = func(fd int) error {
		closed = append(closed, fd)
		return nil
	}
	s.signaled = func() (int, error) { return 77, nil }
	return s, &closed
}

func TestSimCommitTakesAcquireFences(t *testing.T) {
	s, closed := newTestSim()
	tr := fence.NewTrackerWithOps(fakeOps{})

	stack := &layer.Stack{
		Layers: []*layer.StackLayer{
			{Composition: layer.CompositionHWPlane, AcquireFence: tr.Adopt(3)},
			{Composition: layer.CompositionGPU, AcquireFence: tr.Adopt(4)},
			{Composition: layer.CompositionTarget},
		},
		Output:    layer.OutputBuffer{AcquireFence: tr.Adopt(5)},
		SolidFill: layer.SolidFill{Enabled: true, Color: 0xff0000},
	}

	require.NoError(t, s.CommitLayerStack(stack))
	require.NoError(t, s.PostCommitLayerStack(stack))

	assert.ElementsMatch(t, []int{3, 4, 5}, *closed)
	assert.Equal(t, 0, tr.Outstanding())
	assert.Equal(t, 77, stack.RetireFenceFD)
	assert.Equal(t, fence.Invalid, stack.Layers[0].ReleaseFenceFD)

	st := s.Status()
	assert.Equal(t, 1, st.Commits)
	assert.Equal(t, 1, st.LastPlanes)
	assert.Equal(t, 1, st.LastGPULayers)
	assert.True(t, st.SolidFill.Enabled)
}

func TestSimRetireFenceFailureIsNotFatal(t *testing.T) {
	s, _ := newTestSim()
	s.signaled = func() (int, error) { return fence.Invalid, errors.New("no eventfd") }

	stack := &layer.Stack{Layers: []*layer.StackLayer{{Composition: layer.CompositionTarget}}}
	require.NoError(t, s.PostCommitLayerStack(stack))
	assert.Equal(t, fence.Invalid, stack.RetireFenceFD)
}

func TestSimRealRetireFence(t *testing.T) {
	s := NewSim(Attributes{MinRefreshRate: 60, MaxRefreshRate: 60}, log.Discard())
	tr := fence.NewTracker()

	stack := &layer.Stack{Layers: []*layer.StackLayer{{Composition: layer.CompositionTarget}}}
	require.NoError(t, s.PostCommitLayerStack(stack))
	require.GreaterOrEqual(t, stack.RetireFenceFD, 0)

	retire := tr.Adopt(stack.RetireFenceFD)
	assert.NoError(t, retire.Close())
}

func TestSimRefreshRateBounds(t *testing.T) {
	s, _ := newTestSim()
	assert.Equal(t, uint32(90), s.Status().RefreshRate)

	require.NoError(t, s.SetRefreshRate(60))
	assert.Equal(t, uint32(60), s.Status().RefreshRate)

	assert.ErrorIs(t, s.SetRefreshRate(120), ErrRateUnsupported)
	assert.Equal(t, uint32(60), s.Status().RefreshRate)
}

func TestSimFailNextIsOneShot(t *testing.T) {
	s, _ := newTestSim()
	boom := errors.New("boom")
	s.FailNext("Flush", boom)

	assert.ErrorIs(t, s.Flush(), boom)
	assert.NoError(t, s.Flush())
	assert.Equal(t, 1, s.Status().Flushes)
}

func TestSimDisplayModes(t *testing.T) {
	s, _ := newTestSim()
	require.NoError(t, s.SetDisplayMode(3))
	assert.Equal(t, uint32(3), s.Status().DisplayMode)
	require.NoError(t, s.ApplyDefaultDisplayMode())
	assert.Equal(t, uint32(0), s.Status().DisplayMode)

	assert.Error(t, s.SetFrameBufferResolution(0, 100))
	require.NoError(t, s.SetFrameBufferResolution(720, 1280))
	assert.Equal(t, uint32(720), s.Status().FBWidth)
}
