package encoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/pi-webrtc-streamer/internal/frame"
	"github.com/n0remac/pi-webrtc-streamer/internal/hwdriver"
)

func testParams() hwdriver.Params {
	return hwdriver.Params{Width: 640, Height: 480, Framerate: 30, BitrateBps: 1_000_000}
}

func TestInitTwiceFails(t *testing.T) {
	w := NewWrapper(hwdriver.NewFakeDriver())
	require.NoError(t, w.Init(testParams()))
	err := w.Init(testParams())
	assert.ErrorIs(t, err, ErrEncoderBusy{})
}

func TestOperationsRequireInit(t *testing.T) {
	w := NewWrapper(hwdriver.NewFakeDriver())
	assert.ErrorIs(t, w.StartCapture(), ErrNotInitialized{})
	assert.ErrorIs(t, w.Reinit(testParams()), ErrNotInitialized{})
}

func TestStopCaptureIdempotent(t *testing.T) {
	w := NewWrapper(hwdriver.NewFakeDriver())
	require.NoError(t, w.Init(testParams()))
	require.NoError(t, w.StopCapture())
	require.NoError(t, w.StopCapture())
	assert.Equal(t, InitializedIdle, w.State())
}

func TestStartCaptureProducesFrames(t *testing.T) {
	w := NewWrapper(hwdriver.NewFakeDriver())
	require.NoError(t, w.Init(testParams()))
	require.NoError(t, w.StartCapture())
	assert.Equal(t, Capturing, w.State())

	q := w.Queue()
	var got *frame.Buffer
	for i := 0; i < 50; i++ {
		if buf, ok := q.ReadFront(50 * time.Millisecond); ok {
			got = buf
			break
		}
	}
	require.NotNil(t, got, "expected at least one access unit from the fake driver")
}

func TestSetRateNoopWhenUnchanged(t *testing.T) {
	w := NewWrapper(hwdriver.NewFakeDriver())
	params := testParams()
	require.NoError(t, w.Init(params))
	require.NoError(t, w.SetRate(params.Framerate, params.BitrateBps))
	require.NoError(t, w.SetRate(15, 500_000))
}

func TestReinitResetsState(t *testing.T) {
	w := NewWrapper(hwdriver.NewFakeDriver())
	require.NoError(t, w.Init(testParams()))
	require.NoError(t, w.StartCapture())
	require.NoError(t, w.Reinit(hwdriver.Params{Width: 1280, Height: 720, Framerate: 30, BitrateBps: 2_000_000}))
	assert.Equal(t, InitializedIdle, w.State())
}
