package rtcadapter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/pi-webrtc-streamer/internal/config"
	"github.com/n0remac/pi-webrtc-streamer/internal/encoder"
	"github.com/n0remac/pi-webrtc-streamer/internal/hwdriver"
	"github.com/n0remac/pi-webrtc-streamer/internal/quality"
)

func newTestAdapter(t *testing.T) (*Adapter, *encoder.Wrapper) {
	w := encoder.NewWrapper(hwdriver.NewFakeDriver())
	require.NoError(t, w.Init(hwdriver.Params{Width: 640, Height: 480, Framerate: 30, BitrateBps: 1_000_000}))

	cfg := config.NewRegistry()
	qc := quality.NewController(cfg)

	a := New(w, qc, w.Reinit)
	return a, w
}

func TestDrainDeliversEncodedImagesAfterEncodeCalled(t *testing.T) {
	a, w := newTestAdapter(t)
	defer w.StopCapture()

	var mu sync.Mutex
	var received []EncodedImage
	require.NoError(t, a.InitEncode(CodecSettings{Width: 640, Height: 480, MaxFramerate: 30, StartBitrateBps: 1_000_000}, func(img EncodedImage) {
		mu.Lock()
		received = append(received, img)
		mu.Unlock()
	}))
	defer a.Release()

	// before Encode() is called, the start-up gate must drop frames.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, received)
	mu.Unlock()

	a.Encode(false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, received)
	assert.NotEmpty(t, received[0].Fragments)
	assert.Equal(t, 1, received[0].PacketizationMode)
}

func TestKeyframeRequestsAreCoalesced(t *testing.T) {
	a, w := newTestAdapter(t)
	defer w.StopCapture()
	require.NoError(t, a.InitEncode(CodecSettings{Width: 640, Height: 480, MaxFramerate: 30}, func(EncodedImage) {}))
	defer a.Release()

	a.Encode(true)
	first := a.lastForceTime
	a.Encode(true) // immediately after, should be coalesced
	assert.Equal(t, first, a.lastForceTime)
}

func TestScanNALFragmentsFindsEachNAL(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x68, 0xBB, 0xCC}
	frags := scanNALFragments(data)
	require.Len(t, frags, 2)
	assert.Equal(t, NALFragment{Offset: 4, Length: 2}, frags[0])
	assert.Equal(t, NALFragment{Offset: 10, Length: 3}, frags[1])
}
