// Package rtcadapter implements the Encoder Adapter (C6): it bridges the
// Frame Queue to the WebRTC encoder-factory contract, running the drain
// task that scans assembled access units for NAL units and delivers
// encoded-image records to a registered callback.
package rtcadapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/n0remac/pi-webrtc-streamer/internal/encoder"
	"github.com/n0remac/pi-webrtc-streamer/internal/frame"
	"github.com/n0remac/pi-webrtc-streamer/internal/hwdriver"
	"github.com/n0remac/pi-webrtc-streamer/internal/quality"
	"github.com/n0remac/pi-webrtc-streamer/internal/reinit"
)

// NALFragment is one {offset,length} entry into EncodedImage.Data.
type NALFragment struct {
	Offset, Length int
}

// EncodedImage is the per-access-unit record delivered to the registered
// callback, matching the "Encoded-video contract" of spec.md §6.
type EncodedImage struct {
	Data              []byte
	Fragments         []NALFragment
	Width, Height     int
	CaptureTimeMs     int64
	NTPTimeMs         int64
	RTPTimestamp      uint32
	Keyframe          bool
	PacketizationMode int
}

// CodecSettings mirrors the handful of fields init_encode receives from
// the WebRTC stack.
type CodecSettings struct {
	Width, Height     int
	MaxFramerate      int
	StartBitrateBps   int
	MaxBitrateBps     int
}

const keyframeMinInterval = 3000 * time.Millisecond

// Adapter implements the Encoder Adapter contract toward the WebRTC
// stack (init_encode/release/encode/set_rates) described in spec.md §4.6.
type Adapter struct {
	mu sync.Mutex

	wrapper   *encoder.Wrapper
	quality   *quality.Controller
	reinitCtl *reinit.Controller[hwdriver.Params]

	onEncoded func(EncodedImage)

	width, height int
	baseMs        int64
	ready         bool
	lastForceTime time.Time
	stop          chan struct{}
	wg            sync.WaitGroup
}

// New builds an adapter around an already-constructed wrapper/quality
// controller pair. reinitFn performs the actual hardware reinit (wired by
// the application root to wrapper.Reinit).
func New(wrapper *encoder.Wrapper, qc *quality.Controller, reinitFn func(hwdriver.Params) error) *Adapter {
	a := &Adapter{wrapper: wrapper, quality: qc}
	a.reinitCtl = reinit.New(reinitFn)
	return a
}

// InitEncode records the frame dimensions, reports the start bitrate to
// the Quality Controller, starts capture, and spawns the drain task. It
// does not check the codec (CodecSettings carries none), does not ask the
// Quality Controller for an operating point, and does not pass
// MaxFramerate on to the encoder.
func (a *Adapter) InitEncode(settings CodecSettings, onEncoded func(EncodedImage)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.onEncoded = onEncoded
	a.width, a.height = settings.Width, settings.Height
	a.baseMs = nowMs()
	a.ready = false
	a.stop = make(chan struct{})

	maxFPS := settings.MaxFramerate
	if maxFPS > 30 {
		maxFPS = 30
	}
	a.quality.ReportTargetBitrate(float64(settings.StartBitrateBps))

	if err := a.wrapper.StartCapture(); err != nil {
		return fmt.Errorf("rtcadapter: start capture: %w", err)
	}

	a.wg.Add(1)
	go a.drainLoop()
	return nil
}

// Release stops capture and joins the drain task.
func (a *Adapter) Release() error {
	a.mu.Lock()
	stop := a.stop
	a.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	a.wg.Wait()
	return a.wrapper.StopCapture()
}

// Encode is called by the WebRTC stack when it is ready to accept encoded
// output; the frame argument itself is never encoded since the hardware
// pipeline produces frames autonomously. It gates keyframe requests to a
// minimum 3000ms interval.
func (a *Adapter) Encode(wantKeyframe bool) {
	a.mu.Lock()
	a.ready = true
	shouldForce := wantKeyframe && time.Since(a.lastForceTime) >= keyframeMinInterval
	if shouldForce {
		a.lastForceTime = time.Now()
	}
	a.mu.Unlock()

	if shouldForce {
		a.wrapper.ForceNextKeyframe()
	}
}

// SetRates feeds the Quality Controller and either triggers a
// Delayed-Reinit or a rate-only patch, depending on whether the selected
// operating point's resolution changed.
func (a *Adapter) SetRates(targetBitrateBps int, framerateHint int) error {
	a.quality.ReportTargetBitrate(float64(targetBitrateBps))
	op := a.quality.Select(framerateHint)

	if !op.Changed {
		return a.wrapper.SetRate(op.Framerate, op.BitrateBps)
	}
	params := hwdriver.Params{
		Width:      op.Resolution.Width,
		Height:     op.Resolution.Height,
		Framerate:  op.Framerate,
		BitrateBps: op.BitrateBps,
	}
	changed := true
	return a.reinitCtl.Request(params, changed)
}

// Tick drives the Delayed-Reinit Controller's periodic debounce check;
// the caller is expected to invoke this roughly every reinit.TickPeriod().
func (a *Adapter) Tick() error { return a.reinitCtl.Tick() }

func (a *Adapter) drainLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stop:
			return
		default:
		}

		// Re-read every pass: Reinit replaces the wrapper's queue.
		queue := a.wrapper.Queue()
		buf, ok := queue.ReadFront(frame.EventWaitPeriod)
		if !ok {
			continue
		}
		a.deliver(buf)
	}
}

func (a *Adapter) deliver(buf *frame.Buffer) {
	a.mu.Lock()
	ready := a.ready
	width, height, baseMs := a.width, a.height, a.baseMs
	a.mu.Unlock()

	if !ready {
		return // start-up gate: drop frames preceding the stack's readiness
	}
	if buf.Flags().IsMotion() && !buf.Flags().IsFrameEnd() {
		return
	}

	fragments := scanNALFragments(buf.Bytes())
	if len(fragments) == 0 {
		return
	}

	nowMillis := nowMs()
	img := EncodedImage{
		Data:              buf.Bytes(),
		Fragments:         fragments,
		Width:             width,
		Height:            height,
		CaptureTimeMs:     nowMillis,
		NTPTimeMs:         nowMillis,
		RTPTimestamp:      uint32(90 * (nowMillis - baseMs)),
		Keyframe:          buf.Flags().IsKeyFrame(),
		PacketizationMode: 1,
	}

	a.mu.Lock()
	cb := a.onEncoded
	a.mu.Unlock()
	if cb != nil {
		cb(img)
	}
}

// scanNALFragments finds every Annex-B start code in data and returns the
// {offset,length} of the NAL unit following each one (offset points past
// the start code, matching the "byte-addressable" contract in spec.md §6).
func scanNALFragments(data []byte) []NALFragment {
	var frags []NALFragment
	i := 0
	for i < len(data) {
		start, scLen := findStartCodeFrom(data, i)
		if start == -1 {
			break
		}
		nalStart := start + scLen
		next, _ := findStartCodeFrom(data, nalStart)
		end := len(data)
		if next != -1 {
			end = next
		}
		if end > nalStart {
			frags = append(frags, NALFragment{Offset: nalStart, Length: end - nalStart})
		}
		i = end
	}
	return frags
}

func findStartCodeFrom(data []byte, from int) (idx, length int) {
	for i := from; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 {
			if data[i+2] == 1 {
				return i, 3
			}
			if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				return i, 4
			}
		}
	}
	return -1, 0
}

func nowMs() int64 { return time.Now().UnixMilli() }
