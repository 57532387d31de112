package hwdriver

import (
	"context"
	"sync"
	"time"

	"github.com/n0remac/pi-webrtc-streamer/internal/frame"
)

// FakeDriver synthesizes a CONFIG/KEYFRAME/FRAME_END segment sequence on a
// timer, for running the whole stack (and its tests) without real camera
// hardware attached.
type FakeDriver struct {
	mu        sync.Mutex
	open      bool
	capturing bool
	params    Params
	onSegment SegmentFunc
	stop      chan struct{}
	seq       int
}

func NewFakeDriver() *FakeDriver { return &FakeDriver{} }

func (f *FakeDriver) Open(ctx context.Context, params Params, onSegment SegmentFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		return ErrBusy{}
	}
	f.open = true
	f.params = params
	f.onSegment = onSegment
	f.stop = make(chan struct{})
	go f.run(ctx)
	return nil
}

func (f *FakeDriver) run(ctx context.Context) {
	f.mu.Lock()
	fps := f.params.Framerate
	f.mu.Unlock()
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	keyframeEvery := fps * 2 // an IDR roughly every two seconds
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-ticker.C:
			f.mu.Lock()
			capturing := f.capturing
			f.seq++
			seq := f.seq
			f.mu.Unlock()
			if !capturing {
				continue
			}
			now := time.Now().UnixMicro()
			if seq%keyframeEvery == 1 {
				f.emit(frame.Segment{Data: fakeSPS(), Flags: frame.Flags(frame.FlagConfig), PTSMicros: now})
				f.emit(frame.Segment{Data: fakePPS(), Flags: frame.Flags(frame.FlagConfig), PTSMicros: now})
				f.emit(frame.Segment{
					Data:      fakeSlice(seq, true),
					Flags:     frame.Flags(frame.FlagFrameStart) | frame.Flags(frame.FlagFrameEnd) | frame.Flags(frame.FlagKeyFrame),
					PTSMicros: now,
				})
				continue
			}
			f.emit(frame.Segment{
				Data:      fakeSlice(seq, false),
				Flags:     frame.Flags(frame.FlagFrameStart) | frame.Flags(frame.FlagFrameEnd),
				PTSMicros: now,
			})
		}
	}
}

func (f *FakeDriver) emit(seg frame.Segment) {
	f.mu.Lock()
	cb := f.onSegment
	f.mu.Unlock()
	if cb != nil {
		cb(seg)
	}
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil
	}
	f.open = false
	close(f.stop)
	return nil
}

func (f *FakeDriver) SetRate(framerate, bitrateBps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params.Framerate = framerate
	f.params.BitrateBps = bitrateBps
	return nil
}

func (f *FakeDriver) ForceKeyframe() {
	f.mu.Lock()
	f.seq = 0 // next tick increments to 1, which lands on the keyframe modulus
	f.mu.Unlock()
}

func (f *FakeDriver) SetCapturing(capturing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capturing = capturing
	return nil
}

var fakeStartCode = []byte{0x00, 0x00, 0x00, 0x01}

func withStartCode(nal []byte) []byte {
	return append(append([]byte{}, fakeStartCode...), nal...)
}

func fakeSPS() []byte { return withStartCode([]byte{0x67, 0x42, 0xc0, 0x1e}) }
func fakePPS() []byte { return withStartCode([]byte{0x68, 0xce, 0x38, 0x80}) }
func fakeSlice(seq int, idr bool) []byte {
	header := byte(0x41) // non-IDR slice
	if idr {
		header = 0x65
	}
	return withStartCode([]byte{header, byte(seq), byte(seq >> 8), 0xAA, 0xBB})
}
