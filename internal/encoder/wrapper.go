// Package encoder implements the Encoder Wrapper: the state machine that
// owns the camera+encoder graph (modeled by an hwdriver.Driver), the
// Frame Queue the graph's segment callback feeds, and the lifecycle and
// parameter operations the rest of the system drives it through.
package encoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/n0remac/pi-webrtc-streamer/internal/config"
	"github.com/n0remac/pi-webrtc-streamer/internal/frame"
	"github.com/n0remac/pi-webrtc-streamer/internal/hwdriver"
)

// State is one of the Encoder Wrapper's lifecycle states.
type State int

const (
	Uninitialized State = iota
	InitializedIdle
	Capturing
	ReinitPending
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case InitializedIdle:
		return "INITIALIZED_IDLE"
	case Capturing:
		return "CAPTURING"
	case ReinitPending:
		return "REINIT_PENDING"
	default:
		return "UNKNOWN"
	}
}

// ErrEncoderBusy is returned by Init when already initialized.
type ErrEncoderBusy struct{}

func (ErrEncoderBusy) Error() string { return "encoder: already initialized" }

// ErrNotInitialized is returned by operations that require an
// initialized graph.
type ErrNotInitialized struct{}

func (ErrNotInitialized) Error() string { return "encoder: not initialized" }

const (
	queuePoolSize = 32
	queueBufSize  = 256 * 1024
)

// Wrapper is the Encoder Wrapper (C3). All operations that touch the
// graph are serialized by mu; lock ordering elsewhere in the system
// always takes this after the Session Proxy's lock and before the Frame
// Queue's (the Frame Queue has its own internal mutex and is always
// entered only through Wrapper or the drain task, never directly).
type Wrapper struct {
	mu     sync.Mutex
	state  State
	driver hwdriver.Driver
	queue  *frame.Queue
	params hwdriver.Params
	cancel context.CancelFunc
}

// NewWrapper builds a wrapper around the given driver implementation
// (hwdriver.ProcessDriver for real hardware, hwdriver.FakeDriver for
// tests and hardware-less runs).
func NewWrapper(driver hwdriver.Driver) *Wrapper {
	return &Wrapper{state: Uninitialized, driver: driver}
}

// Queue returns the Frame Queue the drain task reads from. Valid only
// after a successful Init.
func (w *Wrapper) Queue() *frame.Queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue
}

func (w *Wrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Init constructs the camera+encoder graph and wires its segment callback
// into a fresh Frame Queue. Returns once the pipeline is ready but not
// yet capturing.
func (w *Wrapper) Init(params hwdriver.Params) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Uninitialized {
		return ErrEncoderBusy{}
	}

	queue := frame.NewQueue(queuePoolSize, queueBufSize)
	ctx, cancel := context.WithCancel(context.Background())

	if err := w.driver.Open(ctx, params, func(seg frame.Segment) {
		queue.WriteSegment(seg)
	}); err != nil {
		cancel()
		return err
	}

	w.queue = queue
	w.params = params
	w.cancel = cancel
	w.state = InitializedIdle
	return nil
}

// teardownLocked cancels the driver's context, closes the driver and the
// Frame Queue. Caller must hold mu.
func (w *Wrapper) teardownLocked() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.driver != nil {
		_ = w.driver.Close()
	}
	if w.queue != nil {
		w.queue.Close()
	}
	w.state = Uninitialized
}

// Reinit tears the graph down and reconstructs it with new params. Only
// legal if currently initialized (idle or capturing).
func (w *Wrapper) Reinit(params hwdriver.Params) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Uninitialized {
		return ErrNotInitialized{}
	}
	w.state = ReinitPending
	w.teardownLocked()

	queue := frame.NewQueue(queuePoolSize, queueBufSize)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.driver.Open(ctx, params, func(seg frame.Segment) {
		queue.WriteSegment(seg)
	}); err != nil {
		cancel()
		w.state = Uninitialized
		return fmt.Errorf("encoder: reinit failed: %w", err)
	}
	w.queue = queue
	w.params = params
	w.cancel = cancel
	w.state = InitializedIdle
	return nil
}

// StartCapture enables the camera capture flag. Idempotent.
func (w *Wrapper) StartCapture() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case Uninitialized:
		return ErrNotInitialized{}
	case Capturing:
		return nil
	}
	if err := w.driver.SetCapturing(true); err != nil {
		return err
	}
	w.state = Capturing
	return nil
}

// StopCapture disables the camera capture flag. Idempotent.
func (w *Wrapper) StopCapture() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case Uninitialized:
		return ErrNotInitialized{}
	case InitializedIdle:
		return nil
	}
	if err := w.driver.SetCapturing(false); err != nil {
		return err
	}
	w.state = InitializedIdle
	return nil
}

// SetRate applies a parameter patch without reinit, iff values changed.
// Safe to call at any time after Init.
func (w *Wrapper) SetRate(framerate, bitrateBps int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Uninitialized {
		return ErrNotInitialized{}
	}
	if w.params.Framerate == framerate && w.params.BitrateBps == bitrateBps {
		return nil
	}
	if err := w.driver.SetRate(framerate, bitrateBps); err != nil {
		return err
	}
	w.params.Framerate = framerate
	w.params.BitrateBps = bitrateBps
	return nil
}

// ForceNextKeyframe requests an IDR at the next opportunity.
func (w *Wrapper) ForceNextKeyframe() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Uninitialized {
		return
	}
	w.driver.ForceKeyframe()
}

// ApplyMediaConfig reads fixed_fps and max_bitrate from the Config
// Registry and applies them through SetRate. The rotation, flip, AWB,
// exposure, flicker, DRC and annotation keys are not read or applied to
// the driver.
func (w *Wrapper) ApplyMediaConfig(reg *config.Registry) error {
	return w.SetRate(reg.GetInt("fixed_fps"), reg.GetInt("max_bitrate"))
}
