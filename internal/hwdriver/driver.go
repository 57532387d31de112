// Package hwdriver models the native hardware-encoder driver that
// spec.md treats as an opaque producer of timestamped, flagged byte
// buffers: this package never reimplements MMAL/VideoCore, it only
// defines the contract the Encoder Wrapper drives and ships one concrete
// implementation that launches an external encoder binary.
package hwdriver

import (
	"context"

	"github.com/n0remac/pi-webrtc-streamer/internal/frame"
)

// Params are the encoding parameters applied at Open or SetRate time.
type Params struct {
	Width, Height, Framerate int
	BitrateBps               int
}

// SegmentFunc receives one encoder segment. It is invoked on whatever
// thread the driver implementation delivers on (for ProcessDriver, a
// dedicated reader goroutine) and must do no blocking work beyond handing
// the segment to a Frame Queue.
type SegmentFunc func(frame.Segment)

// Driver is the contract the Encoder Wrapper (C3) drives. Open must block
// until the pipeline is ready to produce segments (but segments may only
// start flowing once SetCapturing(true) is called, mirroring MMAL's
// enable-port-then-start-capture split).
type Driver interface {
	Open(ctx context.Context, params Params, onSegment SegmentFunc) error
	Close() error
	SetRate(framerate int, bitrateBps int) error
	ForceKeyframe()
	SetCapturing(capturing bool) error
}

// ErrBusy is returned by Open if the driver is already open.
type ErrBusy struct{}

func (ErrBusy) Error() string { return "hwdriver: already open" }

// ErrDeviceMissing is returned when the underlying device/binary cannot
// be found or started.
type ErrDeviceMissing struct{ Reason string }

func (e ErrDeviceMissing) Error() string { return "hwdriver: device missing: " + e.Reason }
