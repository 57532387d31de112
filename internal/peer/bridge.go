package peer

import (
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/n0remac/pi-webrtc-streamer/internal/rtcadapter"
)

// VideoBridge adapts the drain task's registered callback
// (spec.md §4.6 step 5, "Deliver to the registered callback") onto
// TrackLocalStaticSample.WriteSample, computing each sample's duration
// from the gap between successive capture timestamps.
type VideoBridge struct {
	session *Session
	lastMs  int64
}

// NewVideoBridge returns a bridge writing onto session's video track.
func NewVideoBridge(session *Session) *VideoBridge {
	return &VideoBridge{session: session}
}

// OnEncodedImage is passed directly as rtcadapter.Adapter's onEncoded
// callback.
func (b *VideoBridge) OnEncodedImage(img rtcadapter.EncodedImage) {
	duration := 33 * time.Millisecond
	if b.lastMs != 0 && img.CaptureTimeMs > b.lastMs {
		duration = time.Duration(img.CaptureTimeMs-b.lastMs) * time.Millisecond
	}
	b.lastMs = img.CaptureTimeMs

	if err := b.session.VideoTrack().WriteSample(media.Sample{
		Data:     img.Data,
		Duration: duration,
	}); err != nil {
		return
	}
}
