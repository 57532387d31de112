// Package peer wires the Encoder Adapter's encoded-image stream onto a
// real pion/webrtc PeerConnection: codec registration, glare-safe
// offer/answer negotiation, ICE candidate queueing, and the bandwidth
// estimator that feeds internal/bwe. This is support glue, not one of
// the ten core components — it exists so the repository runs end to
// end against a real browser instead of stopping at the adapter
// boundary. Grounded on the teacher's newSFUAPI/createPeerConnection
// and the pion-bwe-test reference sender's GCC setup.
package peer

import (
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/webrtc/v4"
)

const transportCCRtcpfb = "transport-cc"

// NewAPI builds a pion/webrtc API with H264 (baseline, packetization-mode=1)
// and Opus registered, GCC bandwidth estimation wired through the
// interceptor registry, and transport-cc feedback enabled on both media
// kinds. onEstimator is invoked once per peer connection with the
// concrete cc.BandwidthEstimator, mirroring the reference sender's
// OnNewPeerConnection callback.
func NewAPI(initialBitrateBps int, onEstimator func(cc.BandwidthEstimator)) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeOpus,
			ClockRate:    48000,
			Channels:     2,
			RTCPFeedback: []webrtc.RTCPFeedback{{Type: transportCCRtcpfb}},
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []webrtc.RTCPFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: transportCCRtcpfb}},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	controller, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(gcc.SendSideBWEInitialBitrate(initialBitrateBps))
	})
	if err != nil {
		return nil, err
	}
	if onEstimator != nil {
		controller.OnNewPeerConnection(func(_ string, estimator cc.BandwidthEstimator) {
			onEstimator(estimator)
		})
	}
	registry.Add(controller)

	if err := webrtc.ConfigureTWCCHeaderExtensionSender(m, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry)), nil
}
