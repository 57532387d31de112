package peer

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripsCandidateOnly(t *testing.T) {
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2113937151 192.0.2.1 54400 typ host"}
	msg := Message{Type: "candidate", Candidate: &cand}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"sdp"`)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "candidate", decoded.Type)
	require.NotNil(t, decoded.Candidate)
	assert.Equal(t, cand.Candidate, decoded.Candidate.Candidate)
	assert.Nil(t, decoded.SDP)
}

func TestMessageRoundTripsOfferSDP(t *testing.T) {
	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	msg := Message{Type: "offer", SDP: &sdp}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "offer", decoded.Type)
	require.NotNil(t, decoded.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, decoded.SDP.Type)
	assert.Nil(t, decoded.Candidate)
}
