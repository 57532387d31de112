package peer

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Message is the single wire envelope exchanged with the browser peer
// over the signaling transport, mirroring the teacher's sfuMessage.
type Message struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

var iceServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Session owns a single peer connection and its glare-safe negotiation
// state. Unlike the teacher's SFU, this side always holds the one
// active stream's video and audio tracks — there is no routing between
// multiple publishers/subscribers.
type Session struct {
	pc         *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticSample
	audioTrack *webrtc.TrackLocalStaticSample

	polite      bool
	makingOffer atomic.Bool

	candMu    sync.Mutex
	candQueue []webrtc.ICECandidateInit
	remoteSet bool

	sendToPeer func(string) error
}

// NewSession creates a peer connection via api, adds the H264 video and
// Opus audio tracks, and wires ICE candidate emission to sendToPeer.
// The streamer is always the polite peer: it never holds a track the
// browser initiates negotiation over, so yielding on glare is safe.
func NewSession(api *webrtc.API, sendToPeer func(string) error) (*Session, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("peer: new peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
	}, "video", "pi-streamer")
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: new video track: %w", err)
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: add video track: %w", err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, "audio", "pi-streamer")
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: new audio track: %w", err)
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: add audio track: %w", err)
	}

	s := &Session{
		pc:         pc,
		videoTrack: videoTrack,
		audioTrack: audioTrack,
		polite:     true,
		sendToPeer: sendToPeer,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		ice := c.ToJSON()
		s.send(Message{Type: "candidate", Candidate: &ice})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[peer] connection state: %s", state)
	})

	return s, nil
}

// VideoTrack/AudioTrack expose the local tracks for sample writes by the
// application root's encoder/audio bridges.
func (s *Session) VideoTrack() *webrtc.TrackLocalStaticSample { return s.videoTrack }
func (s *Session) AudioTrack() *webrtc.TrackLocalStaticSample { return s.audioTrack }

// Negotiate creates and sends a fresh offer, marking the glare-risk
// window the way the teacher's negotiation loop does.
func (s *Session) Negotiate() error {
	s.makingOffer.Store(true)
	defer s.makingOffer.Store(false)

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("peer: create offer: %w", err)
	}
	if s.pc.SignalingState() != webrtc.SignalingStateStable {
		return nil
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("peer: set local description: %w", err)
	}
	if ld := s.pc.LocalDescription(); ld != nil {
		s.send(Message{Type: "offer", SDP: ld})
	}
	return nil
}

// HandleMessage implements the session.Handlers.Deliver contract: parse
// and dispatch one inbound signaling message, including the impolite/
// polite glare-resolution rule from the teacher's readPumpSFU.
func (s *Session) HandleMessage(text string) {
	var msg Message
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		log.Printf("[peer] bad signaling message: %v", err)
		return
	}

	switch msg.Type {
	case "offer":
		s.handleOffer(msg)
	case "answer":
		s.handleAnswer(msg)
	case "candidate":
		s.handleCandidate(msg)
	}
}

func (s *Session) handleOffer(msg Message) {
	if msg.SDP == nil {
		return
	}
	offerCollision := s.makingOffer.Load() || s.pc.SignalingState() != webrtc.SignalingStateStable
	if offerCollision && !s.polite {
		log.Printf("[peer] glare: ignoring remote offer (impolite)")
		return
	}
	if offerCollision {
		_ = s.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	}

	if err := s.pc.SetRemoteDescription(*msg.SDP); err != nil {
		log.Printf("[peer] SetRemoteDescription(offer): %v", err)
		return
	}
	s.flushCandidateQueue()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		log.Printf("[peer] CreateAnswer: %v", err)
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		log.Printf("[peer] SetLocalDescription(answer): %v", err)
		return
	}
	s.send(Message{Type: "answer", SDP: s.pc.LocalDescription()})
}

func (s *Session) handleAnswer(msg Message) {
	if msg.SDP == nil {
		return
	}
	if err := s.pc.SetRemoteDescription(*msg.SDP); err != nil {
		log.Printf("[peer] SetRemoteDescription(answer): %v", err)
		return
	}
	s.flushCandidateQueue()
}

func (s *Session) handleCandidate(msg Message) {
	if msg.Candidate == nil {
		return
	}
	s.candMu.Lock()
	if !s.remoteSet || s.pc.RemoteDescription() == nil {
		s.candQueue = append(s.candQueue, *msg.Candidate)
		s.candMu.Unlock()
		return
	}
	s.candMu.Unlock()
	if err := s.pc.AddICECandidate(*msg.Candidate); err != nil {
		log.Printf("[peer] AddICECandidate: %v", err)
	}
}

func (s *Session) flushCandidateQueue() {
	s.candMu.Lock()
	s.remoteSet = true
	queued := s.candQueue
	s.candQueue = nil
	s.candMu.Unlock()

	for _, c := range queued {
		if err := s.pc.AddICECandidate(c); err != nil {
			log.Printf("[peer] AddICECandidate (queued): %v", err)
		}
	}
}

func (s *Session) send(msg Message) {
	if s.sendToPeer == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[peer] marshal outbound message: %v", err)
		return
	}
	if err := s.sendToPeer(string(data)); err != nil {
		log.Printf("[peer] send to peer: %v", err)
	}
}

// Close tears down the peer connection.
func (s *Session) Close() error { return s.pc.Close() }
