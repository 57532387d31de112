// Package session implements the Session Proxy (C7): the singleton that
// enforces the single-active-peer invariant across signaling front-ends.
package session

import "sync"

// Status is one of the Session lifecycle states.
type Status int

const (
	Unregistered Status = iota
	Registered
	DisconnectWait
)

// Handlers are the callbacks a front-end registers when it obtains the
// session slot: Deliver forwards an inbound signaling message to the
// WebRTC stack, SendToPeer forwards an outbound message back to the
// front-end's transport.
type Handlers struct {
	Deliver    func(text string)
	SendToPeer func(text string) error
}

// Session is the occupant of the active slot.
type Session struct {
	PeerID   string
	PeerName string
	Status   Status
	SocketID string
	RoomID   string
	frontEnd string
	handlers Handlers
}

// ErrSessionOccupied is returned by Obtain when another session is active.
type ErrSessionOccupied struct{}

func (ErrSessionOccupied) Error() string {
	return "Streamer session is already in use by another user"
}

// Proxy is the Session Proxy (C7) singleton. At most one Session is
// Registered process-wide; signaling front-ends (WebSocket, or any future
// transport) hold only a weak reference to it via this type.
type Proxy struct {
	mu     sync.Mutex
	active *Session
}

// NewProxy builds an empty proxy.
func NewProxy() *Proxy { return &Proxy{} }

// Obtain atomically occupies the slot if empty, recording which front-end
// owns the session. Fails with ErrSessionOccupied if taken.
func (p *Proxy) Obtain(frontEnd, roomID, peerID, peerName string, h Handlers) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return ErrSessionOccupied{}
	}
	p.active = &Session{
		PeerID:   peerID,
		PeerName: peerName,
		Status:   Registered,
		RoomID:   roomID,
		frontEnd: frontEnd,
		handlers: h,
	}
	return nil
}

// Release releases the slot only if (frontEnd, peerID) matches the
// current occupant; no-op otherwise.
func (p *Proxy) Release(frontEnd, peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return
	}
	if p.active.frontEnd != frontEnd || p.active.PeerID != peerID {
		return
	}
	p.active = nil
}

// Active reports the current occupant, or nil if the slot is empty.
func (p *Proxy) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// MessageFromPeer forwards text to the WebRTC stack iff peerID matches
// the occupant.
func (p *Proxy) MessageFromPeer(peerID, text string) bool {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil || s.PeerID != peerID || s.handlers.Deliver == nil {
		return false
	}
	s.handlers.Deliver(text)
	return true
}

// SendToPeer forwards text to the owning front-end, iff peerID matches
// the occupant.
func (p *Proxy) SendToPeer(peerID, text string) error {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil || s.PeerID != peerID || s.handlers.SendToPeer == nil {
		return nil
	}
	return s.handlers.SendToPeer(text)
}
