package signaling

import "github.com/n0remac/pi-webrtc-streamer/internal/session"

// sessionHandlers adapts the per-connection send/deliver closures built
// in handleRegister into the session.Handlers contract.
func sessionHandlers(sendToPeer func(string) error, deliver func(string)) session.Handlers {
	return session.Handlers{
		SendToPeer: sendToPeer,
		Deliver: func(text string) {
			if deliver != nil {
				deliver(text)
			}
		},
	}
}
