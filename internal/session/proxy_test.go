package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObtainOccupiesEmptySlot(t *testing.T) {
	p := NewProxy()
	require.NoError(t, p.Obtain("ws", "1", "2", "alice", Handlers{}))
	s := p.Active()
	require.NotNil(t, s)
	assert.Equal(t, "2", s.PeerID)
	assert.Equal(t, Registered, s.Status)
}

func TestSecondRegisterFailsWithoutDisturbingFirst(t *testing.T) {
	p := NewProxy()
	require.NoError(t, p.Obtain("ws", "1", "2", "alice", Handlers{}))

	err := p.Obtain("ws", "3", "4", "bob", Handlers{})
	require.Error(t, err)
	assert.Equal(t, ErrSessionOccupied{}.Error(), err.Error())

	s := p.Active()
	require.NotNil(t, s)
	assert.Equal(t, "2", s.PeerID)
}

func TestReleaseOnlyMatchingOccupant(t *testing.T) {
	p := NewProxy()
	require.NoError(t, p.Obtain("ws", "1", "2", "alice", Handlers{}))

	p.Release("ws", "999") // mismatched peer id, no-op
	assert.NotNil(t, p.Active())

	p.Release("ws", "2")
	assert.Nil(t, p.Active())
}

func TestMessageFromPeerRoutesOnlyToMatchingOccupant(t *testing.T) {
	p := NewProxy()
	var delivered string
	require.NoError(t, p.Obtain("ws", "1", "2", "alice", Handlers{
		Deliver: func(text string) { delivered = text },
	}))

	ok := p.MessageFromPeer("999", "ignored")
	assert.False(t, ok)
	assert.Empty(t, delivered)

	ok = p.MessageFromPeer("2", "sdp-offer")
	assert.True(t, ok)
	assert.Equal(t, "sdp-offer", delivered)
}
