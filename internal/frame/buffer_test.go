package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCopyCarriesFlags(t *testing.T) {
	b := NewBuffer(16)
	err := b.Copy(Segment{Data: []byte("hello"), Flags: Flags(FlagKeyFrame)})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b.Bytes()))
	assert.True(t, b.Flags().IsKeyFrame())
	assert.False(t, b.Flags().IsFrameEnd())
}

func TestBufferCopyRejectsOversizedSegment(t *testing.T) {
	b := NewBuffer(4)
	err := b.Copy(Segment{Data: []byte("toolong")})
	require.Error(t, err)
}

func TestBufferAppendRejectsOverflow(t *testing.T) {
	b := NewBuffer(8)
	require.NoError(t, b.Copy(Segment{Data: []byte("1234")}))
	err := b.Append(Segment{Data: []byte("1234")})
	require.Error(t, err)
}

func TestBufferResetClearsState(t *testing.T) {
	b := NewBuffer(8)
	require.NoError(t, b.Copy(Segment{Data: []byte("ab"), Flags: Flags(FlagKeyFrame)}))
	b.Reset()
	assert.Equal(t, 0, b.Length())
	assert.Equal(t, Flags(0), b.Flags())
}

func TestFrameEndLastWinsAcrossAppends(t *testing.T) {
	b := NewBuffer(32)
	require.NoError(t, b.Copy(Segment{Data: []byte("a"), Flags: Flags(FlagFrameEnd)}))
	assert.True(t, b.Flags().IsFrameEnd())
	require.NoError(t, b.Append(Segment{Data: []byte("b"), Flags: 0}))
	assert.False(t, b.Flags().IsFrameEnd())
}
