package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/pi-webrtc-streamer/internal/config"
)

func newTestConfig(t *testing.T) *config.Registry {
	cfg := config.NewRegistry()
	require.NoError(t, cfg.Set("resolution_aspect", "4:3"))
	require.NoError(t, cfg.Set("dynamic_resolution", true))
	require.NoError(t, cfg.Set("dynamic_fps", false))
	require.NoError(t, cfg.Set("fixed_fps", 30))
	return cfg
}

func TestReferenceBitrateMidpoints(t *testing.T) {
	assert.InDelta(t, 161_280, referenceBitrateBps(320, 240), 1)
	assert.InDelta(t, 645_120, referenceBitrateBps(640, 480), 1)
	assert.InDelta(t, 1_935_360, referenceBitrateBps(1280, 720), 1)
}

func TestSelectPicksClosestKushGaugeMatch(t *testing.T) {
	cfg := newTestConfig(t)
	// restrict the whitelist lookup to the three resolutions in the
	// scenario by using the 4:3-equivalent subset via a direct override.
	aspect4x3 = []Resolution{{320, 240}, {640, 480}, {1280, 720}}

	c := NewController(cfg)
	c.ReportTargetBitrate(800_000)

	op := c.Select(30)
	assert.Equal(t, Resolution{640, 480}, op.Resolution)
	assert.True(t, op.Changed)

	op2 := c.Select(30)
	assert.Equal(t, Resolution{640, 480}, op2.Resolution)
	assert.False(t, op2.Changed, "unchanged selection should report Changed=false")
}

func TestAdaptationHints(t *testing.T) {
	cfg := newTestConfig(t)
	c := NewController(cfg)

	assert.Equal(t, NoAdaptation, c.AdaptationHint())

	c.ReportQP(40)
	assert.Equal(t, AdaptDown, c.AdaptationHint())

	c2 := NewController(cfg)
	c2.ReportQP(20)
	assert.Equal(t, AdaptUp, c2.AdaptationHint())

	c3 := NewController(cfg)
	c3.ReportRTT(250)
	assert.Equal(t, AdaptDown, c3.AdaptationHint())
}

func TestFixedResolutionBypassesKushGauge(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, cfg.Set("dynamic_resolution", false))
	require.NoError(t, cfg.Set("fixed_resolution", "1280x720"))

	c := NewController(cfg)
	op := c.Select(30)
	assert.Equal(t, Resolution{1280, 720}, op.Resolution)
}
