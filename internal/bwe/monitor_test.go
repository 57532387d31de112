package bwe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEstimator struct {
	bitrate int
	stats   map[string]interface{}
}

func (f *fakeEstimator) GetTargetBitrate() int            { return f.bitrate }
func (f *fakeEstimator) GetStats() map[string]interface{} { return f.stats }

type fakeReporter struct {
	bitrate float64
	loss    float64
	rtt     float64
}

func (r *fakeReporter) ReportTargetBitrate(bps float64)   { r.bitrate = bps }
func (r *fakeReporter) ReportPacketLoss(fraction float64) { r.loss = fraction }
func (r *fakeReporter) ReportRTT(ms float64)              { r.rtt = ms }

func TestNumericStatPrefersFirstPresentKey(t *testing.T) {
	v, ok := numericStat(map[string]interface{}{"rtt": float64(42)}, "rtt", "propagationRtt")
	require.True(t, ok)
	assert.Equal(t, float64(42), v)

	_, ok = numericStat(map[string]interface{}{}, "rtt")
	assert.False(t, ok)
}

func TestMonitorSampleForwardsEstimatorReadings(t *testing.T) {
	est := &fakeEstimator{bitrate: 900_000, stats: map[string]interface{}{"rtt": float64(35), "packetLoss": float64(2.5)}}
	rep := &fakeReporter{}

	m := &Monitor{estimator: est, reporter: rep}
	m.sample()

	assert.Equal(t, float64(900_000), rep.bitrate)
	assert.Equal(t, float64(35), rep.rtt)
	assert.Equal(t, 2.5, rep.loss)
	_ = time.Millisecond
}
