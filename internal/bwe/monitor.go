// Package bwe samples a pion/interceptor/pkg/cc bandwidth estimator and
// republishes its readings to the Quality Controller, the concrete
// realization of spec.md §4.5's "Inputs (reported by the adapter)" for
// a real WebRTC peer connection. Grounded on the pion-bwe-test
// reference sender's ticker-driven GetTargetBitrate() polling loop.
package bwe

import (
	"sync"
	"time"
)

const samplePeriod = 200 * time.Millisecond

// Reporter is the subset of quality.Controller the monitor feeds;
// declared locally so this package does not need to import
// internal/quality just to call three setters.
type Reporter interface {
	ReportTargetBitrate(bps float64)
	ReportPacketLoss(fraction float64)
	ReportRTT(ms float64)
}

// Estimator is the subset of cc.BandwidthEstimator (pion/interceptor/pkg/cc)
// the monitor actually polls. Declaring it locally, rather than naming
// cc.BandwidthEstimator directly, lets the production wiring in
// internal/peer pass the real estimator straight through (it satisfies
// this interface structurally) while tests use a small fake without
// having to mirror every method cc.BandwidthEstimator exposes.
type Estimator interface {
	GetTargetBitrate() int
	GetStats() map[string]interface{}
}

// Monitor polls an Estimator on a fixed period and forwards target
// bitrate, loss fraction, and RTT into a Reporter.
type Monitor struct {
	mu        sync.Mutex
	estimator Estimator
	reporter  Reporter
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor builds a Monitor bound to estimator and reporter but does
// not start sampling until Start is called.
func NewMonitor(estimator Estimator, reporter Reporter) *Monitor {
	return &Monitor{estimator: estimator, reporter: reporter}
}

// Start begins the 200ms sampling loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return // already running
	}
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.loop(m.stop)
}

// Stop halts sampling and waits for the loop goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	m.wg.Wait()
}

func (m *Monitor) loop(stop chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(samplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	target := m.estimator.GetTargetBitrate()
	m.reporter.ReportTargetBitrate(float64(target))

	stats := m.estimator.GetStats()
	if loss, ok := numericStat(stats, "averageLoss", "packetLoss"); ok {
		m.reporter.ReportPacketLoss(loss)
	}
	if rtt, ok := numericStat(stats, "rtt", "propagationRtt"); ok {
		m.reporter.ReportRTT(rtt)
	}
}

// numericStat looks up the first present key in candidates and coerces
// it to float64; the interceptor's BandwidthEstimator.GetStats() exposes
// an implementation-defined map, so this degrades gracefully rather than
// panicking when a key is absent or a different numeric type.
func numericStat(stats map[string]interface{}, candidates ...string) (float64, bool) {
	for _, key := range candidates {
		v, ok := stats[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}
