package main

import (
	"log"
	"sync"

	"github.com/pion/interceptor/pkg/cc"

	"github.com/n0remac/pi-webrtc-streamer/internal/bwe"
	"github.com/n0remac/pi-webrtc-streamer/internal/config"
	"github.com/n0remac/pi-webrtc-streamer/internal/encoder"
	"github.com/n0remac/pi-webrtc-streamer/internal/metrics"
	"github.com/n0remac/pi-webrtc-streamer/internal/peer"
	"github.com/n0remac/pi-webrtc-streamer/internal/quality"
	"github.com/n0remac/pi-webrtc-streamer/internal/rtcadapter"
)

// application holds the long-lived collaborators OnRegister/OnRelease
// need to reach across the signaling hook boundary. Only one peer can
// be active at a time (internal/session.Proxy enforces that), so a
// single guarded field is enough to track it.
type application struct {
	cfg     *config.Registry
	wrapper *encoder.Wrapper
	adapter *rtcadapter.Adapter
	quality *quality.Controller
	metrics *metrics.Registry

	width, height, framerate, bitrateBps int

	mu      sync.Mutex
	sess    *peer.Session
	monitor *bwe.Monitor
}

func (a *application) onRegister(peerID string, sendToPeer func(string) error) (func(string), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var estimator cc.BandwidthEstimator
	api, err := peer.NewAPI(a.bitrateBps, func(e cc.BandwidthEstimator) { estimator = e })
	if err != nil {
		return nil, err
	}

	sess, err := peer.NewSession(api, sendToPeer)
	if err != nil {
		return nil, err
	}

	bridge := peer.NewVideoBridge(sess)
	settings := rtcadapter.CodecSettings{
		Width:           a.width,
		Height:          a.height,
		MaxFramerate:    a.framerate,
		StartBitrateBps: a.bitrateBps,
		MaxBitrateBps:   a.cfg.GetInt("max_bitrate"),
	}
	if err := a.adapter.InitEncode(settings, bridge.OnEncodedImage); err != nil {
		sess.Close()
		return nil, err
	}

	if estimator != nil {
		a.monitor = bwe.NewMonitor(estimator, a.quality)
		a.monitor.Start()
	}

	if err := sess.Negotiate(); err != nil {
		log.Printf("[streamer] initial negotiation failed for %s: %v", peerID, err)
	}

	a.sess = sess
	return sess.HandleMessage, nil
}

func (a *application) onRelease(peerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

func (a *application) releaseLocked() {
	if a.monitor != nil {
		a.monitor.Stop()
		a.monitor = nil
	}
	if a.sess != nil {
		if err := a.sess.Close(); err != nil {
			log.Printf("[streamer] closing peer session: %v", err)
		}
		a.sess = nil
	}
	if err := a.adapter.Release(); err != nil {
		log.Printf("[streamer] releasing encoder adapter: %v", err)
	}
}

// teardownActiveSession is called once from the shutdown path in
// addition to the per-peer OnRelease hook, in case the process is
// killed while a peer is still connected.
func (a *application) teardownActiveSession() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil && a.monitor == nil {
		return
	}
	a.releaseLocked()
}

func (a *application) onConfigPatch(patch map[string]any) []string {
	changed := a.cfg.PatchFromJSON(patch)
	for _, key := range changed {
		switch key {
		case "max_bitrate":
			a.metrics.MaxBitrateCfg.Set(float64(a.cfg.GetInt("max_bitrate")))
		case "fixed_fps":
			a.metrics.FixedFpsCfg.Set(float64(a.cfg.GetInt("fixed_fps")))
		}
	}
	return changed
}
