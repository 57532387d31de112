// Package metrics exposes process gauges on /metrics (Prometheus text
// exposition), grounded on the prometheus/client_golang usage visible
// in other_examples' ts-vms manifest. This is ambient observability,
// not one of the ten core components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the gauges the streamer publishes.
type Registry struct {
	reg *prometheus.Registry

	BitrateBps     prometheus.Gauge
	Framerate      prometheus.Gauge
	QP             prometheus.Gauge
	QueueDepth     prometheus.Gauge
	ReinitTotal    prometheus.Counter
	StillLatencyMs prometheus.Histogram
	MaxBitrateCfg  prometheus.Gauge
	FixedFpsCfg    prometheus.Gauge
}

// New builds a Registry with all gauges registered under a private
// prometheus.Registry (not the global DefaultRegisterer, so multiple
// streamer instances in the same test binary don't collide).
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		BitrateBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_bitrate_bps",
			Help: "Current target encoder bitrate in bits per second.",
		}),
		Framerate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_framerate",
			Help: "Current encoder framerate.",
		}),
		QP: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_qp",
			Help: "Moving-average encoder quantization parameter.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_frame_queue_ready_depth",
			Help: "Number of complete access units waiting in the frame queue.",
		}),
		ReinitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamer_reinit_total",
			Help: "Total number of encoder hardware reinitializations.",
		}),
		StillLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamer_still_capture_latency_ms",
			Help:    "Still-capture latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		MaxBitrateCfg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_config_max_bitrate_bps",
			Help: "Currently applied max_bitrate config value.",
		}),
		FixedFpsCfg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_config_fixed_fps",
			Help: "Currently applied fixed_fps config value (0 if unset).",
		}),
	}

	reg.MustRegister(
		m.BitrateBps, m.Framerate, m.QP, m.QueueDepth,
		m.ReinitTotal, m.StillLatencyMs, m.MaxBitrateCfg, m.FixedFpsCfg,
	)
	return m
}

// Handler returns the http.Handler to mount at /metrics.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
