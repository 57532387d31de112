// Package quality implements the Quality Controller: it turns
// bandwidth-estimator feedback into a resolution/framerate/bitrate
// operating point, using moving averages over the last WindowSize
// samples and a Kush-gauge resolution table lookup.
package quality

import "github.com/n0remac/pi-webrtc-streamer/internal/config"

// WindowSize is N in spec.md §4.5/§3: the moving-average sample count.
const WindowSize = 90

// Kush gauge constants from spec.md §4.5.
const (
	fpsMax    = 30
	motionMax = 3
	motionMin = 1
)

// referenceBitrateBps is the Kush-gauge midpoint reference bitrate for a
// resolution, in bits per second.
func referenceBitrateBps(width, height int) float64 {
	return float64(width*height) * fpsMax * 0.07
}

// Reason tags why an operating point changed.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonBitrate
	ReasonQP
	ReasonPacketLoss
	ReasonRTT
)

// Adaptation is the scaling hint surfaced to WebRTC.
type Adaptation int

const (
	NoAdaptation Adaptation = iota
	AdaptUp
	AdaptDown
)

// Resolution is a width/height pair from the active aspect list.
type Resolution struct {
	Width, Height int
}

// OperatingPoint is the candidate (resolution, framerate, bitrate)
// produced by Select, tagged with why it was chosen and whether it
// actually differs from the previous selection.
type OperatingPoint struct {
	Resolution Resolution
	Framerate  int
	BitrateBps int
	Reason     Reason
	Changed    bool
}

// aspect4x3 and aspect16x9 are the resolution whitelists the Config
// Registry's resolution_aspect key selects between.
var (
	aspect4x3 = []Resolution{
		{320, 240}, {640, 480}, {800, 600}, {1024, 768},
	}
	aspect16x9 = []Resolution{
		{320, 180}, {640, 360}, {854, 480}, {1280, 720}, {1920, 1080},
	}
)

// Controller is the Quality Controller (C5).
type Controller struct {
	cfg *config.Registry

	qp      *movingAverage
	loss    *movingAverage
	rtt     *movingAverage
	bitrate *movingAverage

	lastSelected     Resolution
	hasLastSelection bool
}

// NewController builds a controller reading resolution/fps policy from
// cfg.
func NewController(cfg *config.Registry) *Controller {
	return &Controller{
		cfg:     cfg,
		qp:      newMovingAverage(WindowSize),
		loss:    newMovingAverage(WindowSize),
		rtt:     newMovingAverage(WindowSize),
		bitrate: newMovingAverage(WindowSize),
	}
}

func (c *Controller) ReportQP(qp float64)                 { c.qp.Add(qp) }
func (c *Controller) ReportPacketLoss(ratio256 float64)    { c.loss.Add(ratio256) }
func (c *Controller) ReportRTT(rttMs float64)              { c.rtt.Add(rttMs) }
func (c *Controller) ReportTargetBitrate(bps float64)      { c.bitrate.Add(bps) }

// resolutionList returns the active aspect family's whitelist.
func (c *Controller) resolutionList() []Resolution {
	if c.cfg.GetString("resolution_aspect") == "4:3" {
		return aspect4x3
	}
	return aspect16x9
}

// Select implements the operating-point selection rule of spec.md §4.5.
func (c *Controller) Select(bweFramerateHint int) OperatingPoint {
	framerate := c.cfg.GetInt("fixed_fps")
	if c.cfg.GetBool("dynamic_fps") {
		framerate = clamp(bweFramerateHint, 1, 30)
	}

	targetBitrate := int(c.bitrate.Value())
	if targetBitrate == 0 {
		targetBitrate = c.cfg.GetInt("max_bitrate")
	}

	if !c.cfg.GetBool("dynamic_resolution") {
		res := parseFixedResolution(c.cfg.GetString("fixed_resolution"))
		changed := !c.hasLastSelection || res != c.lastSelected
		c.lastSelected = res
		c.hasLastSelection = true
		return OperatingPoint{Resolution: res, Framerate: framerate, BitrateBps: targetBitrate, Reason: ReasonBitrate, Changed: changed}
	}

	best := c.resolutionList()[0]
	bestDist := -1.0
	for _, r := range c.resolutionList() {
		dist := abs(referenceBitrateBps(r.Width, r.Height) - float64(targetBitrate))
		if bestDist < 0 || dist < bestDist {
			best = r
			bestDist = dist
		}
	}

	changed := !c.hasLastSelection || best != c.lastSelected
	c.lastSelected = best
	c.hasLastSelection = true

	return OperatingPoint{
		Resolution: best,
		Framerate:  framerate,
		BitrateBps: targetBitrate,
		Reason:     ReasonBitrate,
		Changed:    changed,
	}
}

// AdaptationHint surfaces the adapt-up/adapt-down signal from spec.md
// §4.5's tie-break paragraph.
func (c *Controller) AdaptationHint() Adaptation {
	if c.qp.HasSamples() && c.qp.Value() > 35 {
		return AdaptDown
	}
	if c.loss.HasSamples() && c.loss.Value() > 8 {
		return AdaptDown
	}
	if c.rtt.HasSamples() && c.rtt.Value() > 200 {
		return AdaptDown
	}
	if c.qp.HasSamples() && c.qp.Value() < 24 {
		return AdaptUp
	}
	return NoAdaptation
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func parseFixedResolution(s string) Resolution {
	var w, h int
	for i := 0; i < len(s); i++ {
		if s[i] == 'x' {
			w = atoi(s[:i])
			h = atoi(s[i+1:])
			break
		}
	}
	if w == 0 || h == 0 {
		return Resolution{1280, 720}
	}
	return Resolution{w, h}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
