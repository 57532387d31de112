// Package reinit implements the Delayed-Reinit Controller: it debounces
// parameter changes into at most one hardware encoder reinit per Delta,
// shielding the bandwidth estimator from the disruption a MMAL graph
// teardown/rebuild causes.
package reinit

import (
	"sync"
	"time"
)

// Delta is the minimum spacing between two hardware reinits.
const Delta = 4000 * time.Millisecond

// tickPeriod is how often Controller.Tick should be called by the owning
// periodic task while the controller is not in Pass.
const tickPeriod = 100 * time.Millisecond

// TickPeriod returns the recommended tick interval, exported for callers
// that wire their own ticker.
func TickPeriod() time.Duration { return tickPeriod }

// Status is one of PASS/WAITING/DELAY.
type Status int

const (
	Pass Status = iota
	Waiting
	Delay
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Waiting:
		return "WAITING"
	case Delay:
		return "DELAY"
	default:
		return "UNKNOWN"
	}
}

// ReinitFunc performs the actual hardware reinit with the given params.
type ReinitFunc[P any] func(params P) error

// Controller debounces calls to Request into calls to a ReinitFunc, per
// the PASS/WAITING/DELAY state machine in spec.md §4.4. P is the
// parameter type being debounced (hwdriver.Params in production).
type Controller[P any] struct {
	mu       sync.Mutex
	status   Status
	tLast    time.Time
	cached   P
	hasCache bool
	now      func() time.Time
	delta    time.Duration
	reinit   ReinitFunc[P]
}

// New builds a controller in the initial PASS state, driving reinit via
// fn whenever a debounced change is ready to apply.
func New[P any](fn ReinitFunc[P]) *Controller[P] {
	return &Controller[P]{status: Pass, now: time.Now, delta: Delta, reinit: fn}
}

func (c *Controller[P]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Request submits a parameter change. In PASS it executes immediately and
// moves to WAITING. In WAITING/DELAY it caches the params for the next
// tick if they differ from what is already cached (the equality check is
// left to the caller via changed); the debounce timer is reset only when
// such a request moves WAITING to DELAY, not by later requests in DELAY.
func (c *Controller[P]) Request(params P, changed bool) error {
	c.mu.Lock()
	now := c.now()

	switch c.status {
	case Pass:
		c.tLast = now
		c.status = Waiting
		c.mu.Unlock()
		return c.reinit(params)
	default: // Waiting or Delay
		if changed || !c.hasCache {
			c.cached = params
			c.hasCache = true
			// t_last resets only on the Waiting->Delay transition; a change
			// arriving while already in Delay just updates the cached params,
			// per mmal_wrapper.cc's ReinitEncoder debounce behavior.
			if c.status == Waiting {
				c.tLast = now
			}
			c.status = Delay
		}
		c.mu.Unlock()
		return nil
	}
}

// Tick should be called roughly every TickPeriod while the status is not
// PASS. It performs the debounced reinit once Delta has elapsed since the
// last cached change, and demotes WAITING back to PASS once Delta has
// elapsed with nothing new cached.
func (c *Controller[P]) Tick() error {
	c.mu.Lock()
	now := c.now()
	elapsed := now.Sub(c.tLast)

	switch c.status {
	case Delay:
		if elapsed < c.delta {
			c.mu.Unlock()
			return nil
		}
		params := c.cached
		c.hasCache = false
		c.tLast = now
		c.status = Waiting
		c.mu.Unlock()
		return c.reinit(params)
	case Waiting:
		if elapsed >= c.delta && !c.hasCache {
			c.status = Pass
		}
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
}
