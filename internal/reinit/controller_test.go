package reinit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically instead of sleeping
// through the real 4-second debounce window.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestController(t *testing.T) (*Controller[string], *fakeClock, *[]string) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var applied []string
	c := New[string](func(p string) error {
		applied = append(applied, p)
		return nil
	})
	c.now = clock.now
	c.delta = 200 * time.Millisecond // scaled-down Delta for fast tests
	_ = t
	return c, clock, &applied
}

func TestPassExecutesImmediatelyThenWaits(t *testing.T) {
	c, _, applied := newTestController(t)
	require.NoError(t, c.Request("720p", true))
	assert.Equal(t, []string{"720p"}, *applied)
	assert.Equal(t, Waiting, c.Status())
}

func TestDebouncedReinitFiresOnceAfterDelta(t *testing.T) {
	c, clock, applied := newTestController(t)
	require.NoError(t, c.Request("720p", true)) // PASS -> immediate, -> WAITING

	clock.advance(100 * time.Millisecond)
	require.NoError(t, c.Request("480p", true)) // WAITING -> DELAY, caches 480p, t_last=100ms
	assert.Equal(t, Delay, c.Status())

	clock.advance(200 * time.Millisecond) // 200ms since 480p cached >= 200ms delta
	require.NoError(t, c.Tick())

	assert.Equal(t, []string{"720p", "480p"}, *applied)
	assert.Equal(t, Waiting, c.Status())
}

// TestDelayRequestsDoNotExtendDebounceWindow mirrors spec.md §8 scenario 4:
// a second parameter change arriving while already in DELAY updates the
// cached params but must not push the debounce window back out, or a
// steady stream of changes could starve the reinit indefinitely.
func TestDelayRequestsDoNotExtendDebounceWindow(t *testing.T) {
	c, clock, applied := newTestController(t)
	require.NoError(t, c.Request("720p", true)) // PASS -> immediate, -> WAITING, t_last=0

	clock.advance(50 * time.Millisecond) // t=50ms
	require.NoError(t, c.Request("480p", true)) // WAITING -> DELAY, t_last=50ms
	assert.Equal(t, Delay, c.Status())

	clock.advance(100 * time.Millisecond) // t=150ms, still in DELAY
	require.NoError(t, c.Request("360p", true)) // caches 360p, t_last stays 50ms
	assert.Equal(t, Delay, c.Status())

	clock.advance(90 * time.Millisecond) // t=240ms: 190ms since t_last=50ms, still < 200ms delta
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"720p"}, *applied, "reinit must not fire before delta has elapsed since the WAITING->DELAY transition")
	assert.Equal(t, Delay, c.Status())

	clock.advance(20 * time.Millisecond) // t=260ms: 210ms since t_last=50ms, now past delta
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"720p", "360p"}, *applied, "fires once with the most recently cached params")
	assert.Equal(t, Waiting, c.Status())
}

func TestOnlyOneReinitWithinDelta(t *testing.T) {
	c, clock, applied := newTestController(t)
	require.NoError(t, c.Request("720p", true))

	clock.advance(10 * time.Millisecond)
	require.NoError(t, c.Request("480p", true))
	clock.advance(10 * time.Millisecond)
	require.NoError(t, c.Tick()) // only 10ms elapsed since cache, too soon
	assert.Equal(t, []string{"720p"}, *applied)

	clock.advance(250 * time.Millisecond)
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"720p", "480p"}, *applied)
}

func TestReturnsToPassAfterQuietPeriod(t *testing.T) {
	c, clock, _ := newTestController(t)
	require.NoError(t, c.Request("720p", true))

	clock.advance(250 * time.Millisecond)
	require.NoError(t, c.Tick()) // no new cache, WAITING -> PASS
	assert.Equal(t, Pass, c.Status())
}
