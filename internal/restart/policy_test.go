package restart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestEngine(config Config) (*Engine, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := NewEngine(config)
	e.now = clock.Now
	return e, clock
}

func TestEngine_Decide_DoublesDelayUpToCap(t *testing.T) {
	config := Config{
		BaseDelay:       time.Second,
		MaxDelay:        5 * time.Second,
		StabilityWindow: time.Minute,
		FlapWindow:      time.Second,
		MaxCrashes:      100,
	}
	e, clock := newTestEngine(config)
	h := NewHistory()

	var delays []time.Duration
	for i := 0; i < 5; i++ {
		d := e.Decide(h, config, 0)
		require.Equal(t, RestartNow, d.Action)
		delays = append(delays, d.Delay)
		clock.Advance(10 * time.Second)
	}

	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}, delays)
}

func TestEngine_Decide_DelayWithinBounds(t *testing.T) {
	config := DefaultConfig()
	config.MaxCrashes = 0
	e, clock := newTestEngine(config)
	h := NewHistory()

	for i := 0; i < 20; i++ {
		d := e.Decide(h, config, time.Second)
		require.Equal(t, RestartNow, d.Action)
		assert.GreaterOrEqual(t, d.Delay, config.BaseDelay)
		assert.LessOrEqual(t, d.Delay, config.MaxDelay)
		clock.Advance(time.Second)
	}
}

func TestEngine_Decide_ResetsAfterStabilityWindow(t *testing.T) {
	config := Config{
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		StabilityWindow: 30 * time.Second,
		FlapWindow:      time.Minute,
		MaxCrashes:      10,
	}
	e, _ := newTestEngine(config)
	h := NewHistory()

	assert.Equal(t, time.Second, e.Decide(h, config, 0).Delay)
	assert.Equal(t, 2*time.Second, e.Decide(h, config, 0).Delay)
	assert.Equal(t, 4*time.Second, e.Decide(h, config, 0).Delay)

	// the process stayed up longer than the stability window
	assert.Equal(t, time.Second, e.Decide(h, config, time.Minute).Delay)
}

func TestEngine_Decide_KeepsBackoffAtStabilityWindow(t *testing.T) {
	config := Config{
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		StabilityWindow: 30 * time.Second,
		FlapWindow:      time.Minute,
		MaxCrashes:      10,
	}
	e, _ := newTestEngine(config)
	h := NewHistory()

	assert.Equal(t, time.Second, e.Decide(h, config, 0).Delay)
	assert.Equal(t, 2*time.Second, e.Decide(h, config, 30*time.Second).Delay)
	assert.Equal(t, time.Second, e.Decide(h, config, 30*time.Second+time.Millisecond).Delay)
}

func TestEngine_Decide_GivesUpWhenFlapping(t *testing.T) {
	config := Config{
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        time.Second,
		StabilityWindow: 30 * time.Second,
		FlapWindow:      10 * time.Second,
		MaxCrashes:      3,
	}
	e, clock := newTestEngine(config)
	h := NewHistory()

	for i := 0; i < 3; i++ {
		d := e.Decide(h, config, time.Second)
		require.Equal(t, RestartNow, d.Action, "crash %d", i+1)
		clock.Advance(2 * time.Second)
	}

	d := e.Decide(h, config, time.Second)
	assert.Equal(t, GiveUp, d.Action)
	assert.Equal(t, 4, d.Crashes)
	assert.ErrorIs(t, d.Err, ErrFlapDetected)

	var flapErr *FlapError
	require.ErrorAs(t, d.Err, &flapErr)
	assert.Equal(t, 10*time.Second, flapErr.Window)
}

func TestEngine_Decide_ForgetsCrashesOutsideWindow(t *testing.T) {
	config := Config{
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        time.Second,
		StabilityWindow: 30 * time.Second,
		FlapWindow:      10 * time.Second,
		MaxCrashes:      3,
	}
	e, clock := newTestEngine(config)
	h := NewHistory()

	for i := 0; i < 10; i++ {
		d := e.Decide(h, config, time.Second)
		require.Equal(t, RestartNow, d.Action)
		clock.Advance(6 * time.Second)
	}

	assert.LessOrEqual(t, h.Crashes(), 2)
}

func TestHistory_Reset(t *testing.T) {
	config := Config{BaseDelay: time.Second, MaxDelay: time.Minute, StabilityWindow: time.Minute, FlapWindow: time.Minute, MaxCrashes: 1}
	e, _ := newTestEngine(config)
	h := NewHistory()

	e.Decide(h, config, 0)
	assert.Equal(t, GiveUp, e.Decide(h, config, 0).Action)

	h.Reset()

	d := e.Decide(h, config, 0)
	assert.Equal(t, RestartNow, d.Action)
	assert.Equal(t, time.Second, d.Delay)
}

func TestEngine_Policy_AppliesOverrides(t *testing.T) {
	e := NewEngine(DefaultConfig())

	p := e.Policy(Overrides{BaseDelay: 500 * time.Millisecond, MaxCrashes: 3})

	assert.Equal(t, 500*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 3, p.MaxCrashes)
	assert.Equal(t, DefaultConfig().StabilityWindow, p.StabilityWindow)
	assert.Equal(t, DefaultConfig().MaxDelay, p.MaxDelay)
}
