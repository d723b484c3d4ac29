package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time, letting the oracle
// throttle and the fleet registry depend on a clock abstraction rather than
// wall time.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// FrameClock is a stopwatch advanced explicitly by the tick loop. Its time is
// the start time plus the sum of all frame deltas, independent of the time
// scale.
type FrameClock struct {
	mu      sync.RWMutex
	start   time.Time
	current time.Time
	frames  uint64
}

// NewFrameClock constructs a clock starting at start.
func NewFrameClock(start time.Time) *FrameClock {
	return &FrameClock{start: start, current: start}
}

// Now returns the current frame time. Implements SimClock.
func (c *FrameClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Elapsed returns the time accumulated since the clock started.
func (c *FrameClock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Sub(c.start)
}

// Frames returns the number of Advance calls so far.
func (c *FrameClock) Frames() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// Advance moves the clock forward by dt and returns the new time. Negative
// deltas are ignored.
func (c *FrameClock) Advance(dt time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dt > 0 {
		c.current = c.current.Add(dt)
	}
	c.frames++
	return c.current
}

// Mode describes how the TimeController advances frames.
type Mode int

const (
	// RealTime measures each frame delta from the wall clock.
	RealTime Mode = iota
	// Accelerated hands out a fixed Tick per frame as fast as the ticker fires.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController drives the frame loop and notifies registered listeners
// with the frame time and delta.
type TimeController struct {
	mu   sync.RWMutex
	Tick time.Duration
	Mode Mode

	clock     *FrameClock
	listeners []func(now time.Time, dt time.Duration)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		Tick:  tick,
		Mode:  mode,
		clock: NewFrameClock(start),
	}
}

// Clock exposes the frame clock advanced by the controller.
func (tc *TimeController) Clock() *FrameClock {
	return tc.clock
}

// Now returns the current frame time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	return tc.clock.Now()
}

// AddListener registers a callback invoked on every frame.
func (tc *TimeController) AddListener(fn func(now time.Time, dt time.Duration)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances one fixed Tick frame and notifies listeners synchronously,
// without waiting for the wall clock. Batch runs use it instead of Run.
func (tc *TimeController) Step() time.Time {
	now := tc.clock.Advance(tc.Tick)
	tc.notify(now, tc.Tick)
	return now
}

func (tc *TimeController) notify(now time.Time, dt time.Duration) {
	tc.mu.RLock()
	listeners := append([]func(time.Time, time.Duration){}, tc.listeners...)
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(now, dt)
	}
}

// Run drives frames until ctx is cancelled or duration of frame time has
// elapsed (duration <= 0 runs until cancellation). It returns a channel that
// is closed when the loop exits.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		last := time.Now()
		for {
			if duration > 0 && tc.clock.Elapsed() >= duration {
				return
			}

			var wall time.Time
			select {
			case <-ctx.Done():
				return
			case wall = <-ticker.C:
			}

			dt := tc.Tick
			if tc.Mode == RealTime {
				dt = wall.Sub(last)
			}
			last = wall

			tc.notify(tc.clock.Advance(dt), dt)
		}
	}()
	return done
}
