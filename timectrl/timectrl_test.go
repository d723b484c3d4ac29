package timectrl

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFrameClockAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewFrameClock(start)

	c.Advance(16 * time.Millisecond)
	c.Advance(-time.Second)
	got := c.Advance(4 * time.Millisecond)

	if want := start.Add(20 * time.Millisecond); !got.Equal(want) {
		t.Fatalf("Advance() = %v, want %v", got, want)
	}
	if c.Elapsed() != 20*time.Millisecond {
		t.Fatalf("Elapsed() = %v, want 20ms", c.Elapsed())
	}
	if c.Frames() != 3 {
		t.Fatalf("Frames() = %d, want 3", c.Frames())
	}
}

func TestTimeControllerRunAcceleratedStopsAfterDuration(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	var (
		mu     sync.Mutex
		frames int
		total  time.Duration
	)
	tc.AddListener(func(now time.Time, dt time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		frames++
		total += dt
	})

	<-tc.Run(context.Background(), 15*time.Millisecond)

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	mu.Lock()
	defer mu.Unlock()
	if frames != 3 || total != 15*time.Millisecond {
		t.Fatalf("frames=%d total=%v, want 3 frames totalling 15ms", frames, total)
	}
}

func TestTimeControllerRunStopsOnCancel(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Millisecond, RealTime)
	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Run(ctx, 0)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop after cancellation")
	}
}

func TestTimeControllerStepNotifiesSynchronously(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 250*time.Millisecond, Accelerated)

	var got []time.Duration
	tc.AddListener(func(now time.Time, dt time.Duration) {
		got = append(got, now.Sub(start))
		if dt != 250*time.Millisecond {
			t.Fatalf("dt = %v, want 250ms", dt)
		}
	})
	for i := 0; i < 4; i++ {
		tc.Step()
	}

	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 750 * time.Millisecond, time.Second}
	if len(got) != len(want) {
		t.Fatalf("listener calls = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d elapsed = %v, want %v", i, got[i], want[i])
		}
	}
	if tc.Clock().Frames() != 4 {
		t.Fatalf("Frames = %d, want 4", tc.Clock().Frames())
	}
}
