package oracle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle gates queries for one satellite: at most one in flight, and at
// most one dispatch per interval of frame-clock time.
type throttle struct {
	limiter  *rate.Limiter
	inFlight bool
}

type throttles struct {
	mu       sync.Mutex
	interval time.Duration
	bySat    map[string]*throttle
}

func newThrottles(interval time.Duration) *throttles {
	return &throttles{interval: interval, bySat: make(map[string]*throttle)}
}

// acquire reports whether a query for id may be dispatched at now, marking it
// in flight when it may. Suppressed calls are dropped, not queued.
func (t *throttles) acquire(id string, now time.Time) (*throttle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	th, ok := t.bySat[id]
	if !ok {
		limit := rate.Inf
		if t.interval > 0 {
			limit = rate.Every(t.interval)
		}
		th = &throttle{limiter: rate.NewLimiter(limit, 1)}
		t.bySat[id] = th
	}
	if th.inFlight || !th.limiter.AllowN(now, 1) {
		return nil, false
	}
	th.inFlight = true
	return th, true
}

func (t *throttles) release(th *throttle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th.inFlight = false
}

func (t *throttles) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySat, id)
}

func (t *throttles) inFlight(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.bySat[id]
	return ok && th.inFlight
}
