package fleet

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/decay-simulator/internal/oracle"
	"github.com/signalsfoundry/decay-simulator/model"
)

var testEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const frameDT = 100 * time.Millisecond

// scenarioSatellite is the reference injection used by the end-to-end runs.
func scenarioSatellite() model.SatelliteConfig {
	zero := 0.0
	return model.SatelliteConfig{
		Name:           "REF-1",
		PerigeeAltKm:   500,
		Eccentricity:   0,
		MassKg:         500,
		AreaM2:         2.0,
		InclinationRad: &zero,
		RAANRad:        &zero,
		ArgPerigeeRad:  &zero,
	}
}

// densityServer answers /predict with a fixed density, or 503 when fail is
// set.
type densityServer struct {
	*httptest.Server
	hits    atomic.Int32
	density atomic.Value // float64
	fail    atomic.Bool
}

func newDensityServer(t *testing.T, density float64) *densityServer {
	t.Helper()
	ds := &densityServer{}
	ds.density.Store(density)
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		if ds.fail.Load() {
			http.Error(w, "model offline", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{"density": ds.density.Load().(float64)})
	}))
	t.Cleanup(ds.Close)
	return ds
}

// queueExecutor holds oracle tasks until run is called.
type queueExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queueExecutor) Go(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

func (q *queueExecutor) run() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func (q *queueExecutor) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// fakeMetrics records everything the registry and oracle report.
type fakeMetrics struct {
	mu        sync.Mutex
	active    int
	deorbited int
	deorbits  int
	ticks     int
	fallbacks int
	outcomes  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{outcomes: make(map[string]int)}
}

func (m *fakeMetrics) SetFleetCounts(active, deorbited int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active, m.deorbited = active, deorbited
}

func (m *fakeMetrics) IncDeorbit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deorbits++
}

func (m *fakeMetrics) ObserveTick(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *fakeMetrics) IncFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

func (m *fakeMetrics) IncOracleRequest(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *fakeMetrics) ObserveOracleLatency(float64) {}

func (m *fakeMetrics) outcome(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[name]
}

func newTestRegistry(t *testing.T, body model.CentralBody, opts ...Option) *Registry {
	t.Helper()
	base := []Option{
		WithStartTime(testEpoch),
		WithRand(rand.New(rand.NewSource(1))),
		WithWorkers(4),
	}
	r, err := NewRegistry(body, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func newInlineClient(srv *densityServer, metrics *fakeMetrics, opts ...oracle.Option) *oracle.Client {
	base := []oracle.Option{
		oracle.WithExecutor(oracle.Inline),
		oracle.WithCache(0, 0),
	}
	if metrics != nil {
		base = append(base, oracle.WithMetricsRecorder(metrics))
	}
	return oracle.NewClient(srv.URL, append(base, opts...)...)
}
