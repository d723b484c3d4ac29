package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/decay-simulator/core"
	"github.com/signalsfoundry/decay-simulator/internal/fleet"
	"github.com/signalsfoundry/decay-simulator/internal/observability"
	"github.com/signalsfoundry/decay-simulator/kb"
	"github.com/signalsfoundry/decay-simulator/model"
)

const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"

	validSatellite = `{"name":"TEST-1","perigee_alt_km":500,"eccentricity":0.01,"mass_kg":500,"area_m2":2}`
)

type testEnv struct {
	fleet   *fleet.Registry
	catalog *kb.KnowledgeBase
	handler http.Handler
}

func newTestEnv(t *testing.T, metrics http.Handler) *testEnv {
	t.Helper()
	catalog := kb.NewKnowledgeBase()
	reg, err := fleet.NewRegistry(model.Earth, fleet.WithRand(rand.New(rand.NewSource(7))))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	stop, err := reg.Follow(catalog)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	t.Cleanup(stop)

	srv := NewServer("", Config{Fleet: reg, Catalog: catalog, Metrics: metrics})
	return &testEnv{fleet: reg, catalog: catalog, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthzSetsRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing %s header", requestIDHeader)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q, want propagated abc-123", got)
	}
}

func TestSatelliteLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/satellites", validSatellite)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}
	created := decodeBody[map[string]any](t, w)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("create response missing id: %v", created)
	}
	if created["status"] != "ACTIVE" {
		t.Fatalf("status = %v, want ACTIVE", created["status"])
	}
	if got := w.Header().Get("Location"); got != "/api/v1/satellites/"+id {
		t.Fatalf("Location = %q", got)
	}

	w = env.do(t, http.MethodGet, "/api/v1/satellites", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decodeBody[satelliteList](t, w)
	if len(list.Satellites) != 1 || list.Active != 1 || list.Capacity != fleet.DefaultCapacity {
		t.Fatalf("list = %+v, want one active satellite", list)
	}

	w = env.do(t, http.MethodGet, "/api/v1/satellites/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/satellites/"+id+"/access", "")
	if w.Code != http.StatusOK {
		t.Fatalf("access status = %d", w.Code)
	}
	acc := decodeBody[core.Access](t, w)
	if acc.Station != core.DefaultGroundStation.Name {
		t.Fatalf("access station = %q", acc.Station)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/satellites/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/satellites/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w.Code)
	}
}

func TestCreateSatelliteErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"perigee too low", `{"perigee_alt_km":100,"eccentricity":0,"mass_kg":500,"area_m2":2}`, http.StatusBadRequest},
		{"eccentricity too high", `{"perigee_alt_km":500,"eccentricity":0.95,"mass_kg":500,"area_m2":2}`, http.StatusBadRequest},
		{"zero mass", `{"perigee_alt_km":500,"eccentricity":0,"mass_kg":0,"area_m2":2}`, http.StatusBadRequest},
		{"unknown field", `{"perigee_alt_km":500,"mass_kg":500,"area_m2":2,"colour":"red"}`, http.StatusBadRequest},
		{"not json", `perigee=500`, http.StatusBadRequest},
		{"bad tle", `{"mass_kg":500,"area_m2":2,"tle":{"line1":"1 x","line2":"2 y"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/satellites", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			resp := decodeBody[map[string]string](t, w)
			if resp["error"] == "" {
				t.Fatalf("missing error message")
			}
		})
	}
	if env.fleet.Len() != 0 {
		t.Fatalf("rejected requests added %d satellites", env.fleet.Len())
	}
}

func TestCreateSatelliteFromTLE(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"name":"ISS","mass_kg":420000,"area_m2":2500,"tle":{"line1":"` + issLine1 + `","line2":"` + issLine2 + `"}}`

	w := env.do(t, http.MethodPost, "/api/v1/satellites", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	sat := decodeBody[fleet.Satellite](t, w)
	if sat.Name != "ISS" {
		t.Fatalf("name = %q, want ISS", sat.Name)
	}
	if sat.PerigeeAltKm < 350 || sat.PerigeeAltKm > 450 {
		t.Fatalf("perigee = %v, want ISS-like altitude", sat.PerigeeAltKm)
	}
}

func TestMissingSatelliteIs404(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/satellites/nope"},
		{http.MethodDelete, "/api/v1/satellites/nope"},
		{http.MethodGet, "/api/v1/satellites/nope/access"},
	} {
		if w := env.do(t, tc.method, tc.path, ""); w.Code != http.StatusNotFound {
			t.Fatalf("%s %s status = %d, want 404", tc.method, tc.path, w.Code)
		}
	}
}

func TestTimeScaleEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPut, "/api/v1/timescale", `{"time_scale":100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if env.fleet.TimeScale() != 100 {
		t.Fatalf("TimeScale = %v, want 100", env.fleet.TimeScale())
	}

	w = env.do(t, http.MethodPut, "/api/v1/timescale", `{"time_scale":3}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/timescale", "")
	if got := decodeBody[timeScaleBody](t, w); got.TimeScale != 100 {
		t.Fatalf("time scale = %v, want 100", got.TimeScale)
	}
}

func TestEnvironmentEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPut, "/api/v1/environment", `{"f107":250,"kp":6}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := env.fleet.Environment(); got != (model.Environment{F107: 250, Kp: 6}) {
		t.Fatalf("Environment = %+v", got)
	}

	w = env.do(t, http.MethodPut, "/api/v1/environment", `{"f107":400,"kp":6}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBodyEndpointSwitchesAndClears(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodPost, "/api/v1/satellites", validSatellite); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	w := env.do(t, http.MethodPut, "/api/v1/body", `{"name":"mars"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[bodyResponse](t, w)
	if resp.Selected.Name != "MARS" || len(resp.Available) != 4 {
		t.Fatalf("body response = %+v", resp)
	}
	if env.fleet.Len() != 0 {
		t.Fatalf("fleet not cleared after body change")
	}

	w = env.do(t, http.MethodPut, "/api/v1/body", `{"name":"pluto"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown body status = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/body", "")
	if got := decodeBody[bodyResponse](t, w); got.Selected.Name != "MARS" {
		t.Fatalf("selected = %s, want MARS", got.Selected.Name)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewDecayCollector(reg)
	if err != nil {
		t.Fatalf("NewDecayCollector: %v", err)
	}
	collector.SetFleetCounts(2, 1)
	env := newTestEnv(t, collector.Handler())

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "decaysim_satellites_active 2") {
		t.Fatalf("metrics output missing fleet gauge:\n%s", w.Body.String())
	}

	if w := newTestEnv(t, nil).do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Fatalf("metrics without collector status = %d, want 404", w.Code)
	}
}
