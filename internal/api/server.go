package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signalsfoundry/decay-simulator/core"
	"github.com/signalsfoundry/decay-simulator/internal/fleet"
	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/kb"
	"github.com/signalsfoundry/decay-simulator/model"
)

const maxBodyBytes = 1 << 16

// Config wires the server to the simulation.
type Config struct {
	Fleet   *fleet.Registry
	Catalog *kb.KnowledgeBase
	// Station is used by the access endpoint. Zero value means
	// core.DefaultGroundStation.
	Station core.GroundStation
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
	Logger  logging.Logger
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	fleet      *fleet.Registry
	catalog    *kb.KnowledgeBase
	station    core.GroundStation
	log        logging.Logger
}

// NewServer creates a configured HTTP server. Body changes go through the
// catalog; the registry is expected to follow it.
func NewServer(addr string, cfg Config) *Server {
	s := &Server{
		fleet:   cfg.Fleet,
		catalog: cfg.Catalog,
		station: cfg.Station,
		log:     cfg.Logger,
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	if s.station == (core.GroundStation{}) {
		s.station = core.DefaultGroundStation
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	mux.HandleFunc("GET /api/v1/satellites", s.listSatellites)
	mux.HandleFunc("POST /api/v1/satellites", s.createSatellite)
	mux.HandleFunc("GET /api/v1/satellites/{id}", s.getSatellite)
	mux.HandleFunc("DELETE /api/v1/satellites/{id}", s.deleteSatellite)
	mux.HandleFunc("GET /api/v1/satellites/{id}/access", s.satelliteAccess)
	mux.HandleFunc("GET /api/v1/timescale", s.getTimeScale)
	mux.HandleFunc("PUT /api/v1/timescale", s.putTimeScale)
	mux.HandleFunc("GET /api/v1/environment", s.getEnvironment)
	mux.HandleFunc("PUT /api/v1/environment", s.putEnvironment)
	mux.HandleFunc("GET /api/v1/body", s.getBody)
	mux.HandleFunc("PUT /api/v1/body", s.putBody)

	var handler http.Handler = mux
	handler = loggingMiddleware(s.log)(handler)
	handler = otelhttp.NewHandler(handler, "decaysim-api")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.httpServer.Serve(lis)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type satelliteList struct {
	Satellites []fleet.Satellite `json:"satellites"`
	Active     int               `json:"active"`
	Deorbited  int               `json:"deorbited"`
	Capacity   int               `json:"capacity"`
}

type timeScaleBody struct {
	TimeScale float64 `json:"time_scale"`
}

type bodyRequest struct {
	Name string `json:"name"`
}

type bodyResponse struct {
	Selected  model.CentralBody   `json:"selected"`
	Available []model.CentralBody `json:"available"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listSatellites(w http.ResponseWriter, r *http.Request) {
	active, deorbited := s.fleet.Counts()
	writeJSON(w, http.StatusOK, satelliteList{
		Satellites: s.fleet.List(),
		Active:     active,
		Deorbited:  deorbited,
		Capacity:   s.fleet.Capacity(),
	})
}

func (s *Server) createSatellite(w http.ResponseWriter, r *http.Request) {
	var spec fleet.SatelliteSpec
	if !s.decode(w, r, &spec) {
		return
	}
	cfg, err := spec.Config(s.fleet.Body())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.fleet.Add(cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sat, err := s.fleet.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/satellites/"+id)
	writeJSON(w, http.StatusCreated, sat)
}

func (s *Server) getSatellite(w http.ResponseWriter, r *http.Request) {
	sat, err := s.fleet.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sat)
}

func (s *Server) deleteSatellite(w http.ResponseWriter, r *http.Request) {
	if err := s.fleet.Remove(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) satelliteAccess(w http.ResponseWriter, r *http.Request) {
	acc, err := s.fleet.Access(r.PathValue("id"), s.station)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) getTimeScale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, timeScaleBody{TimeScale: s.fleet.TimeScale()})
}

func (s *Server) putTimeScale(w http.ResponseWriter, r *http.Request) {
	var req timeScaleBody
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.fleet.SetTimeScale(req.TimeScale); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timeScaleBody{TimeScale: s.fleet.TimeScale()})
}

func (s *Server) getEnvironment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Environment())
}

func (s *Server) putEnvironment(w http.ResponseWriter, r *http.Request) {
	var env model.Environment
	if !s.decode(w, r, &env) {
		return
	}
	if err := s.fleet.SetEnvironment(env); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fleet.Environment())
}

func (s *Server) getBody(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bodyResponse{
		Selected:  s.fleet.Body(),
		Available: s.catalog.ListBodies(),
	})
}

func (s *Server) putBody(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.catalog.Select(req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bodyResponse{
		Selected:  s.fleet.Body(),
		Available: s.catalog.ListBodies(),
	})
}

// decode reads a JSON request body, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log := logging.LoggerFromContext(r.Context())
		if log == nil {
			log = s.log
		}
		log.Error(r.Context(), "request failed", logging.String("path", r.URL.Path), logging.Err(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidConfiguration), errors.Is(err, core.ErrInvalidTLE):
		return http.StatusBadRequest
	case errors.Is(err, fleet.ErrSatelliteNotFound), errors.Is(err, kb.ErrBodyNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
