package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "decaysim"

// DecayCollector owns the simulator's Prometheus series. It implements the
// recorder interfaces of the fleet registry and the oracle client; every
// recorder method is safe on a nil receiver.
type DecayCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	SatellitesActive    prometheus.Gauge
	SatellitesDeorbited prometheus.Gauge
	DeorbitsTotal       prometheus.Counter
	TickDuration        prometheus.Histogram

	OracleRequests  *prometheus.CounterVec
	OracleLatency   prometheus.Histogram
	DensityFallback prometheus.Counter
}

// NewDecayCollector registers the series on reg, or on the default registry
// when reg is nil. Registering twice on the same registry returns a collector
// sharing the existing series.
func NewDecayCollector(reg prometheus.Registerer) (*DecayCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &DecayCollector{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	r := registrar{reg: reg}
	c.RPCRequests = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "grpc", Name: "requests_total",
		Help: "Handled gRPC calls by service, method and status code.",
	}, []string{"service", "method", "code"}))
	c.RPCDurations = register(&r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "grpc", Name: "request_duration_seconds",
		Help:    "gRPC call latency.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"service", "method"}))

	c.SatellitesActive = register(&r, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "satellites_active",
		Help: "ACTIVE satellites in the fleet registry.",
	}))
	c.SatellitesDeorbited = register(&r, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "satellites_deorbited",
		Help: "DEORBITED satellites still held by the fleet registry.",
	}))
	c.DeorbitsTotal = register(&r, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "deorbits_total",
		Help: "Satellites that crossed the impact threshold.",
	}))
	c.TickDuration = register(&r, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "tick_duration_seconds",
		Help:    "Wall time spent advancing the fleet by one frame.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 5, 7),
	}))

	c.OracleRequests = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "oracle", Name: "requests_total",
		Help: "Density oracle lookups by outcome: ok, error, cache_hit, suppressed or stale.",
	}, []string{"outcome"}))
	c.OracleLatency = register(&r, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "oracle", Name: "request_duration_seconds",
		Help:    "Density oracle round-trip latency.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}))
	c.DensityFallback = register(&r, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "density", Name: "fallback_total",
		Help: "Density evaluations served by the exponential fallback atmosphere.",
	}))

	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// registrar keeps the first registration error so NewDecayCollector can
// register every series before checking.
type registrar struct {
	reg prometheus.Registerer
	err error
}

// register adds col to r, or returns the collector already registered under
// the same descriptor when its type matches.
func register[C prometheus.Collector](r *registrar, col C) C {
	if r.err != nil {
		return col
	}
	err := r.reg.Register(col)
	if err == nil {
		return col
	}
	var dup prometheus.AlreadyRegisteredError
	if errors.As(err, &dup) {
		if existing, ok := dup.ExistingCollector.(C); ok {
			return existing
		}
		err = fmt.Errorf("metric collector registered with a different type: %w", err)
	}
	r.err = err
	return col
}

// UnaryServerInterceptor counts unary RPCs and observes their latency.
func (c *DecayCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		var full string
		if info != nil {
			full = info.FullMethod
		}
		service, method := SplitMethod(full)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the registry the collector was registered on.
func (c *DecayCollector) Handler() http.Handler {
	g := c.gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *DecayCollector) SetFleetCounts(active, deorbited int) {
	if c == nil {
		return
	}
	c.SatellitesActive.Set(float64(active))
	c.SatellitesDeorbited.Set(float64(deorbited))
}

func (c *DecayCollector) IncDeorbit() {
	if c != nil {
		c.DeorbitsTotal.Inc()
	}
}

func (c *DecayCollector) ObserveTick(seconds float64) {
	if c != nil {
		c.TickDuration.Observe(seconds)
	}
}

func (c *DecayCollector) IncFallback() {
	if c != nil {
		c.DensityFallback.Inc()
	}
}

func (c *DecayCollector) IncOracleRequest(outcome string) {
	if c != nil {
		c.OracleRequests.WithLabelValues(outcome).Inc()
	}
}

func (c *DecayCollector) ObserveOracleLatency(seconds float64) {
	if c != nil {
		c.OracleLatency.Observe(seconds)
	}
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method").
// Anything it cannot parse yields "unknown" for the missing part, or for both
// when there is no slash-separated pair.
func SplitMethod(fullMethod string) (service, method string) {
	path := strings.TrimPrefix(fullMethod, "/")
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "unknown", "unknown"
	}
	service, method = path[:i], path[i+1:]
	if j := strings.LastIndexAny(service, "./"); j >= 0 {
		service = service[j+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
