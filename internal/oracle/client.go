package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/model"
)

const (
	tracerName = "github.com/signalsfoundry/decay-simulator/internal/oracle"

	// DefaultTimeout bounds a single /predict round trip.
	DefaultTimeout = 2 * time.Second
	// DefaultInterval is the minimum frame-clock time between two dispatches
	// for the same satellite.
	DefaultInterval = 2 * time.Second

	predictPath = "/predict"
)

// Request outcomes reported to the metrics recorder.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeCacheHit   = "cache_hit"
	OutcomeSuppressed = "suppressed"
	OutcomeStale      = "stale"
)

// MetricsRecorder receives oracle request outcomes and latencies.
type MetricsRecorder interface {
	IncOracleRequest(outcome string)
	ObserveOracleLatency(seconds float64)
}

// predictRequest is the POST /predict body.
type predictRequest struct {
	Altitude float64 `json:"altitude"`
	F107     float64 `json:"f107"`
	Kp       float64 `json:"kp"`
}

// predictResponse is the POST /predict reply.
type predictResponse struct {
	Density *float64 `json:"density"`
}

// Client talks to the external density-prediction service. Query is a plain
// blocking call; Request is the throttled fire-and-forget entry point used by
// the tick loop.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	executor   Executor
	cache      *densityCache
	throttles  *throttles
	metrics    MetricsRecorder
	log        logging.Logger

	wg sync.WaitGroup
}

// Option customises Client construction.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	interval   time.Duration
	executor   Executor
	cacheSize  int
	cacheTTL   time.Duration
	metrics    MetricsRecorder
	log        logging.Logger
}

// WithHTTPClient overrides the HTTP client. Its transport is wrapped for
// tracing.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithTimeout bounds each /predict round trip.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithInterval sets the per-satellite dispatch interval. Zero disables
// interval throttling; the single-in-flight rule still applies.
func WithInterval(d time.Duration) Option {
	return func(o *clientOptions) { o.interval = d }
}

// WithExecutor sets where queries run. Defaults to Async.
func WithExecutor(e Executor) Option {
	return func(o *clientOptions) { o.executor = e }
}

// WithCache configures the response cache. A non-positive TTL disables it.
func WithCache(size int, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithLogger attaches a logger for diagnostic output.
func WithLogger(l logging.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// NewClient builds a client for the oracle at baseURL (for example
// "http://localhost:8000").
func NewClient(baseURL string, opts ...Option) *Client {
	o := clientOptions{
		timeout:   DefaultTimeout,
		interval:  DefaultInterval,
		executor:  Async,
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.log == nil {
		o.log = logging.Noop()
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	wrapped := *hc
	wrapped.Transport = otelhttp.NewTransport(transportOrDefault(hc.Transport))

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &wrapped,
		timeout:    o.timeout,
		executor:   o.executor,
		cache:      newDensityCache(o.cacheSize, o.cacheTTL),
		throttles:  newThrottles(o.interval),
		metrics:    o.metrics,
		log:        o.log.With(logging.String("component", "oracle")),
	}
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// Query asks the oracle for the density at altitudeKm under env. Non-positive
// altitudes short-circuit to zero. Every failure wraps ErrOracleUnavailable.
func (c *Client) Query(ctx context.Context, altitudeKm float64, env model.Environment) (float64, error) {
	if altitudeKm <= 0 {
		return 0, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "oracle.predict",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Float64("altitude_km", altitudeKm),
			attribute.Float64("f107", env.F107),
			attribute.Float64("kp", env.Kp),
		))
	defer span.End()

	start := time.Now()
	density, err := c.predict(ctx, altitudeKm, env)
	if c.metrics != nil {
		c.metrics.ObserveOracleLatency(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.record(OutcomeError)
		return 0, err
	}
	span.SetAttributes(attribute.Float64("density_kg_m3", density))
	c.record(OutcomeOK)
	return density, nil
}

func (c *Client) predict(ctx context.Context, altitudeKm float64, env model.Environment) (float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(predictRequest{Altitude: altitudeKm, F107: env.F107, Kp: env.Kp})
	if err != nil {
		return 0, fmt.Errorf("%w: encode request: %v", ErrOracleUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %v", ErrOracleUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: unexpected status code %d", ErrOracleUnavailable, resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decoding response: %v", ErrOracleUnavailable, err)
	}
	if out.Density == nil {
		return 0, fmt.Errorf("%w: response missing density", ErrOracleUnavailable)
	}
	d := *out.Density
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, fmt.Errorf("%w: invalid density %v", ErrOracleUnavailable, d)
	}
	return d, nil
}

// Request dispatches an asynchronous density query for satellite id unless
// one is already in flight or the last dispatch was less than the interval
// ago on the frame clock (now). It reports whether work was dispatched.
// deliver runs on the executor; it must perform its own liveness check
// before applying the value.
func (c *Client) Request(ctx context.Context, id string, altitudeKm float64, env model.Environment, now time.Time, deliver func(density float64, err error)) bool {
	th, ok := c.throttles.acquire(id, now)
	if !ok {
		c.record(OutcomeSuppressed)
		return false
	}

	c.wg.Add(1)
	c.executor.Go(func() {
		defer c.wg.Done()
		defer c.throttles.release(th)

		density, err := c.lookup(ctx, altitudeKm, env)
		if err != nil {
			c.log.Debug(ctx, "density query failed; holding last value",
				logging.SatelliteID(id),
				logging.Float("altitude_km", altitudeKm),
				logging.Err(err),
			)
		}
		deliver(density, err)
	})
	return true
}

func (c *Client) lookup(ctx context.Context, altitudeKm float64, env model.Environment) (float64, error) {
	key := keyFor(altitudeKm, env)
	if d, ok := c.cache.get(key); ok {
		c.record(OutcomeCacheHit)
		return d, nil
	}
	d, err := c.Query(ctx, altitudeKm, env)
	if err != nil {
		return 0, err
	}
	c.cache.add(key, d)
	return d, nil
}

// RecordStale counts a reply discarded by the caller's liveness check.
func (c *Client) RecordStale() {
	c.record(OutcomeStale)
	c.log.Debug(context.Background(), "discarding oracle reply", logging.Err(ErrStaleResponse))
}

// InFlight reports whether a query for id is outstanding.
func (c *Client) InFlight(id string) bool {
	return c.throttles.inFlight(id)
}

// Forget drops throttle state for a satellite that left the registry.
func (c *Client) Forget(id string) {
	c.throttles.forget(id)
}

// Purge empties the response cache. The registry calls it when the central
// body changes.
func (c *Client) Purge() {
	c.cache.purge()
}

// Wait blocks until every dispatched query has delivered.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) record(outcome string) {
	if c.metrics != nil {
		c.metrics.IncOracleRequest(outcome)
	}
}
