package fleet

import (
	"context"
	"math/rand"
	"time"

	"github.com/signalsfoundry/decay-simulator/core"
	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/model"
)

// DefaultCapacity bounds the registry when no capacity is configured.
const DefaultCapacity = 15

// AllowedTimeScales lists the accepted global time multipliers.
var AllowedTimeScales = []float64{1, 5, 10, 20, 100}

// DensityOracle is the asynchronous density source used for the primary
// body. *oracle.Client implements it.
type DensityOracle interface {
	Request(ctx context.Context, id string, altitudeKm float64, env model.Environment, now time.Time, deliver func(density float64, err error)) bool
	RecordStale()
	Forget(id string)
}

// MetricsRecorder receives fleet-level counters and latencies.
type MetricsRecorder interface {
	SetFleetCounts(active, deorbited int)
	IncDeorbit()
	ObserveTick(seconds float64)
	IncFallback()
}

// Option customises Registry construction.
type Option func(*Registry)

// WithCapacity bounds the number of satellites held. Non-positive values
// keep DefaultCapacity.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithEngineConfig overrides the propagation, decay and lifecycle constants.
func WithEngineConfig(cfg core.EngineConfig) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithOracle attaches the density oracle used while the body is primary.
// Without one every density comes from the fallback model.
func WithOracle(o DensityOracle) Option {
	return func(r *Registry) { r.oracle = o }
}

// WithEnvironment sets the initial space-weather condition.
func WithEnvironment(env model.Environment) Option {
	return func(r *Registry) { r.env = env }
}

// WithStartTime sets the frame clock origin.
func WithStartTime(t time.Time) Option {
	return func(r *Registry) { r.start = t }
}

// WithRand sets the source used to draw orientation angles that the
// injection config leaves unset.
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) {
		if rng != nil {
			r.rng = rng
		}
	}
}

// WithWorkers limits how many satellites are stepped concurrently.
func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *Registry) { r.metrics = m }
}
