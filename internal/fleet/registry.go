package fleet

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/brunoga/deep"
	"github.com/google/uuid"

	"github.com/signalsfoundry/decay-simulator/core"
	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/model"
	"github.com/signalsfoundry/decay-simulator/timectrl"
)

// Satellite is a read-only view of one registry entry.
type Satellite struct {
	model.OrbitalState
	Status    model.SatelliteStatus `json:"status" msgpack:"status"`
	CreatedAt time.Time             `json:"created_at" msgpack:"created_at"`
}

// satellite is the mutable registry entry. mu serialises propagation, decay
// and oracle delivery for this satellite.
type satellite struct {
	mu        sync.Mutex
	state     model.OrbitalState
	status    model.SatelliteStatus
	createdAt time.Time

	// removed is set when the entry leaves the registry; late oracle
	// deliveries check it before touching state.
	removed bool
}

func (s *satellite) view() Satellite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Satellite{
		OrbitalState: deep.MustCopy(s.state),
		Status:       s.status,
		CreatedAt:    s.createdAt,
	}
}

func (s *satellite) markRemoved() {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
}

// alive reports whether oracle results may still be applied. Callers hold mu.
func (s *satellite) alive() bool {
	return !s.removed && s.status == model.StatusActive
}

// Registry is the bounded, insertion-ordered satellite collection and owner
// of the per-frame pipeline.
type Registry struct {
	// mu guards the collection and the global parameters. Tick holds it for
	// reading, so mutators land between ticks. Lock order: mu -> satellite.mu.
	mu    sync.RWMutex
	order []*satellite
	byID  map[string]*satellite

	capacity  int
	timeScale float64
	env       model.Environment
	body      model.CentralBody

	cfg       core.EngineConfig
	engine    *core.PropagationEngine
	decay     *core.DecayIntegrator
	lifecycle *core.Lifecycle

	start  time.Time
	frames *timectrl.FrameClock

	oracle  DensityOracle
	rng     *rand.Rand
	workers int

	log     logging.Logger
	metrics MetricsRecorder

	subMu   sync.Mutex
	subs    map[int]func(model.DeorbitEvent)
	nextSub int
}

// NewRegistry builds an empty registry orbiting body.
func NewRegistry(body model.CentralBody, opts ...Option) (*Registry, error) {
	if err := body.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		byID:      make(map[string]*satellite),
		capacity:  DefaultCapacity,
		timeScale: 1,
		env:       model.DefaultEnvironment(),
		body:      body,
		start:     time.Now().UTC(),
		cfg:       core.DefaultEngineConfig(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		workers:   runtime.GOMAXPROCS(0),
		log:       logging.Noop(),
		subs:      make(map[int]func(model.DeorbitEvent)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := r.env.Validate(); err != nil {
		return nil, err
	}
	r.engine = core.NewPropagationEngine(r.cfg)
	r.decay = core.NewDecayIntegrator(r.cfg)
	r.lifecycle = core.NewLifecycle(r.cfg)
	r.frames = timectrl.NewFrameClock(r.start)
	return r, nil
}

// Add validates cfg, injects an ACTIVE satellite and returns its ID. When
// the registry is full the oldest entry is evicted.
func (r *Registry) Add(cfg model.SatelliteConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	id := uuid.NewString()
	state := model.OrbitalState{
		ID:                   id,
		Name:                 cfg.Name,
		PerigeeAltKm:         cfg.PerigeeAltKm,
		Eccentricity:         cfg.Eccentricity,
		InclinationRad:       r.angle(cfg.InclinationRad, math.Pi),
		RAANRad:              r.angle(cfg.RAANRad, 2*math.Pi),
		ArgPerigeeRad:        r.angle(cfg.ArgPerigeeRad, 2*math.Pi),
		BallisticCoefficient: cfg.BallisticCoefficient(),
	}
	if state.Name == "" {
		state.Name = "SAT-" + id[:8]
	}
	state.Position = r.engine.Position(&state, r.body)

	sat := &satellite{state: state, status: model.StatusActive, createdAt: r.frames.Now()}
	r.order = append(r.order, sat)
	r.byID[id] = sat

	var evicted *satellite
	if len(r.order) > r.capacity {
		evicted = r.order[0]
		r.order = slices.Delete(r.order, 0, 1)
		delete(r.byID, evicted.state.ID)
		evicted.markRemoved()
	}
	r.recordCountsLocked()
	r.mu.Unlock()

	ctx := context.Background()
	if evicted != nil {
		r.forget(evicted.state.ID)
		r.log.Info(ctx, "satellite evicted at capacity",
			logging.SatelliteID(evicted.state.ID),
			logging.Int("capacity", r.capacity),
		)
	}
	r.log.Info(ctx, "satellite created",
		logging.SatelliteID(id),
		logging.String("name", state.Name),
		logging.Float("perigee_alt_km", state.PerigeeAltKm),
		logging.Float("eccentricity", state.Eccentricity),
		logging.Float("ballistic_coefficient", state.BallisticCoefficient),
	)
	return id, nil
}

// angle returns *v when set, otherwise a uniform draw in [0, max). Callers
// hold mu for writing.
func (r *Registry) angle(v *float64, max float64) float64 {
	if v != nil {
		return *v
	}
	return r.rng.Float64() * max
}

// Remove drops a satellite. Pending oracle results for it become stale.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	sat, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSatelliteNotFound, id)
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(s *satellite) bool { return s == sat })
	sat.markRemoved()
	r.recordCountsLocked()
	r.mu.Unlock()

	r.forget(id)
	r.log.Info(context.Background(), "satellite removed", logging.SatelliteID(id))
	return nil
}

// Get returns a copy of one satellite.
func (r *Registry) Get(id string) (Satellite, error) {
	r.mu.RLock()
	sat, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return Satellite{}, fmt.Errorf("%w: %s", ErrSatelliteNotFound, id)
	}
	return sat.view(), nil
}

// List returns copies of every satellite in insertion order.
func (r *Registry) List() []Satellite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Satellite, 0, len(r.order))
	for _, sat := range r.order {
		out = append(out, sat.view())
	}
	return out
}

// Position returns the last propagated position of a satellite. For a
// DEORBITED satellite this is its final position.
func (r *Registry) Position(id string) (model.Vec3, error) {
	sat, err := r.Get(id)
	if err != nil {
		return model.Vec3{}, err
	}
	return sat.Position, nil
}

// Access reports whether station can see the satellite on the current body.
func (r *Registry) Access(id string, station core.GroundStation) (core.Access, error) {
	r.mu.RLock()
	body := r.body
	sat, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return core.Access{}, fmt.Errorf("%w: %s", ErrSatelliteNotFound, id)
	}
	v := sat.view()
	return core.CheckAccess(station, body, v.Position, r.cfg.PositionUnitKm), nil
}

// Len returns the number of satellites held, ACTIVE or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Counts returns the number of ACTIVE and DEORBITED satellites.
func (r *Registry) Counts() (active, deorbited int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countsLocked()
}

func (r *Registry) countsLocked() (active, deorbited int) {
	for _, sat := range r.order {
		sat.mu.Lock()
		if sat.status == model.StatusDeorbited {
			deorbited++
		} else {
			active++
		}
		sat.mu.Unlock()
	}
	return active, deorbited
}

func (r *Registry) recordCountsLocked() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetFleetCounts(r.countsLocked())
}

// Capacity returns the configured bound.
func (r *Registry) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity
}

// TimeScale returns the global time multiplier.
func (r *Registry) TimeScale() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeScale
}

// SetTimeScale changes the global time multiplier. Only AllowedTimeScales
// are accepted.
func (r *Registry) SetTimeScale(v float64) error {
	if !slices.Contains(AllowedTimeScales, v) {
		return fmt.Errorf("%w: %g not in %v", ErrInvalidTimeScale, v, AllowedTimeScales)
	}
	r.mu.Lock()
	r.timeScale = v
	r.mu.Unlock()
	r.log.Info(context.Background(), "time scale changed", logging.Float("time_scale", v))
	return nil
}

// Environment returns the current space-weather condition.
func (r *Registry) Environment() model.Environment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env
}

// SetEnvironment replaces the space-weather condition used by later ticks.
func (r *Registry) SetEnvironment(env model.Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.env = env
	r.mu.Unlock()
	r.log.Info(context.Background(), "environment changed",
		logging.Float("f107", env.F107),
		logging.Float("kp", env.Kp),
	)
	return nil
}

// Body returns the current central body.
func (r *Registry) Body() model.CentralBody {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.body
}

// SetBody switches the central body and clears the fleet: existing orbits
// are meaningless around a different body.
func (r *Registry) SetBody(body model.CentralBody) error {
	if err := body.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	dropped := r.clearLocked()
	r.body = body
	r.recordCountsLocked()
	r.mu.Unlock()

	for _, id := range dropped {
		r.forget(id)
	}
	if p, ok := r.oracle.(interface{ Purge() }); ok {
		p.Purge()
	}
	r.log.Info(context.Background(), "central body changed",
		logging.String("body", body.Name),
		logging.Int("cleared", len(dropped)),
	)
	return nil
}

// clearLocked empties the collection and returns the dropped IDs. Callers
// hold mu for writing.
func (r *Registry) clearLocked() []string {
	ids := make([]string, 0, len(r.order))
	for _, sat := range r.order {
		sat.markRemoved()
		ids = append(ids, sat.state.ID)
	}
	r.order = nil
	r.byID = make(map[string]*satellite)
	return ids
}

func (r *Registry) forget(id string) {
	if r.oracle != nil {
		r.oracle.Forget(id)
	}
}

// Elapsed returns the unscaled frame time accumulated by Tick.
func (r *Registry) Elapsed() time.Duration {
	return r.frames.Elapsed()
}

// Now returns the frame clock time.
func (r *Registry) Now() time.Time {
	return r.frames.Now()
}

// Subscribe registers fn for deorbit events. Events are delivered after the
// tick that produced them, outside registry locks.
func (r *Registry) Subscribe(fn func(model.DeorbitEvent)) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) publish(events []model.DeorbitEvent) {
	if len(events) == 0 {
		return
	}
	r.subMu.Lock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(model.DeorbitEvent), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, r.subs[id])
	}
	r.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
