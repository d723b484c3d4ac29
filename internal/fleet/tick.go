package fleet

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/internal/oracle"
	"github.com/signalsfoundry/decay-simulator/model"
)

// frame is the immutable parameter snapshot for one tick.
type frame struct {
	body      model.CentralBody
	env       model.Environment
	timeScale float64
	dt        time.Duration
	now       time.Time
}

// Tick advances every ACTIVE satellite by dt. For each satellite it
// propagates, refreshes density (oracle or fallback), applies decay and
// evaluates the lifecycle, in that order. Satellites run concurrently; deorbit
// events are delivered to subscribers once all of them are done.
//
// A zero dt is a no-op. A negative dt is rejected; the frame clock never
// runs backward.
func (r *Registry) Tick(ctx context.Context, dt time.Duration) error {
	switch {
	case dt < 0:
		return fmt.Errorf("%w: negative frame delta %s", model.ErrInvalidConfiguration, dt)
	case dt == 0:
		return nil
	}
	start := time.Now()

	r.mu.RLock()
	f := frame{
		body:      r.body,
		env:       r.env,
		timeScale: r.timeScale,
		dt:        dt,
		now:       r.frames.Advance(dt),
	}

	events := make([]model.DeorbitEvent, len(r.order))
	fired := make([]bool, len(r.order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, sat := range r.order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			events[i], fired[i] = r.step(ctx, sat, f)
			return nil
		})
	}
	err := g.Wait()
	active, deorbited := r.countsLocked()
	r.mu.RUnlock()

	var out []model.DeorbitEvent
	for i, ok := range fired {
		if !ok {
			continue
		}
		ev := events[i]
		out = append(out, ev)
		r.log.Info(ctx, "satellite deorbited",
			logging.SatelliteID(ev.SatelliteID),
			logging.Float("perigee_alt_km", ev.PerigeeAltKm),
			logging.Any("final_position", ev.FinalPosition),
		)
	}

	if r.metrics != nil {
		r.metrics.SetFleetCounts(active, deorbited)
		for range out {
			r.metrics.IncDeorbit()
		}
		r.metrics.ObserveTick(time.Since(start).Seconds())
	}

	r.publish(out)
	return err
}

// step runs the pipeline for one satellite. The satellite lock is released
// around the density refresh so an inline oracle delivery can take it.
func (r *Registry) step(ctx context.Context, sat *satellite, f frame) (model.DeorbitEvent, bool) {
	sat.mu.Lock()
	if !sat.alive() {
		sat.mu.Unlock()
		return model.DeorbitEvent{}, false
	}
	r.engine.Propagate(&sat.state, f.body, f.dt, f.timeScale)
	id, alt := sat.state.ID, sat.state.PerigeeAltKm
	sat.mu.Unlock()

	r.refreshDensity(ctx, sat, id, alt, f)

	sat.mu.Lock()
	defer sat.mu.Unlock()
	if !sat.alive() {
		return model.DeorbitEvent{}, false
	}
	r.decay.Apply(&sat.state, f.dt, f.timeScale)
	return r.lifecycle.Evaluate(&sat.state, &sat.status, f.body, f.now)
}

// refreshDensity updates the held density. On the primary body below the
// oracle ceiling a throttled oracle request is issued; its result arrives
// through deliver, possibly after this tick. Everywhere else the fallback
// model is applied immediately.
func (r *Registry) refreshDensity(ctx context.Context, sat *satellite, id string, altitudeKm float64, f frame) {
	if r.oracle != nil && oracle.Applicable(f.body, altitudeKm) {
		r.oracle.Request(context.WithoutCancel(ctx), id, altitudeKm, f.env, f.now, func(density float64, err error) {
			r.deliver(sat, density, err)
		})
		return
	}

	density := oracle.FallbackDensity(altitudeKm)
	sat.mu.Lock()
	if sat.alive() {
		sat.state.DensityKgM3 = density
	}
	sat.mu.Unlock()
	if r.metrics != nil {
		r.metrics.IncFallback()
	}
}

// deliver applies an oracle result. Results for satellites that were removed
// or have deorbited are discarded; failures keep the last density.
func (r *Registry) deliver(sat *satellite, density float64, err error) {
	sat.mu.Lock()
	defer sat.mu.Unlock()
	if !sat.alive() {
		r.oracle.RecordStale()
		return
	}
	if err != nil {
		return
	}
	sat.state.DensityKgM3 = density
}
