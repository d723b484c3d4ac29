package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/decay-simulator/model"
)

// DecayIntegrator turns atmospheric density into perigee loss.
type DecayIntegrator struct {
	Scale   float64
	FloorKm float64
}

// NewDecayIntegrator builds an integrator from the engine constants.
func NewDecayIntegrator(cfg EngineConfig) *DecayIntegrator {
	return &DecayIntegrator{Scale: cfg.DecayScale, FloorKm: cfg.DecayFloorKm}
}

// Step returns the perigee loss in km for one frame. The result is never
// negative; invalid inputs yield 0.
func (d *DecayIntegrator) Step(density, ballisticCoefficient float64, dt time.Duration, timeScale float64) float64 {
	if !(density > 0) || !(ballisticCoefficient > 0) || dt <= 0 || !(timeScale > 0) {
		return 0
	}
	delta := density / ballisticCoefficient * d.Scale * dt.Seconds() * timeScale
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < 0 {
		return 0
	}
	return delta
}

// Apply lowers s.PerigeeAltKm by one step using the held density and returns
// the applied loss. Nothing is integrated at or below the floor, and perigee
// never drops past it.
func (d *DecayIntegrator) Apply(s *model.OrbitalState, dt time.Duration, timeScale float64) float64 {
	if s.PerigeeAltKm <= d.FloorKm {
		return 0
	}
	delta := d.Step(s.DensityKgM3, s.BallisticCoefficient, dt, timeScale)
	if s.PerigeeAltKm-delta < d.FloorKm {
		delta = s.PerigeeAltKm - d.FloorKm
	}
	s.PerigeeAltKm -= delta
	return delta
}
