package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/decay-simulator/model"
)

// PropagationEngine advances an OrbitalState with mean-motion integration and
// J2 nodal regression. It never decides impact.
type PropagationEngine struct {
	cfg EngineConfig
}

// NewPropagationEngine builds an engine from cfg.
func NewPropagationEngine(cfg EngineConfig) *PropagationEngine {
	return &PropagationEngine{cfg: cfg}
}

// Config returns the engine constants.
func (e *PropagationEngine) Config() EngineConfig {
	return e.cfg
}

// SemiMajorAxisKm approximates the semi-major axis from the current perigee
// altitude. Apogee is not modelled independently.
func SemiMajorAxisKm(body model.CentralBody, perigeeAltKm float64) float64 {
	return body.RadiusKm + perigeeAltKm
}

// MeanMotion returns n = sqrt(mu / a^3) in rad/s.
func MeanMotion(body model.CentralBody, perigeeAltKm float64) float64 {
	a := SemiMajorAxisKm(body, perigeeAltKm)
	return math.Sqrt(body.MuKm3S2 / (a * a * a))
}

// OrbitalPeriod returns the unscaled two-body period 2*pi/n.
func OrbitalPeriod(body model.CentralBody, perigeeAltKm float64) time.Duration {
	return time.Duration(twoPi / MeanMotion(body, perigeeAltKm) * float64(time.Second))
}

// NodalRegressionRate returns the J2 RAAN drift rate in rad/s.
func NodalRegressionRate(body model.CentralBody, perigeeAltKm, inclinationRad float64) float64 {
	a := SemiMajorAxisKm(body, perigeeAltKm)
	n := MeanMotion(body, perigeeAltKm)
	ratio := body.RadiusKm / a
	return -1.5 * n * body.J2 * ratio * ratio * math.Cos(inclinationRad)
}

// anomaly returns the angle used as true anomaly for the radius and position.
func (e *PropagationEngine) anomaly(s *model.OrbitalState) float64 {
	if e.cfg.SolveKepler {
		return TrueAnomalyFromMean(s.MeanAnomalyRad, s.Eccentricity)
	}
	return s.MeanAnomalyRad
}

// RadiusKm returns the instantaneous geocentric radius for the state's
// current anomaly.
func (e *PropagationEngine) RadiusKm(s *model.OrbitalState, body model.CentralBody) float64 {
	a := SemiMajorAxisKm(body, s.PerigeeAltKm)
	ecc := s.Eccentricity
	return a * (1 - ecc*ecc) / (1 + ecc*math.Cos(e.anomaly(s)))
}

// EffectiveRAAN returns the regressed node. The stored epoch RAAN is left
// untouched.
func (e *PropagationEngine) EffectiveRAAN(s *model.OrbitalState, body model.CentralBody) float64 {
	rate := NodalRegressionRate(body, s.PerigeeAltKm, s.InclinationRad)
	return s.RAANRad + rate*s.MeanAnomalyRad*e.cfg.RegressionScale
}

// Advance accumulates mean anomaly for a frame of length dt at the given time
// scale.
func (e *PropagationEngine) Advance(s *model.OrbitalState, body model.CentralBody, dt time.Duration, timeScale float64) {
	n := MeanMotion(body, s.PerigeeAltKm)
	s.MeanAnomalyRad += dt.Seconds() * timeScale * n * e.cfg.AnomalyScale
}

// Position computes the 3-D position in PositionUnitKm units. The frame is
// Y-up: the orbital plane starts in X/Z, is tilted by inclination about the
// line of nodes (X) and then turned by the effective RAAN about the polar
// axis (Y).
func (e *PropagationEngine) Position(s *model.OrbitalState, body model.CentralBody) model.Vec3 {
	r := e.RadiusKm(s, body)
	u := e.anomaly(s) + s.ArgPerigeeRad

	x := r * math.Cos(u)
	z := r * math.Sin(u)

	sinI, cosI := math.Sincos(s.InclinationRad)
	x1, y1, z1 := x, z*sinI, z*cosI

	sinO, cosO := math.Sincos(e.EffectiveRAAN(s, body))
	pos := model.Vec3{
		X: x1*cosO + z1*sinO,
		Y: y1,
		Z: -x1*sinO + z1*cosO,
	}
	return pos.Scale(1 / e.cfg.PositionUnitKm)
}

// Propagate advances s by one frame, records and returns its new position.
func (e *PropagationEngine) Propagate(s *model.OrbitalState, body model.CentralBody, dt time.Duration, timeScale float64) model.Vec3 {
	e.Advance(s, body, dt, timeScale)
	s.Position = e.Position(s, body)
	return s.Position
}
