package core

import (
	"fmt"

	"github.com/signalsfoundry/decay-simulator/model"
)

// Engine constants. They trade physical fidelity for decay and revolutions
// that play out on human-observable timescales and must be used consistently
// by every component.
const (
	// DefaultAnomalyScale multiplies the mean motion when accumulating mean
	// anomaly. A 500 km Earth orbit completes a revolution in ~9 minutes of
	// wall time at time scale 1.
	DefaultAnomalyScale = 10.0
	// DefaultRegressionScale multiplies the J2 nodal regression so the
	// precession is visible within a few revolutions.
	DefaultRegressionScale = 1000.0
	// DefaultPositionUnitKm is the size of one output position unit.
	DefaultPositionUnitKm = 1000.0
	// DefaultDecayScale converts density/ballistic coefficient into km of
	// perigee loss per scaled second.
	DefaultDecayScale = 1e4
	// DefaultDecayFloorKm is the altitude below which decay is no longer
	// integrated.
	DefaultDecayFloorKm = 0.0
	// DefaultImpactMarginKm is the altitude at which a satellite is
	// considered lost.
	DefaultImpactMarginKm = 165.0
)

// EngineConfig groups the fixed constants shared by propagation, decay and
// lifecycle evaluation.
type EngineConfig struct {
	AnomalyScale    float64 `json:"anomaly_scale"`
	RegressionScale float64 `json:"regression_scale"`
	PositionUnitKm  float64 `json:"position_unit_km"`
	DecayScale      float64 `json:"decay_scale"`
	DecayFloorKm    float64 `json:"decay_floor_km"`
	ImpactMarginKm  float64 `json:"impact_margin_km"`

	// SolveKepler replaces the mean anomaly with the true anomaly from a
	// solved Kepler equation in the radius and position formulas. Off by
	// default, which keeps the mean anomaly in place of the true anomaly.
	SolveKepler bool `json:"solve_kepler"`
}

// DefaultEngineConfig returns the documented engine constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AnomalyScale:    DefaultAnomalyScale,
		RegressionScale: DefaultRegressionScale,
		PositionUnitKm:  DefaultPositionUnitKm,
		DecayScale:      DefaultDecayScale,
		DecayFloorKm:    DefaultDecayFloorKm,
		ImpactMarginKm:  DefaultImpactMarginKm,
	}
}

// Validate rejects constant combinations that would break the engine
// invariants. An impact altitude below the decay floor would leave a
// satellite stranded above the impact threshold forever.
func (c EngineConfig) Validate() error {
	switch {
	case c.AnomalyScale <= 0:
		return fmt.Errorf("%w: anomaly_scale must be > 0", model.ErrInvalidConfiguration)
	case c.RegressionScale < 0:
		return fmt.Errorf("%w: regression_scale must be >= 0", model.ErrInvalidConfiguration)
	case c.PositionUnitKm <= 0:
		return fmt.Errorf("%w: position_unit_km must be > 0", model.ErrInvalidConfiguration)
	case c.DecayScale < 0:
		return fmt.Errorf("%w: decay_scale must be >= 0", model.ErrInvalidConfiguration)
	case c.ImpactMarginKm < c.DecayFloorKm:
		return fmt.Errorf("%w: impact_margin_km %g below decay_floor_km %g",
			model.ErrInvalidConfiguration, c.ImpactMarginKm, c.DecayFloorKm)
	}
	return nil
}
