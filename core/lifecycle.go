package core

import (
	"time"

	"github.com/signalsfoundry/decay-simulator/model"
)

// Lifecycle evaluates the ACTIVE -> DEORBITED transition.
type Lifecycle struct {
	ImpactMarginKm float64
}

// NewLifecycle builds a lifecycle evaluator from the engine constants.
func NewLifecycle(cfg EngineConfig) *Lifecycle {
	return &Lifecycle{ImpactMarginKm: cfg.ImpactMarginKm}
}

// ImpactRadiusKm is the geocentric radius at or below which a satellite is lost.
func (l *Lifecycle) ImpactRadiusKm(body model.CentralBody) float64 {
	return body.RadiusKm + l.ImpactMarginKm
}

// Evaluate checks the perigee radius against the impact threshold. On the
// first crossing it marks status deorbited and returns the terminal event
// carrying the last computed position. Deorbited satellites are never
// evaluated again, so the event fires exactly once.
func (l *Lifecycle) Evaluate(s *model.OrbitalState, status *model.SatelliteStatus, body model.CentralBody, at time.Time) (model.DeorbitEvent, bool) {
	if *status == model.StatusDeorbited {
		return model.DeorbitEvent{}, false
	}
	if SemiMajorAxisKm(body, s.PerigeeAltKm) > l.ImpactRadiusKm(body) {
		return model.DeorbitEvent{}, false
	}
	*status = model.StatusDeorbited
	return model.DeorbitEvent{
		SatelliteID:   s.ID,
		FinalPosition: s.Position,
		PerigeeAltKm:  s.PerigeeAltKm,
		At:            at,
	}, true
}
