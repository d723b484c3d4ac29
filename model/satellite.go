package model

import (
	"fmt"
	"math"
	"time"
)

// Injection bounds accepted at the configuration boundary.
const (
	MinPerigeeAltKm  = 150.0
	MaxPerigeeAltKm  = 20000.0
	MaxEccentricity  = 0.9
	DragCoefficient  = 2.2
	DefaultPerigeeKm = 500.0
)

// SatelliteStatus is the lifecycle state of a satellite. The only transition
// is Active -> Deorbited.
type SatelliteStatus int

const (
	StatusActive SatelliteStatus = iota
	StatusDeorbited
)

func (s SatelliteStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusDeorbited:
		return "DEORBITED"
	default:
		return fmt.Sprintf("SatelliteStatus(%d)", int(s))
	}
}

// MarshalText renders the status name for JSON payloads.
func (s SatelliteStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText.
func (s *SatelliteStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ACTIVE":
		*s = StatusActive
	case "DEORBITED":
		*s = StatusDeorbited
	default:
		return fmt.Errorf("unknown satellite status %q", text)
	}
	return nil
}

// SatelliteConfig holds the injection parameters for a new satellite.
// Orientation angles are drawn at random when nil.
type SatelliteConfig struct {
	Name         string  `json:"name,omitempty"`
	PerigeeAltKm float64 `json:"perigee_alt_km"`
	Eccentricity float64 `json:"eccentricity"`
	MassKg       float64 `json:"mass_kg"`
	AreaM2       float64 `json:"area_m2"`

	InclinationRad *float64 `json:"inclination_rad,omitempty"`
	RAANRad        *float64 `json:"raan_rad,omitempty"`
	ArgPerigeeRad  *float64 `json:"arg_perigee_rad,omitempty"`
}

// Validate rejects injection parameters outside the supported envelope.
func (c SatelliteConfig) Validate() error {
	switch {
	case !finite(c.PerigeeAltKm) || c.PerigeeAltKm < MinPerigeeAltKm || c.PerigeeAltKm > MaxPerigeeAltKm:
		return fmt.Errorf("%w: perigee_alt_km %g outside [%g,%g]", ErrInvalidConfiguration, c.PerigeeAltKm, MinPerigeeAltKm, MaxPerigeeAltKm)
	case !finite(c.Eccentricity) || c.Eccentricity < 0 || c.Eccentricity > MaxEccentricity:
		return fmt.Errorf("%w: eccentricity %g outside [0,%g]", ErrInvalidConfiguration, c.Eccentricity, MaxEccentricity)
	case !finite(c.MassKg) || c.MassKg <= 0:
		return fmt.Errorf("%w: mass_kg must be > 0, got %g", ErrInvalidConfiguration, c.MassKg)
	case !finite(c.AreaM2) || c.AreaM2 <= 0:
		return fmt.Errorf("%w: area_m2 must be > 0, got %g", ErrInvalidConfiguration, c.AreaM2)
	}
	return nil
}

// BallisticCoefficient returns mass / (Cd * area) in kg/m^2.
func (c SatelliteConfig) BallisticCoefficient() float64 {
	return c.MassKg / (DragCoefficient * c.AreaM2)
}

// OrbitalState is the mutable per-satellite orbit record. RAANRad is the
// epoch value; the regressed node is derived by the propagation engine.
type OrbitalState struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`

	PerigeeAltKm   float64 `json:"perigee_alt_km" msgpack:"perigee_alt_km"`
	Eccentricity   float64 `json:"eccentricity" msgpack:"eccentricity"`
	InclinationRad float64 `json:"inclination_rad" msgpack:"inclination_rad"`
	RAANRad        float64 `json:"raan_rad" msgpack:"raan_rad"`
	ArgPerigeeRad  float64 `json:"arg_perigee_rad" msgpack:"arg_perigee_rad"`
	MeanAnomalyRad float64 `json:"mean_anomaly_rad" msgpack:"mean_anomaly_rad"`

	BallisticCoefficient float64 `json:"ballistic_coefficient" msgpack:"ballistic_coefficient"`

	// DensityKgM3 is the last density value accepted for this satellite.
	DensityKgM3 float64 `json:"density_kg_m3" msgpack:"density_kg_m3"`
	// Position is the last propagated position in body-normalized units.
	Position Vec3 `json:"position" msgpack:"position"`
}

// DeorbitEvent is emitted exactly once when a satellite crosses the impact
// threshold.
type DeorbitEvent struct {
	SatelliteID   string    `json:"satellite_id"`
	FinalPosition Vec3      `json:"final_position"`
	PerigeeAltKm  float64   `json:"perigee_alt_km"`
	At            time.Time `json:"at"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
