package model

import "fmt"

// CentralBody describes the body every satellite orbits. Values are treated as
// immutable once a body is selected.
type CentralBody struct {
	Name     string  `json:"name" msgpack:"name"`
	RadiusKm float64 `json:"radius_km" msgpack:"radius_km"`
	MuKm3S2  float64 `json:"mu_km3s2" msgpack:"mu_km3s2"` // gravitational parameter, km^3/s^2
	J2       float64 `json:"j2" msgpack:"j2"`

	// Primary marks the Earth-equivalent body for which the density oracle
	// is trained.
	Primary bool `json:"primary" msgpack:"primary"`
}

// Validate reports whether the body can drive propagation.
func (b CentralBody) Validate() error {
	if !finite(b.RadiusKm) || b.RadiusKm <= 0 {
		return fmt.Errorf("%w: body %q radius_km must be > 0, got %g", ErrInvalidConfiguration, b.Name, b.RadiusKm)
	}
	if !finite(b.MuKm3S2) || b.MuKm3S2 <= 0 {
		return fmt.Errorf("%w: body %q mu_km3s2 must be > 0, got %g", ErrInvalidConfiguration, b.Name, b.MuKm3S2)
	}
	if !finite(b.J2) || b.J2 < 0 {
		return fmt.Errorf("%w: body %q j2 must be >= 0, got %g", ErrInvalidConfiguration, b.Name, b.J2)
	}
	return nil
}

// Built-in bodies.
var (
	Earth = CentralBody{Name: "EARTH", RadiusKm: 6371.0, MuKm3S2: 398600.44, J2: 1.08263e-3, Primary: true}
	Moon  = CentralBody{Name: "MOON", RadiusKm: 1737.4, MuKm3S2: 4902.8, J2: 2.027e-4}
	Mars  = CentralBody{Name: "MARS", RadiusKm: 3389.5, MuKm3S2: 42828.3, J2: 1.960e-3}
	Venus = CentralBody{Name: "VENUS", RadiusKm: 6051.8, MuKm3S2: 324859.0, J2: 4.406e-6}
)
