package model

import "fmt"

// Space-weather bounds accepted at the configuration boundary.
const (
	MinF107 = 70.0
	MaxF107 = 300.0
	MinKp   = 0.0
	MaxKp   = 9.0
)

// Environment is the process-wide space-weather condition fed to the
// density oracle.
type Environment struct {
	F107 float64 `json:"f107" msgpack:"f107"`
	Kp   float64 `json:"kp" msgpack:"kp"`
}

// DefaultEnvironment matches moderate solar activity and quiet geomagnetic
// conditions.
func DefaultEnvironment() Environment {
	return Environment{F107: 150, Kp: 2}
}

// Validate rejects out-of-range solar flux or Kp values.
func (e Environment) Validate() error {
	if !finite(e.F107) || e.F107 < MinF107 || e.F107 > MaxF107 {
		return fmt.Errorf("%w: f107 %g outside [%g,%g]", ErrInvalidConfiguration, e.F107, MinF107, MaxF107)
	}
	if !finite(e.Kp) || e.Kp < MinKp || e.Kp > MaxKp {
		return fmt.Errorf("%w: kp %g outside [%g,%g]", ErrInvalidConfiguration, e.Kp, MinKp, MaxKp)
	}
	return nil
}
