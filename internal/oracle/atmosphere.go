package oracle

import (
	"math"

	"github.com/signalsfoundry/decay-simulator/model"
)

const (
	// OracleCeilingKm is the altitude at and above which the oracle is not
	// consulted.
	OracleCeilingKm = 1500.0

	fallbackCeilingKm     = 500.0
	fallbackScaleHeightKm = 80.0
	fallbackBaseDensity   = 1e-4
)

// Applicable reports whether the density oracle covers this body and altitude.
// The oracle is trained for the primary (Earth-equivalent) body only.
func Applicable(body model.CentralBody, altitudeKm float64) bool {
	return body.Primary && altitudeKm < OracleCeilingKm
}

// FallbackDensity is the closed-form exponential atmosphere used whenever the
// oracle is not applicable. Density is zero at and above 500 km.
func FallbackDensity(altitudeKm float64) float64 {
	if math.IsNaN(altitudeKm) || altitudeKm >= fallbackCeilingKm {
		return 0
	}
	return math.Exp(-altitudeKm/fallbackScaleHeightKm) * fallbackBaseDensity
}
