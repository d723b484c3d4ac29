package core

import "math"

const twoPi = 2 * math.Pi

// eccentricAnomalyFromMean solves Kepler's equation with Newton-Raphson.
func eccentricAnomalyFromMean(meanAnomaly, e float64) float64 {
	m := normalizeAngle(meanAnomaly)
	if e == 0 {
		return m
	}

	E := m
	if e >= 0.8 {
		if m < math.Pi {
			E = m + e/2
		} else {
			E = m - e/2
		}
	}
	for i := 0; i < 50; i++ {
		delta := (E - e*math.Sin(E) - m) / (1 - e*math.Cos(E))
		E -= delta
		if math.Abs(delta) < 1e-12 {
			break
		}
	}
	return normalizeAngle(E)
}

// TrueAnomalyFromMean converts a mean anomaly to the true anomaly.
func TrueAnomalyFromMean(meanAnomaly, e float64) float64 {
	if e == 0 {
		return normalizeAngle(meanAnomaly)
	}
	E := eccentricAnomalyFromMean(meanAnomaly, e)
	nu := math.Atan2(math.Sqrt(1-e*e)*math.Sin(E), math.Cos(E)-e)
	return normalizeAngle(nu)
}

func normalizeAngle(angle float64) float64 {
	wrapped := math.Mod(angle, twoPi)
	if wrapped < 0 {
		wrapped += twoPi
	}
	return wrapped
}
