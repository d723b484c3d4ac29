package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/decay-simulator/model"
)

func newState(perigee, ecc float64) *model.OrbitalState {
	return &model.OrbitalState{
		ID:                   "sat-1",
		PerigeeAltKm:         perigee,
		Eccentricity:         ecc,
		InclinationRad:       0.9,
		RAANRad:              0.3,
		ArgPerigeeRad:        1.1,
		BallisticCoefficient: 100,
	}
}

func TestMeanMotionEarthLEO(t *testing.T) {
	n := MeanMotion(model.Earth, 500)
	a := 6871.0
	want := math.Sqrt(398600.44 / (a * a * a))
	if math.Abs(n-want) > 1e-15 {
		t.Fatalf("MeanMotion = %v, want %v", n, want)
	}

	period := OrbitalPeriod(model.Earth, 500)
	if period < 94*time.Minute || period > 95*time.Minute {
		t.Fatalf("OrbitalPeriod = %v, want ~94.5m", period)
	}
}

func TestAdvanceAccumulatesScaledMeanAnomaly(t *testing.T) {
	eng := NewPropagationEngine(DefaultEngineConfig())
	s := newState(500, 0)

	eng.Advance(s, model.Earth, 2*time.Second, 5)

	want := 2 * 5 * MeanMotion(model.Earth, 500) * DefaultAnomalyScale
	if math.Abs(s.MeanAnomalyRad-want) > 1e-12 {
		t.Fatalf("MeanAnomalyRad = %v, want %v", s.MeanAnomalyRad, want)
	}
}

func TestRadiusUsesMeanAnomalyAsTrueAnomaly(t *testing.T) {
	eng := NewPropagationEngine(DefaultEngineConfig())
	s := newState(500, 0.2)
	a := model.Earth.RadiusKm + 500

	s.MeanAnomalyRad = 0
	if got, want := eng.RadiusKm(s, model.Earth), a*(1-0.04)/1.2; math.Abs(got-want) > 1e-9 {
		t.Fatalf("RadiusKm at M=0 = %v, want %v", got, want)
	}
	s.MeanAnomalyRad = math.Pi
	if got, want := eng.RadiusKm(s, model.Earth), a*(1-0.04)/0.8; math.Abs(got-want) > 1e-9 {
		t.Fatalf("RadiusKm at M=pi = %v, want %v", got, want)
	}
}

func TestSolveKeplerChangesRadiusAwayFromApsides(t *testing.T) {
	cfg := DefaultEngineConfig()
	approx := NewPropagationEngine(cfg)
	cfg.SolveKepler = true
	solved := NewPropagationEngine(cfg)

	s := newState(500, 0.5)
	s.MeanAnomalyRad = 1.0

	if math.Abs(approx.RadiusKm(s, model.Earth)-solved.RadiusKm(s, model.Earth)) < 1 {
		t.Fatalf("expected solved Kepler radius to differ from mean-anomaly radius")
	}

	// At perigee both agree.
	s.MeanAnomalyRad = 0
	if math.Abs(approx.RadiusKm(s, model.Earth)-solved.RadiusKm(s, model.Earth)) > 1e-6 {
		t.Fatalf("radius at perigee should agree")
	}
}

func TestRadiusPeriodicWithoutDecay(t *testing.T) {
	bodies := []model.CentralBody{model.Earth, model.Moon, model.Mars, model.Venus}
	eccs := []float64{0, 0.1, 0.45, 0.9}

	for _, body := range bodies {
		for _, ecc := range eccs {
			for _, solve := range []bool{false, true} {
				cfg := DefaultEngineConfig()
				cfg.SolveKepler = solve
				eng := NewPropagationEngine(cfg)
				s := newState(400, ecc)

				const timeScale = 10.0
				n := MeanMotion(body, s.PerigeeAltKm)
				// Wall-clock period for one revolution of the scaled anomaly.
				periodSec := twoPi / (n * cfg.AnomalyScale * timeScale)
				const steps = 40
				dt := time.Duration(periodSec / steps * float64(time.Second))

				var samples []float64
				for i := 0; i < 3*steps; i++ {
					eng.Propagate(s, body, dt, timeScale)
					samples = append(samples, eng.RadiusKm(s, body))
				}
				for i := 0; i+steps < len(samples); i++ {
					// dt is truncated to whole nanoseconds, so allow a tiny drift.
					if diff := math.Abs(samples[i] - samples[i+steps]); diff > 1e-3*samples[i] {
						t.Fatalf("%s e=%v solve=%v: r[%d]=%v r[%d]=%v not periodic",
							body.Name, ecc, solve, i, samples[i], i+steps, samples[i+steps])
					}
				}
			}
		}
	}
}

func TestEffectiveRAANRegressesWithoutMutatingEpoch(t *testing.T) {
	eng := NewPropagationEngine(DefaultEngineConfig())
	s := newState(500, 0)
	s.InclinationRad = 0.5 // prograde: node regresses westward

	for i := 0; i < 100; i++ {
		eng.Propagate(s, model.Earth, 100*time.Millisecond, 100)
	}

	if s.RAANRad != 0.3 {
		t.Fatalf("epoch RAAN mutated: %v", s.RAANRad)
	}
	eff := eng.EffectiveRAAN(s, model.Earth)
	if eff >= s.RAANRad {
		t.Fatalf("EffectiveRAAN = %v, want < epoch %v for prograde orbit", eff, s.RAANRad)
	}

	want := s.RAANRad + NodalRegressionRate(model.Earth, 500, 0.5)*s.MeanAnomalyRad*DefaultRegressionScale
	if math.Abs(eff-want) > 1e-12 {
		t.Fatalf("EffectiveRAAN = %v, want %v", eff, want)
	}

	// A polar orbit has no regression.
	s.InclinationRad = math.Pi / 2
	if got := eng.EffectiveRAAN(s, model.Earth); math.Abs(got-s.RAANRad) > 1e-12 {
		t.Fatalf("polar EffectiveRAAN = %v, want %v", got, s.RAANRad)
	}
}

func TestPositionNormMatchesRadius(t *testing.T) {
	eng := NewPropagationEngine(DefaultEngineConfig())
	s := newState(800, 0.3)

	for i := 0; i < 50; i++ {
		pos := eng.Propagate(s, model.Mars, 500*time.Millisecond, 20)
		want := eng.RadiusKm(s, model.Mars) / DefaultPositionUnitKm
		if math.Abs(pos.Norm()-want) > 1e-9 {
			t.Fatalf("step %d: |pos| = %v, want %v", i, pos.Norm(), want)
		}
		if pos != s.Position {
			t.Fatalf("step %d: state position not recorded", i)
		}
	}
}

func TestPositionEquatorialOrbitStaysInPlane(t *testing.T) {
	eng := NewPropagationEngine(DefaultEngineConfig())
	s := newState(500, 0)
	s.InclinationRad = 0

	for i := 0; i < 20; i++ {
		pos := eng.Propagate(s, model.Earth, time.Second, 100)
		if math.Abs(pos.Y) > 1e-12 {
			t.Fatalf("equatorial orbit left the equatorial plane: %+v", pos)
		}
	}
}
