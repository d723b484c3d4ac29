package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/decay-simulator/model"
)

// ErrInvalidTLE indicates the TLE could not be parsed or propagated.
var ErrInvalidTLE = errors.New("invalid TLE")

// ConfigFromTLE seeds injection parameters from a published two-line element
// set. The TLE is propagated to its own epoch with SGP4 and the resulting
// state vector is converted to classical elements relative to body, which
// must be the primary body since SGP4 output is Earth-centred. Mass and area
// are not part of a TLE and must be supplied.
func ConfigFromTLE(line1, line2 string, body model.CentralBody, massKg, areaM2 float64) (model.SatelliteConfig, error) {
	if !body.Primary {
		return model.SatelliteConfig{}, fmt.Errorf("%w: TLE seeding needs an Earth-centred body, got %s", model.ErrInvalidConfiguration, body.Name)
	}
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if len(line1) < 69 || len(line2) < 69 || line1[0] != '1' || line2[0] != '2' {
		return model.SatelliteConfig{}, fmt.Errorf("%w: malformed lines", ErrInvalidTLE)
	}
	epoch, err := tleEpoch(line1)
	if err != nil {
		return model.SatelliteConfig{}, err
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	year, month, day := epoch.Date()
	hour, min, sec := epoch.Clock()
	pos, vel := satellite.Propagate(sat, year, int(month), day, hour, min, sec)

	r := model.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := model.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
	if r.Norm() == 0 || math.IsNaN(r.Norm()) || math.IsNaN(v.Norm()) {
		return model.SatelliteConfig{}, fmt.Errorf("%w: propagation failed", ErrInvalidTLE)
	}

	el := elementsFromStateVector(r, v, body.MuKm3S2)
	incl, raan, argp := el.inclination, el.raan, el.argPerigee
	cfg := model.SatelliteConfig{
		Name:           strings.TrimSpace(line2[2:7]),
		PerigeeAltKm:   el.semiMajorAxis*(1-el.eccentricity) - body.RadiusKm,
		Eccentricity:   el.eccentricity,
		MassKg:         massKg,
		AreaM2:         areaM2,
		InclinationRad: &incl,
		RAANRad:        &raan,
		ArgPerigeeRad:  &argp,
	}
	if err := cfg.Validate(); err != nil {
		return model.SatelliteConfig{}, err
	}
	return cfg, nil
}

// tleEpoch parses the YYDDD.DDDDDDDD epoch field of line 1.
func tleEpoch(line1 string) (time.Time, error) {
	field := strings.TrimSpace(line1[18:32])
	if len(field) < 5 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrInvalidTLE, field)
	}
	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year %q", ErrInvalidTLE, field[:2])
	}
	days, err := strconv.ParseFloat(field[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrInvalidTLE, field[2:])
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((days - 1) * 24 * float64(time.Hour))), nil
}

type classicalElements struct {
	semiMajorAxis float64
	eccentricity  float64
	inclination   float64
	raan          float64
	argPerigee    float64
}

// elementsFromStateVector converts an inertial Z-up state vector (km, km/s)
// to classical elements. Undefined angles of circular or equatorial orbits
// are reported as zero.
func elementsFromStateVector(r, v model.Vec3, mu float64) classicalElements {
	const eps = 1e-9

	rNorm := r.Norm()
	v2 := v.Dot(v)
	h := model.Vec3{
		X: r.Y*v.Z - r.Z*v.Y,
		Y: r.Z*v.X - r.X*v.Z,
		Z: r.X*v.Y - r.Y*v.X,
	}
	hNorm := h.Norm()
	node := model.Vec3{X: -h.Y, Y: h.X}
	nNorm := node.Norm()

	rv := r.Dot(v)
	eVec := r.Scale(v2 - mu/rNorm).Sub(v.Scale(rv)).Scale(1 / mu)
	ecc := eVec.Norm()

	energy := v2/2 - mu/rNorm
	el := classicalElements{
		semiMajorAxis: -mu / (2 * energy),
		eccentricity:  ecc,
		inclination:   math.Acos(clamp(h.Z/hNorm, -1, 1)),
	}
	if nNorm > eps {
		el.raan = normalizeAngle(math.Atan2(node.Y, node.X))
		if ecc > eps {
			w := math.Acos(clamp(node.Dot(eVec)/(nNorm*ecc), -1, 1))
			if eVec.Z < 0 {
				w = twoPi - w
			}
			el.argPerigee = w
		}
	}
	return el
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
