package core

import (
	"math"

	"github.com/signalsfoundry/decay-simulator/model"
)

// GroundStation is a fixed observer on the surface of the central body.
type GroundStation struct {
	Name            string
	LatitudeDeg     float64
	LongitudeDeg    float64
	MinElevationDeg float64
}

// DefaultGroundStation is the primary tracking site at 45N 0E with a 5 degree
// elevation mask.
var DefaultGroundStation = GroundStation{
	Name:            "PRIMARY",
	LatitudeDeg:     45,
	LongitudeDeg:    0,
	MinElevationDeg: 5,
}

// Access is the visibility of a satellite from a ground station.
type Access struct {
	Station      string  `json:"station"`
	Visible      bool    `json:"visible"`
	ElevationDeg float64 `json:"elevation_deg"`
	RangeKm      float64 `json:"range_km"`
}

// PositionKm returns the station's position in kilometres in the Y-up
// propagation frame.
func (g GroundStation) PositionKm(body model.CentralBody) model.Vec3 {
	phi := g.LatitudeDeg * math.Pi / 180
	lam := g.LongitudeDeg * math.Pi / 180
	return model.Vec3{
		X: body.RadiusKm * math.Cos(phi) * math.Cos(lam),
		Y: body.RadiusKm * math.Sin(phi),
		Z: -body.RadiusKm * math.Cos(phi) * math.Sin(lam),
	}
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target model.Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}
	r := observer.Norm()
	if r == 0 {
		return 90
	}

	// Angle between v and the local zenith.
	cosGamma := v.Dot(observer) / (vNorm * r)
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return 90.0 - math.Acos(cosGamma)*180.0/math.Pi
}

// CheckAccess reports whether a satellite at pos (in unitKm units) is above
// the station's elevation mask.
func CheckAccess(g GroundStation, body model.CentralBody, pos model.Vec3, unitKm float64) Access {
	station := g.PositionKm(body)
	target := pos.Scale(unitKm)
	elev := ElevationDegrees(station, target)
	return Access{
		Station:      g.Name,
		Visible:      elev > g.MinElevationDeg,
		ElevationDeg: elev,
		RangeKm:      target.Sub(station).Norm(),
	}
}
