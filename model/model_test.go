package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestSatelliteConfigValidate(t *testing.T) {
	base := SatelliteConfig{PerigeeAltKm: 500, Eccentricity: 0.01, MassKg: 500, AreaM2: 2}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate(base): %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SatelliteConfig)
	}{
		{"perigee below floor", func(c *SatelliteConfig) { c.PerigeeAltKm = 149 }},
		{"perigee above ceiling", func(c *SatelliteConfig) { c.PerigeeAltKm = 20001 }},
		{"perigee NaN", func(c *SatelliteConfig) { c.PerigeeAltKm = math.NaN() }},
		{"negative eccentricity", func(c *SatelliteConfig) { c.Eccentricity = -0.1 }},
		{"eccentricity too high", func(c *SatelliteConfig) { c.Eccentricity = 0.91 }},
		{"zero mass", func(c *SatelliteConfig) { c.MassKg = 0 }},
		{"infinite mass", func(c *SatelliteConfig) { c.MassKg = math.Inf(1) }},
		{"negative area", func(c *SatelliteConfig) { c.AreaM2 = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("Validate error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}

	edges := base
	edges.PerigeeAltKm = MinPerigeeAltKm
	edges.Eccentricity = MaxEccentricity
	if err := edges.Validate(); err != nil {
		t.Fatalf("inclusive bounds rejected: %v", err)
	}
}

func TestBallisticCoefficient(t *testing.T) {
	cfg := SatelliteConfig{MassKg: 500, AreaM2: 2}
	if got, want := cfg.BallisticCoefficient(), 500/(2.2*2); math.Abs(got-want) > 1e-12 {
		t.Fatalf("BallisticCoefficient = %v, want %v", got, want)
	}
}

func TestSatelliteStatusText(t *testing.T) {
	for _, s := range []SatelliteStatus{StatusActive, StatusDeorbited} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", s, err)
		}
		var got SatelliteStatus
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != s {
			t.Fatalf("round trip %v -> %s -> %v", s, data, got)
		}
	}
	var s SatelliteStatus
	if err := s.UnmarshalText([]byte("ORBITING")); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if got := SatelliteStatus(7).String(); got != "SatelliteStatus(7)" {
		t.Fatalf("String = %q", got)
	}
}

func TestEnvironmentValidate(t *testing.T) {
	if err := DefaultEnvironment().Validate(); err != nil {
		t.Fatalf("default environment invalid: %v", err)
	}
	for _, env := range []Environment{
		{F107: MinF107, Kp: MinKp},
		{F107: MaxF107, Kp: MaxKp},
	} {
		if err := env.Validate(); err != nil {
			t.Fatalf("Validate(%+v): %v", env, err)
		}
	}
	for _, env := range []Environment{
		{F107: 69, Kp: 2},
		{F107: 301, Kp: 2},
		{F107: 150, Kp: -1},
		{F107: 150, Kp: 9.5},
		{F107: math.NaN(), Kp: 2},
	} {
		if err := env.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("Validate(%+v) error = %v, want ErrInvalidConfiguration", env, err)
		}
	}
}

func TestBuiltinBodies(t *testing.T) {
	primaries := 0
	for _, b := range []CentralBody{Earth, Moon, Mars, Venus} {
		if err := b.Validate(); err != nil {
			t.Fatalf("%s: %v", b.Name, err)
		}
		if b.Primary {
			primaries++
		}
	}
	if primaries != 1 || !Earth.Primary {
		t.Fatalf("want Earth as the only primary body")
	}

	bad := Earth
	bad.MuKm3S2 = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("Validate error = %v, want ErrInvalidConfiguration", err)
	}
	bad = Earth
	bad.J2 = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("Validate error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestVec3(t *testing.T) {
	a := Vec3{X: 3, Y: 4}
	if a.Norm() != 5 {
		t.Fatalf("Norm = %v, want 5", a.Norm())
	}
	b := Vec3{X: 1, Y: 1, Z: 1}
	if got := a.Sub(b); got != (Vec3{X: 2, Y: 3, Z: -1}) {
		t.Fatalf("Sub = %+v", got)
	}
	if got := a.Dot(b); got != 7 {
		t.Fatalf("Dot = %v, want 7", got)
	}
	if got := b.Scale(2); got != (Vec3{X: 2, Y: 2, Z: 2}) {
		t.Fatalf("Scale = %+v", got)
	}
}
