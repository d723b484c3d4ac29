package fleet

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/decay-simulator/core"
	"github.com/signalsfoundry/decay-simulator/kb"
	"github.com/signalsfoundry/decay-simulator/model"
)

// TLE is a two-line element set used to seed a satellite.
type TLE struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// SatelliteSpec is an injection request: either explicit orbit parameters
// or a TLE plus mass and area.
type SatelliteSpec struct {
	model.SatelliteConfig
	TLE *TLE `json:"tle,omitempty"`
}

// Config resolves the injection against body. An explicit name overrides the
// catalog number taken from a TLE; an omitted perigee defaults to
// model.DefaultPerigeeKm.
func (s SatelliteSpec) Config(body model.CentralBody) (model.SatelliteConfig, error) {
	if s.TLE == nil {
		cfg := s.SatelliteConfig
		if cfg.PerigeeAltKm == 0 {
			cfg.PerigeeAltKm = model.DefaultPerigeeKm
		}
		return cfg, nil
	}
	cfg, err := core.ConfigFromTLE(s.TLE.Line1, s.TLE.Line2, body, s.MassKg, s.AreaM2)
	if err != nil {
		return model.SatelliteConfig{}, err
	}
	if s.Name != "" {
		cfg.Name = s.Name
	}
	return cfg, nil
}

// Scenario is the JSON start-up description of a run. Zero values keep the
// registry defaults.
type Scenario struct {
	Body        string             `json:"body,omitempty"`
	Environment *model.Environment `json:"environment,omitempty"`
	TimeScale   float64            `json:"time_scale,omitempty"`
	Capacity    int                `json:"capacity,omitempty"`
	Satellites  []SatelliteSpec    `json:"satellites"`
}

// LoadScenario decodes a scenario from rd. Only structural problems fail
// here; values are validated when the scenario is applied.
func LoadScenario(rd io.Reader) (Scenario, error) {
	var sc Scenario
	dec := json.NewDecoder(rd)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("%w: decode scenario: %v", model.ErrInvalidConfiguration, err)
	}
	return sc, nil
}

// ApplyScenario selects the scenario body in catalog, applies the global
// parameters and injects every satellite. It returns the new IDs in order.
// Capacity is a construction option and is not applied here.
func (r *Registry) ApplyScenario(catalog *kb.KnowledgeBase, sc Scenario) ([]string, error) {
	if sc.Body != "" {
		body, err := catalog.Select(sc.Body)
		if err != nil {
			return nil, err
		}
		if r.Body() != body {
			if err := r.SetBody(body); err != nil {
				return nil, err
			}
		}
	}
	if sc.Environment != nil {
		if err := r.SetEnvironment(*sc.Environment); err != nil {
			return nil, err
		}
	}
	if sc.TimeScale != 0 {
		if err := r.SetTimeScale(sc.TimeScale); err != nil {
			return nil, err
		}
	}

	body := r.Body()
	ids := make([]string, 0, len(sc.Satellites))
	for i, spec := range sc.Satellites {
		cfg, err := spec.Config(body)
		if err != nil {
			return ids, fmt.Errorf("satellite %d: %w", i, err)
		}
		id, err := r.Add(cfg)
		if err != nil {
			return ids, fmt.Errorf("satellite %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
