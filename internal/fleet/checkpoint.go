package fleet

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/model"
)

const checkpointVersion = 1

// Snapshot is a detached copy of the whole registry.
type Snapshot struct {
	Version     int               `msgpack:"version"`
	Body        model.CentralBody `msgpack:"body"`
	Environment model.Environment `msgpack:"environment"`
	TimeScale   float64           `msgpack:"time_scale"`
	Capacity    int               `msgpack:"capacity"`
	Elapsed     time.Duration     `msgpack:"elapsed"`
	Satellites  []Satellite       `msgpack:"satellites"`
}

// Snapshot captures the registry between ticks. Nothing in the result
// aliases registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		Version:     checkpointVersion,
		Body:        r.body,
		Environment: r.env,
		TimeScale:   r.timeScale,
		Capacity:    r.capacity,
		Elapsed:     r.frames.Elapsed(),
		Satellites:  make([]Satellite, 0, len(r.order)),
	}
	for _, sat := range r.order {
		snap.Satellites = append(snap.Satellites, sat.view())
	}
	return snap
}

// SaveCheckpoint writes a zstd-compressed msgpack snapshot to w.
func (r *Registry) SaveCheckpoint(w io.Writer) error {
	snap := r.Snapshot()

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(&snap); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}

	r.log.Info(context.Background(), "checkpoint saved", logging.Int("satellites", len(snap.Satellites)))
	return nil
}

// LoadCheckpoint replaces the registry contents with a checkpoint written by
// SaveCheckpoint. The frame clock is not rewound; throttle state starts
// fresh for every restored satellite.
func (r *Registry) LoadCheckpoint(rd io.Reader) error {
	zr, err := zstd.NewReader(rd)
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := msgpack.NewDecoder(zr).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := snap.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	dropped := r.clearLocked()
	r.body = snap.Body
	r.env = snap.Environment
	r.timeScale = snap.TimeScale
	r.capacity = snap.Capacity
	for _, s := range snap.Satellites {
		sat := &satellite{state: s.OrbitalState, status: s.Status, createdAt: s.CreatedAt}
		r.order = append(r.order, sat)
		r.byID[s.ID] = sat
	}
	r.recordCountsLocked()
	r.mu.Unlock()

	for _, id := range dropped {
		r.forget(id)
	}
	r.log.Info(context.Background(), "checkpoint loaded",
		logging.String("body", snap.Body.Name),
		logging.Int("satellites", len(snap.Satellites)),
	)
	return nil
}

// validate checks a decoded snapshot with the same rules Add and the setters
// apply, so a restored fleet never carries state the registry could not have
// produced itself.
func (snap Snapshot) validate() error {
	if snap.Version != checkpointVersion {
		return fmt.Errorf("%w: checkpoint version %d, want %d", model.ErrInvalidConfiguration, snap.Version, checkpointVersion)
	}
	if err := snap.Body.Validate(); err != nil {
		return err
	}
	if err := snap.Environment.Validate(); err != nil {
		return err
	}
	if !slices.Contains(AllowedTimeScales, snap.TimeScale) {
		return fmt.Errorf("%w: %g", ErrInvalidTimeScale, snap.TimeScale)
	}
	if snap.Capacity <= 0 || len(snap.Satellites) > snap.Capacity {
		return fmt.Errorf("%w: checkpoint holds %d satellites for capacity %d", model.ErrInvalidConfiguration, len(snap.Satellites), snap.Capacity)
	}

	seen := make(map[string]struct{}, len(snap.Satellites))
	for i, s := range snap.Satellites {
		if s.ID == "" {
			return fmt.Errorf("%w: checkpoint satellite %d has no id", model.ErrInvalidConfiguration, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate satellite id %q in checkpoint", model.ErrInvalidConfiguration, s.ID)
		}
		seen[s.ID] = struct{}{}
		if err := validRestoredState(s); err != nil {
			return fmt.Errorf("satellite %q: %w", s.ID, err)
		}
	}
	return nil
}

func validRestoredState(s Satellite) error {
	st := s.OrbitalState
	switch {
	case s.Status != model.StatusActive && s.Status != model.StatusDeorbited:
		return fmt.Errorf("%w: unknown status %d", model.ErrInvalidConfiguration, int(s.Status))
	case !isFinite(st.PerigeeAltKm) || st.PerigeeAltKm < 0:
		return fmt.Errorf("%w: perigee_alt_km %g", model.ErrInvalidConfiguration, st.PerigeeAltKm)
	case !isFinite(st.Eccentricity) || st.Eccentricity < 0 || st.Eccentricity > model.MaxEccentricity:
		return fmt.Errorf("%w: eccentricity %g outside [0,%g]", model.ErrInvalidConfiguration, st.Eccentricity, model.MaxEccentricity)
	case !isFinite(st.BallisticCoefficient) || st.BallisticCoefficient <= 0:
		return fmt.Errorf("%w: ballistic_coefficient %g", model.ErrInvalidConfiguration, st.BallisticCoefficient)
	case !isFinite(st.DensityKgM3) || st.DensityKgM3 < 0:
		return fmt.Errorf("%w: density_kg_m3 %g", model.ErrInvalidConfiguration, st.DensityKgM3)
	}
	for _, v := range []float64{st.InclinationRad, st.RAANRad, st.ArgPerigeeRad, st.MeanAnomalyRad, st.Position.X, st.Position.Y, st.Position.Z} {
		if !isFinite(v) {
			return fmt.Errorf("%w: non-finite orbital element", model.ErrInvalidConfiguration)
		}
	}
	return nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
