package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/decay-simulator/model"
)

func TestLifecycleFiresExactlyOnce(t *testing.T) {
	l := NewLifecycle(DefaultEngineConfig())
	s := newState(200, 0)
	s.Position = model.Vec3{X: 6.5}
	status := model.StatusActive
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, fired := l.Evaluate(s, &status, model.Earth, at); fired {
		t.Fatalf("fired above threshold")
	}

	s.PerigeeAltKm = DefaultImpactMarginKm
	ev, fired := l.Evaluate(s, &status, model.Earth, at)
	if !fired {
		t.Fatalf("expected transition at threshold")
	}
	if status != model.StatusDeorbited {
		t.Fatalf("status = %v, want DEORBITED", status)
	}
	if ev.SatelliteID != "sat-1" || ev.FinalPosition != s.Position || !ev.At.Equal(at) {
		t.Fatalf("event = %+v", ev)
	}

	count := 0
	for i := 0; i < 10; i++ {
		s.PerigeeAltKm -= 10
		if _, fired := l.Evaluate(s, &status, model.Earth, at); fired {
			count++
		}
	}
	if count != 0 {
		t.Fatalf("terminal notification fired %d extra times", count)
	}
}

func TestLifecycleThresholdIsPerBody(t *testing.T) {
	l := &Lifecycle{ImpactMarginKm: 0}
	if got := l.ImpactRadiusKm(model.Moon); got != model.Moon.RadiusKm {
		t.Fatalf("ImpactRadiusKm = %v, want %v", got, model.Moon.RadiusKm)
	}

	s := newState(0.5, 0)
	status := model.StatusActive
	if _, fired := l.Evaluate(s, &status, model.Moon, time.Time{}); fired {
		t.Fatalf("fired above surface")
	}
	s.PerigeeAltKm = 0
	if _, fired := l.Evaluate(s, &status, model.Moon, time.Time{}); !fired {
		t.Fatalf("expected impact at surface")
	}
}
