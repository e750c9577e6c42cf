package cost

import (
	"testing"

	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/planner"
)

func TestUniformEstimatorByType(t *testing.T) {
	e := NewUniformEstimator()
	drain, dur := e.Estimate(planner.Request{Type: model.TaskClean})
	if drain != 4 || dur.Minutes() != 5 {
		t.Fatalf("unexpected clean estimate: %v %v", drain, dur)
	}
}

func TestUniformEstimatorScalesWithLoops(t *testing.T) {
	e := NewUniformEstimator()
	drain, dur := e.Estimate(planner.Request{Type: model.TaskLoop, NumLoops: 3})
	if drain != 9 {
		t.Fatalf("expected drain scaled by loop count, got %v", drain)
	}
	if dur.Minutes() != 12 {
		t.Fatalf("expected duration scaled by loop count, got %v", dur)
	}
}

func TestUniformEstimatorDefaultFallback(t *testing.T) {
	e := NewUniformEstimator()
	drain, dur := e.Estimate(planner.Request{Type: model.TaskPatrol})
	if drain != e.Default.BatteryDrainPct || dur != e.Default.Duration {
		t.Fatalf("expected default fallback for unlisted type")
	}
}
