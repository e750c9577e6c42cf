// Package cost defines the battery-drain and duration estimator a fleet
// consults when turning a task description into a planning request.
// Battery models and duty-cycle calculations are external to the dispatch
// core (spec calls them "injected dependencies with fixed query
// operations"); this package only fixes that query surface and ships one
// reference implementation for tests and small deployments.
package cost

import (
	"time"

	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/planner"
)

// Estimator computes the battery drain (as a percentage of capacity) and
// wall-clock duration of serving a planning request.
type Estimator interface {
	Estimate(req planner.Request) (batteryDrainPct float64, duration time.Duration)
}

// Profile is the drain/duration pair charged for one task type.
type Profile struct {
	BatteryDrainPct float64
	Duration        time.Duration
}

// UniformEstimator charges a fixed Profile per task type, falling back to
// Default for unlisted types.
type UniformEstimator struct {
	ByType  map[model.TaskType]Profile
	Default Profile
}

// NewUniformEstimator returns an UniformEstimator with reasonable defaults
// for Clean, Delivery and Loop tasks; ChargeBattery tasks are assumed to
// replenish rather than drain.
func NewUniformEstimator() *UniformEstimator {
	return &UniformEstimator{
		ByType: map[model.TaskType]Profile{
			model.TaskClean:         {BatteryDrainPct: 4, Duration: 5 * time.Minute},
			model.TaskDelivery:      {BatteryDrainPct: 2, Duration: 3 * time.Minute},
			model.TaskLoop:          {BatteryDrainPct: 3, Duration: 4 * time.Minute},
			model.TaskChargeBattery: {BatteryDrainPct: -40, Duration: 20 * time.Minute},
		},
		Default: Profile{BatteryDrainPct: 3, Duration: 5 * time.Minute},
	}
}

func (e *UniformEstimator) Estimate(req planner.Request) (float64, time.Duration) {
	if req.NumLoops > 1 {
		if p, ok := e.ByType[req.Type]; ok {
			return p.BatteryDrainPct * float64(req.NumLoops), p.Duration * time.Duration(req.NumLoops)
		}
	}
	if p, ok := e.ByType[req.Type]; ok {
		return p.BatteryDrainPct, p.Duration
	}
	return e.Default.BatteryDrainPct, e.Default.Duration
}
