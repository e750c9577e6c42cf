// Package planner defines the Task Planner dependency: given robot states
// and a set of requests, it produces a cost-minimizing assignment matrix or
// a typed planning error. Planner construction and the cost/battery models
// it relies on are external to the dispatch core; this package defines the
// fixed call contract and ships one reference implementation.
package planner

import (
	"fmt"
	"time"

	"github.com/fleetcore/dispatchd/core/model"
)

// FinishState is a robot's projected configuration after completing a
// queue entry: its waypoint, battery charge and the time it reaches them.
type FinishState struct {
	Waypoint   string    `json:"waypoint"`
	BatteryPct float64   `json:"battery_pct"`
	Time       time.Time `json:"time"`
}

// RobotState is the planning input for one robot: its expected finish
// state after completing whatever is already queued, and an identifying
// name.
type RobotState struct {
	Name   string      `json:"name"`
	Finish FinishState `json:"finish"`
}

// Request is a typed planning request built by a fleet from a
// TaskDescription. Exactly one pair of (StartWaypoint, FinishWaypoint) is
// meaningful per request; NumLoops is only used by loop requests.
type Request struct {
	TaskId         model.TaskId   `json:"task_id"`
	Type           model.TaskType `json:"type"`
	StartWaypoint  string         `json:"start_waypoint"`
	FinishWaypoint string         `json:"finish_waypoint"`
	NumLoops       int            `json:"num_loops,omitempty"`
	High           bool           `json:"high"`
	BatteryDrain   float64        `json:"battery_drain"`
	Duration       time.Duration  `json:"duration"`
}

// IsCharging reports whether this request is a charging task, excluded
// from the "pending non-charging requests" the allocator collects per
// robot.
func (r Request) IsCharging() bool { return r.Type == model.TaskChargeBattery }

// AssignmentEntry pairs a request with its predicted deployment time and
// the robot's projected finish state after completing it.
type AssignmentEntry struct {
	Request              Request     `json:"request"`
	DeploymentTime       time.Time   `json:"deployment_time"`
	ProjectedFinishState FinishState `json:"projected_finish_state"`
}

// RobotQueue is one robot's ordered assignment.
type RobotQueue struct {
	RobotName string            `json:"robot_name"`
	Entries   []AssignmentEntry `json:"entries"`
}

// ErrorKind tags why planning failed.
type ErrorKind int

const (
	ErrEmpty ErrorKind = iota
	ErrLowBattery
	ErrLimitedCapacity
)

func (k ErrorKind) String() string {
	switch k {
	case ErrLowBattery:
		return "low_battery"
	case ErrLimitedCapacity:
		return "limited_capacity"
	default:
		return "empty"
	}
}

// PlanningError is returned by TaskPlanner.Plan on failure.
type PlanningError struct {
	Kind ErrorKind
	Msg  string
}

func (e *PlanningError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// TaskPlanner produces a per-robot assignment matrix for a set of
// requests given the current robot states. It is invoked synchronously
// and treated as a pure function; any parallelism needed by a concrete
// implementation must stay internal to it.
type TaskPlanner interface {
	Plan(now time.Time, states []RobotState, requests []Request) ([]RobotQueue, error)
}
