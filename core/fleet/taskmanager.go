package fleet

import (
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/planner"
)

// TaskManager is the robot execution layer's queue endpoint, injected into
// a Fleet. It is the only way the allocator touches robot state; the
// command handles that actually drive robots, and their battery/cost
// models, are out of scope for the dispatch core.
type TaskManager interface {
	// RobotNames lists the robots currently registered with this fleet.
	RobotNames() []string
	// ExpectedFinishState returns the robot's projected configuration
	// after completing its current queue.
	ExpectedFinishState(robotName string) planner.FinishState
	// PendingRequests returns the robot's queued, not-yet-executed
	// requests. Charging requests may be included; the allocator skips
	// them.
	PendingRequests(robotName string) []planner.Request
	// IsExecuted reports whether a robot has already begun or finished
	// executing the given task; cancellation of active tasks is refused.
	IsExecuted(taskId model.TaskId) bool
	// SetQueue replaces a robot's queue with the given ordered entries.
	SetQueue(robotName string, entries []planner.AssignmentEntry) error
	// CancelQueuedTask removes a not-yet-started task from a robot's
	// queue.
	CancelQueuedTask(robotName string, taskId model.TaskId) error
}
