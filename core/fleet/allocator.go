package fleet

import (
	"time"

	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/navgraph"
	"github.com/fleetcore/dispatchd/core/planner"
)

// allocate implements spec.md §4.4: collect every robot's expected finish
// state and pending non-charging requests, fold in newRequest and drop
// ignore, then hand the full set to the task planner.
func (f *Fleet) allocate(plan planner.TaskPlanner, now time.Time, newRequest *planner.Request, ignore *model.TaskId) ([]planner.RobotQueue, error) {
	robots := f.taskManager.RobotNames()
	if len(robots) == 0 {
		return nil, &planner.PlanningError{Kind: planner.ErrEmpty, Msg: "no robots registered"}
	}

	states := make([]planner.RobotState, 0, len(robots))
	var requests []planner.Request
	if newRequest != nil {
		requests = append(requests, *newRequest)
	}
	for _, r := range robots {
		states = append(states, planner.RobotState{Name: r, Finish: f.taskManager.ExpectedFinishState(r)})
		for _, pr := range f.taskManager.PendingRequests(r) {
			if pr.IsCharging() {
				continue
			}
			if ignore != nil && pr.TaskId == *ignore {
				continue
			}
			requests = append(requests, pr)
		}
	}

	queues, err := plan.Plan(now, states, requests)
	if err != nil {
		return nil, err
	}
	return queues, nil
}

// buildRequest implements spec.md §4.3 step 6: validate the payload for
// the task's type and turn it into a typed planner.Request, or report
// failure for the caller to silently drop.
func (f *Fleet) buildRequest(profile model.TaskProfile) (planner.Request, bool) {
	desc := profile.Description
	high := desc.Priority == model.PriorityHigh

	var req planner.Request
	switch desc.Type {
	case model.TaskClean:
		if desc.Clean == nil {
			f.log.Warnf("fleet %s: clean task %s missing payload", f.name, profile.TaskId)
			return planner.Request{}, false
		}
		wp, err := f.graph.Waypoint(desc.Clean.StartWaypoint)
		if err != nil {
			f.log.Warnf("fleet %s: clean task %s: %v", f.name, profile.TaskId, err)
			return planner.Request{}, false
		}
		dock, err := f.graph.DockParams(wp.Name)
		if err != nil {
			f.log.Warnf("fleet %s: clean task %s: %v", f.name, profile.TaskId, err)
			return planner.Request{}, false
		}
		traj := navgraph.InterpolateCleaningTrajectory(dock.Path, desc.StartTime, f.cleaningSpeedMPS())
		if len(traj) == 0 {
			f.log.Warnf("fleet %s: clean task %s: empty cleaning trajectory", f.name, profile.TaskId)
			return planner.Request{}, false
		}
		req = planner.Request{
			TaskId:         profile.TaskId,
			Type:           model.TaskClean,
			StartWaypoint:  wp.Name,
			FinishWaypoint: dock.FinishWaypoint,
			High:           high,
		}

	case model.TaskDelivery:
		if desc.Delivery == nil {
			f.log.Warnf("fleet %s: delivery task %s missing payload", f.name, profile.TaskId)
			return planner.Request{}, false
		}
		if _, err := f.graph.Waypoint(desc.Delivery.PickupPlace); err != nil {
			f.log.Warnf("fleet %s: delivery task %s: %v", f.name, profile.TaskId, err)
			return planner.Request{}, false
		}
		if _, err := f.graph.Waypoint(desc.Delivery.DropoffPlace); err != nil {
			f.log.Warnf("fleet %s: delivery task %s: %v", f.name, profile.TaskId, err)
			return planner.Request{}, false
		}
		// Dispenser/ingestor cycle times are unknown at this layer, so
		// pickup and dropoff wait durations are zero placeholders.
		req = planner.Request{
			TaskId:         profile.TaskId,
			Type:           model.TaskDelivery,
			StartWaypoint:  desc.Delivery.PickupPlace,
			FinishWaypoint: desc.Delivery.DropoffPlace,
			High:           high,
		}

	case model.TaskLoop:
		if desc.Loop == nil || desc.Loop.NumLoops < 1 {
			f.log.Warnf("fleet %s: loop task %s missing payload or num_loops<1", f.name, profile.TaskId)
			return planner.Request{}, false
		}
		if _, err := f.graph.Waypoint(desc.Loop.StartName); err != nil {
			f.log.Warnf("fleet %s: loop task %s: %v", f.name, profile.TaskId, err)
			return planner.Request{}, false
		}
		if _, err := f.graph.Waypoint(desc.Loop.FinishName); err != nil {
			f.log.Warnf("fleet %s: loop task %s: %v", f.name, profile.TaskId, err)
			return planner.Request{}, false
		}
		req = planner.Request{
			TaskId:         profile.TaskId,
			Type:           model.TaskLoop,
			StartWaypoint:  desc.Loop.StartName,
			FinishWaypoint: desc.Loop.FinishName,
			NumLoops:       desc.Loop.NumLoops,
			High:           high,
		}

	default:
		f.log.Warnf("fleet %s: task %s has unsupported type for bidding", f.name, profile.TaskId)
		return planner.Request{}, false
	}

	drain, duration := f.estimator.Estimate(req)
	req.BatteryDrain = drain
	req.Duration = duration
	return req, true
}

// cleaningSpeedMPS is a placeholder vehicle trait; a concrete deployment
// would look this up per robot model rather than use a single constant.
func (f *Fleet) cleaningSpeedMPS() float64 { return 0.5 }

// isValid reports whether none of queues' entries refer to a task the
// TaskManager already considers executed (spec.md §4.3 ADD step).
func (f *Fleet) isValid(queues []planner.RobotQueue) bool {
	for _, q := range queues {
		for _, e := range q.Entries {
			if f.taskManager.IsExecuted(e.Request.TaskId) {
				return false
			}
		}
	}
	return true
}

func (f *Fleet) pushQueues(queues []planner.RobotQueue) error {
	for _, q := range queues {
		if err := f.taskManager.SetQueue(q.RobotName, q.Entries); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fleet) pendingCost(robotName string) float64 {
	var total float64
	for _, r := range f.taskManager.PendingRequests(robotName) {
		total += r.BatteryDrain
	}
	return total
}

func findEntry(queues []planner.RobotQueue, taskId model.TaskId) (robotName string, entry planner.AssignmentEntry, found bool) {
	for _, q := range queues {
		for _, e := range q.Entries {
			if e.Request.TaskId == taskId {
				return q.RobotName, e, true
			}
		}
	}
	return "", planner.AssignmentEntry{}, false
}

func queueFor(queues []planner.RobotQueue, robotName string) []planner.AssignmentEntry {
	for _, q := range queues {
		if q.RobotName == robotName {
			return q.Entries
		}
	}
	return nil
}

func queueCost(entries []planner.AssignmentEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Request.BatteryDrain
	}
	return total
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any)         {}
func (noopLogger) Debugw(string, map[string]any) {}
func (noopLogger) Infof(string, ...any)          {}
func (noopLogger) Warnf(string, ...any)          {}
func (noopLogger) Errorf(string, ...any)         {}
