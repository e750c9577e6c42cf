// Package model defines the task domain types shared by the dispatcher and
// the fleets: task identifiers, task descriptions, profiles, statuses, and
// the bidding wire types exchanged during an auction.
package model

import "time"

// TaskType tags the kind of work a task represents. The dispatcher only
// inspects the tag; fleets inspect the type-specific payload carried on
// TaskDescription.
type TaskType int

const (
	TaskStation TaskType = iota
	TaskLoop
	TaskDelivery
	TaskChargeBattery
	TaskClean
	TaskPatrol
)

// String returns the name used when minting task ids (TypeName+counter).
func (t TaskType) String() string {
	switch t {
	case TaskStation:
		return "Station"
	case TaskLoop:
		return "Loop"
	case TaskDelivery:
		return "Delivery"
	case TaskChargeBattery:
		return "ChargeBattery"
	case TaskClean:
		return "Clean"
	case TaskPatrol:
		return "Patrol"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is a recognized task type tag.
func (t TaskType) Valid() bool {
	switch t {
	case TaskStation, TaskLoop, TaskDelivery, TaskChargeBattery, TaskClean, TaskPatrol:
		return true
	default:
		return false
	}
}

// Priority is a binary submission priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// CleanPayload carries the fields needed to bid on a Clean task.
type CleanPayload struct {
	StartWaypoint string `json:"start_waypoint"`
}

// DeliveryPayload carries the fields needed to bid on a Delivery task.
type DeliveryPayload struct {
	PickupPlace      string `json:"pickup_place"`
	PickupDispenser  string `json:"pickup_dispenser"`
	DropoffPlace     string `json:"dropoff_place"`
	DropoffIngestor  string `json:"dropoff_ingestor"`
}

// LoopPayload carries the fields needed to bid on a Loop task.
type LoopPayload struct {
	StartName  string `json:"start_name"`
	FinishName string `json:"finish_name"`
	NumLoops   int    `json:"num_loops"`
}

// TaskDescription is the submission payload handed to Dispatcher.Submit.
// Exactly one of Clean, Delivery or Loop is populated, selected by Type.
type TaskDescription struct {
	Type      TaskType         `json:"task_type"`
	StartTime time.Time        `json:"start_time"`
	Priority  Priority         `json:"priority"`
	Clean     *CleanPayload    `json:"clean,omitempty"`
	Delivery  *DeliveryPayload `json:"delivery,omitempty"`
	Loop      *LoopPayload     `json:"loop,omitempty"`
}

// TaskId is a globally unique task identifier minted by the Dispatcher as
// "<TypeName><counter>".
type TaskId string

// TaskProfile is the immutable record created at submission time.
type TaskProfile struct {
	TaskId         TaskId          `json:"task_id"`
	SubmissionTime time.Time       `json:"submission_time"`
	Description    TaskDescription `json:"description"`
}

// State is a task's position in its lifecycle.
type State int

const (
	StatePending State = iota
	StateQueued
	StateExecuting
	StateCompleted
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateQueued:
		return "Queued"
	case StateExecuting:
		return "Executing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is one of the three terminal states.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// TaskStatus tracks a task through its lifecycle. It is owned by exactly one
// of the dispatcher's two tables (active or terminal) at any time.
type TaskStatus struct {
	Profile    TaskProfile `json:"profile"`
	FleetName  string      `json:"fleet_name"`
	State      State       `json:"state"`
	RobotName  string      `json:"robot_name,omitempty"`
	FailReason string      `json:"fail_reason,omitempty"`
}

// TaskId is a convenience accessor for the profile's id.
func (s TaskStatus) TaskId() TaskId { return s.Profile.TaskId }

// TaskSummary is the read-only projection published on the ongoing-tasks
// topic and returned by get_task_list.
type TaskSummary struct {
	TaskId         TaskId    `json:"task_id"`
	TaskType       TaskType  `json:"task_type"`
	FleetName      string    `json:"fleet_name"`
	State          State     `json:"state"`
	SubmissionTime time.Time `json:"submission_time"`
}

// Summarize projects a TaskStatus into its wire-level summary.
func Summarize(s TaskStatus) TaskSummary {
	return TaskSummary{
		TaskId:         s.Profile.TaskId,
		TaskType:       s.Profile.Description.Type,
		FleetName:      s.FleetName,
		State:          s.State,
		SubmissionTime: s.Profile.SubmissionTime,
	}
}

// BidNotice announces a task up for bidding to participating fleets.
type BidNotice struct {
	Profile    TaskProfile   `json:"profile"`
	TimeWindow time.Duration `json:"time_window"`
}

// BidProposal is a fleet's offer for a task under auction.
type BidProposal struct {
	FleetName  string      `json:"fleet_name"`
	Profile    TaskProfile `json:"profile"`
	RobotName  string      `json:"robot_name"`
	PrevCost   float64     `json:"prev_cost"`
	NewCost    float64     `json:"new_cost"`
	FinishTime time.Time   `json:"finish_time"`
}

// DispatchMethod selects between committing and revoking a dispatch request.
type DispatchMethod int

const (
	DispatchAdd DispatchMethod = iota
	DispatchCancel
)

func (m DispatchMethod) String() string {
	if m == DispatchCancel {
		return "CANCEL"
	}
	return "ADD"
}

// DispatchRequest is the dispatcher-to-fleet command to commit or revoke a
// task.
type DispatchRequest struct {
	Profile   TaskProfile    `json:"profile"`
	Method    DispatchMethod `json:"method"`
	FleetName string         `json:"fleet_name"`
}

// DispatchAck is a fleet's response to a DispatchRequest.
type DispatchAck struct {
	TaskId    TaskId `json:"task_id"`
	FleetName string `json:"fleet_name"`
	Success   bool   `json:"success"`
}
