// Package auditlog persists a record of every terminal task transition for
// later inspection, independent of the dispatcher's in-memory eviction of
// terminated tasks.
package auditlog

import (
	"context"
	"time"

	"github.com/fleetcore/dispatchd/core/model"
)

// Record captures one terminal task transition.
type Record struct {
	Timestamp  time.Time   `json:"timestamp"`
	TaskId     model.TaskId `json:"task_id"`
	TaskType   model.TaskType `json:"task_type"`
	FleetName  string      `json:"fleet_name"`
	RobotName  string      `json:"robot_name"`
	State      model.State `json:"state"`
	FailReason string      `json:"fail_reason"`
}

// FromStatus builds a Record from a task's terminal status.
func FromStatus(s model.TaskStatus, at time.Time) Record {
	return Record{
		Timestamp:  at,
		TaskId:     s.Profile.TaskId,
		TaskType:   s.Profile.Description.Type,
		FleetName:  s.FleetName,
		RobotName:  s.RobotName,
		State:      s.State,
		FailReason: s.FailReason,
	}
}

// Query filters records on retrieval. Every field is optional; State's zero
// value is StatePending, which never appears in a Record (only terminal
// transitions are logged), so a zero State means "any".
type Query struct {
	Start     time.Time
	End       time.Time
	FleetName string
	TaskId    model.TaskId
	State     model.State
}

// Store persists Records and supports querying them back.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

func matches(r Record, q Query) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.FleetName != "" && r.FleetName != q.FleetName {
		return false
	}
	if q.TaskId != "" && r.TaskId != q.TaskId {
		return false
	}
	if q.State != 0 && r.State != q.State {
		return false
	}
	return true
}
