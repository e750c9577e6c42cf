package metrics

import (
	"time"

	"github.com/fleetcore/dispatchd/core/model"
)

// TaskEvent captures a task-state transition to be recorded.
type TaskEvent struct {
	TaskId    model.TaskId
	TaskType  model.TaskType
	FleetName string
	State     model.State
	Time      time.Time
}

// MetricsSink records task dispatch events for observability purposes.
type MetricsSink interface {
	RecordTaskEvent(ev TaskEvent) error
}

// AuctionEvent captures the outcome of a single auction window.
type AuctionEvent struct {
	TaskId    model.TaskId
	Proposals int
	Won       bool
	Duration  time.Duration
	Time      time.Time
}

// AuctionRecorder records auction timing and outcomes.
type AuctionRecorder interface {
	RecordAuction(ev AuctionEvent) error
}

// ProposalEvent captures a bid proposal published by a fleet.
type ProposalEvent struct {
	Proposal model.BidProposal
	Time     time.Time
}

// ProposalRecorder records bid proposals.
type ProposalRecorder interface {
	RecordProposal(ev ProposalEvent) error
}

// DispatchAckEvent captures a fleet's response to a dispatch request.
type DispatchAckEvent struct {
	Ack  model.DispatchAck
	Time time.Time
}

// DispatchAckRecorder records dispatch acknowledgments.
type DispatchAckRecorder interface {
	RecordDispatchAck(ev DispatchAckEvent) error
}

// QueueDepthRecorder records the size of the active and terminal task
// tables after each transition.
type QueueDepthRecorder interface {
	RecordQueueDepth(active, terminal int) error
}

// PlanningFailureEvent captures a planner error encountered by a fleet.
type PlanningFailureEvent struct {
	TaskId    model.TaskId
	FleetName string
	Kind      string
	Time      time.Time
}

// PlanningFailureRecorder records planner failures.
type PlanningFailureRecorder interface {
	RecordPlanningFailure(ev PlanningFailureEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordTaskEvent(TaskEvent) error                     { return nil }
func (NopSink) RecordAuction(AuctionEvent) error                    { return nil }
func (NopSink) RecordProposal(ProposalEvent) error                  { return nil }
func (NopSink) RecordDispatchAck(DispatchAckEvent) error            { return nil }
func (NopSink) RecordQueueDepth(int, int) error                     { return nil }
func (NopSink) RecordPlanningFailure(PlanningFailureEvent) error    { return nil }
