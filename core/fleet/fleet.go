// Package fleet implements the per-fleet bidder and allocator: it reacts
// to bid notices by validating them against a navigation graph and an
// internal task planner, publishes proposals, and commits or revokes
// assignments on award or cancellation from the dispatcher.
package fleet

import (
	"sync"
	"time"

	"github.com/fleetcore/dispatchd/core/cost"
	"github.com/fleetcore/dispatchd/core/logger"
	"github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/navgraph"
	"github.com/fleetcore/dispatchd/core/planner"
)

// ProposalPublisher carries a fleet's bid proposals to the dispatcher.
type ProposalPublisher interface {
	PublishProposal(model.BidProposal) error
}

// AckPublisher carries a fleet's dispatch-request acknowledgements to the
// dispatcher.
type AckPublisher interface {
	PublishAck(model.DispatchAck) error
}

// StatusPublisher carries task status reports from the fleet's execution
// layer up to the dispatcher. The robot execution layer itself is outside
// the dispatch core; Fleet only relays what it is told via ReportStatus.
type StatusPublisher interface {
	PublishStatus(model.TaskStatus) error
}

// AcceptPredicate lets a deployment reject profiles beyond the built-in
// type/payload validation, e.g. to restrict a fleet to a subset of task
// types.
type AcceptPredicate func(model.TaskProfile) bool

// Fleet is the per-fleet bidder and allocator described by
// spec.md §4.3/§4.4. All of its handler methods must run on the owning
// executor goroutine; only the Set* configuration methods are safe to
// call from elsewhere.
type Fleet struct {
	name        string
	graph       navgraph.Graph
	taskManager TaskManager
	estimator   cost.Estimator
	proposals   ProposalPublisher
	acks        AckPublisher
	status      StatusPublisher
	log         logger.Logger
	metrics     metrics.MetricsSink

	mu              sync.Mutex
	plan            planner.TaskPlanner
	acceptTasks     bool
	acceptPredicate AcceptPredicate

	generatedRequests     map[model.TaskId]planner.Request
	profiles              map[model.TaskId]model.TaskProfile
	assignments           map[model.TaskId][]planner.RobotQueue
	assignedRequests      map[model.TaskId]bool
	cancelledRequests     map[model.TaskId]bool
	currentAssignmentCost map[model.TaskId]float64
}

// New creates a Fleet named name. graph and taskManager are required;
// proposals, acks and status may be nil for tests that only exercise
// allocation logic. The fleet accepts tasks by default but has no planner
// until SetPlanner is called, so bid notices are ignored until one is set
// (per spec.md §4.3 step 4).
func New(name string, graph navgraph.Graph, taskManager TaskManager, proposals ProposalPublisher, acks AckPublisher, status StatusPublisher, log logger.Logger, sink metrics.MetricsSink) *Fleet {
	if log == nil {
		log = noopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Fleet{
		name:                  name,
		graph:                 graph,
		taskManager:           taskManager,
		estimator:             cost.NewUniformEstimator(),
		proposals:             proposals,
		acks:                  acks,
		status:                status,
		log:                   log,
		metrics:               sink,
		acceptTasks:           true,
		generatedRequests:     make(map[model.TaskId]planner.Request),
		profiles:              make(map[model.TaskId]model.TaskProfile),
		assignments:           make(map[model.TaskId][]planner.RobotQueue),
		assignedRequests:      make(map[model.TaskId]bool),
		cancelledRequests:     make(map[model.TaskId]bool),
		currentAssignmentCost: make(map[model.TaskId]float64),
	}
}

// Name returns the fleet's name, used to match dispatch requests addressed
// to it.
func (f *Fleet) Name() string { return f.name }

// SetPlanner installs the task planner used for allocation. Safe to call
// from outside the executor goroutine.
func (f *Fleet) SetPlanner(p planner.TaskPlanner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plan = p
}

// SetAcceptTasks toggles whether the fleet bids on new tasks at all.
func (f *Fleet) SetAcceptTasks(accept bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptTasks = accept
}

// SetAcceptPredicate installs an additional filter over incoming profiles.
// A nil predicate accepts everything.
func (f *Fleet) SetAcceptPredicate(pred AcceptPredicate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptPredicate = pred
}

// SetCostEstimator overrides the default uniform battery/duration model.
func (f *Fleet) SetCostEstimator(e cost.Estimator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e != nil {
		f.estimator = e
	}
}

func (f *Fleet) config() (planner.TaskPlanner, bool, AcceptPredicate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plan, f.acceptTasks, f.acceptPredicate
}

// HandleBidNotice runs the bid-notice pipeline of spec.md §4.3 steps 1-8.
func (f *Fleet) HandleBidNotice(notice model.BidNotice) {
	taskId := notice.Profile.TaskId
	if len(f.taskManager.RobotNames()) == 0 {
		return
	}
	if taskId == "" {
		f.log.Warnf("fleet %s: bid notice with empty task id", f.name)
		return
	}
	if _, ok := f.assignments[taskId]; ok {
		return
	}

	plan, acceptTasks, predicate := f.config()
	if !acceptTasks || plan == nil {
		return
	}
	if predicate != nil && !predicate(notice.Profile) {
		return
	}

	req, ok := f.buildRequest(notice.Profile)
	if !ok {
		return
	}

	f.generatedRequests[taskId] = req
	f.profiles[taskId] = notice.Profile

	queues, err := f.allocate(plan, notice.Profile.SubmissionTime, &req, nil)
	if err != nil {
		delete(f.generatedRequests, taskId)
		delete(f.profiles, taskId)
		f.recordPlanningFailure(taskId, err)
		return
	}

	robotName, entry, found := findEntry(queues, taskId)
	if !found {
		delete(f.generatedRequests, taskId)
		delete(f.profiles, taskId)
		return
	}

	prevCost := f.pendingCost(robotName)
	newCost := queueCost(queueFor(queues, robotName))
	f.assignments[taskId] = queues
	f.currentAssignmentCost[taskId] = newCost

	proposal := model.BidProposal{
		FleetName:  f.name,
		Profile:    notice.Profile,
		RobotName:  robotName,
		PrevCost:   prevCost,
		NewCost:    newCost,
		FinishTime: entry.ProjectedFinishState.Time,
	}
	if f.proposals != nil {
		if err := f.proposals.PublishProposal(proposal); err != nil {
			f.log.Warnf("fleet %s: publish proposal failed for %s: %v", f.name, taskId, err)
		}
	}
	if rec, ok := f.metrics.(metrics.ProposalRecorder); ok {
		_ = rec.RecordProposal(metrics.ProposalEvent{Proposal: proposal, Time: notice.Profile.SubmissionTime})
	}
}

// HandleDispatchRequest runs the ADD/CANCEL pipeline of spec.md §4.3,
// gated by fleet_name match.
func (f *Fleet) HandleDispatchRequest(req model.DispatchRequest) {
	if req.FleetName != f.name {
		return
	}
	switch req.Method {
	case model.DispatchAdd:
		f.handleAdd(req.Profile.TaskId)
	case model.DispatchCancel:
		f.handleCancel(req.Profile.TaskId)
	default:
		f.log.Warnf("fleet %s: unknown dispatch method for %s", f.name, req.Profile.TaskId)
		f.ack(req.Profile.TaskId, false)
	}
}

func (f *Fleet) handleAdd(taskId model.TaskId) {
	queues, ok := f.assignments[taskId]
	if !ok {
		f.log.Warnf("fleet %s: ADD for %s without a prior bid record", f.name, taskId)
		f.ack(taskId, false)
		return
	}
	if len(queues) != len(f.taskManager.RobotNames()) {
		f.log.Warnf("fleet %s: ADD for %s: robot count changed since bidding", f.name, taskId)
		f.ack(taskId, false)
		return
	}
	req, ok := f.generatedRequests[taskId]
	if !ok {
		f.log.Warnf("fleet %s: ADD for %s: generated request no longer exists", f.name, taskId)
		f.ack(taskId, false)
		return
	}

	if !f.isValid(queues) {
		plan, _, _ := f.config()
		if plan == nil {
			f.ack(taskId, false)
			return
		}
		replanned, err := f.allocate(plan, time.Now(), &req, nil)
		if err != nil {
			f.log.Warnf("fleet %s: ADD for %s: replan failed: %v", f.name, taskId, err)
			f.ack(taskId, false)
			return
		}
		queues = replanned
	}

	if err := f.pushQueues(queues); err != nil {
		f.log.Warnf("fleet %s: ADD for %s: pushing queues failed: %v", f.name, taskId, err)
		f.ack(taskId, false)
		return
	}

	if robotName, _, found := findEntry(queues, taskId); found {
		f.currentAssignmentCost[taskId] = queueCost(queueFor(queues, robotName))
	}
	f.assignments[taskId] = queues
	f.assignedRequests[taskId] = true
	f.ack(taskId, true)
}

func (f *Fleet) handleCancel(taskId model.TaskId) {
	if f.cancelledRequests[taskId] {
		f.ack(taskId, true)
		return
	}
	if !f.assignedRequests[taskId] {
		f.log.Warnf("fleet %s: CANCEL for %s: not an assigned request", f.name, taskId)
		f.ack(taskId, false)
		return
	}
	if f.taskManager.IsExecuted(taskId) {
		f.log.Warnf("fleet %s: CANCEL for %s: task already executing", f.name, taskId)
		f.ack(taskId, false)
		return
	}

	plan, _, _ := f.config()
	if plan == nil {
		f.ack(taskId, false)
		return
	}
	id := taskId
	queues, err := f.allocate(plan, time.Now(), nil, &id)
	if err != nil {
		f.log.Warnf("fleet %s: CANCEL for %s: replan failed: %v", f.name, taskId, err)
		f.ack(taskId, false)
		return
	}
	if err := f.pushQueues(queues); err != nil {
		f.log.Warnf("fleet %s: CANCEL for %s: pushing queues failed: %v", f.name, taskId, err)
		f.ack(taskId, false)
		return
	}

	f.assignments[taskId] = queues
	f.cancelledRequests[taskId] = true
	delete(f.assignedRequests, taskId)
	f.ack(taskId, true)
}

// ReportStatus relays a status report from the robot execution layer up to
// the dispatcher. It is a pass-through; Fleet keeps no state of its own
// derived from it.
func (f *Fleet) ReportStatus(status model.TaskStatus) {
	if f.status == nil {
		return
	}
	if err := f.status.PublishStatus(status); err != nil {
		f.log.Warnf("fleet %s: publish status failed for %s: %v", f.name, status.TaskId(), err)
	}
}

func (f *Fleet) ack(taskId model.TaskId, success bool) {
	if f.acks == nil {
		return
	}
	ack := model.DispatchAck{TaskId: taskId, FleetName: f.name, Success: success}
	if err := f.acks.PublishAck(ack); err != nil {
		f.log.Warnf("fleet %s: publish ack failed for %s: %v", f.name, taskId, err)
	}
	if rec, ok := f.metrics.(metrics.DispatchAckRecorder); ok {
		_ = rec.RecordDispatchAck(metrics.DispatchAckEvent{Ack: ack, Time: time.Now()})
	}
}

func (f *Fleet) recordPlanningFailure(taskId model.TaskId, err error) {
	rec, ok := f.metrics.(metrics.PlanningFailureRecorder)
	if !ok {
		return
	}
	kind := "unknown"
	var pe *planner.PlanningError
	if p, ok := err.(*planner.PlanningError); ok {
		pe = p
		kind = pe.Kind.String()
	}
	_ = rec.RecordPlanningFailure(metrics.PlanningFailureEvent{TaskId: taskId, FleetName: f.name, Kind: kind, Time: time.Now()})
}
