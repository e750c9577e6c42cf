// Package dispatcher implements the root orchestrator described by
// spec.md §4.1: it mints task ids, feeds a single Auctioneer serially,
// routes auction outcomes and cancellations to fleets, and owns the
// active/terminal task tables.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetcore/dispatchd/core/auction"
	"github.com/fleetcore/dispatchd/core/events"
	"github.com/fleetcore/dispatchd/core/executor"
	"github.com/fleetcore/dispatchd/core/logger"
	"github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/internal/eventbus"
)

// ErrInvalidType is returned by Submit when the task's type tag is not
// one of the recognized TaskType values.
var ErrInvalidType = errors.New("dispatcher: task type is invalid")

// FleetRouter forwards a dispatch request to the fleet it names. The
// return value reports only whether the request was sent, not the
// fleet's eventual business decision: that arrives later, asynchronously,
// as a DispatchAck through ReceiveDispatchAck (spec.md §9 DESIGN NOTES,
// "action client holding a back-reference updated via explicit
// messages").
type FleetRouter interface {
	SendDispatchRequest(model.DispatchRequest) error
}

// ActiveTasksPublisher carries the periodic and on-terminate active-task
// snapshot (spec.md §5 "Periodic work", §6 "Ongoing-tasks topic").
type ActiveTasksPublisher interface {
	PublishActiveTasks([]model.TaskSummary) error
}

// Dispatcher is the serialized front door for task submission,
// cancellation, and lifecycle tracking. All of its operations, except the
// Set/On registration methods, must run on the owning Executor goroutine.
type Dispatcher struct {
	exec            *executor.Executor
	log             logger.Logger
	metrics         metrics.MetricsSink
	auctioneer      *auction.Auctioneer
	router          FleetRouter
	activePublisher ActiveTasksPublisher
	bus             eventbus.EventBus

	biddingWindow time.Duration
	terminatedMax int
	publishPeriod time.Duration

	mu       sync.Mutex
	onChange func(model.TaskStatus)

	counter       int
	active        map[model.TaskId]model.TaskStatus
	terminal      map[model.TaskId]model.TaskStatus
	userSubmitted map[model.TaskId]bool
	cancelling    map[model.TaskId]bool
	biddingQueue  []model.TaskProfile
}

// Config carries the §6 dispatcher parameters.
type Config struct {
	BiddingTimeWindow        time.Duration `json:"bidding_time_window"`
	TerminatedTasksMaxSize   int           `json:"terminated_tasks_max_size"`
	PublishActiveTasksPeriod time.Duration `json:"publish_active_tasks_period"`
}

// DefaultConfig returns the §6 default parameter values.
func DefaultConfig() Config {
	return Config{
		BiddingTimeWindow:        2 * time.Second,
		TerminatedTasksMaxSize:   100,
		PublishActiveTasksPeriod: 2 * time.Second,
	}
}

// New creates a Dispatcher. exec is shared with the Auctioneer it drives;
// both must be scheduled onto the same executor so auction and dispatcher
// state transitions stay serialized relative to each other.
func New(exec *executor.Executor, broadcast auction.Broadcaster, router FleetRouter, activePublisher ActiveTasksPublisher, log logger.Logger, sink metrics.MetricsSink, cfg Config) *Dispatcher {
	if log == nil {
		log = noopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if cfg.TerminatedTasksMaxSize <= 0 {
		cfg.TerminatedTasksMaxSize = DefaultConfig().TerminatedTasksMaxSize
	}
	if cfg.BiddingTimeWindow <= 0 {
		cfg.BiddingTimeWindow = DefaultConfig().BiddingTimeWindow
	}

	d := &Dispatcher{
		exec:            exec,
		log:             log,
		metrics:         sink,
		auctioneer:      auction.New(exec, broadcast, log),
		router:          router,
		activePublisher: activePublisher,
		biddingWindow:   cfg.BiddingTimeWindow,
		terminatedMax:   cfg.TerminatedTasksMaxSize,
		publishPeriod:   cfg.PublishActiveTasksPeriod,
		active:          make(map[model.TaskId]model.TaskStatus),
		terminal:        make(map[model.TaskId]model.TaskStatus),
		userSubmitted:   make(map[model.TaskId]bool),
		cancelling:      make(map[model.TaskId]bool),
	}
	d.auctioneer.OnComplete(d.ReceiveBiddingWinner)
	return d
}

// Start registers the periodic active-tasks publisher. Safe to call once,
// before or after the dispatcher starts receiving submissions.
func (d *Dispatcher) Start() {
	d.schedulePublish()
}

func (d *Dispatcher) schedulePublish() {
	if d.publishPeriod <= 0 {
		return
	}
	d.exec.ScheduleAfter(d.publishPeriod, func() {
		d.publishActiveTasks()
		d.schedulePublish()
	})
}

// SetEvaluator installs the Auctioneer's winner-selection policy.
func (d *Dispatcher) SetEvaluator(eval auction.Evaluator) {
	d.auctioneer.SetEvaluator(eval)
}

// SetEventBus installs an event bus every lifecycle transition is
// published to, for consumers such as an audit-log subscriber. A nil bus
// (the default) disables publishing entirely.
func (d *Dispatcher) SetEventBus(bus eventbus.EventBus) {
	d.bus = bus
}

func (d *Dispatcher) publish(e eventbus.Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}

// OnChange registers the single observer invoked on every task state
// change. Re-entrant calls into Submit/Cancel from within the callback
// are undefined behavior (spec.md §5).
func (d *Dispatcher) OnChange(fn func(model.TaskStatus)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

func (d *Dispatcher) notify(status model.TaskStatus) {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn(status)
	}
	d.publish(events.StateChangeEvent{Status: status})
}

// Submit validates and admits a task description, returning its minted id.
func (d *Dispatcher) Submit(desc model.TaskDescription) (model.TaskId, error) {
	if !desc.Type.Valid() {
		return "", ErrInvalidType
	}

	id := model.TaskId(fmt.Sprintf("%s%d", desc.Type.String(), d.counter))
	d.counter++

	profile := model.TaskProfile{TaskId: id, SubmissionTime: time.Now(), Description: desc}
	status := model.TaskStatus{Profile: profile, State: model.StatePending}
	d.active[id] = status
	d.userSubmitted[id] = true
	d.notify(status)
	d.publish(events.SubmittedEvent{Profile: profile})

	d.biddingQueue = append(d.biddingQueue, profile)
	if len(d.biddingQueue) == 1 {
		d.startNextAuction()
	}
	return id, nil
}

func (d *Dispatcher) startNextAuction() {
	if len(d.biddingQueue) == 0 {
		return
	}
	head := d.biddingQueue[0]
	d.publish(events.AuctionEvent{TaskId: head.TaskId, Action: "opened", Time: time.Now()})
	d.auctioneer.StartBidding(model.BidNotice{Profile: head, TimeWindow: d.biddingWindow})
}

func (d *Dispatcher) advanceQueue(taskId model.TaskId) {
	if len(d.biddingQueue) > 0 && d.biddingQueue[0].TaskId == taskId {
		d.biddingQueue = d.biddingQueue[1:]
	}
	if len(d.biddingQueue) > 0 {
		d.startNextAuction()
	}
}

// ReceiveProposal forwards a fleet's bid proposal to the Auctioneer. The
// Auctioneer itself drops it silently if it arrives outside the task's
// collection window (spec.md §4.2).
func (d *Dispatcher) ReceiveProposal(p model.BidProposal) {
	d.auctioneer.Propose(p)
	if rec, ok := d.metrics.(metrics.ProposalRecorder); ok {
		_ = rec.RecordProposal(metrics.ProposalEvent{Proposal: p, Time: time.Now()})
	}
	d.publish(events.ProposalEvent{Proposal: p})
}

// ReceiveBiddingWinner is the Auctioneer completion handler (spec.md
// §4.1 "Auction completion handler").
func (d *Dispatcher) ReceiveBiddingWinner(taskId model.TaskId, winner *model.BidProposal) {
	status, ok := d.active[taskId]
	if !ok {
		// Cancelled concurrently; still advance so the next queued task
		// gets its auction.
		d.advanceQueue(taskId)
		return
	}

	d.publish(events.AuctionEvent{TaskId: taskId, Action: "closed", Time: time.Now()})

	if winner == nil {
		if rec, ok := d.metrics.(metrics.AuctionRecorder); ok {
			_ = rec.RecordAuction(metrics.AuctionEvent{TaskId: taskId, Won: false, Duration: d.biddingWindow, Time: time.Now()})
		}
		status.State = model.StateFailed
		status.FailReason = "no fleet bid on this task"
		d.terminate(status)
		d.advanceQueue(taskId)
		return
	}

	if rec, ok := d.metrics.(metrics.AuctionRecorder); ok {
		_ = rec.RecordAuction(metrics.AuctionEvent{TaskId: taskId, Won: true, Duration: d.biddingWindow, Time: time.Now()})
	}

	status.FleetName = winner.FleetName
	status.RobotName = winner.RobotName
	status.State = model.StateQueued
	d.active[taskId] = status
	d.notify(status)

	d.sweepSelfGenerated(status.FleetName, taskId)

	if d.router != nil {
		corrID := uuid.New().String()
		req := model.DispatchRequest{Profile: status.Profile, Method: model.DispatchAdd, FleetName: status.FleetName}
		d.log.Debugw("dispatcher: sending ADD dispatch request", map[string]any{
			"correlation_id": corrID,
			"task_id":        string(taskId),
			"fleet_name":     status.FleetName,
		})
		if err := d.router.SendDispatchRequest(req); err != nil {
			d.log.Warnf("dispatcher: forwarding award for %s failed: %v", taskId, err)
		}
	}

	d.advanceQueue(taskId)
}

// Cancel implements spec.md §4.1's five-case cancel resolution.
func (d *Dispatcher) Cancel(taskId model.TaskId) bool {
	status, ok := d.active[taskId]
	if !ok {
		return false
	}

	if status.State == model.StatePending {
		status.State = model.StateCanceled
		d.terminate(status)
		// A pending task may still be sitting at the head of the bidding
		// queue; drop it so its auction never starts.
		d.removeFromBiddingQueue(taskId)
		return true
	}

	if !d.userSubmitted[taskId] {
		return false
	}

	if status.State != model.StateQueued {
		return false
	}

	d.sweepSelfGenerated(status.FleetName, taskId)

	if d.router == nil {
		return false
	}
	corrID := uuid.New().String()
	req := model.DispatchRequest{Profile: status.Profile, Method: model.DispatchCancel, FleetName: status.FleetName}
	d.log.Debugw("dispatcher: sending CANCEL dispatch request", map[string]any{
		"correlation_id": corrID,
		"task_id":        string(taskId),
		"fleet_name":     status.FleetName,
	})
	if err := d.router.SendDispatchRequest(req); err != nil {
		d.log.Warnf("dispatcher: forwarding cancel for %s failed: %v", taskId, err)
		return false
	}
	d.cancelling[taskId] = true
	return true
}

// removeFromBiddingQueue drops a cancelled pending task from the queue.
// If it was the head, its auction is already Collecting (every head gets
// its auction started the moment it becomes head); that auction is left
// to run its course and its eventual completion callback will find the
// task no longer active and advance the queue itself. Starting a second
// auction here would violate the Auctioneer's single-Collecting
// invariant.
func (d *Dispatcher) removeFromBiddingQueue(taskId model.TaskId) {
	for i, p := range d.biddingQueue {
		if p.TaskId != taskId {
			continue
		}
		d.biddingQueue = append(d.biddingQueue[:i], d.biddingQueue[i+1:]...)
		return
	}
}

// ReceiveDispatchAck processes a fleet's response to a dispatch request.
// Whether it was an ADD or a CANCEL is disambiguated by whether this task
// id has an outstanding cancel (model.DispatchAck carries no method).
func (d *Dispatcher) ReceiveDispatchAck(ack model.DispatchAck) {
	d.publish(events.AckEvent{Ack: ack})

	status, ok := d.active[ack.TaskId]
	if !ok {
		return
	}

	if d.cancelling[ack.TaskId] {
		delete(d.cancelling, ack.TaskId)
		if ack.Success {
			status.State = model.StateCanceled
			d.terminate(status)
		}
		return
	}

	if !ack.Success {
		status.State = model.StateFailed
		status.FailReason = "fleet rejected dispatch request"
		d.terminate(status)
	}
}

// ReceiveStatus is the task_status_cb described by spec.md §4.1: known
// ids are updated in place; unknown ids are admitted to the active table
// as-is.
func (d *Dispatcher) ReceiveStatus(status model.TaskStatus) {
	id := status.TaskId()

	if _, inTerminal := d.terminal[id]; inTerminal {
		return
	}

	existing, known := d.active[id]
	if !known {
		d.active[id] = status
		d.notify(status)
	} else {
		existing.State = status.State
		existing.RobotName = status.RobotName
		existing.FailReason = status.FailReason
		if status.FleetName != "" {
			existing.FleetName = status.FleetName
		}
		d.active[id] = existing
		d.notify(existing)
		status = existing
	}

	// Covers fleets that begin executing before formally acknowledging
	// the award: the queue head advances on the first status report for
	// it, not only on the auction completion callback.
	if len(d.biddingQueue) > 0 && d.biddingQueue[0].TaskId == id {
		d.advanceQueue(id)
	}

	if status.State.Terminal() {
		d.terminate(status)
	}
}

// terminate moves a terminal TaskStatus from the active to the terminal
// table, evicting the oldest entry by submission time if at capacity.
func (d *Dispatcher) terminate(status model.TaskStatus) {
	if !status.State.Terminal() {
		panic("dispatcher: terminate called with a non-terminal status")
	}
	id := status.TaskId()

	d.publishActiveTasks()

	if len(d.terminal) >= d.terminatedMax {
		d.evictOldest()
	}
	d.terminal[id] = status
	delete(d.active, id)
	delete(d.userSubmitted, id)
	delete(d.cancelling, id)
	d.notify(status)

	if rec, ok := d.metrics.(metrics.QueueDepthRecorder); ok {
		_ = rec.RecordQueueDepth(len(d.active), len(d.terminal))
	}
	_ = d.metrics.RecordTaskEvent(metrics.TaskEvent{
		TaskId:    id,
		TaskType:  status.Profile.Description.Type,
		FleetName: status.FleetName,
		State:     status.State,
		Time:      time.Now(),
	})
}

func (d *Dispatcher) evictOldest() {
	var oldestId model.TaskId
	var oldestTime time.Time
	first := true
	for id, s := range d.terminal {
		if first || s.Profile.SubmissionTime.Before(oldestTime) {
			oldestId = id
			oldestTime = s.Profile.SubmissionTime
			first = false
		}
	}
	if !first {
		delete(d.terminal, oldestId)
	}
}

// sweepSelfGenerated implements spec.md §4.5: every active task
// attributed to fleetName that is not in the user-submitted set is
// cancelled and terminated, except excludeId (the task about to receive
// the new assignment).
func (d *Dispatcher) sweepSelfGenerated(fleetName string, excludeId model.TaskId) {
	for id, status := range d.active {
		if id == excludeId || status.FleetName != fleetName || d.userSubmitted[id] {
			continue
		}
		status.State = model.StateCanceled
		status.FailReason = "superseded by new fleet assignment"
		d.terminate(status)
	}
}

// State looks up a task's lifecycle state in the active table, then the
// terminal table.
func (d *Dispatcher) State(taskId model.TaskId) (model.State, bool) {
	if s, ok := d.active[taskId]; ok {
		return s.State, true
	}
	if s, ok := d.terminal[taskId]; ok {
		return s.State, true
	}
	return model.StatePending, false
}

// ActiveTasks returns a read-only snapshot of the active table.
func (d *Dispatcher) ActiveTasks() []model.TaskSummary {
	out := make([]model.TaskSummary, 0, len(d.active))
	for _, s := range d.active {
		out = append(out, model.Summarize(s))
	}
	return out
}

// TerminatedTasks returns a read-only snapshot of the terminal table.
func (d *Dispatcher) TerminatedTasks() []model.TaskSummary {
	out := make([]model.TaskSummary, 0, len(d.terminal))
	for _, s := range d.terminal {
		out = append(out, model.Summarize(s))
	}
	return out
}

func (d *Dispatcher) publishActiveTasks() {
	if d.activePublisher == nil {
		return
	}
	if err := d.activePublisher.PublishActiveTasks(d.ActiveTasks()); err != nil {
		d.log.Warnf("dispatcher: publish active tasks failed: %v", err)
	}
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any)         {}
func (noopLogger) Debugw(string, map[string]any) {}
func (noopLogger) Infof(string, ...any)          {}
func (noopLogger) Warnf(string, ...any)          {}
func (noopLogger) Errorf(string, ...any)         {}
