package scenarios

import (
	"fmt"
	"testing"
	"time"

	"github.com/fleetcore/dispatchd/core/dispatcher"
	"github.com/fleetcore/dispatchd/core/executor"
	corefleet "github.com/fleetcore/dispatchd/core/fleet"
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/navgraph"
	"github.com/fleetcore/dispatchd/core/planner"
	"github.com/fleetcore/dispatchd/infra/logger"
	"github.com/fleetcore/dispatchd/infra/mqtt"
)

const defaultBiddingWindow = 20 * time.Millisecond

// fleetNode pairs a Fleet with the executor it must be driven on and the
// in-process transport standing in for its MQTT link to the dispatcher.
type fleetNode struct {
	name      string
	fleet     *corefleet.Fleet
	exec      *executor.Executor
	transport *mqtt.MemoryTransport
}

// harness wires a Dispatcher and zero or more fleets together using
// mqtt.MemoryTransport doubles in place of a live broker, mirroring how
// app.Service and app.FleetService hand MQTT callbacks to their executors.
type harness struct {
	t      *testing.T
	d      *dispatcher.Dispatcher
	exec   *executor.Executor
	fleets map[string]*fleetNode
	ids    []model.TaskId
	window time.Duration
}

// fleetBroadcaster fans a bid notice out to every registered fleet's
// transport.
type fleetBroadcaster struct {
	fleets map[string]*fleetNode
}

func (b *fleetBroadcaster) BroadcastBidNotice(n model.BidNotice) error {
	for _, fn := range b.fleets {
		if err := fn.transport.BroadcastBidNotice(n); err != nil {
			return err
		}
	}
	return nil
}

// fleetRouter forwards a dispatch request to the transport of the fleet it
// names.
type fleetRouter struct {
	fleets map[string]*fleetNode
}

func (r *fleetRouter) SendDispatchRequest(req model.DispatchRequest) error {
	fn, ok := r.fleets[req.FleetName]
	if !ok {
		return fmt.Errorf("scenario: unknown fleet %q", req.FleetName)
	}
	return fn.transport.SendDispatchRequest(req)
}

func runOn(t *testing.T, exec *executor.Executor, fn func()) {
	t.Helper()
	done := make(chan struct{})
	exec.Schedule(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not complete on executor in time")
	}
}

// RunScenario builds the dispatcher and fleet topology sc describes, runs
// its steps in order, and checks its final expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()

	window := defaultBiddingWindow
	if sc.BiddingWindowMS > 0 {
		window = time.Duration(sc.BiddingWindowMS) * time.Millisecond
	}
	terminatedMax := sc.TerminatedMax
	if terminatedMax == 0 {
		terminatedMax = dispatcher.DefaultConfig().TerminatedTasksMaxSize
	}

	dexec := executor.New()
	defer dexec.Close()

	fleets := make(map[string]*fleetNode)
	router := &fleetRouter{fleets: fleets}
	broadcaster := &fleetBroadcaster{fleets: fleets}

	dispatcherSide := mqtt.NewMemoryTransport()

	var d *dispatcher.Dispatcher
	dispatcherSide.OnProposal = func(p model.BidProposal) { dexec.Schedule(func() { d.ReceiveProposal(p) }) }
	dispatcherSide.OnAck = func(a model.DispatchAck) { dexec.Schedule(func() { d.ReceiveDispatchAck(a) }) }
	dispatcherSide.OnStatus = func(s model.TaskStatus) { dexec.Schedule(func() { d.ReceiveStatus(s) }) }

	d = dispatcher.New(dexec, broadcaster, router, nil, logger.NopLogger{}, nil, dispatcher.Config{
		BiddingTimeWindow:      window,
		TerminatedTasksMaxSize: terminatedMax,
	})

	for _, fd := range sc.Fleets {
		graph := navgraph.NewMemoryGraph()
		for _, w := range fd.Waypoints {
			graph.AddWaypoint(navgraph.Waypoint{Name: w.Name})
		}
		for _, dk := range fd.Docks {
			n := dk.PathLength
			if n == 0 {
				n = 1
			}
			path := make([]navgraph.Pose, n)
			graph.SetDockParams(navgraph.DockParams{
				StartWaypoint:  dk.StartWaypoint,
				FinishWaypoint: dk.FinishWaypoint,
				Path:           path,
			})
		}

		tm := corefleet.NewMemoryTaskManager(planner.FinishState{Waypoint: "home", BatteryPct: 100}, fd.Robots...)
		fexec := executor.New()
		defer fexec.Close()

		fleetSide := mqtt.NewMemoryTransport()

		f := corefleet.New(fd.Name, graph, tm, dispatcherSide, dispatcherSide, dispatcherSide, logger.NopLogger{}, nil)
		f.SetPlanner(planner.NewGreedyPlanner())

		fleetSide.OnBidNotice = func(n model.BidNotice) { fexec.Schedule(func() { f.HandleBidNotice(n) }) }
		fleetSide.OnDispatchRequest = func(r model.DispatchRequest) { fexec.Schedule(func() { f.HandleDispatchRequest(r) }) }

		fleets[fd.Name] = &fleetNode{name: fd.Name, fleet: f, exec: fexec, transport: fleetSide}
	}

	h := &harness{t: t, d: d, exec: dexec, fleets: fleets, window: window}

	for i, step := range sc.Steps {
		h.runStep(i, step)
	}

	h.checkExpect(sc.Expect)
}

func (h *harness) runStep(i int, step Step) {
	t := h.t
	switch {
	case step.Submit != nil:
		desc := buildDescription(*step.Submit)
		var id model.TaskId
		var err error
		runOn(t, h.exec, func() { id, err = h.d.Submit(desc) })
		if step.ExpectError {
			if err == nil {
				t.Fatalf("step %d: expected submit to fail", i)
			}
		} else {
			if err != nil {
				t.Fatalf("step %d: submit failed: %v", i, err)
			}
			if step.ExpectTaskID != "" && string(id) != step.ExpectTaskID {
				t.Fatalf("step %d: expected task id %s, got %s", i, step.ExpectTaskID, id)
			}
		}
		h.ids = append(h.ids, id)

	case step.Cancel != nil:
		id := h.idAt(t, i, step.Cancel.TaskIndex)
		var ok bool
		runOn(t, h.exec, func() { ok = h.d.Cancel(id) })
		if step.ExpectCancelled != nil && ok != *step.ExpectCancelled {
			t.Fatalf("step %d: expected cancel result %v, got %v", i, *step.ExpectCancelled, ok)
		}

	case step.ReportStatus != nil:
		rs := step.ReportStatus
		id := h.idAt(t, i, rs.TaskIndex)
		state, ok := parseState(rs.State)
		if !ok {
			t.Fatalf("step %d: unknown state %q", i, rs.State)
		}
		fn, ok := h.fleets[rs.Fleet]
		if !ok {
			t.Fatalf("step %d: unknown fleet %q", i, rs.Fleet)
		}
		status := model.TaskStatus{
			Profile:    model.TaskProfile{TaskId: id},
			FleetName:  rs.Fleet,
			State:      state,
			RobotName:  rs.RobotName,
			FailReason: rs.FailReason,
		}
		runOn(t, fn.exec, func() { fn.fleet.ReportStatus(status) })

	case step.WaitAuction:
		time.Sleep(3 * h.window)

	case step.WaitMS > 0:
		time.Sleep(time.Duration(step.WaitMS) * time.Millisecond)
	}

	// Let any cross-executor scheduling this step triggered settle before
	// the next step runs.
	time.Sleep(5 * time.Millisecond)
}

func (h *harness) idAt(t *testing.T, step, index int) model.TaskId {
	t.Helper()
	if index < 0 || index >= len(h.ids) {
		t.Fatalf("step %d: task index %d out of range (%d submitted)", step, index, len(h.ids))
	}
	return h.ids[index]
}

func (h *harness) checkExpect(e Expect) {
	t := h.t

	var active []model.TaskSummary
	var terminal []model.TaskSummary
	runOn(t, h.exec, func() {
		active = h.d.ActiveTasks()
		terminal = h.d.TerminatedTasks()
	})

	if e.ActiveCount != nil && len(active) != *e.ActiveCount {
		t.Fatalf("expected %d active tasks, got %d: %+v", *e.ActiveCount, len(active), active)
	}

	byID := make(map[model.TaskId]model.TaskSummary, len(terminal))
	for _, s := range terminal {
		byID[s.TaskId] = s
	}

	for _, exp := range e.Terminal {
		id := h.idAt(t, -1, exp.TaskIndex)
		state, ok := parseState(exp.State)
		if !ok {
			t.Fatalf("unknown expected state %q", exp.State)
		}
		sum, found := byID[id]
		if !found {
			t.Fatalf("expected task %s to be terminal, was not found", id)
		}
		if sum.State != state {
			t.Fatalf("expected task %s to be %s, got %s", id, state, sum.State)
		}
	}

	for _, idx := range e.TerminalPresent {
		id := h.idAt(t, -1, idx)
		if _, found := byID[id]; !found {
			t.Fatalf("expected task %s to remain in the terminal table", id)
		}
	}
	for _, idx := range e.TerminalAbsent {
		id := h.idAt(t, -1, idx)
		if _, found := byID[id]; found {
			t.Fatalf("expected task %s to have been evicted from the terminal table", id)
		}
	}
}

func buildDescription(s SubmitSpec) model.TaskDescription {
	priority := model.PriorityLow
	if s.Priority == "high" {
		priority = model.PriorityHigh
	}
	desc := model.TaskDescription{Priority: priority}
	switch s.TaskType {
	case "clean":
		desc.Type = model.TaskClean
		if s.Clean != nil {
			desc.Clean = &model.CleanPayload{StartWaypoint: s.Clean.StartWaypoint}
		}
	case "delivery":
		desc.Type = model.TaskDelivery
		if s.Delivery != nil {
			desc.Delivery = &model.DeliveryPayload{
				PickupPlace:     s.Delivery.PickupPlace,
				PickupDispenser: s.Delivery.PickupDispenser,
				DropoffPlace:    s.Delivery.DropoffPlace,
				DropoffIngestor: s.Delivery.DropoffIngestor,
			}
		}
	case "loop":
		desc.Type = model.TaskLoop
		if s.Loop != nil {
			desc.Loop = &model.LoopPayload{
				StartName:  s.Loop.StartName,
				FinishName: s.Loop.FinishName,
				NumLoops:   s.Loop.NumLoops,
			}
		}
	default:
		desc.Type = model.TaskType(99)
	}
	return desc
}

func parseState(s string) (model.State, bool) {
	switch s {
	case "pending":
		return model.StatePending, true
	case "queued":
		return model.StateQueued, true
	case "executing":
		return model.StateExecuting, true
	case "completed":
		return model.StateCompleted, true
	case "failed":
		return model.StateFailed, true
	case "canceled":
		return model.StateCanceled, true
	default:
		return model.StatePending, false
	}
}
