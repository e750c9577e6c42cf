package fleet

import (
	"sync"
	"testing"
	"time"

	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/navgraph"
	"github.com/fleetcore/dispatchd/core/planner"
)

// fakeTaskManager is an in-memory TaskManager double for unit tests. It
// keeps one FIFO-ish queue per robot and lets tests mark entries executed.
type fakeTaskManager struct {
	mu       sync.Mutex
	robots   []string
	queues   map[string][]planner.AssignmentEntry
	executed map[model.TaskId]bool
	finish   map[string]planner.FinishState
}

func newFakeTaskManager(robots ...string) *fakeTaskManager {
	tm := &fakeTaskManager{
		robots:   robots,
		queues:   make(map[string][]planner.AssignmentEntry),
		executed: make(map[model.TaskId]bool),
		finish:   make(map[string]planner.FinishState),
	}
	for _, r := range robots {
		tm.finish[r] = planner.FinishState{Waypoint: "home", BatteryPct: 90}
	}
	return tm
}

func (tm *fakeTaskManager) RobotNames() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]string, len(tm.robots))
	copy(out, tm.robots)
	return out
}

func (tm *fakeTaskManager) ExpectedFinishState(robotName string) planner.FinishState {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.finish[robotName]
}

func (tm *fakeTaskManager) PendingRequests(robotName string) []planner.Request {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	var out []planner.Request
	for _, e := range tm.queues[robotName] {
		if !tm.executed[e.Request.TaskId] {
			out = append(out, e.Request)
		}
	}
	return out
}

func (tm *fakeTaskManager) IsExecuted(taskId model.TaskId) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.executed[taskId]
}

func (tm *fakeTaskManager) SetQueue(robotName string, entries []planner.AssignmentEntry) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.queues[robotName] = entries
	return nil
}

func (tm *fakeTaskManager) CancelQueuedTask(robotName string, taskId model.TaskId) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	var kept []planner.AssignmentEntry
	for _, e := range tm.queues[robotName] {
		if e.Request.TaskId != taskId {
			kept = append(kept, e)
		}
	}
	tm.queues[robotName] = kept
	return nil
}

func (tm *fakeTaskManager) markExecuted(taskId model.TaskId) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.executed[taskId] = true
}

type fakeProposals struct {
	mu        sync.Mutex
	proposals []model.BidProposal
}

func (p *fakeProposals) PublishProposal(bp model.BidProposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals = append(p.proposals, bp)
	return nil
}

func (p *fakeProposals) last() (model.BidProposal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proposals) == 0 {
		return model.BidProposal{}, false
	}
	return p.proposals[len(p.proposals)-1], true
}

type fakeAcks struct {
	mu   sync.Mutex
	acks []model.DispatchAck
}

func (a *fakeAcks) PublishAck(ack model.DispatchAck) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, ack)
	return nil
}

func (a *fakeAcks) last() (model.DispatchAck, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.acks) == 0 {
		return model.DispatchAck{}, false
	}
	return a.acks[len(a.acks)-1], true
}

func newTestFleet(t *testing.T, robots ...string) (*Fleet, *fakeTaskManager, *fakeProposals, *fakeAcks) {
	t.Helper()
	graph := navgraph.NewMemoryGraph()
	graph.AddWaypoint(navgraph.Waypoint{Name: "A"})
	graph.AddWaypoint(navgraph.Waypoint{Name: "B"})
	graph.AddWaypoint(navgraph.Waypoint{Name: "dock"})
	graph.SetDockParams(navgraph.DockParams{
		StartWaypoint:  "A",
		Path:           []navgraph.Pose{{X: 0, Y: 0}, {X: 1, Y: 0}},
		FinishWaypoint: "dock",
	})

	tm := newFakeTaskManager(robots...)
	proposals := &fakeProposals{}
	acks := &fakeAcks{}

	f := New("fleet-a", graph, tm, proposals, acks, nil, nil, nil)
	f.SetPlanner(planner.NewGreedyPlanner())
	return f, tm, proposals, acks
}

func TestFleetBidsOnCleanTask(t *testing.T) {
	f, _, proposals, _ := newTestFleet(t, "r1")

	notice := model.BidNotice{
		Profile: model.TaskProfile{
			TaskId:         "Clean0",
			SubmissionTime: time.Now(),
			Description: model.TaskDescription{
				Type:  model.TaskClean,
				Clean: &model.CleanPayload{StartWaypoint: "A"},
			},
		},
		TimeWindow: 2 * time.Second,
	}
	f.HandleBidNotice(notice)

	p, ok := proposals.last()
	if !ok {
		t.Fatal("expected a proposal to be published")
	}
	if p.FleetName != "fleet-a" || p.RobotName != "r1" {
		t.Fatalf("unexpected proposal: %+v", p)
	}
}

func TestFleetIgnoresUnknownWaypoint(t *testing.T) {
	f, _, proposals, _ := newTestFleet(t, "r1")

	notice := model.BidNotice{
		Profile: model.TaskProfile{
			TaskId: "Clean1",
			Description: model.TaskDescription{
				Type:  model.TaskClean,
				Clean: &model.CleanPayload{StartWaypoint: "nowhere"},
			},
		},
		TimeWindow: 2 * time.Second,
	}
	f.HandleBidNotice(notice)

	if _, ok := proposals.last(); ok {
		t.Fatal("expected no proposal for an unknown waypoint")
	}
}

func TestFleetIgnoresWithNoRobots(t *testing.T) {
	f, _, proposals, _ := newTestFleet(t)

	notice := model.BidNotice{
		Profile: model.TaskProfile{
			TaskId: "Clean2",
			Description: model.TaskDescription{
				Type:  model.TaskClean,
				Clean: &model.CleanPayload{StartWaypoint: "A"},
			},
		},
		TimeWindow: time.Second,
	}
	f.HandleBidNotice(notice)

	if _, ok := proposals.last(); ok {
		t.Fatal("expected no proposal with zero robots registered")
	}
}

func TestFleetAddCommitsQueue(t *testing.T) {
	f, tm, _, acks := newTestFleet(t, "r1")

	notice := model.BidNotice{
		Profile: model.TaskProfile{
			TaskId: "Loop0",
			Description: model.TaskDescription{
				Type: model.TaskLoop,
				Loop: &model.LoopPayload{StartName: "A", FinishName: "B", NumLoops: 1},
			},
		},
		TimeWindow: time.Second,
	}
	f.HandleBidNotice(notice)

	f.HandleDispatchRequest(model.DispatchRequest{
		Profile:   notice.Profile,
		Method:    model.DispatchAdd,
		FleetName: "fleet-a",
	})

	ack, ok := acks.last()
	if !ok || !ack.Success {
		t.Fatalf("expected successful ack, got %+v ok=%v", ack, ok)
	}
	if len(tm.queues["r1"]) != 1 {
		t.Fatalf("expected the queue to be committed, got %v", tm.queues["r1"])
	}
}

func TestFleetAddWithoutBidRecordFails(t *testing.T) {
	f, _, _, acks := newTestFleet(t, "r1")

	f.HandleDispatchRequest(model.DispatchRequest{
		Profile:   model.TaskProfile{TaskId: "Ghost0"},
		Method:    model.DispatchAdd,
		FleetName: "fleet-a",
	})

	ack, ok := acks.last()
	if !ok || ack.Success {
		t.Fatalf("expected a failed ack, got %+v ok=%v", ack, ok)
	}
}

func TestFleetCancelAfterAddIsIdempotent(t *testing.T) {
	f, _, _, acks := newTestFleet(t, "r1")

	notice := model.BidNotice{
		Profile: model.TaskProfile{
			TaskId: "Loop1",
			Description: model.TaskDescription{
				Type: model.TaskLoop,
				Loop: &model.LoopPayload{StartName: "A", FinishName: "B", NumLoops: 1},
			},
		},
		TimeWindow: time.Second,
	}
	f.HandleBidNotice(notice)
	f.HandleDispatchRequest(model.DispatchRequest{Profile: notice.Profile, Method: model.DispatchAdd, FleetName: "fleet-a"})
	f.HandleDispatchRequest(model.DispatchRequest{Profile: notice.Profile, Method: model.DispatchCancel, FleetName: "fleet-a"})
	f.HandleDispatchRequest(model.DispatchRequest{Profile: notice.Profile, Method: model.DispatchCancel, FleetName: "fleet-a"})

	ack, ok := acks.last()
	if !ok || !ack.Success {
		t.Fatalf("expected idempotent cancel to ack success, got %+v ok=%v", ack, ok)
	}
}

func TestFleetCancelRefusedWhenExecuting(t *testing.T) {
	f, tm, _, acks := newTestFleet(t, "r1")

	notice := model.BidNotice{
		Profile: model.TaskProfile{
			TaskId: "Loop2",
			Description: model.TaskDescription{
				Type: model.TaskLoop,
				Loop: &model.LoopPayload{StartName: "A", FinishName: "B", NumLoops: 1},
			},
		},
		TimeWindow: time.Second,
	}
	f.HandleBidNotice(notice)
	f.HandleDispatchRequest(model.DispatchRequest{Profile: notice.Profile, Method: model.DispatchAdd, FleetName: "fleet-a"})

	tm.markExecuted("Loop2")
	f.HandleDispatchRequest(model.DispatchRequest{Profile: notice.Profile, Method: model.DispatchCancel, FleetName: "fleet-a"})

	ack, ok := acks.last()
	if !ok || ack.Success {
		t.Fatalf("expected cancel of an executing task to fail, got %+v ok=%v", ack, ok)
	}
}

func TestFleetDispatchRequestIgnoredForOtherFleet(t *testing.T) {
	f, _, _, acks := newTestFleet(t, "r1")

	f.HandleDispatchRequest(model.DispatchRequest{
		Profile:   model.TaskProfile{TaskId: "Loop3"},
		Method:    model.DispatchAdd,
		FleetName: "some-other-fleet",
	})

	if _, ok := acks.last(); ok {
		t.Fatal("expected no ack for a dispatch request addressed to another fleet")
	}
}
