package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/fleetcore/dispatchd/core/executor"
	"github.com/fleetcore/dispatchd/core/model"
)

type fakeBroadcaster struct {
	mu      sync.Mutex
	notices []model.BidNotice
}

func (f *fakeBroadcaster) BroadcastBidNotice(n model.BidNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices)
}

func waitForDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auction did not complete in time")
	}
}

func TestAuctioneerPicksLowestNewCost(t *testing.T) {
	exec := executor.New()
	defer exec.Close()
	bc := &fakeBroadcaster{}
	a := New(exec, bc, nil)

	done := make(chan struct{})
	var winner *model.BidProposal
	a.OnComplete(func(id model.TaskId, w *model.BidProposal) {
		winner = w
		close(done)
	})

	notice := model.BidNotice{
		Profile:    model.TaskProfile{TaskId: "Clean0"},
		TimeWindow: 20 * time.Millisecond,
	}
	exec.Schedule(func() { a.StartBidding(notice) })
	time.Sleep(5 * time.Millisecond)
	exec.Schedule(func() {
		a.Propose(model.BidProposal{FleetName: "a", Profile: notice.Profile, NewCost: 10})
		a.Propose(model.BidProposal{FleetName: "b", Profile: notice.Profile, NewCost: 5})
	})

	waitForDone(t, done)
	if winner == nil || winner.FleetName != "b" {
		t.Fatalf("expected fleet b to win, got %+v", winner)
	}
	if bc.count() != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", bc.count())
	}
}

func TestAuctioneerNoBid(t *testing.T) {
	exec := executor.New()
	defer exec.Close()
	a := New(exec, &fakeBroadcaster{}, nil)

	done := make(chan struct{})
	var winner *model.BidProposal
	called := false
	a.OnComplete(func(id model.TaskId, w *model.BidProposal) {
		winner = w
		called = true
		close(done)
	})

	notice := model.BidNotice{Profile: model.TaskProfile{TaskId: "Delivery0"}, TimeWindow: 10 * time.Millisecond}
	exec.Schedule(func() { a.StartBidding(notice) })

	waitForDone(t, done)
	if !called {
		t.Fatal("completion handler never called")
	}
	if winner != nil {
		t.Fatalf("expected no winner, got %+v", winner)
	}
}

func TestAuctioneerDropsLateProposal(t *testing.T) {
	exec := executor.New()
	defer exec.Close()
	a := New(exec, &fakeBroadcaster{}, nil)

	firstDone := make(chan struct{})
	a.OnComplete(func(model.TaskId, *model.BidProposal) { close(firstDone) })

	notice := model.BidNotice{Profile: model.TaskProfile{TaskId: "Loop0"}, TimeWindow: 5 * time.Millisecond}
	exec.Schedule(func() { a.StartBidding(notice) })
	waitForDone(t, firstDone)

	// Proposal arrives after the window closed; it must be dropped rather
	// than panicking or corrupting the next auction.
	exec.Schedule(func() { a.Propose(model.BidProposal{FleetName: "late", Profile: notice.Profile}) })
	time.Sleep(10 * time.Millisecond)

	if a.Phase() != PhaseIdle {
		t.Fatalf("expected auctioneer to remain idle, got phase %v", a.Phase())
	}
}
