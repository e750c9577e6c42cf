// Package auction implements the Auctioneer: it runs one time-bounded
// bidding window at a time, collects proposals from fleets, picks a
// winner with an injectable evaluator, and reports the outcome through a
// completion callback.
package auction

import (
	"sync"
	"time"

	"github.com/fleetcore/dispatchd/core/executor"
	"github.com/fleetcore/dispatchd/core/logger"
	"github.com/fleetcore/dispatchd/core/model"
)

// Phase is the Auctioneer's per-auction state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCollecting
	PhaseEvaluating
)

// Broadcaster publishes a bid notice to participating fleets.
type Broadcaster interface {
	BroadcastBidNotice(model.BidNotice) error
}

// Evaluator picks a winner among collected proposals for a task, or
// reports no winner by returning ok=false.
type Evaluator func(proposals []model.BidProposal) (winner model.BidProposal, ok bool)

// CompletionHandler is invoked once per auction with either the winning
// proposal or nil.
type CompletionHandler func(taskId model.TaskId, winner *model.BidProposal)

// LowestNewCost is the default Evaluator: it picks the proposal with the
// lowest absolute new cost.
func LowestNewCost(proposals []model.BidProposal) (model.BidProposal, bool) {
	if len(proposals) == 0 {
		return model.BidProposal{}, false
	}
	best := proposals[0]
	for _, p := range proposals[1:] {
		if p.NewCost < best.NewCost {
			best = p
		}
	}
	return best, true
}

// LowestMarginalCost picks the proposal with the lowest (new_cost -
// prev_cost) margin, favoring the fleet for which the task is cheapest to
// add.
func LowestMarginalCost(proposals []model.BidProposal) (model.BidProposal, bool) {
	if len(proposals) == 0 {
		return model.BidProposal{}, false
	}
	best := proposals[0]
	bestMargin := best.NewCost - best.PrevCost
	for _, p := range proposals[1:] {
		margin := p.NewCost - p.PrevCost
		if margin < bestMargin {
			best = p
			bestMargin = margin
		}
	}
	return best, true
}

// Auctioneer runs one auction at a time across a set of fleets.
type Auctioneer struct {
	exec      *executor.Executor
	log       logger.Logger
	broadcast Broadcaster
	onDone    CompletionHandler

	mu        sync.Mutex
	evaluator Evaluator

	phase     Phase
	taskId    model.TaskId
	proposals []model.BidProposal
	timer     *time.Timer
}

// New creates an Auctioneer. broadcast is used to fan the bid notice out
// to fleets; exec is the single-goroutine scheduler all auction state
// transitions run on.
func New(exec *executor.Executor, broadcast Broadcaster, log logger.Logger) *Auctioneer {
	if log == nil {
		log = noopLogger{}
	}
	return &Auctioneer{
		exec:      exec,
		log:       log,
		broadcast: broadcast,
		evaluator: LowestNewCost,
		phase:     PhaseIdle,
	}
}

// SetEvaluator installs the policy used to pick a winner among collected
// proposals. Safe to call at any time; it is guarded by a mutex since it
// may be called from outside the executor goroutine.
func (a *Auctioneer) SetEvaluator(eval Evaluator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if eval != nil {
		a.evaluator = eval
	}
}

// OnComplete registers the callback invoked when an auction closes.
func (a *Auctioneer) OnComplete(fn CompletionHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDone = fn
}

// StartBidding opens a bidding window for notice. It must be called on the
// executor goroutine (core/dispatcher serializes this). Only one auction
// may be non-Idle at a time; callers are responsible for queuing further
// notices until the completion handler fires.
func (a *Auctioneer) StartBidding(notice model.BidNotice) {
	if a.phase != PhaseIdle {
		a.log.Errorf("auction: start_bidding called while phase=%v (task=%s)", a.phase, notice.Profile.TaskId)
		return
	}
	a.phase = PhaseCollecting
	a.taskId = notice.Profile.TaskId
	a.proposals = nil

	if a.broadcast != nil {
		if err := a.broadcast.BroadcastBidNotice(notice); err != nil {
			a.log.Warnf("auction: broadcast failed for %s: %v", notice.Profile.TaskId, err)
		}
	}

	window := notice.TimeWindow
	a.timer = a.exec.ScheduleAfter(window, func() { a.evaluate() })
}

// Propose records a fleet's bid proposal. Proposals for a task other than
// the one currently under auction, or received after the window has
// closed, are dropped silently (late proposals are not an error per
// spec.md §4.2).
func (a *Auctioneer) Propose(p model.BidProposal) {
	if a.phase != PhaseCollecting || p.Profile.TaskId != a.taskId {
		a.log.Debugf("auction: dropping late or stray proposal for %s from %s", p.Profile.TaskId, p.FleetName)
		return
	}
	a.proposals = append(a.proposals, p)
}

// Phase reports the current auction phase.
func (a *Auctioneer) Phase() Phase {
	return a.phase
}

func (a *Auctioneer) evaluate() {
	a.phase = PhaseEvaluating

	a.mu.Lock()
	eval := a.evaluator
	onDone := a.onDone
	a.mu.Unlock()

	taskId := a.taskId
	var winnerPtr *model.BidProposal
	if winner, ok := eval(a.proposals); ok {
		w := winner
		winnerPtr = &w
	}

	a.phase = PhaseIdle
	a.taskId = ""
	a.proposals = nil

	if onDone != nil {
		onDone(taskId, winnerPtr)
	}
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any)         {}
func (noopLogger) Debugw(string, map[string]any) {}
func (noopLogger) Infof(string, ...any)          {}
func (noopLogger) Warnf(string, ...any)          {}
func (noopLogger) Errorf(string, ...any)         {}
