package planner

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// GreedyPlanner assigns requests to robots with a weighted-greedy scoring
// loop, the same shape as the teacher's SmartDispatcher weighted-greedy
// power allocator: each candidate robot is scored from battery slack and
// current queue load, and requests are handed to the best-scoring
// feasible robot one at a time until all requests are placed or planning
// fails.
type GreedyPlanner struct {
	BatteryWeight float64
	QueueWeight   float64
	PriorityBonus float64
	MinBatteryPct float64
}

// NewGreedyPlanner returns a GreedyPlanner with sensible default weights.
func NewGreedyPlanner() *GreedyPlanner {
	return &GreedyPlanner{
		BatteryWeight: 1.0,
		QueueWeight:   0.3,
		PriorityBonus: 0.2,
		MinBatteryPct: 0.1,
	}
}

type robotSim struct {
	state    RobotState
	queueLen int
	entries  []AssignmentEntry
}

// fleetBatteryStats returns the mean and standard deviation of battery
// percentage across the fleet, used to normalize battery slack so robots
// are scored relative to their peers rather than on an absolute scale.
func fleetBatteryStats(sims []robotSim) (mean, stddev float64) {
	levels := make([]float64, len(sims))
	for i, s := range sims {
		levels[i] = s.state.Finish.BatteryPct
	}
	mean = stat.Mean(levels, nil)
	stddev = stat.StdDev(levels, nil)
	return mean, stddev
}

func (p *GreedyPlanner) score(r robotSim, req Request, fleetMean, fleetStdDev float64) float64 {
	slack := r.state.Finish.BatteryPct - req.BatteryDrain - p.MinBatteryPct
	score := slack * p.BatteryWeight
	if fleetStdDev > 0 {
		score += ((r.state.Finish.BatteryPct - fleetMean) / fleetStdDev) * p.BatteryWeight * 0.1
	}
	score -= float64(r.queueLen) * p.QueueWeight
	if req.High {
		score += p.PriorityBonus
	}
	return score
}

// Plan implements TaskPlanner.
func (p *GreedyPlanner) Plan(now time.Time, states []RobotState, requests []Request) ([]RobotQueue, error) {
	if len(states) == 0 {
		return nil, &PlanningError{Kind: ErrEmpty, Msg: "no robots registered"}
	}

	sims := make([]robotSim, len(states))
	for i, s := range states {
		sims[i] = robotSim{state: s}
	}

	// An empty request set (e.g. re-planning after the only pending
	// request was cancelled) is a valid outcome: every robot keeps an
	// empty queue, not a planning failure.
	if len(requests) == 0 {
		queues := make([]RobotQueue, len(sims))
		for i, sim := range sims {
			queues[i] = RobotQueue{RobotName: sim.state.Name}
		}
		return queues, nil
	}

	// Highest priority first, stable otherwise to keep submission order as
	// the tie-break, matching the allocator's "no additional ordering"
	// contract (spec.md §4.4): ties are broken by the order the caller
	// supplied, not by this planner.
	ordered := make([]Request, len(requests))
	copy(ordered, requests)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].High && !ordered[j].High
	})

	anyFeasible := false
	for _, req := range ordered {
		fleetMean, fleetStdDev := fleetBatteryStats(sims)
		bestIdx := -1
		bestScore := 0.0
		feasibleForRequest := false
		for i, sim := range sims {
			if sim.state.Finish.BatteryPct-req.BatteryDrain < p.MinBatteryPct {
				continue
			}
			feasibleForRequest = true
			anyFeasible = true
			sc := p.score(sim, req, fleetMean, fleetStdDev)
			if bestIdx == -1 || sc > bestScore {
				bestIdx = i
				bestScore = sc
			}
		}
		if !feasibleForRequest {
			continue
		}
		if bestIdx == -1 {
			continue
		}
		sim := &sims[bestIdx]
		deployAt := sim.state.Finish.Time
		if deployAt.Before(now) {
			deployAt = now
		}
		finishAt := deployAt.Add(req.Duration)
		finish := FinishState{
			Waypoint:   req.FinishWaypoint,
			BatteryPct: sim.state.Finish.BatteryPct - req.BatteryDrain,
			Time:       finishAt,
		}
		sim.entries = append(sim.entries, AssignmentEntry{
			Request:              req,
			DeploymentTime:       deployAt,
			ProjectedFinishState: finish,
		})
		sim.state.Finish = finish
		sim.queueLen++
	}

	if !anyFeasible {
		return nil, &PlanningError{Kind: ErrLowBattery, Msg: "no robot has sufficient charge for any request"}
	}

	placed := 0
	queues := make([]RobotQueue, len(sims))
	for i, sim := range sims {
		queues[i] = RobotQueue{RobotName: sim.state.Name, Entries: sim.entries}
		placed += len(sim.entries)
	}
	if placed == 0 {
		return nil, &PlanningError{Kind: ErrEmpty, Msg: "no request could be placed"}
	}
	if placed < len(requests) {
		return nil, &PlanningError{Kind: ErrLimitedCapacity, Msg: "battery capacity insufficient for one or more requests"}
	}

	return queues, nil
}
