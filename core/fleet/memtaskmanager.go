package fleet

import (
	"fmt"
	"sync"

	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/core/planner"
)

// MemoryTaskManager is an in-memory TaskManager for standalone deployments
// and the bundled scenario runner, where no real robot execution layer is
// attached. It keeps one queue per robot and exposes MarkExecuted so a
// test or scenario can drive lifecycle transitions without a live fleet.
type MemoryTaskManager struct {
	mu       sync.Mutex
	robots   []string
	queues   map[string][]planner.AssignmentEntry
	executed map[model.TaskId]bool
	finish   map[string]planner.FinishState
}

// NewMemoryTaskManager creates a TaskManager for the given robot names,
// each starting from the given home finish state.
func NewMemoryTaskManager(home planner.FinishState, robots ...string) *MemoryTaskManager {
	tm := &MemoryTaskManager{
		robots:   robots,
		queues:   make(map[string][]planner.AssignmentEntry),
		executed: make(map[model.TaskId]bool),
		finish:   make(map[string]planner.FinishState),
	}
	for _, r := range robots {
		tm.finish[r] = home
	}
	return tm
}

func (tm *MemoryTaskManager) RobotNames() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]string, len(tm.robots))
	copy(out, tm.robots)
	return out
}

func (tm *MemoryTaskManager) ExpectedFinishState(robotName string) planner.FinishState {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.finish[robotName]
}

func (tm *MemoryTaskManager) PendingRequests(robotName string) []planner.Request {
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

func (tm *MemoryTaskManager) IsExecuted(taskId model.TaskId) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.executed[taskId]
}

func (tm *MemoryTaskManager) SetQueue(robotName string, entries []planner.AssignmentEntry) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.finish[robotName]; !ok {
		return fmt.Errorf("fleet: unknown robot %s", robotName)
	}
	tm.queues[robotName] = entries
	if n := len(entries); n > 0 {
		tm.finish[robotName] = entries[n-1].ProjectedFinishState
	}
	return nil
}

func (tm *MemoryTaskManager) CancelQueuedTask(robotName string, taskId model.TaskId) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	kept := make([]planner.AssignmentEntry, 0, len(tm.queues[robotName]))
	for _, e := range tm.queues[robotName] {
		if e.Request.TaskId != taskId {
			kept = append(kept, e)
		}
	}
	tm.queues[robotName] = kept
	return nil
}

// MarkExecuted flags a task as started/finished, so subsequent CANCEL
// requests for it are refused per spec.
func (tm *MemoryTaskManager) MarkExecuted(taskId model.TaskId) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.executed[taskId] = true
}

// QueueLen reports how many entries a robot currently has queued, for
// diagnostics and tests.
func (tm *MemoryTaskManager) QueueLen(robotName string) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.queues[robotName])
}
