// Package executor provides the single-goroutine cooperative scheduler the
// dispatch core runs on. Every dispatcher and fleet operation is posted as
// a job onto one Executor and runs to completion without preemption, so
// the core's data structures need no locks beyond the few fields touched
// from outside the executor goroutine (see core/dispatcher and
// core/fleet).
package executor

import "time"

// Executor runs jobs serially, one at a time, on a single goroutine.
type Executor struct {
	jobs chan func()
	done chan struct{}
}

// New starts an Executor and its processing goroutine.
func New() *Executor {
	e := &Executor{
		jobs: make(chan func(), 256),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	for {
		select {
		case job := <-e.jobs:
			select {
			case <-e.done:
				return
			default:
			}
			job()
		case <-e.done:
			return
		}
	}
}

// Schedule enqueues a job to run on the executor goroutine. It does not
// block on the job's completion. Scheduling after Close is a no-op.
func (e *Executor) Schedule(job func()) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.jobs <- job:
	case <-e.done:
	}
}

// ScheduleAfter arranges for job to be scheduled on the executor once d
// has elapsed. This is the "worker.schedule" hop spec.md §5 and §9
// describe: timers fire on their own goroutine but hand off into the
// executor immediately, so the job itself still runs without preemption.
func (e *Executor) ScheduleAfter(d time.Duration, job func()) *time.Timer {
	return time.AfterFunc(d, func() { e.Schedule(job) })
}

// Close stops the executor. Jobs already scheduled but not yet run are
// dropped.
func (e *Executor) Close() {
	close(e.done)
}
