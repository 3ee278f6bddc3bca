// Package sched implements the priority-queue scheduler: three FIFO run
// queues, a counter-based fairness rule that keeps Low from starving
// behind a busy Normal queue, and a wait set for processes blocked in an
// infinite receive.
package sched

import "j5.nz/beamrt/internal/process"

// NormalAdvantage is how many consecutive Normal-priority selections are
// allowed before Low gets a turn, provided High stays empty the whole
// time.
const NormalAdvantage = 8

// queue is a plain FIFO of pids. Small scale (hundreds to low thousands
// of live processes in the workloads this runtime targets) makes a slice
// with a pop-from-front fine; a ring buffer would only pay for itself at
// a scale this runtime never reaches.
type queue struct {
	pids []uint64
}

func (q *queue) push(pid uint64) { q.pids = append(q.pids, pid) }

func (q *queue) pop() (uint64, bool) {
	if len(q.pids) == 0 {
		return 0, false
	}
	pid := q.pids[0]
	q.pids = q.pids[1:]
	return pid, true
}

func (q *queue) empty() bool { return len(q.pids) == 0 }

// Scheduler owns the three priority run queues and the infinite-wait set.
// It never touches a Process's heap or register context directly — it
// only ever moves pids between queues; internal/vm is responsible for
// actually swapping a process's context into the dispatch loop.
type Scheduler struct {
	registry *process.Registry

	high, normal, low queue
	waiting           map[uint64]bool

	normalStreak int
}

// New constructs an empty scheduler bound to reg, used to look up a
// process's current priority when enqueuing it.
func New(reg *process.Registry) *Scheduler {
	return &Scheduler{
		registry: reg,
		waiting:  make(map[uint64]bool),
	}
}

// Enqueue places pid into the run queue matching its process's current
// priority. Called after spawn and after a wait set wakeup.
func (s *Scheduler) Enqueue(pid uint64) {
	p, ok := s.registry.Lookup(pid)
	if !ok {
		return
	}
	switch p.Priority {
	case process.PriorityHigh:
		s.high.push(pid)
	case process.PriorityLow:
		s.low.push(pid)
	default:
		s.normal.push(pid)
	}
}

// Next selects the next pid to run, applying the fixed priority order
// with Normal's counter-based advantage over Low. Returns ok=false
// if every run queue is empty ("idle").
func (s *Scheduler) Next() (pid uint64, ok bool) {
	if pid, ok := s.high.pop(); ok {
		s.normalStreak = 0
		return pid, true
	}
	if !s.normal.empty() && s.normalStreak < NormalAdvantage {
		pid, _ := s.normal.pop()
		s.normalStreak++
		return pid, true
	}
	if pid, ok := s.low.pop(); ok {
		s.normalStreak = 0
		return pid, true
	}
	if pid, ok := s.normal.pop(); ok {
		s.normalStreak++
		return pid, true
	}
	return 0, false
}

// Suspend moves pid into the infinite-wait set. Only called at an opcode
// boundary (the `wait` instruction); a process can never suspend
// mid-instruction.
//
// TODO: timed waits (wait_timeout) need a deadline map alongside the
// infinite-wait set and a timer wheel to move expired pids back into
// their run queues; only the infinite variant exists today.
func (s *Scheduler) Suspend(pid uint64) {
	s.waiting[pid] = true
}

// NotifyNewIncomingMessage wakes pid from the infinite-wait set and
// re-enqueues it into its priority's run queue, if it was actually
// waiting. This is the one hook every message delivery must call,
// whether or not the target happens to be waiting.
func (s *Scheduler) NotifyNewIncomingMessage(pid uint64) {
	if !s.waiting[pid] {
		return
	}
	delete(s.waiting, pid)
	s.Enqueue(pid)
}

// Remove drops pid from every run queue and the wait set, for process
// termination.
func (s *Scheduler) Remove(pid uint64) {
	delete(s.waiting, pid)
	s.high.pids = removePid(s.high.pids, pid)
	s.normal.pids = removePid(s.normal.pids, pid)
	s.low.pids = removePid(s.low.pids, pid)
}

func removePid(pids []uint64, target uint64) []uint64 {
	out := pids[:0]
	for _, pid := range pids {
		if pid != target {
			out = append(out, pid)
		}
	}
	return out
}

// Idle reports whether every run queue and the wait set are empty —
// nothing left for the scheduler to ever run again.
func (s *Scheduler) Idle() bool {
	return s.high.empty() && s.normal.empty() && s.low.empty() && len(s.waiting) == 0
}
