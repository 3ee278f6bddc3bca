// Package process implements per-process state: the heap/stack/context
// triple a scheduled process owns, its mailbox, the pid/name registries,
// and cross-heap message copying.
package process

import (
	"fmt"

	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/rtctx"
	"j5.nz/beamrt/internal/term"
)

// Priority is one of the three scheduler run-queue classes a process can
// belong to. Owned here, not in internal/sched, since a process's
// own process_flag(priority, _) call mutates it directly.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Status is the coarse lifecycle state the scheduler consults when
// deciding whether a process belongs in a run queue, a wait set, or
// neither.
type Status int

const (
	StatusRunnable Status = iota
	StatusWaitingInfinite
	StatusExited
)

// Exception is the pending error a dispatch handler reported, still
// waiting for the scheduler to either unwind to a catch frame or
// terminate the process.
type Exception struct {
	Kind   term.Term // 'error | 'exit | 'throw
	Reason term.Term
}

// DefaultHeapBytes is the initial heap+stack arena size given to a freshly
// spawned process. Processes never resize (no collector is implemented),
// so this is generous enough for small test workloads without being
// wasteful.
const DefaultHeapBytes = 64 * 1024

// Process is one lightweight Erlang process: its own heap/stack, its own
// register context, and its own mailbox. Nothing here is shared with any
// other process.
type Process struct {
	Pid       uint64
	ParentPid uint64

	Heap *heap.Heap
	Ctx  *rtctx.Context
	Mbox Mailbox

	Priority Priority
	Status   Status
	TrapExit bool

	NumCatches int
	Pending    *Exception

	// TupleBuild tracks an in-progress put_tuple/put sequence: Ptr is the
	// tuple box currently being filled and Next is the index of the slot
	// the next put instruction writes. internal/dispatch is the only
	// reader/writer; it lives here rather than on rtctx.Context because it
	// must survive exactly one Step call at a time; logically it belongs
	// next to the rest of the execution-in-progress state.
	TupleBuild struct {
		Ptr  uint64
		Next uint64
	}

	// Module is the module the process is currently executing in.
	// internal/dispatch updates it whenever a call/call_ext crosses into
	// a different module, so every instruction fetch indexes Module.Code
	// directly instead of re-resolving through the code server.
	Module *code.Module
}

// New resolves mfa through cs and constructs a process whose context
// starts at that entry point, with args copied into X registers in
// order. mfa must resolve to BEAM code, not a native function —
// spawning directly into a native built-in is not a supported entry
// point.
func New(pid, parentPid uint64, mfa code.MFA, args []term.Term, cs *code.Server) (*Process, error) {
	result, err := cs.LookupMFA(mfa, true)
	if err != nil {
		return nil, fmt.Errorf("process: spawning %+v: %w", mfa, err)
	}
	if !result.Found {
		return nil, fmt.Errorf("process: spawn target %+v not found", mfa)
	}
	if result.IsNative {
		return nil, fmt.Errorf("process: spawn target %+v resolves to a native function, not code", mfa)
	}
	mod, ok := cs.Module(mfa.Module)
	if !ok {
		return nil, fmt.Errorf("process: spawn target %+v: module not loaded", mfa)
	}

	p := &Process{
		Pid:       pid,
		ParentPid: parentPid,
		Heap:      heap.New(DefaultHeapBytes),
		Ctx:       rtctx.New(),
		Priority:  PriorityNormal,
		Status:    StatusRunnable,

		Module: mod,
	}
	p.Ctx.IP = result.CodePtr.CodePointerOffset()
	for i, a := range args {
		p.Ctx.X[i] = a
	}
	p.Ctx.Live = uint64(len(args))
	return p, nil
}

// DeliverMessage deep-copies msg from sender's heap onto this process's
// heap and enqueues it. sender may be nil for messages with no
// process-owned source heap (e.g. synthetic system messages), in which
// case msg must already be safe to store as-is (an immediate).
func (p *Process) DeliverMessage(msg term.Term, senderHeap *heap.Heap) error {
	if senderHeap == nil {
		p.Mbox.Enqueue(msg)
		return nil
	}
	copied, err := CopyTerm(msg, senderHeap, p.Heap)
	if err != nil {
		return err
	}
	p.Mbox.Enqueue(copied)
	return nil
}
