// Package vm wires the core runtime's four top-level collaborators (atom
// table, code server, process registry, scheduler) behind one struct and
// drives the outer tick loop and the scheduler's exception-unwind
// contract. Every other internal/ package only ever touches one process
// or one module at a time; this is the one place that owns the whole run.
package vm

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/dispatch"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/loader"
	"j5.nz/beamrt/internal/native"
	"j5.nz/beamrt/internal/process"
	"j5.nz/beamrt/internal/sched"
	"j5.nz/beamrt/internal/term"
)

// systemHeapBytes sizes the small heap the driver's command-line
// arguments list is built on. It is never owned by any one process, so it
// lives on the VM itself, comfortably large enough for a few dozen
// argument strings.
const systemHeapBytes = 16 * 1024

// ReductionBudget is how many reductions a process is given per
// scheduling tick before it is forced to yield. Real BEAM tunes this per
// release; this runtime fixes it to a comfortable few thousand.
const ReductionBudget = 2000

// VM bundles the runtime-wide singletons: the atom table and code server
// are genuinely process-wide; the registry and scheduler are VM-wide by
// construction since there is exactly one scheduler driving one set of
// processes per run.
type VM struct {
	atoms    *atomtable.Table
	code     *code.Server
	registry *process.Registry
	sched    *sched.Scheduler
	natives  *native.Registry

	// sysHeap backs PlainArguments, the one piece of process-less state
	// this runtime needs to build boxed terms for.
	sysHeap *heap.Heap

	Log *log.Logger

	// GCRequests counts how many times a step failed with HeapIsFull (no
	// collection runs; the process is then terminated); logged once every 1000
	// occurrences rather than on every single one, so a tight allocation
	// loop with no collector doesn't drown the log.
	GCRequests uint64
}

// New constructs a VM with an empty atom table (pre-seeded with the
// well-known atoms), an empty code server searching searchPath for
// `.beam` files, and every built-in native function registered.
func New(searchPath []string) *VM {
	atoms := atomtable.New()
	natives := native.New()
	native.RegisterBuiltins(natives, atoms)

	cs := code.New(atoms)
	cs.SearchPath = searchPath
	cs.IsNative = natives.IsNative
	cs.LoadFile = loader.Load

	v := &VM{
		atoms:    atoms,
		code:     cs,
		registry: process.NewRegistry(),
		sched:    nil,
		natives:  natives,
		sysHeap:  heap.New(systemHeapBytes),
		Log:      log.Default(),
	}
	v.sched = sched.New(v.registry)
	return v
}

// Atoms, CodeServer, Registry, Scheduler satisfy native.Host, so a *VM can
// be passed directly to internal/native's built-ins and internal/dispatch's
// Step without any adapter type.
func (v *VM) Atoms() *atomtable.Table     { return v.atoms }
func (v *VM) CodeServer() *code.Server    { return v.code }
func (v *VM) Registry() *process.Registry { return v.registry }
func (v *VM) Scheduler() *sched.Scheduler { return v.sched }

// LoadFile loads a .beam file from disk and installs it into the code
// server, logging success or failure through the structured logger since
// a loader failure is a recoverable, expected condition, not a fatal
// one.
func (v *VM) LoadFile(path string) (*code.Module, error) {
	m, err := loader.Load(path, v.atoms)
	if err != nil {
		v.Log.Error("module load failed", "path", path, "err", err)
		return nil, err
	}
	v.code.Install(m)
	v.Log.Info("module loaded", "module", v.atoms.Name(m.Name), "version", m.Version)
	return m, nil
}

// Spawn resolves mfa through the code server, constructs a fresh process
// with args copied into its X registers, registers it, and enqueues it
// onto the scheduler — the full erlang:spawn/3 path minus the native
// wrapper (native.biSpawn3 calls this same sequence from inside a running
// process; this entry point is for spawning the first process(es) a
// driver's `-s M F A` flags name).
func (v *VM) Spawn(mfa code.MFA, args []term.Term) (uint64, error) {
	pid := v.registry.NextPid()
	p, err := process.New(pid, 0, mfa, args, v.code)
	if err != nil {
		return 0, err
	}
	v.registry.Add(p)
	v.sched.Enqueue(pid)
	v.Log.Info("process spawned", "pid", pid, "mfa", mfaString(v.atoms, mfa))
	return pid, nil
}

// PlainArguments builds args as an Erlang list of strings (each a list of
// small-integer char codes) on the VM's own system heap, the same shape
// init:get_plain_arguments/0 hands out. It is built once at startup;
// callers that hand the result to a process must copy it onto that
// process's heap the same way a delivered message is
// (internal/process.CopyTerm), since the system
// heap is never torn down or owned by any one process.
func (v *VM) PlainArguments(args []string) (term.Term, error) {
	list := term.Nil()
	for i := len(args) - 1; i >= 0; i-- {
		s, err := stringToCharList(v.sysHeap, args[i])
		if err != nil {
			return 0, err
		}
		list, err = v.sysHeap.AllocCons(s, list)
		if err != nil {
			return 0, err
		}
	}
	return list, nil
}

func stringToCharList(h *heap.Heap, s string) (term.Term, error) {
	list := term.Nil()
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		var err error
		list, err = h.AllocCons(term.MakeSmallSigned(int64(runes[i])), list)
		if err != nil {
			return 0, err
		}
	}
	return list, nil
}

// Run drives the scheduler until no process can make progress: one
// process chosen per tick, run for up to ReductionBudget reductions,
// yielded or torn down, repeat. With no timer wheel, a process left in
// the infinite-wait set once every run queue has drained can never be
// woken again, so that state is reported as a deadlock rather than spun
// on.
func (v *VM) Run() {
	for v.Tick() {
	}
	if !v.sched.Idle() {
		v.Log.Warn("nothing runnable but processes are still waiting; abandoning them")
	}
}

// Tick runs exactly one scheduler-selected process for up to
// ReductionBudget reductions. Reports false if the scheduler had nothing
// runnable (every live process is waiting on a message, or none are
// left).
func (v *VM) Tick() bool {
	pid, ok := v.sched.Next()
	if !ok {
		return false
	}
	proc, ok := v.registry.Lookup(pid)
	if !ok {
		return true
	}

	proc.Ctx.Reductions = ReductionBudget
	for {
		result, err := dispatch.Step(v, v.natives, proc)
		if err != nil {
			if exc, isExc := err.(*dispatch.Exception); isExc {
				if v.unwind(proc, exc) {
					// Handler found and installed; keep running this
					// process in this same tick.
					continue
				}
				v.terminate(proc, exc.Kind, exc.Reason)
				return true
			}
			if errors.Is(err, heap.ErrHeapIsFull) {
				v.GCRequests++
				if v.GCRequests%1000 == 0 {
					v.Log.Warn("heap allocation failures with no collector implemented", "count", v.GCRequests)
				}
			}
			v.terminateFatal(proc, err)
			return true
		}

		switch result {
		case dispatch.Normal:
			if proc.Ctx.Reductions <= 0 {
				v.sched.Enqueue(pid)
				return true
			}
			continue
		case dispatch.Finished:
			v.terminate(proc, term.MakeAtom(atomtable.AtomNormal), term.MakeAtom(atomtable.AtomNormal))
			return true
		case dispatch.Yield:
			v.sched.Enqueue(pid)
			return true
		case dispatch.YieldInfiniteWait:
			// opWait already called Scheduler().Suspend(pid); nothing
			// further to do here.
			return true
		default:
			v.terminateFatal(proc, fmt.Errorf("vm: unknown dispatch result %v", result))
			return true
		}
	}
}

// unwind implements the catch path: if proc has an open catch frame,
// scan the stack for its marker, splice the {class, reason} pair into
// X0-X3 the way a compiled `catch`/`try` expects, and report true so Tick
// keeps running the same process. Returns false if there is no handler
// (proc.NumCatches might still be >0 on a malformed catch/try_end
// mismatch, but an exhausted stack scan always means "nothing catches
// this").
func (v *VM) unwind(proc *process.Process, exc *dispatch.Exception) bool {
	if proc.NumCatches == 0 {
		return false
	}
	handlerModule, handlerOffset, dropWords, ok := proc.Heap.UnrollStackUntilCatch()
	if !ok {
		return false
	}
	if handlerModule != proc.Module.Name {
		mod, found := v.code.Module(handlerModule)
		if !found {
			return false
		}
		proc.Module = mod
	}
	proc.Heap.StackTrim(dropWords)
	proc.Ctx.X[0] = term.NonValue
	proc.Ctx.X[1] = exc.Kind
	proc.Ctx.X[2] = exc.Reason
	proc.Ctx.X[3] = term.Nil()
	proc.Ctx.CP = term.NonValue
	proc.Ctx.IP = handlerOffset
	// NumCatches stays as-is here: the handler's own try_case/try_end is
	// what closes the frame, and an unwind that also decremented would
	// leave a live outer catch frame uncounted after a nested unwind.
	return true
}

// terminate tears proc down for a well-formed Erlang-level reason (a
// normal exit, an uncaught exception with nowhere left to unwind, or the
// fallthrough of its entry function). If TrapExit is set a monitor
// notification would be delivered here; that is an explicit extension
// point, not implemented since nothing else in this runtime
// consumes it yet.
func (v *VM) terminate(proc *process.Process, kind, reason term.Term) {
	v.sched.Remove(proc.Pid)
	v.registry.Remove(proc.Pid)
	proc.Status = process.StatusExited
	if reason == term.MakeAtom(atomtable.AtomNormal) {
		v.Log.Info("process terminated", "pid", proc.Pid, "reason", "normal")
		proc.Heap.Release()
		return
	}
	v.Log.Warn("process terminated",
		"pid", proc.Pid,
		"kind", v.atoms.Name(kind.AtomIndex()),
		"reason", termString(reason, proc, v.atoms))
	proc.Heap.Release()
}

// terminateFatal tears proc down for a Go-level error that is never
// catchable (a malformed instruction stream, HeapIsFull, a stack-index
// consistency violation). These abort the current tick with a logged
// message; no Erlang-level handler can observe them.
func (v *VM) terminateFatal(proc *process.Process, err error) {
	v.sched.Remove(proc.Pid)
	v.registry.Remove(proc.Pid)
	proc.Status = process.StatusExited
	v.Log.Error("process terminated on internal error", "pid", proc.Pid, "err", err)
	proc.Heap.Release()
}

func termString(t term.Term, proc *process.Process, atoms *atomtable.Table) string {
	return term.Display(t, proc.Heap, atoms)
}

func mfaString(atoms *atomtable.Table, mfa code.MFA) string {
	return fmt.Sprintf("%s:%s/%d", atoms.Name(mfa.Module), atoms.Name(mfa.Function), mfa.Arity)
}
