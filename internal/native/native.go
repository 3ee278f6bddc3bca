// Package native is the uniform call-into-host surface bif/gc_bif
// instructions dispatch through, plus the built-in functions this runtime
// implements for real rather than stubbing out. The full BIF library is
// out of scope here; a handful of trivial, genuinely useful ones are
// implemented anyway.
package native

import (
	"errors"
	"fmt"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/process"
	"j5.nz/beamrt/internal/sched"
	"j5.nz/beamrt/internal/term"
)

// Host is the narrow capability surface a native function needs from the
// rest of the runtime: the atom table, the code server (to resolve a
// spawn target), the process registry, and the scheduler (to enqueue a
// freshly spawned process and to wake a waiting receiver).
type Host interface {
	Atoms() *atomtable.Table
	CodeServer() *code.Server
	Registry() *process.Registry
	Scheduler() *sched.Scheduler
}

// Fn is one native function's implementation: given the host, the calling
// process (whose heap every allocation happens on), and already-loaded
// argument values, it returns a result term or an error. A returned error
// becomes a 'badarg'/'badarith'-class Exception at the bif/gc_bif call
// site, not a fatal one.
type Fn func(h Host, proc *process.Process, args []term.Term) (term.Term, error)

// Registry is the MFA -> Fn table. Populated once at startup by
// RegisterBuiltins and never mutated afterward, so lookups need no lock.
type Registry struct {
	fns map[code.MFA]Fn
}

// New returns an empty native registry.
func New() *Registry {
	return &Registry{fns: make(map[code.MFA]Fn)}
}

// Register binds mfa to fn.
func (r *Registry) Register(mfa code.MFA, fn Fn) {
	r.fns[mfa] = fn
}

// Lookup resolves mfa to its implementation, if any.
func (r *Registry) Lookup(mfa code.MFA) (Fn, bool) {
	fn, ok := r.fns[mfa]
	return fn, ok
}

// IsNative matches code.NativeLookup's signature, so a Registry can be
// wired directly into a code.Server's IsNative field.
func (r *Registry) IsNative(mfa code.MFA) bool {
	_, ok := r.fns[mfa]
	return ok
}

// ErrBifNotFound reports a call to an MFA with no registered native
// implementation; internal/dispatch surfaces it as an 'undef exception.
var ErrBifNotFound = errors.New("native: bif not found")

// Call resolves and invokes mfa with args, the single entry point
// internal/dispatch's bif/gc_bif handlers use.
func (r *Registry) Call(h Host, proc *process.Process, mfa code.MFA, args []term.Term) (term.Term, error) {
	fn, ok := r.fns[mfa]
	if !ok {
		return 0, fmt.Errorf("%w: %+v", ErrBifNotFound, mfa)
	}
	if len(args) != mfa.Arity {
		return 0, fmt.Errorf("native: %+v called with %d args", mfa, len(args))
	}
	return fn(h, proc, args)
}

// RegisterBuiltins installs every built-in this runtime implements,
// keyed by erlang module atom (interned on demand, since they are not
// all in the well-known table).
func RegisterBuiltins(r *Registry, atoms *atomtable.Table) {
	erlang := atomtable.AtomErlang

	mfa := func(fnName string, arity int) code.MFA {
		return code.MFA{Module: erlang, Function: atoms.Intern(fnName), Arity: arity}
	}

	r.Register(mfa("self", 0), biSelf)
	r.Register(mfa("spawn", 3), biSpawn3)
	r.Register(mfa("register", 2), biRegister2)
	r.Register(mfa("unregister", 1), biUnregister1)
	r.Register(mfa("whereis", 1), biWhereis1)
	r.Register(mfa("process_flag", 2), biProcessFlag2)
	r.Register(mfa("is_process_alive", 1), biIsProcessAlive1)
	r.Register(mfa("make_fun", 3), biMakeFun3)

	r.Register(mfa("==", 2), cmpBuiltin(false, func(o term.Ordering) bool { return o == term.Equal }))
	r.Register(mfa("/=", 2), cmpBuiltin(false, func(o term.Ordering) bool { return o != term.Equal }))
	r.Register(mfa("<", 2), cmpBuiltin(false, func(o term.Ordering) bool { return o == term.Less }))
	r.Register(mfa(">", 2), cmpBuiltin(false, func(o term.Ordering) bool { return o == term.Greater }))
	r.Register(mfa("=<", 2), cmpBuiltin(false, func(o term.Ordering) bool { return o != term.Greater }))
	r.Register(mfa(">=", 2), cmpBuiltin(false, func(o term.Ordering) bool { return o != term.Less }))
	r.Register(mfa("=:=", 2), cmpBuiltin(true, func(o term.Ordering) bool { return o == term.Equal }))
	r.Register(mfa("=/=", 2), cmpBuiltin(true, func(o term.Ordering) bool { return o != term.Equal }))

	r.Register(mfa("+", 2), biAdd2)
	r.Register(mfa("-", 2), biSub2)
	r.Register(mfa("*", 2), biMul2)
	r.Register(mfa("-", 1), biNeg1)
	r.Register(mfa("div", 2), biDiv2)
	r.Register(mfa("rem", 2), biRem2)
}
