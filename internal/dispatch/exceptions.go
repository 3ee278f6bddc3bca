package dispatch

import (
	"errors"
	"strings"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/native"
	"j5.nz/beamrt/internal/term"
)

// jumpOrRaise implements the bif/gc_bif family's error convention: when
// the instruction carries a fail label, a native function error becomes a
// plain jump rather than an exception (the compiler only ever supplies a
// fail label when the surrounding code already handles the failure
// itself, e.g. a guard). With no fail label (Nil), the same failure
// becomes a catchable Exception for internal/vm to unwind.
func (m *machine) jumpOrRaise(failLabel term.Term, cause error) (Result, error) {
	if !failLabel.IsNil() {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}
	return Normal, classifyNativeError(cause)
}

// classifyNativeError turns a native.Fn's plain Go error into the
// Exception it names: a call to an unregistered BIF becomes 'undef,
// internal/native's built-ins prefix arithmetic failures with "badarith",
// and everything else is 'badarg. The reason atom is recovered from the
// error itself rather than carried as a separate typed error, keeping
// native.Fn's signature a plain (Term, error).
func classifyNativeError(err error) error {
	reason := atomtable.AtomBadarg
	switch {
	case errors.Is(err, native.ErrBifNotFound):
		reason = atomtable.AtomUndef
	case strings.Contains(err.Error(), "badarith"):
		reason = atomtable.AtomBadarith
	}
	return &Exception{Kind: term.MakeAtom(atomtable.AtomError), Reason: term.MakeAtom(reason)}
}

func badmatchAtom() term.Term { return term.MakeAtom(atomtable.AtomBadmatch) }
func badfunAtom() term.Term   { return term.MakeAtom(atomtable.AtomBadfun) }

// raiseTagged builds the {Tag, Value} pair error/1 style opcodes (badmatch,
// badfun, case_clause-via-function_clause) raise, and returns it as an
// uncaught 'error exception for internal/vm to unwind or terminate on.
func (m *machine) raiseTagged(tag, value term.Term) (Result, error) {
	reason, err := m.heap.AllocTuple([]term.Term{tag, value})
	if err != nil {
		return 0, err
	}
	return Normal, &Exception{Kind: term.MakeAtom(atomtable.AtomError), Reason: reason}
}

// opTry installs a catch marker in the given Y slot: a marker is a
// loaded-at-runtime term.MakeCatch value recording the catch/try-end label,
// so try_end/try_case can tell where to resume once NumCatches is observed
// to have dropped back to this frame's depth.
func opTry(m *machine) (Result, error) {
	yDst, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	label, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	if err := m.store(yDst, term.MakeCatch(label.CodePointerModule(), label.CodePointerOffset())); err != nil {
		return 0, err
	}
	m.proc.NumCatches++
	m.advance(2)
	return Normal, nil
}

// opTryEnd clears the catch marker installed by try and pops the catch
// depth back down; used on the success path once the protected code region
// completes without raising.
func opTryEnd(m *machine) (Result, error) {
	yDst, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	if err := m.store(yDst, term.Nil()); err != nil {
		return 0, err
	}
	if m.proc.NumCatches > 0 {
		m.proc.NumCatches--
	}
	m.advance(1)
	return Normal, nil
}

// opTryCase is try_end followed by shifting the caught triple
// internal/vm's unwind deposited at X1/X2/X3 (kind, reason, stacktrace)
// down into X0/X1/X2, the conventional (class, reason, stacktrace) layout
// the compiled case statement's clauses pattern-match against.
func opTryCase(m *machine) (Result, error) {
	yDst, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	if err := m.store(yDst, term.Nil()); err != nil {
		return 0, err
	}
	if m.proc.NumCatches > 0 {
		m.proc.NumCatches--
	}
	m.ctx.X[0] = m.ctx.X[1]
	m.ctx.X[1] = m.ctx.X[2]
	m.ctx.X[2] = m.ctx.X[3]
	m.advance(1)
	return Normal, nil
}

// opRaise constructs an exception directly from two already-loaded
// operands (class, reason) rather than going through a native function;
// used by the compiler for explicit throw/error/exit calls and
// re-raise.
func opRaise(m *machine) (Result, error) {
	kind, err := m.load(0)
	if err != nil {
		return 0, err
	}
	reason, err := m.load(1)
	if err != nil {
		return 0, err
	}
	return Normal, &Exception{Kind: kind, Reason: reason}
}
