package dispatch

import (
	"fmt"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/term"
)

// opFuncInfo is a pure marker instruction (module, function, arity) that
// every function entry starts with for function_clause errors and
// tracebacks; it carries no runtime effect here beyond stepping past its
// own operands.
func opFuncInfo(m *machine) (Result, error) {
	m.advance(3)
	return Normal, nil
}

// opCall sets CP to the instruction immediately after this call (the
// return address) and jumps to the callee's label. It never touches the
// stack itself: allocate/allocate_zero are responsible for pushing CP
// onto the Y stack once the callee knows how many Y cells it needs.
func opCall(m *machine) (Result, error) {
	_, err := m.operand(0) // arity, unused: callee already knows it from func_info
	if err != nil {
		return 0, err
	}
	label, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	m.ctx.CP = term.MakeCodePointer(m.proc.Module.Name, m.ctx.IP+2)
	m.ctx.IP = label.CodePointerOffset()
	return Normal, nil
}

// opCallLast is a tail call: the current frame's Y cells (and the CP
// beneath them) are deallocated first, restoring ctx.CP to whatever the
// caller's caller expects, and no new CP is pushed — the callee returns
// straight past this frame.
func opCallLast(m *machine) (Result, error) {
	_, err := m.operand(0) // arity, unused
	if err != nil {
		return 0, err
	}
	label, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	nRaw, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	m.ctx.CP = m.heap.StackDeallocate(uint64(nRaw.SmallSigned()))
	m.ctx.IP = label.CodePointerOffset()
	return Normal, nil
}

// opCallOnly jumps without touching CP or the stack at all: used when the
// callee shares the caller's own stack frame (a local tail call within
// the same function's Y allocation).
func opCallOnly(m *machine) (Result, error) {
	_, err := m.operand(0) // arity, unused
	if err != nil {
		return 0, err
	}
	label, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	m.ctx.IP = label.CodePointerOffset()
	return Normal, nil
}

// resolveExtCall reads call_ext's single Import operand and unpacks the
// MFA recorded in that Import box (no code-server lookup happens here),
// for the three call_ext_* handlers to share.
func (m *machine) resolveExtCall() (code.MFA, term.Term, error) {
	importBox, err := m.operand(1)
	if err != nil {
		return code.MFA{}, 0, err
	}
	modAtom, fnAtom, arity := term.ImportFields(importBox, m.heap)
	return code.MFA{Module: modAtom, Function: fnAtom, Arity: int(arity)}, importBox, nil
}

// callNativeInline invokes a resolved native function synchronously,
// depositing its result in X0, the way call_ext treats a native target as
// an ordinary (non-jumping) call: no CP/stack change, arguments are
// already sitting in X0..X(arity-1) from the caller's register
// convention.
func (m *machine) callNativeInline(mfa code.MFA) (Result, error) {
	args := make([]term.Term, mfa.Arity)
	copy(args, m.ctx.X[:mfa.Arity])
	result, err := m.natives.Call(m.host, m.proc, mfa, args)
	if err != nil {
		return Normal, classifyNativeError(err)
	}
	m.ctx.X[0] = result
	return Normal, nil
}

// switchToModule crosses into a freshly resolved BEAM entry point: the
// process's current Module pointer is swapped (every subsequent fetch
// indexes the new module's code directly) and IP jumps to the entry.
func (m *machine) switchToModule(mfa code.MFA, entry term.Term) (Result, error) {
	mod, ok := m.host.CodeServer().Module(mfa.Module)
	if !ok {
		return 0, &Exception{Kind: term.MakeAtom(atomtable.AtomError), Reason: term.MakeAtom(atomtable.AtomUndef)}
	}
	m.proc.Module = mod
	m.ctx.IP = entry.CodePointerOffset()
	return Normal, nil
}

func opCallExt(m *machine) (Result, error) {
	mfa, _, err := m.resolveExtCall()
	if err != nil {
		return 0, err
	}
	if m.natives.IsNative(mfa) {
		m.advance(2)
		return m.callNativeInline(mfa)
	}
	res, err := m.host.CodeServer().LookupMFA(mfa, true)
	if err != nil {
		return 0, err
	}
	if !res.Found || res.IsNative {
		return 0, &Exception{Kind: term.MakeAtom(atomtable.AtomError), Reason: term.MakeAtom(atomtable.AtomUndef)}
	}
	m.ctx.CP = term.MakeCodePointer(m.proc.Module.Name, m.ctx.IP+2)
	return m.switchToModule(mfa, res.CodePtr)
}

func opCallExtLast(m *machine) (Result, error) {
	mfa, _, err := m.resolveExtCall()
	if err != nil {
		return 0, err
	}
	nRaw, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	if m.natives.IsNative(mfa) {
		m.advance(3)
		m.ctx.CP = m.heap.StackDeallocate(uint64(nRaw.SmallSigned()))
		return m.callNativeInline(mfa)
	}
	res, err := m.host.CodeServer().LookupMFA(mfa, true)
	if err != nil {
		return 0, err
	}
	if !res.Found || res.IsNative {
		return 0, &Exception{Kind: term.MakeAtom(atomtable.AtomError), Reason: term.MakeAtom(atomtable.AtomUndef)}
	}
	m.ctx.CP = m.heap.StackDeallocate(uint64(nRaw.SmallSigned()))
	return m.switchToModule(mfa, res.CodePtr)
}

func opCallExtOnly(m *machine) (Result, error) {
	mfa, _, err := m.resolveExtCall()
	if err != nil {
		return 0, err
	}
	if m.natives.IsNative(mfa) {
		m.advance(2)
		return m.callNativeInline(mfa)
	}
	res, err := m.host.CodeServer().LookupMFA(mfa, true)
	if err != nil {
		return 0, err
	}
	if !res.Found || res.IsNative {
		return 0, &Exception{Kind: term.MakeAtom(atomtable.AtomError), Reason: term.MakeAtom(atomtable.AtomUndef)}
	}
	return m.switchToModule(mfa, res.CodePtr)
}

// opReturn jumps to ctx.CP, or reports Finished if CP was never set (the
// process's outermost frame returning, which only happens when the
// process's entry function itself returns). The CP names the module it
// points into, so returning across a call_ext/call_fun boundary swaps the
// caller's module back in before following the offset.
func opReturn(m *machine) (Result, error) {
	if m.ctx.CP.IsNonValue() {
		return Finished, nil
	}
	if modAtom := m.ctx.CP.CodePointerModule(); modAtom != m.proc.Module.Name {
		mod, ok := m.host.CodeServer().Module(modAtom)
		if !ok {
			return 0, fmt.Errorf("dispatch: return into unloaded module atom %d", modAtom)
		}
		m.proc.Module = mod
	}
	m.ctx.IP = m.ctx.CP.CodePointerOffset()
	return Normal, nil
}

func opJump(m *machine) (Result, error) {
	label, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	m.ctx.IP = label.CodePointerOffset()
	return Normal, nil
}
