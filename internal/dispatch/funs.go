package dispatch

import (
	"j5.nz/beamrt/internal/term"
)

// opMakeFun2 resolves a lambda-table index into a fresh Closure box,
// capturing the current call's first NumFree X registers as frozen
// values (the compiler always loads them into X0.. immediately before
// emitting make_fun2), and deposits the result in X0, since make_fun2
// carries no separate destination operand.
func opMakeFun2(m *machine) (Result, error) {
	idxRaw, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	idx := int(idxRaw.SmallSigned())
	if idx < 0 || idx >= len(m.proc.Module.Lambdas) {
		return m.raiseTagged(badfunAtom(), idxRaw)
	}
	lam := m.proc.Module.Lambdas[idx]

	frozen := make([]term.Term, lam.NumFree)
	copy(frozen, m.ctx.X[:lam.NumFree])

	closure, err := m.heap.AllocClosure(m.proc.Module.Name, lam.Label, lam.Arity, uint64(idx), frozen)
	if err != nil {
		return 0, err
	}
	m.ctx.X[0] = closure
	m.advance(1)
	return Normal, nil
}

// opCallFun calls a callable value sitting at X[N], where N is the call
// arity operand: a closure's frozen free variables are copied in just
// above the supplied arguments (X[N..N+numFree)) before jumping, matching
// how the compiled function expects to find them, and an Export box is
// treated as a plain M:F/A jump with no free variables.
func opCallFun(m *machine) (Result, error) {
	nRaw, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	n := int(nRaw.SmallSigned())
	callee := m.ctx.X[n]

	if callee.Tag() != term.TagBoxed || callee.IsCodePointer() {
		return m.raiseTagged(badfunAtom(), callee)
	}

	switch term.BoxTypeAt(callee, m.heap) {
	case term.BoxClosure:
		modAtom, entryLabel, arity, _ := term.ClosureFields(callee, m.heap)
		if int(arity) != n {
			return m.raiseTagged(badfunAtom(), callee)
		}
		numFree := term.ClosureNumFree(callee, m.heap)
		for i := uint64(0); i < numFree; i++ {
			m.ctx.X[n+int(i)] = term.ClosureFreeVar(callee, int(i), m.heap)
		}
		mod, ok := m.host.CodeServer().Module(modAtom)
		if !ok {
			return m.raiseTagged(badfunAtom(), callee)
		}
		m.ctx.CP = term.MakeCodePointer(m.proc.Module.Name, m.ctx.IP+1)
		m.proc.Module = mod
		m.ctx.IP = entryLabel
		return Normal, nil

	case term.BoxExport:
		modAtom, _, arity, entry := term.ExportFields(callee, m.heap)
		if int(arity) != n {
			return m.raiseTagged(badfunAtom(), callee)
		}
		mod, ok := m.host.CodeServer().Module(modAtom)
		if !ok {
			return m.raiseTagged(badfunAtom(), callee)
		}
		m.ctx.CP = term.MakeCodePointer(m.proc.Module.Name, m.ctx.IP+1)
		m.proc.Module = mod
		m.ctx.IP = entry.CodePointerOffset()
		return Normal, nil

	default:
		return m.raiseTagged(badfunAtom(), callee)
	}
}
