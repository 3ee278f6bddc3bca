package dispatch

import "j5.nz/beamrt/internal/term"

// isIntegerTerm, isFloatTerm, ... classify a loaded term by shape, the way
// the type-test opcode family needs: cheaper than a full term.Classify
// call since each test only needs to rule its own class in or out.

func isIntegerTerm(t term.Term, h term.HeapReader) bool {
	if t.Tag() == term.TagSmallInt {
		return true
	}
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxBigInt
}

func isFloatTerm(t term.Term, h term.HeapReader) bool {
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxFloat
}

func isNumberTerm(t term.Term, h term.HeapReader) bool {
	return isIntegerTerm(t, h) || isFloatTerm(t, h)
}

func isPidTerm(t term.Term, h term.HeapReader) bool {
	if t.Tag() == term.TagLocalPid {
		return true
	}
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxExternalPid
}

func isReferenceTerm(t term.Term, h term.HeapReader) bool {
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxExternalRef
}

func isPortTerm(t term.Term, h term.HeapReader) bool {
	if t.Tag() == term.TagLocalPort {
		return true
	}
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxExternalPort
}

func isBinaryTerm(t term.Term, h term.HeapReader) bool {
	if t.IsEmptyBinary() {
		return true
	}
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxBinary
}

func isListTerm(t term.Term, _ term.HeapReader) bool {
	return t.IsNil() || t.Tag() == term.TagCons
}

func isNonemptyListTerm(t term.Term, _ term.HeapReader) bool {
	return t.Tag() == term.TagCons
}

func isTupleTerm(t term.Term, h term.HeapReader) bool {
	if t.IsEmptyTuple() {
		return true
	}
	return t.Tag() == term.TagBoxed && !t.IsCodePointer() && term.BoxTypeAt(t, h) == term.BoxTuple
}

func isFunctionTerm(t term.Term, h term.HeapReader) bool {
	if t.Tag() != term.TagBoxed || t.IsCodePointer() {
		return false
	}
	bt := term.BoxTypeAt(t, h)
	return bt == term.BoxClosure || bt == term.BoxExport
}

// opIsPredicate adapts a single-term classifier into an is_* opcode
// handler sharing the (Fail, Src) operand layout every such opcode uses.
func opIsPredicate(test func(term.Term, term.HeapReader) bool) handlerFunc {
	return func(m *machine) (Result, error) {
		src, err := m.load(1)
		if err != nil {
			return 0, err
		}
		return m.predicateJump(test(src, m.heap), 2)
	}
}

func cmp(m *machine) (a, b term.Term, err error) {
	a, err = m.load(1)
	if err != nil {
		return
	}
	b, err = m.load(2)
	return
}

func opIsLt(m *machine) (Result, error) {
	a, b, err := cmp(m)
	if err != nil {
		return 0, err
	}
	ord := term.Compare(a, b, false, m.heap, m.host.Atoms())
	return m.predicateJump(ord == term.Less, 3)
}

func opIsGe(m *machine) (Result, error) {
	a, b, err := cmp(m)
	if err != nil {
		return 0, err
	}
	ord := term.Compare(a, b, false, m.heap, m.host.Atoms())
	return m.predicateJump(ord != term.Less, 3)
}

func opIsEq(m *machine) (Result, error) {
	a, b, err := cmp(m)
	if err != nil {
		return 0, err
	}
	ord := term.Compare(a, b, false, m.heap, m.host.Atoms())
	return m.predicateJump(ord == term.Equal, 3)
}

func opIsEqExact(m *machine) (Result, error) {
	a, b, err := cmp(m)
	if err != nil {
		return 0, err
	}
	ord := term.Compare(a, b, true, m.heap, m.host.Atoms())
	return m.predicateJump(ord == term.Equal, 3)
}

func opIsNe(m *machine) (Result, error) {
	a, b, err := cmp(m)
	if err != nil {
		return 0, err
	}
	ord := term.Compare(a, b, false, m.heap, m.host.Atoms())
	return m.predicateJump(ord != term.Equal, 3)
}

func opIsNeExact(m *machine) (Result, error) {
	a, b, err := cmp(m)
	if err != nil {
		return 0, err
	}
	ord := term.Compare(a, b, true, m.heap, m.host.Atoms())
	return m.predicateJump(ord != term.Equal, 3)
}

func opTestArity(m *machine) (Result, error) {
	src, err := m.load(1)
	if err != nil {
		return 0, err
	}
	arityRaw, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	ok := isTupleTerm(src, m.heap) && term.TupleArity(src, m.heap) == int(arityRaw.SmallSigned())
	return m.predicateJump(ok, 3)
}

func opIsTaggedTuple(m *machine) (Result, error) {
	src, err := m.load(1)
	if err != nil {
		return 0, err
	}
	arityRaw, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	tagRaw, err := m.operand(3)
	if err != nil {
		return 0, err
	}
	ok := isTupleTerm(src, m.heap) &&
		term.TupleArity(src, m.heap) == int(arityRaw.SmallSigned()) &&
		term.TupleArity(src, m.heap) > 0 &&
		term.TupleElem(src, 0, m.heap) == tagRaw
	return m.predicateJump(ok, 4)
}

func opIsFunction2(m *machine) (Result, error) {
	src, err := m.load(1)
	if err != nil {
		return 0, err
	}
	arityTerm, err := m.load(2)
	if err != nil {
		return 0, err
	}
	var want uint64
	switch {
	case arityTerm.Tag() == term.TagSmallInt:
		want = uint64(arityTerm.SmallSigned())
	case arityTerm.Tag() == term.TagBoxed && !arityTerm.IsCodePointer() && term.BoxTypeAt(arityTerm, m.heap) == term.BoxBigInt:
		want = term.ReadBigInt(arityTerm, m.heap).Uint64()
	default:
		return m.predicateJump(false, 3)
	}

	ok := false
	if src.Tag() == term.TagBoxed && !src.IsCodePointer() {
		switch term.BoxTypeAt(src, m.heap) {
		case term.BoxClosure:
			_, _, arity, _ := term.ClosureFields(src, m.heap)
			ok = arity == want
		case term.BoxExport:
			_, _, arity, _ := term.ExportFields(src, m.heap)
			ok = arity == want
		}
	}
	return m.predicateJump(ok, 3)
}

func opSelectVal(m *machine) (Result, error) {
	value, err := m.load(0)
	if err != nil {
		return 0, err
	}
	failRaw, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	countRaw, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	count := uint64(countRaw.SmallSigned())
	atoms := m.host.Atoms()
	for i := uint64(0); i+1 < count; i += 2 {
		candRaw, err := m.operand(3 + i)
		if err != nil {
			return 0, err
		}
		labelRaw, err := m.operand(3 + i + 1)
		if err != nil {
			return 0, err
		}
		if term.Compare(value, candRaw, true, m.heap, atoms) == term.Equal {
			m.ctx.IP = labelRaw.CodePointerOffset()
			return Normal, nil
		}
	}
	m.ctx.IP = failRaw.CodePointerOffset()
	return Normal, nil
}

func opBadmatch(m *machine) (Result, error) {
	value, err := m.load(0)
	if err != nil {
		return 0, err
	}
	return m.raiseTagged(badmatchAtom(), value)
}
