package term

// Exported mirrors of compare.go's unexported box-field readers, for
// internal/dispatch (which cannot reach an unexported helper in this
// package from the outside) to decode tuple, cons and binary contents
// without re-deriving the header-offset arithmetic a second time.

// TupleArity reports a tuple's element count. t must be a tuple (boxed or
// the empty-tuple special).
func TupleArity(t Term, h HeapReader) int { return tupleArity(t, h) }

// TupleElem reads element i (0-based) of a boxed tuple.
func TupleElem(t Term, i int, h HeapReader) Term { return tupleElem(t, i, h) }

// ConsHead and ConsTail read a cons cell's two fields.
func ConsHead(t Term, h HeapReader) Term { return consHead(t, h) }
func ConsTail(t Term, h HeapReader) Term { return consTail(t, h) }

// BoxTypeAt reads the BoxType recorded in a boxed term's header word.
// Caller must already know t is a data box (Tag()==TagBoxed and
// !IsCodePointer()).
func BoxTypeAt(t Term, h HeapReader) BoxType {
	return FromRaw(h.ReadWord(t.BoxedPtr())).HeaderBoxType()
}

// ImportFields reads back an Import box's unresolved {module, function,
// arity} atoms/arity.
func ImportFields(t Term, h HeapReader) (moduleAtom, functionAtom, arity uint64) {
	ptr := t.BoxedPtr()
	return h.ReadWord(ptr + WordBytes), h.ReadWord(ptr + 2*WordBytes), h.ReadWord(ptr + 3*WordBytes)
}

// ExportFields reads back an Export box's resolved {module, function,
// arity, entry}.
func ExportFields(t Term, h HeapReader) (moduleAtom, functionAtom, arity uint64, entry Term) {
	ptr := t.BoxedPtr()
	return h.ReadWord(ptr + WordBytes),
		h.ReadWord(ptr + 2*WordBytes),
		h.ReadWord(ptr + 3*WordBytes),
		FromRaw(h.ReadWord(ptr + 4*WordBytes))
}

// ClosureFields reads back a Closure box's four fixed header fields:
// owning module atom, entry label offset, declared arity and lambda-table
// index. Frozen free variables follow at ClosureFreeVarsOffset and are
// read one at a time with ClosureFreeVar.
func ClosureFields(t Term, h HeapReader) (moduleAtom, entryLabel, arity, lambdaIndex uint64) {
	ptr := t.BoxedPtr()
	return h.ReadWord(ptr + WordBytes),
		h.ReadWord(ptr + 2*WordBytes),
		h.ReadWord(ptr + 3*WordBytes),
		h.ReadWord(ptr + 4*WordBytes)
}

// closureFreeVarsOffset mirrors heap.ClosureFreeVarsOffset; duplicated here
// (rather than imported) since internal/heap already imports internal/term
// and the reverse import would cycle.
const closureFreeVarsOffset = 5 * WordBytes

// ClosureFreeVar reads the i'th captured free variable of a closure.
func ClosureFreeVar(t Term, i int, h HeapReader) Term {
	ptr := t.BoxedPtr()
	return FromRaw(h.ReadWord(ptr + closureFreeVarsOffset + uint64(i)*WordBytes))
}

// ClosureNumFree derives how many free variables a closure carries from
// its header's declared storage size (4 fixed words plus one per free
// variable).
func ClosureNumFree(t Term, h HeapReader) uint64 {
	header := FromRaw(h.ReadWord(t.BoxedPtr()))
	return header.HeaderStorageWords() - 4
}

// MapPairs reads back a flat sorted map's keys and values in parallel
// slices, in stored (sorted) order.
func MapPairs(t Term, h HeapReader) (keys, vals []Term) {
	ptr := t.BoxedPtr()
	header := FromRaw(h.ReadWord(ptr))
	n := header.HeaderStorageWords() / 2
	keys = make([]Term, n)
	vals = make([]Term, n)
	for i := uint64(0); i < n; i++ {
		keys[i] = FromRaw(h.ReadWord(ptr + (1+2*i)*WordBytes))
		vals[i] = FromRaw(h.ReadWord(ptr + (1+2*i+1)*WordBytes))
	}
	return keys, vals
}
