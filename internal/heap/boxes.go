package heap

import (
	"math/big"

	"j5.nz/beamrt/internal/term"
)

// Fixed word layouts for each BoxType. Every box starts with one HEADER
// word (storage size + BoxType); the payload words described below follow
// immediately, and — when DebugGuards is set — one sentinel word follows
// the payload (see Heap.DebugGuards).

// AllocTuple allocates an N-element tuple and fills it with elems,
// returning the BOXED term pointing at it.
func (h *Heap) AllocTuple(elems []term.Term) (term.Term, error) {
	n := uint64(len(elems))
	ptr, err := h.Alloc(1+n, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(n, term.BoxTuple)))
	for i, e := range elems {
		h.WriteWord(ptr+term.WordBytes+uint64(i)*term.WordBytes, uint64(e))
	}
	h.CheckGuard(ptr, 1+n)
	return term.MakeBoxed(ptr), nil
}

// AllocCons allocates a single cons cell (head, tail). Cons cells carry no
// header: their shape is implied entirely by the CONS tag on the term
// pointing at them.
func (h *Heap) AllocCons(head, tail term.Term) (term.Term, error) {
	ptr, err := h.Alloc(2, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(head))
	h.WriteWord(ptr+term.WordBytes, uint64(tail))
	return term.MakeCons(ptr), nil
}

// AllocOnHeapBinary allocates an inline binary holding data, truncated to
// bitLen bits.
func (h *Heap) AllocOnHeapBinary(data []byte, bitLen uint64) (term.Term, error) {
	byteWords := (uint64(len(data)) + term.WordBytes - 1) / term.WordBytes
	ptr, err := h.Alloc(2+byteWords, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(1+byteWords, term.BoxBinary)))
	h.WriteWord(ptr+term.WordBytes, term.PackBinaryMeta(term.BinaryOnHeap, bitLen))
	h.WriteBytes(ptr+2*term.WordBytes, data)
	h.CheckGuard(ptr, 2+byteWords)
	return term.MakeBoxed(ptr), nil
}

// AllocRefCountedBinary moves data into this heap's refcount pool and
// allocates a small boxed handle referencing it, for payloads over
// term.OnHeapBinaryThreshold.
func (h *Heap) AllocRefCountedBinary(data []byte, bitLen uint64) (term.Term, error) {
	ptr, err := h.Alloc(3, Uninitialized)
	if err != nil {
		return 0, err
	}
	handle := term.PutRefCounted(h.RefPoolID, data)
	h.WriteWord(ptr, uint64(term.MakeHeader(2, term.BoxBinary)))
	h.WriteWord(ptr+term.WordBytes, term.PackBinaryMeta(term.BinaryRefCounted, bitLen))
	h.WriteWord(ptr+2*term.WordBytes, handle)
	h.CheckGuard(ptr, 3)
	return term.MakeBoxed(ptr), nil
}

// AllocBinarySlice allocates a view into src starting at bitOffset,
// running for bitLen bits, without copying src's bytes.
func (h *Heap) AllocBinarySlice(src term.Term, bitOffset, bitLen uint64) (term.Term, error) {
	ptr, err := h.Alloc(4, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(3, term.BoxBinary)))
	h.WriteWord(ptr+term.WordBytes, term.PackBinaryMeta(term.BinarySlice, bitLen))
	h.WriteWord(ptr+2*term.WordBytes, uint64(src))
	h.WriteWord(ptr+3*term.WordBytes, bitOffset)
	h.CheckGuard(ptr, 4)
	return term.MakeBoxed(ptr), nil
}

// AllocBigInt allocates a bignum from a sign word (0 = non-negative,
// 1 = negative, matching term.BigIntLimbs) and little-endian limbs.
func (h *Heap) AllocBigInt(sign uint64, limbs []uint64) (term.Term, error) {
	n := uint64(len(limbs))
	ptr, err := h.Alloc(2+n, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(1+n, term.BoxBigInt)))
	h.WriteWord(ptr+term.WordBytes, sign)
	for i, limb := range limbs {
		h.WriteWord(ptr+2*term.WordBytes+uint64(i)*term.WordBytes, limb)
	}
	h.CheckGuard(ptr, 2+n)
	return term.MakeBoxed(ptr), nil
}

// AllocBigIntFromBig is the common-case entry point: it derives the sign
// word and limb array from a *big.Int and allocates the bignum box.
func (h *Heap) AllocBigIntFromBig(bi *big.Int) (term.Term, error) {
	sign, limbs := term.BigIntLimbs(bi)
	return h.AllocBigInt(sign, limbs)
}

// AllocFloat allocates a boxed IEEE-754 double.
func (h *Heap) AllocFloat(v float64) (term.Term, error) {
	ptr, err := h.Alloc(2, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(1, term.BoxFloat)))
	h.WriteWord(ptr+term.WordBytes, term.Float64Bits(v))
	h.CheckGuard(ptr, 2)
	return term.MakeBoxed(ptr), nil
}

// AllocClosure allocates a fun value: the module atom it was loaded from,
// its entry label, declared arity, the index of its lambda-table entry (used
// by is_function2 and erlang:fun_info), and its captured free variables.
func (h *Heap) AllocClosure(moduleAtom, entryLabel, arity, lambdaIndex uint64, frozen []term.Term) (term.Term, error) {
	nFree := uint64(len(frozen))
	fixed := uint64(4)
	ptr, err := h.Alloc(1+fixed+nFree, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(fixed+nFree, term.BoxClosure)))
	h.WriteWord(ptr+1*term.WordBytes, moduleAtom)
	h.WriteWord(ptr+2*term.WordBytes, entryLabel)
	h.WriteWord(ptr+3*term.WordBytes, arity)
	h.WriteWord(ptr+4*term.WordBytes, lambdaIndex)
	for i, fv := range frozen {
		h.WriteWord(ptr+(1+fixed+uint64(i))*term.WordBytes, uint64(fv))
	}
	h.CheckGuard(ptr, 1+fixed+nFree)
	return term.MakeBoxed(ptr), nil
}

// ClosureFreeVarsOffset is the word offset, from the box pointer, of the
// first captured free variable — exported so internal/dispatch can iterate
// a closure's environment without duplicating this layout.
const ClosureFreeVarsOffset = 5 * term.WordBytes

// AllocImport allocates an unresolved {module, function, arity} MFA
// reference, produced by the loader for every import-table entry.
func (h *Heap) AllocImport(moduleAtom, functionAtom, arity uint64) (term.Term, error) {
	ptr, err := h.Alloc(4, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(3, term.BoxImport)))
	h.WriteWord(ptr+1*term.WordBytes, moduleAtom)
	h.WriteWord(ptr+2*term.WordBytes, functionAtom)
	h.WriteWord(ptr+3*term.WordBytes, arity)
	h.CheckGuard(ptr, 4)
	return term.MakeBoxed(ptr), nil
}

// AllocExport allocates a resolved MFA plus the code pointer it currently
// resolves to (erlang:make_fun/3, fun M:F/A captures).
func (h *Heap) AllocExport(moduleAtom, functionAtom, arity uint64, entry term.Term) (term.Term, error) {
	ptr, err := h.Alloc(5, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(4, term.BoxExport)))
	h.WriteWord(ptr+1*term.WordBytes, moduleAtom)
	h.WriteWord(ptr+2*term.WordBytes, functionAtom)
	h.WriteWord(ptr+3*term.WordBytes, arity)
	h.WriteWord(ptr+4*term.WordBytes, uint64(entry))
	h.CheckGuard(ptr, 5)
	return term.MakeBoxed(ptr), nil
}

// AllocMap allocates a flat, sorted-by-key association list. Keys must
// already be in term order; internal/dispatch is responsible for sorting
// before calling this (mirrors how the loader never reorders tuples either).
func (h *Heap) AllocMap(keys, vals []term.Term) (term.Term, error) {
	n := uint64(len(keys))
	ptr, err := h.Alloc(1+2*n, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(2*n, term.BoxMap)))
	for i := uint64(0); i < n; i++ {
		h.WriteWord(ptr+(1+2*i)*term.WordBytes, uint64(keys[i]))
		h.WriteWord(ptr+(1+2*i+1)*term.WordBytes, uint64(vals[i]))
	}
	h.CheckGuard(ptr, 1+2*n)
	return term.MakeBoxed(ptr), nil
}

// AllocMatchState allocates the mutable cursor bs_start_match{2,3} leaves
// behind: the binary being matched plus a byte/bit read position.
func (h *Heap) AllocMatchState(bin term.Term, byteOffset, bitOffset uint64) (term.Term, error) {
	ptr, err := h.Alloc(4, Uninitialized)
	if err != nil {
		return 0, err
	}
	h.WriteWord(ptr, uint64(term.MakeHeader(3, term.BoxBinaryMatchState)))
	h.WriteWord(ptr+1*term.WordBytes, uint64(bin))
	h.WriteWord(ptr+2*term.WordBytes, byteOffset)
	h.WriteWord(ptr+3*term.WordBytes, bitOffset)
	h.CheckGuard(ptr, 4)
	return term.MakeBoxed(ptr), nil
}

// MatchStateFields reads back a BinaryMatchState's binary term and cursor.
func MatchStateFields(t term.Term, h term.HeapReader) (bin term.Term, byteOffset, bitOffset uint64) {
	ptr := t.BoxedPtr()
	return term.FromRaw(h.ReadWord(ptr + term.WordBytes)),
		h.ReadWord(ptr + 2*term.WordBytes),
		h.ReadWord(ptr + 3*term.WordBytes)
}

// SetMatchStateCursor advances a BinaryMatchState's read position in place
// (bs_* instructions mutate the match state rather than reallocating it).
func SetMatchStateCursor(h *Heap, t term.Term, byteOffset, bitOffset uint64) {
	ptr := t.BoxedPtr()
	h.WriteWord(ptr+2*term.WordBytes, byteOffset)
	h.WriteWord(ptr+3*term.WordBytes, bitOffset)
}
