package process

import (
	"fmt"

	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// CopyTerm deep-copies t from src onto dst, so a delivered message never
// shares structure with the sender's heap. Sharing within the
// copy itself is not preserved: a term reachable through two different
// paths is copied twice, which is a correct (if occasionally wasteful)
// simplification that is fine for a first implementation.
func CopyTerm(t term.Term, src *heap.Heap, dst *heap.Heap) (term.Term, error) {
	switch t.Tag() {
	case term.TagSmallInt, term.TagAtom, term.TagLocalPid, term.TagLocalPort:
		return t, nil
	case term.TagSpecial:
		// Nil and the empty-tuple/binary consts are immediates; nothing
		// else (catch, register, opcode, load-time) should ever reach a
		// message.
		return t, nil
	case term.TagCons:
		return copyList(t, src, dst)
	case term.TagBoxed:
		return copyBoxed(t, src, dst)
	default:
		return 0, fmt.Errorf("process: cannot copy term with tag %v", t.Tag())
	}
}

func copyList(t term.Term, src, dst *heap.Heap) (term.Term, error) {
	var headsTails []term.Term
	cur := t
	for cur.Tag() == term.TagCons {
		ptr := cur.ConsPtr()
		head := term.FromRaw(src.ReadWord(ptr))
		headsTails = append(headsTails, head)
		cur = term.FromRaw(src.ReadWord(ptr + term.WordBytes))
	}
	tail, err := CopyTerm(cur, src, dst)
	if err != nil {
		return 0, err
	}
	for i := len(headsTails) - 1; i >= 0; i-- {
		h, err := CopyTerm(headsTails[i], src, dst)
		if err != nil {
			return 0, err
		}
		cell, err := dst.AllocCons(h, tail)
		if err != nil {
			return 0, err
		}
		tail = cell
	}
	return tail, nil
}

func copyBoxed(t term.Term, src, dst *heap.Heap) (term.Term, error) {
	ptr := t.BoxedPtr()
	header := term.FromRaw(src.ReadWord(ptr))
	switch header.HeaderBoxType() {
	case term.BoxTuple:
		n := header.HeaderStorageWords()
		elems := make([]term.Term, n)
		for i := uint64(0); i < n; i++ {
			elems[i] = term.FromRaw(src.ReadWord(ptr + (1+i)*term.WordBytes))
		}
		for i, e := range elems {
			c, err := CopyTerm(e, src, dst)
			if err != nil {
				return 0, err
			}
			elems[i] = c
		}
		return dst.AllocTuple(elems)

	case term.BoxBigInt:
		sign := src.ReadWord(ptr + term.WordBytes)
		n := header.HeaderStorageWords() - 1
		limbs := make([]uint64, n)
		for i := uint64(0); i < n; i++ {
			limbs[i] = src.ReadWord(ptr + 2*term.WordBytes + i*term.WordBytes)
		}
		return dst.AllocBigInt(sign, limbs)

	case term.BoxFloat:
		bits := src.ReadWord(ptr + term.WordBytes)
		return dst.AllocFloat(term.Float64FromBits(bits))

	case term.BoxBinary:
		data := term.ReadBinaryBytes(t, src)
		bitLen := term.BinaryBitLength(t, src)
		if len(data) > term.OnHeapBinaryThreshold {
			return dst.AllocRefCountedBinary(data, bitLen)
		}
		return dst.AllocOnHeapBinary(data, bitLen)

	case term.BoxClosure:
		moduleAtom := src.ReadWord(ptr + term.WordBytes)
		entryLabel := src.ReadWord(ptr + 2*term.WordBytes)
		arity := src.ReadWord(ptr + 3*term.WordBytes)
		lambdaIndex := src.ReadWord(ptr + 4*term.WordBytes)
		nFree := header.HeaderStorageWords() - 4
		frozen := make([]term.Term, nFree)
		for i := uint64(0); i < nFree; i++ {
			frozen[i] = term.FromRaw(src.ReadWord(ptr + heap.ClosureFreeVarsOffset + i*term.WordBytes))
		}
		for i, fv := range frozen {
			c, err := CopyTerm(fv, src, dst)
			if err != nil {
				return 0, err
			}
			frozen[i] = c
		}
		return dst.AllocClosure(moduleAtom, entryLabel, arity, lambdaIndex, frozen)

	case term.BoxExport:
		moduleAtom := src.ReadWord(ptr + term.WordBytes)
		functionAtom := src.ReadWord(ptr + 2*term.WordBytes)
		arity := src.ReadWord(ptr + 3*term.WordBytes)
		entry := term.FromRaw(src.ReadWord(ptr + 4*term.WordBytes))
		return dst.AllocExport(moduleAtom, functionAtom, arity, entry)

	case term.BoxImport:
		moduleAtom := src.ReadWord(ptr + term.WordBytes)
		functionAtom := src.ReadWord(ptr + 2*term.WordBytes)
		arity := src.ReadWord(ptr + 3*term.WordBytes)
		return dst.AllocImport(moduleAtom, functionAtom, arity)

	case term.BoxMap:
		n := header.HeaderStorageWords() / 2
		keys := make([]term.Term, n)
		vals := make([]term.Term, n)
		for i := uint64(0); i < n; i++ {
			keys[i] = term.FromRaw(src.ReadWord(ptr + (1+2*i)*term.WordBytes))
			vals[i] = term.FromRaw(src.ReadWord(ptr + (1+2*i+1)*term.WordBytes))
		}
		for i := range keys {
			ck, err := CopyTerm(keys[i], src, dst)
			if err != nil {
				return 0, err
			}
			cv, err := CopyTerm(vals[i], src, dst)
			if err != nil {
				return 0, err
			}
			keys[i], vals[i] = ck, cv
		}
		return dst.AllocMap(keys, vals)

	case term.BoxBinaryMatchState:
		bin, byteOff, bitOff := heap.MatchStateFields(t, src)
		copiedBin, err := CopyTerm(bin, src, dst)
		if err != nil {
			return 0, err
		}
		return dst.AllocMatchState(copiedBin, byteOff, bitOff)

	default:
		return 0, fmt.Errorf("process: cannot copy box type %v across heaps (no distribution support)", header.HeaderBoxType())
	}
}
