package etf

import (
	"fmt"
	"math/big"
	"sort"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// Tag values for the subset of External Term Format this runtime decodes.
// Tags the on-disk format defines but the core never emits (PIDs, refs,
// funs, new floats, atom cache refs) are left unimplemented — a module
// whose literal table uses one fails loading with a clear error rather
// than silently misreading bytes.
const (
	tagETF            = 131
	tagSmallInteger   = 97
	tagInteger        = 98
	tagAtomDeprecated = 100
	tagSmallTuple     = 104
	tagLargeTuple     = 105
	tagNil            = 106
	tagString         = 107
	tagList           = 108
	tagBinary         = 109
	tagSmallBig       = 110
	tagLargeBig       = 111
	tagMap            = 116
)

// Decode reads one complete ETF-encoded term, including its leading 131
// tag byte, allocating any boxed values on h.
func Decode(r *Reader, h *heap.Heap, atoms *atomtable.Table) (term.Term, error) {
	b, err := r.readU8()
	if err != nil {
		return 0, err
	}
	if b != tagETF {
		return 0, fmt.Errorf("etf: expected leading tag byte 131, got %d", b)
	}
	return DecodeNaked(r, h, atoms)
}

// DecodeNaked reads one term without requiring the leading 131 tag byte,
// used for every recursive element (tuple/list/map members never repeat
// the leading tag).
func DecodeNaked(r *Reader, h *heap.Heap, atoms *atomtable.Table) (term.Term, error) {
	b, err := r.readU8()
	if err != nil {
		return 0, err
	}
	switch b {
	case tagSmallInteger:
		v, err := r.readU8()
		if err != nil {
			return 0, err
		}
		return term.MakeSmallSigned(int64(v)), nil

	case tagInteger:
		v, err := r.readI32BE()
		if err != nil {
			return 0, err
		}
		return term.MakeSmallSigned(int64(v)), nil

	case tagNil:
		return term.Nil(), nil

	case tagAtomDeprecated:
		n, err := r.readU16BE()
		if err != nil {
			return 0, err
		}
		name, err := r.readBytes(int(n))
		if err != nil {
			return 0, err
		}
		return term.MakeAtom(atoms.Intern(string(name))), nil

	case tagSmallTuple:
		n, err := r.readU8()
		if err != nil {
			return 0, err
		}
		return decodeTuple(r, int(n), h, atoms)

	case tagLargeTuple:
		n, err := r.readU32BE()
		if err != nil {
			return 0, err
		}
		return decodeTuple(r, int(n), h, atoms)

	case tagSmallBig:
		n, err := r.readU8()
		if err != nil {
			return 0, err
		}
		return decodeBig(r, int(n), h)

	case tagLargeBig:
		n, err := r.readU32BE()
		if err != nil {
			return 0, err
		}
		return decodeBig(r, int(n), h)

	case tagBinary:
		return decodeBinary(r, h)

	case tagMap:
		n, err := r.readU32BE()
		if err != nil {
			return 0, err
		}
		return decodeMap(r, int(n), h, atoms)

	case tagList:
		return decodeList(r, h, atoms)

	case tagString:
		return decodeString(r, h)

	default:
		return 0, fmt.Errorf("etf: don't know how to decode tag %d", b)
	}
}

func decodeTuple(r *Reader, n int, h *heap.Heap, atoms *atomtable.Table) (term.Term, error) {
	elems := make([]term.Term, n)
	for i := 0; i < n; i++ {
		e, err := DecodeNaked(r, h, atoms)
		if err != nil {
			return 0, err
		}
		elems[i] = e
	}
	return h.AllocTuple(elems)
}

func decodeBig(r *Reader, size int, h *heap.Heap) (term.Term, error) {
	signByte, err := r.readU8()
	if err != nil {
		return 0, err
	}
	digits, err := r.readBytes(size)
	if err != nil {
		return 0, err
	}
	// digits are little-endian; big.Int.SetBytes wants big-endian.
	be := make([]byte, len(digits))
	for i, d := range digits {
		be[len(digits)-1-i] = d
	}
	mag := new(big.Int).SetBytes(be)
	if signByte != 0 {
		mag.Neg(mag)
	}
	if mag.IsInt64() && term.SmallFits(mag.Int64()) {
		return term.MakeSmallSigned(mag.Int64()), nil
	}
	return h.AllocBigIntFromBig(mag)
}

func decodeBinary(r *Reader, h *heap.Heap) (term.Term, error) {
	n, err := r.readU32BE()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return term.EmptyBinary(), nil
	}
	data, err := r.readBytes(int(n))
	if err != nil {
		return 0, err
	}
	bitLen := uint64(len(data)) * 8
	if len(data) <= term.OnHeapBinaryThreshold {
		return h.AllocOnHeapBinary(data, bitLen)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return h.AllocRefCountedBinary(cp, bitLen)
}

func decodeList(r *Reader, h *heap.Heap, atoms *atomtable.Table) (term.Term, error) {
	n, err := r.readU32BE()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return term.Nil(), nil
	}
	elems := make([]term.Term, n)
	for i := uint32(0); i < n; i++ {
		e, err := DecodeNaked(r, h, atoms)
		if err != nil {
			return 0, err
		}
		elems[i] = e
	}
	tail, err := DecodeNaked(r, h, atoms)
	if err != nil {
		return 0, err
	}
	return consChain(elems, tail, h)
}

func decodeString(r *Reader, h *heap.Heap) (term.Term, error) {
	n, err := r.readU16BE()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return term.Nil(), nil
	}
	bytes, err := r.readBytes(int(n))
	if err != nil {
		return 0, err
	}
	elems := make([]term.Term, len(bytes))
	for i, b := range bytes {
		elems[i] = term.MakeSmallSigned(int64(b))
	}
	return consChain(elems, term.Nil(), h)
}

func consChain(elems []term.Term, tail term.Term, h *heap.Heap) (term.Term, error) {
	acc := tail
	for i := len(elems) - 1; i >= 0; i-- {
		cell, err := h.AllocCons(elems[i], acc)
		if err != nil {
			return 0, err
		}
		acc = cell
	}
	return acc, nil
}

func decodeMap(r *Reader, n int, h *heap.Heap, atoms *atomtable.Table) (term.Term, error) {
	keys := make([]term.Term, n)
	vals := make([]term.Term, n)
	for i := 0; i < n; i++ {
		k, err := DecodeNaked(r, h, atoms)
		if err != nil {
			return 0, err
		}
		v, err := DecodeNaked(r, h, atoms)
		if err != nil {
			return 0, err
		}
		keys[i] = k
		vals[i] = v
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return term.Compare(keys[idx[a]], keys[idx[b]], true, h, atoms) == term.Less
	})
	sortedKeys := make([]term.Term, n)
	sortedVals := make([]term.Term, n)
	for i, j := range idx {
		sortedKeys[i] = keys[j]
		sortedVals[i] = vals[j]
	}
	return h.AllocMap(sortedKeys, sortedVals)
}
