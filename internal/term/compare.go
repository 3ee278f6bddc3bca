package term

import (
	"math/big"

	"j5.nz/beamrt/internal/atomtable"
)

// Ordering mirrors the three-way comparison result of cmp_terms.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// HeapReader is everything Compare/Display need to look inside a boxed
// term: word-at-a-time reads for tuples/cons/closures, and a byte window
// for binaries and bignum limbs. heap.Heap implements this structurally.
type HeapReader interface {
	WordReader
	ReadBytes(addr uint64, n int) []byte
}

// compareFrame is one entry of the explicit work-stack Compare uses so
// that deeply nested tuples/lists cannot overflow the host call stack.
type compareFrame struct {
	a, b Term
}

// Compare implements the Erlang term order: number < atom < ref < fun <
// port < pid < tuple < map < nil < list < binary. When exact is false,
// numeric comparison coerces across integer/float; when true, an integer
// and a float of equal magnitude compare unequal (they are Greater if the
// integer type sorts after float in this implementation's internal
// number sub-order, which is never observable across a single Compare
// call because both operands share class ClassNumber only when their
// true Erlang types are compared with exact=false).
func Compare(a, b Term, exact bool, h HeapReader, atoms *atomtable.Table) Ordering {
	stack := []compareFrame{{a, b}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a, b := top.a, top.b

		if a == b {
			continue
		}

		ca, cb := Classify(a, h), Classify(b, h)
		if ca != cb {
			if ca < cb {
				return Less
			}
			return Greater
		}

		switch ca {
		case ClassNumber:
			if ord := compareNumbers(a, b, exact, h); ord != Equal {
				return ord
			}
		case ClassAtom:
			na, nb := atoms.Name(a.AtomIndex()), atoms.Name(b.AtomIndex())
			if na != nb {
				if na < nb {
					return Less
				}
				return Greater
			}
		case ClassPid:
			if ord := compareScalar(pidScalar(a, h), pidScalar(b, h)); ord != Equal {
				return ord
			}
		case ClassPort:
			if ord := compareScalar(portScalar(a, h), portScalar(b, h)); ord != Equal {
				return ord
			}
		case ClassTuple:
			ar, br := tupleArity(a, h), tupleArity(b, h)
			if ar != br {
				if ar < br {
					return Less
				}
				return Greater
			}
			for i := ar - 1; i >= 0; i-- {
				stack = append(stack, compareFrame{tupleElem(a, i, h), tupleElem(b, i, h)})
			}
		case ClassList:
			if a.IsNil() || b.IsNil() {
				if a.IsNil() && !b.IsNil() {
					return Less
				}
				if !a.IsNil() && b.IsNil() {
					return Greater
				}
				continue
			}
			ah, at := consHead(a, h), consTail(a, h)
			bh, bt := consHead(b, h), consTail(b, h)
			stack = append(stack, compareFrame{at, bt})
			stack = append(stack, compareFrame{ah, bh})
		case ClassBinary:
			ab, bb := binaryBytes(a, h), binaryBytes(b, h)
			if ord := compareBytes(ab, bb); ord != Equal {
				return ord
			}
		default:
			if ord := compareScalar(uint64(a), uint64(b)); ord != Equal {
				return ord
			}
		}
	}
	return Equal
}

func compareScalar(a, b uint64) Ordering {
	if a < b {
		return Less
	}
	if a > b {
		return Greater
	}
	return Equal
}

func compareBytes(a, b []byte) Ordering {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return Less
			}
			return Greater
		}
	}
	return compareScalar(uint64(len(a)), uint64(len(b)))
}

func compareNumbers(a, b Term, exact bool, h HeapReader) Ordering {
	af, aIsFloat, aBig := numericValue(a, h)
	bf, bIsFloat, bBig := numericValue(b, h)

	if exact && aIsFloat != bIsFloat {
		// Distinct Erlang types never compare Equal under exact ordering,
		// but still participate in total order by float-before-integer.
		if aIsFloat {
			return Less
		}
		return Greater
	}

	if (aBig != nil || bBig != nil) && !aIsFloat && !bIsFloat {
		abi := aBig
		if abi == nil {
			abi, _ = big.NewFloat(af).SetPrec(256).Int(nil)
		}
		bbi := bBig
		if bbi == nil {
			bbi, _ = big.NewFloat(bf).SetPrec(256).Int(nil)
		}
		switch abi.Cmp(bbi) {
		case -1:
			return Less
		case 1:
			return Greater
		default:
			return Equal
		}
	}

	if af < bf {
		return Less
	}
	if af > bf {
		return Greater
	}
	return Equal
}

// numericValue decodes a as either a float64 approximation plus an
// exact *big.Int when the value is an integer (small or boxed bignum).
func numericValue(t Term, h HeapReader) (asFloat float64, isFloat bool, asBig *big.Int) {
	switch t.Tag() {
	case TagSmallInt:
		v := t.SmallSigned()
		return float64(v), false, big.NewInt(v)
	case TagBoxed:
		header := FromRaw(h.ReadWord(t.BoxedPtr()))
		switch header.HeaderBoxType() {
		case BoxFloat:
			bits := h.ReadWord(t.BoxedPtr() + WordBytes)
			f := Float64FromBits(bits)
			return f, true, nil
		case BoxBigInt:
			bi := ReadBigInt(t, h)
			f, _ := new(big.Float).SetInt(bi).Float64()
			return f, false, bi
		}
	}
	panic("term: numericValue on non-number")
}

func pidScalar(t Term, h HeapReader) uint64 {
	if t.Tag() == TagLocalPid {
		return t.PidIndex()
	}
	return h.ReadWord(t.BoxedPtr() + WordBytes)
}

func portScalar(t Term, h HeapReader) uint64 {
	if t.Tag() == TagLocalPort {
		return t.PortIndex()
	}
	return h.ReadWord(t.BoxedPtr() + WordBytes)
}

func tupleArity(t Term, h HeapReader) int {
	if t.IsEmptyTuple() {
		return 0
	}
	return int(FromRaw(h.ReadWord(t.BoxedPtr())).HeaderStorageWords())
}

func tupleElem(t Term, i int, h HeapReader) Term {
	return FromRaw(h.ReadWord(t.BoxedPtr() + WordBytes + uint64(i)*WordBytes))
}

func consHead(t Term, h HeapReader) Term {
	return FromRaw(h.ReadWord(t.ConsPtr()))
}

func consTail(t Term, h HeapReader) Term {
	return FromRaw(h.ReadWord(t.ConsPtr() + WordBytes))
}

func binaryBytes(t Term, h HeapReader) []byte {
	if t.IsEmptyBinary() {
		return nil
	}
	return ReadBinaryBytes(t, h)
}
