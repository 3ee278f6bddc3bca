// Package bif holds the arbitrary-precision arithmetic every integer BIF
// shares: converting a tagged Term (small or boxed bignum) to and from
// *big.Int, and the overflow-checked +, -, * built on top of it. Kept
// separate from internal/term so that internal/native's BIF
// implementations and internal/dispatch's binary handlers both go through
// one conversion path instead of duplicating the small/bignum coercion
// rule.
package bif

import (
	"math/big"

	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// ToBig reads t, which must already be known to be an integer (small or
// boxed bignum), as a *big.Int.
func ToBig(t term.Term, h term.HeapReader) *big.Int {
	if t.Tag() == term.TagSmallInt {
		return big.NewInt(t.SmallSigned())
	}
	return term.ReadBigInt(t, h)
}

// FromBig packs bi back into the narrowest representation that holds it:
// a SMALL_INT immediate when it fits, otherwise a boxed bignum allocated
// on h.
func FromBig(bi *big.Int, h *heap.Heap) (term.Term, error) {
	if bi.IsInt64() {
		v := bi.Int64()
		if term.SmallFits(v) {
			return term.MakeSmallSigned(v), nil
		}
	}
	return h.AllocBigIntFromBig(bi)
}

// Add computes a+b, promoting to a boxed bignum on overflow.
func Add(a, b term.Term, h *heap.Heap) (term.Term, error) {
	return FromBig(new(big.Int).Add(ToBig(a, h), ToBig(b, h)), h)
}

// Sub computes a-b, promoting to a boxed bignum on overflow.
func Sub(a, b term.Term, h *heap.Heap) (term.Term, error) {
	return FromBig(new(big.Int).Sub(ToBig(a, h), ToBig(b, h)), h)
}

// Mul computes a*b, promoting to a boxed bignum on overflow.
func Mul(a, b term.Term, h *heap.Heap) (term.Term, error) {
	return FromBig(new(big.Int).Mul(ToBig(a, h), ToBig(b, h)), h)
}

// Neg computes -a.
func Neg(a term.Term, h *heap.Heap) (term.Term, error) {
	return FromBig(new(big.Int).Neg(ToBig(a, h)), h)
}

// Div computes truncating integer division a div b.
func Div(a, b term.Term, h *heap.Heap) (term.Term, error) {
	bb := ToBig(b, h)
	if bb.Sign() == 0 {
		return 0, ErrDivByZero
	}
	q := new(big.Int).Quo(ToBig(a, h), bb)
	return FromBig(q, h)
}

// Rem computes a rem b (truncating remainder, sign of the dividend).
func Rem(a, b term.Term, h *heap.Heap) (term.Term, error) {
	bb := ToBig(b, h)
	if bb.Sign() == 0 {
		return 0, ErrDivByZero
	}
	r := new(big.Int).Rem(ToBig(a, h), bb)
	return FromBig(r, h)
}

// ErrDivByZero is returned by Div/Rem; native wraps it into the
// 'badarith' exception its caller expects.
var ErrDivByZero = divByZeroErr{}

type divByZeroErr struct{}

func (divByZeroErr) Error() string { return "bif: division by zero" }
