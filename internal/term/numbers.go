package term

import (
	"math"
	"math/big"
)

// Float64Bits and Float64FromBits convert between the IEEE-754 bit
// pattern stored in a BoxFloat's payload word and a Go float64. Kept as
// thin named wrappers (rather than inlining math.Float64bits at call
// sites) so every box-float read/write goes through one place.
func Float64Bits(f float64) uint64 {
	return math.Float64bits(f)
}

func Float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// BigIntLimbs encodes bi as a sign word (0 = non-negative, 1 = negative)
// followed by little-endian uint64 limbs, matching the BIGINT box layout:
// sign word plus a limb array of machine-word-sized digits, inline after
// the header.
func BigIntLimbs(bi *big.Int) (sign uint64, limbs []uint64) {
	if bi.Sign() < 0 {
		sign = 1
	}
	bits := bi.Bits()
	limbs = make([]uint64, len(bits))
	for i, w := range bits {
		limbs[i] = uint64(w)
	}
	if len(limbs) == 0 {
		limbs = []uint64{0}
	}
	return sign, limbs
}

// ReadBigInt decodes a BOXED/BIGINT term back into a *big.Int. Caller
// must have already checked the header's box type.
func ReadBigInt(t Term, h HeapReader) *big.Int {
	ptr := t.BoxedPtr()
	header := FromRaw(h.ReadWord(ptr))
	storageWords := header.HeaderStorageWords()
	sign := h.ReadWord(ptr + WordBytes)
	nLimbs := storageWords - 1
	words := make([]big.Word, nLimbs)
	for i := uint64(0); i < nLimbs; i++ {
		words[i] = big.Word(h.ReadWord(ptr + 2*WordBytes + i*WordBytes))
	}
	bi := new(big.Int).SetBits(words)
	if sign == 1 {
		bi.Neg(bi)
	}
	return bi
}
