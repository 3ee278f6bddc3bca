package compactterm

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// tag is the 3-bit primary compact-term tag in the low bits of the
// leading byte.
type tag byte

const (
	tagLiteralInt tag = 0
	tagInteger    tag = 1
	tagAtom       tag = 2
	tagXReg       tag = 3
	tagYReg       tag = 4
	tagLabel      tag = 5
	tagCharacter  tag = 6
	tagExtended   tag = 7
)

// Variant selects which generation of BEAM assigned extended-tag byte
// values: r19 still has an inline Float ext tag; r20 and newer dropped it
// and shifted every later ext tag down by one slot. Selected per module at
// load time (internal/loader guesses it from the opcode_max field of the
// Code chunk header), not at build time, since one long-running code server
// may load modules compiled by either generation.
type Variant int

const (
	VariantNewer Variant = iota
	VariantR19
)

const (
	extFloatR19    = 0x17
	extListR19     = 0x27
	extFloatRegR19 = 0x37
	extAllocR19    = 0x47
	extLiteralR19  = 0x57

	extListNewer     = 0x17
	extFloatRegNewer = 0x27
	extAllocNewer    = 0x37
	extLiteralNewer  = 0x47
)

// Read decodes one compact term from r using the given variant's extended
// tag layout.
func Read(r *Reader, variant Variant) (LtTerm, error) {
	b, err := r.readU8()
	if err != nil {
		return LtTerm{}, err
	}
	t := tag(b & 0b111)

	if t != tagExtended {
		small, bignum, isBig, err := readWord(b, r)
		if err != nil {
			return LtTerm{}, err
		}
		switch t {
		case tagLiteralInt:
			if isBig {
				return LtTerm{}, fmt.Errorf("compactterm: literal int tag carries a bignum value")
			}
			return smallInt(small), nil
		case tagAtom:
			if isBig {
				return LtTerm{}, fmt.Errorf("compactterm: atom tag carries a bignum value")
			}
			if small == 0 {
				return LtTerm{Kind: KindNil}, nil
			}
			return atomRef(small), nil
		case tagXReg:
			if isBig {
				return LtTerm{}, fmt.Errorf("compactterm: x register tag carries a bignum value")
			}
			return xreg(small), nil
		case tagYReg:
			if isBig {
				return LtTerm{}, fmt.Errorf("compactterm: y register tag carries a bignum value")
			}
			return yreg(small), nil
		case tagLabel:
			if isBig {
				return LtTerm{}, fmt.Errorf("compactterm: label tag carries a bignum value")
			}
			return label(small), nil
		case tagInteger:
			if isBig {
				return bigInt(bignum), nil
			}
			return smallInt(small), nil
		case tagCharacter:
			if isBig {
				return LtTerm{}, fmt.Errorf("compactterm: character tag carries a bignum value")
			}
			return smallInt(small), nil
		}
	}

	return readExt(b, r, variant)
}

func readExt(b byte, r *Reader, variant Variant) (LtTerm, error) {
	switch variant {
	case VariantR19:
		switch b {
		case extFloatR19:
			return readExtFloat(r)
		case extListR19:
			return readExtList(r, variant)
		case extFloatRegR19:
			return readExtFPReg(r)
		case extLiteralR19:
			return readExtLiteral(r)
		case extAllocR19:
			return LtTerm{}, fmt.Errorf("compactterm: allocation list decoding is not supported")
		}
	default:
		switch b {
		case extListNewer:
			return readExtList(r, variant)
		case extFloatRegNewer:
			return readExtFPReg(r)
		case extLiteralNewer:
			return readExtLiteral(r)
		case extAllocNewer:
			return LtTerm{}, fmt.Errorf("compactterm: allocation list decoding is not supported")
		}
	}
	return LtTerm{}, fmt.Errorf("compactterm: unknown extended tag byte %#02x", b)
}

func readExtFloat(r *Reader) (LtTerm, error) {
	bits, err := readU64BE(r)
	if err != nil {
		return LtTerm{}, err
	}
	return LtTerm{Kind: KindFloat, Float: math.Float64frombits(bits)}, nil
}

func readExtFPReg(r *Reader) (LtTerm, error) {
	b, err := r.readU8()
	if err != nil {
		return LtTerm{}, err
	}
	small, _, isBig, err := readWord(b, r)
	if err != nil {
		return LtTerm{}, err
	}
	if isBig {
		return LtTerm{}, fmt.Errorf("compactterm: float register index too large")
	}
	return fpreg(small), nil
}

func readExtLiteral(r *Reader) (LtTerm, error) {
	b, err := r.readU8()
	if err != nil {
		return LtTerm{}, err
	}
	small, _, isBig, err := readWord(b, r)
	if err != nil {
		return LtTerm{}, err
	}
	if isBig {
		return LtTerm{}, fmt.Errorf("compactterm: literal index too large")
	}
	return literal(small), nil
}

func readExtList(r *Reader, variant Variant) (LtTerm, error) {
	n, err := readInt(r)
	if err != nil {
		return LtTerm{}, err
	}
	elems := make([]LtTerm, 0, n)
	for i := int64(0); i < n; i++ {
		el, err := Read(r, variant)
		if err != nil {
			return LtTerm{}, err
		}
		elems = append(elems, el)
	}
	return LtTerm{Kind: KindExtList, List: elems}, nil
}

// readInt assumes the stream holds a tagged LiteralInt and unwraps it,
// matching the jump-table element-count prefix.
func readInt(r *Reader) (int64, error) {
	b, err := r.readU8()
	if err != nil {
		return 0, err
	}
	if tag(b&0b111) != tagLiteralInt {
		return 0, fmt.Errorf("compactterm: expected a literal-int count, got tag %d", b&0b111)
	}
	small, bignum, isBig, err := readWord(b, r)
	if err != nil {
		return 0, err
	}
	if isBig {
		if !bignum.IsInt64() {
			return 0, fmt.Errorf("compactterm: count does not fit in an int64")
		}
		return bignum.Int64(), nil
	}
	return small, nil
}

// readWord parses the integer payload following a compact-term tag byte:
// a 4-bit inline value, an 11-bit value spanning the tag byte and one more
// byte, or an N-byte big-endian integer with N = 2..8 taken from the tag
// byte; the tag byte's largest size value instead means a further
// compact-encoded size k follows, for an integer of k+9 bytes.
func readWord(b byte, r *Reader) (small int64, bignum *big.Int, isBig bool, err error) {
	if b&0b1000 == 0 {
		return int64(int8(b)) >> 4, nil, false, nil
	}
	if b&0b1_0000 == 0 {
		lo, err := r.readU8()
		if err != nil {
			return 0, nil, false, err
		}
		v := (int64(b) & 0b1110_0000 << 3) | int64(lo)
		return v, nil, false, nil
	}

	nBytes := int(b>>5) + 2
	if nBytes == 9 {
		bnext, err := r.readU8()
		if err != nil {
			return 0, nil, false, err
		}
		tmp, _, isBig, err := readWord(bnext, r)
		if err != nil {
			return 0, nil, false, err
		}
		if isBig {
			return 0, nil, false, fmt.Errorf("compactterm: nested extended-length size must itself be small")
		}
		nBytes = int(tmp) + 9
	}

	raw, err := r.readBytes(nBytes)
	if err != nil {
		return 0, nil, false, err
	}
	negative := raw[0]&0x80 != 0
	mag := new(big.Int).SetBytes(raw)
	if negative {
		// raw holds the big-endian two's-complement magnitude; recover the
		// true magnitude by subtracting from 2^(8*nBytes), then negate.
		full := new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8))
		mag.Sub(full, mag)
		mag.Neg(mag)
	}
	if mag.IsInt64() {
		return mag.Int64(), nil, false, nil
	}
	return 0, mag, true, nil
}

func readU64BE(r *Reader) (uint64, error) {
	raw, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}
