package dispatch

import (
	"math/big"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/bif"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// maxMatchBits is the total-bit-size ceiling a binary must stay under to
// start a match: the remaining word bits once the tag is accounted for.
const maxMatchBits = uint64(1) << (term.WordBits - 3)

// opBsStartMatch3 turns a binary value into a fresh BinaryMatchState cursor
// positioned at bit 0, the entry point every bs_get_*/bs_skip_bits/
// bs_test_tail instruction that follows then advances. Anything that is
// not actually a binary fails to the given label.
func opBsStartMatch3(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	src, err := m.load(1)
	if err != nil {
		return 0, err
	}
	_, err = m.operand(2) // Live, unused: no collector to report a root-set hint to
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(3)
	if err != nil {
		return 0, err
	}
	if !isBinaryTerm(src, m.heap) {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}
	if !src.IsEmptyBinary() && term.BinaryBitLength(src, m.heap) >= maxMatchBits {
		return m.raiseTagged(term.MakeAtom(atomtable.AtomBadarg), src)
	}
	ms, err := m.heap.AllocMatchState(src, 0, 0)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, ms); err != nil {
		return 0, err
	}
	m.advance(4)
	return Normal, nil
}

// bitsRemaining reports how many unconsumed bits are left under ms's
// cursor.
func bitsRemaining(ms term.Term, h term.HeapReader) uint64 {
	bin, _, bitOffset := heap.MatchStateFields(ms, h)
	total := term.BinaryBitLength(bin, h)
	if bitOffset >= total {
		return 0
	}
	return total - bitOffset
}

// opBsGetInteger reads a Size*Unit-bit field under ms's cursor as an
// integer, advancing the cursor past it, and fails to the given label if
// not enough bits remain.
func opBsGetInteger(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	ms, err := m.load(1)
	if err != nil {
		return 0, err
	}
	sizeRaw, err := m.load(2)
	if err != nil {
		return 0, err
	}
	unitRaw, err := m.operand(3)
	if err != nil {
		return 0, err
	}
	_, err = m.operand(4) // Flags: signedness/endianness, unused (always unsigned big-endian)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(5)
	if err != nil {
		return 0, err
	}

	bitLen := uint64(sizeRaw.SmallSigned()) * uint64(unitRaw.SmallSigned())
	if bitLen > bitsRemaining(ms, m.heap) {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}

	bin, _, bitOffset := heap.MatchStateFields(ms, m.heap)
	raw := term.ExtractBits(term.ReadBinaryBytes(bin, m.heap), bitOffset, bitLen)
	value, err := bif.FromBig(new(big.Int).SetBytes(raw), m.heap)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, value); err != nil {
		return 0, err
	}
	advanceMatchState(m.heap, ms, bitLen)
	m.advance(6)
	return Normal, nil
}

// opBsGetBinary reads a Size*Unit-bit field under ms's cursor as a
// sub-binary view, advancing the cursor past it.
func opBsGetBinary(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	ms, err := m.load(1)
	if err != nil {
		return 0, err
	}
	sizeRaw, err := m.load(2)
	if err != nil {
		return 0, err
	}
	unitRaw, err := m.operand(3)
	if err != nil {
		return 0, err
	}
	_, err = m.operand(4) // Flags, unused
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(5)
	if err != nil {
		return 0, err
	}

	bitLen := uint64(sizeRaw.SmallSigned()) * uint64(unitRaw.SmallSigned())
	if bitLen > bitsRemaining(ms, m.heap) {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}

	bin, _, bitOffset := heap.MatchStateFields(ms, m.heap)
	view, err := m.heap.AllocBinarySlice(bin, bitOffset, bitLen)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, view); err != nil {
		return 0, err
	}
	advanceMatchState(m.heap, ms, bitLen)
	m.advance(6)
	return Normal, nil
}

// opBsSkipBits advances ms's cursor past a Size*Unit-bit field without
// reading it, failing to the given label if not enough bits remain.
func opBsSkipBits(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	ms, err := m.load(1)
	if err != nil {
		return 0, err
	}
	sizeRaw, err := m.load(2)
	if err != nil {
		return 0, err
	}
	unitRaw, err := m.operand(3)
	if err != nil {
		return 0, err
	}
	_, err = m.operand(4) // Flags, unused
	if err != nil {
		return 0, err
	}

	bitLen := uint64(sizeRaw.SmallSigned()) * uint64(unitRaw.SmallSigned())
	if bitLen > bitsRemaining(ms, m.heap) {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}
	advanceMatchState(m.heap, ms, bitLen)
	m.advance(5)
	return Normal, nil
}

// opBsTestTail checks that ms's cursor has exactly zero bits remaining,
// failing to the given label otherwise. Real BEAM's bs_test_tail2 checks
// against an implicit current match buffer and an expected remaining-bit
// count; this runtime has no such implicit register, so the operand is
// read directly as the match state to test and the expected count is
// fixed at zero (documented in DESIGN.md as a simplification).
func opBsTestTail(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	ms, err := m.load(1)
	if err != nil {
		return 0, err
	}
	if bitsRemaining(ms, m.heap) != 0 {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}
	m.advance(2)
	return Normal, nil
}

func advanceMatchState(h *heap.Heap, ms term.Term, consumedBits uint64) {
	bin, _, bitOffset := heap.MatchStateFields(ms, h)
	_ = bin
	newBitOffset := bitOffset + consumedBits
	heap.SetMatchStateCursor(h, ms, newBitOffset/8, newBitOffset)
}
