package heap

import (
	"j5.nz/beamrt/internal/term"
)

// The stack grows downward from capacity; stackTop is the byte offset of
// the most recently pushed word. Y registers are addressed as offsets
// above stackTop: y(0) is the word at stackTop, y(1) the next word toward
// capacity, and so on. The dispatcher's `allocate` handler pushes the
// current continuation pointer as a plain word before it reserves the Y
// cells above it, so stack_deallocate's caller always finds a CP on top
// once it has dropped back past its own frame's Y cells.

// StackAllocUnchecked reserves nWords Y-cells by moving stackTop down,
// optionally pre-filling them with nil so a partially built frame can be
// walked safely. Callers must have already checked StackCheckAvailable.
func (h *Heap) StackAllocUnchecked(nWords uint64, fillNil bool) {
	h.stackTop -= nWords * term.WordBytes
	if fillNil {
		nilWord := uint64(term.Nil())
		for i := uint64(0); i < nWords; i++ {
			h.WriteWord(h.base+h.stackTop+i*term.WordBytes, nilWord)
		}
	}
}

// StackPushTermUnchecked pushes a single term (typically a CP) onto the
// stack. Callers must have already checked StackCheckAvailable(1).
func (h *Heap) StackPushTermUnchecked(t term.Term) {
	h.stackTop -= term.WordBytes
	h.WriteWord(h.base+h.stackTop, uint64(t))
}

// StackDeallocate pops n Y-cells and then the CP that must be sitting on
// top of them, returning that CP. Asserts the popped word is either a code
// pointer or the NonValue sentinel — the latter is what allocate pushed if
// this frame belongs to a process's entry function, which has no caller to
// return to, and opReturn treats NonValue as "terminate". Anything else is
// an internal-consistency check, not a user-facing error, since a malformed
// instruction stream is the only way to violate it.
func (h *Heap) StackDeallocate(n uint64) term.Term {
	h.stackTop += n * term.WordBytes
	cp := term.FromRaw(h.ReadWord(h.base + h.stackTop))
	h.stackTop += term.WordBytes
	if !cp.IsCodePointer() && !cp.IsNonValue() {
		panic("heap: stack_deallocate did not find a CP on top of the frame")
	}
	return cp
}

// StackTrim drops the n dead Y-cells lowest-numbered in the current frame
// (the ones closest to stackTop) by moving stackTop past them. The
// remaining live cells need no copying: their addresses do not change,
// only their Y-index does, since Y-index is always relative to the
// (now-adjusted) stackTop.
func (h *Heap) StackTrim(n uint64) {
	h.stackTop += n * term.WordBytes
}

func (h *Heap) yAddr(i uint64) (uint64, error) {
	off := h.stackTop + i*term.WordBytes
	if off+term.WordBytes > h.cap || off < h.heapTop {
		return 0, &ErrStackIndexRange{Index: int(i)}
	}
	return h.base + off, nil
}

// GetY reads Y-register i, returning ErrStackIndexRange if i addresses
// outside the live stack region.
func (h *Heap) GetY(i uint64) (term.Term, error) {
	addr, err := h.yAddr(i)
	if err != nil {
		return 0, err
	}
	return term.FromRaw(h.ReadWord(addr)), nil
}

// SetY writes Y-register i, returning ErrStackIndexRange if i addresses
// outside the live stack region.
func (h *Heap) SetY(i uint64, v term.Term) error {
	addr, err := h.yAddr(i)
	if err != nil {
		return err
	}
	h.WriteWord(addr, uint64(v))
	return nil
}

// UnrollStackUntilCatch scans Y-cells from the stack top looking for the
// first SPECIAL/CATCH marker. If found, it returns the handler's module
// atom and code offset plus how many words the caller must drop from the
// stack so that the frame's CP is left on top (the catch marker itself
// counts toward the drop). ok is false if the scan reaches the top of the
// allocated stack region without finding a marker.
func (h *Heap) UnrollStackUntilCatch() (handlerModule, handlerOffset, dropWords uint64, ok bool) {
	for i := uint64(0); ; i++ {
		off := h.stackTop + i*term.WordBytes
		if off+term.WordBytes > h.cap {
			return 0, 0, 0, false
		}
		w := term.FromRaw(h.ReadWord(h.base + off))
		if w.IsCatch() {
			return w.CatchModule(), w.CatchTarget(), i + 1, true
		}
	}
}
