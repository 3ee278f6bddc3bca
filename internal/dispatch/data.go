package dispatch

import (
	"errors"

	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// errStackFull is returned when allocate/allocate_heap cannot reserve the
// requested Y cells; like heap.ErrHeapIsFull, internal/vm treats this as
// fatal for the process rather than a GC request point (no collector is
// implemented).
var errStackFull = errors.New("dispatch: stack is full")

// opAllocate reserves nStack Y cells for the current function's frame,
// first pushing the CP opCall left in the register so stack_deallocate
// always finds it sitting beneath the frame it pops (see internal/heap's
// stack doc comment). zero selects allocate_zero's nil-prefill variant,
// used wherever the compiler cannot prove every cell is written before
// the next GC-safe point.
func opAllocate(zero bool) handlerFunc {
	return func(m *machine) (Result, error) {
		nRaw, err := m.operand(0)
		if err != nil {
			return 0, err
		}
		n := uint64(nRaw.SmallSigned())
		if !m.heap.StackCheckAvailable(n + 1) {
			return 0, errStackFull
		}
		m.heap.StackPushTermUnchecked(m.ctx.CP)
		m.heap.StackAllocUnchecked(n, zero)
		m.advance(2) // (StackNeeded, Live)
		return Normal, nil
	}
}

// opAllocateHeap is allocate plus a heap-availability check for the
// upcoming function body's worst-case allocation (HeapNeeded); this
// runtime has no collector to trigger, so a failed check is fatal rather
// than a GC request point (see DESIGN.md).
func opAllocateHeap(zero bool) handlerFunc {
	return func(m *machine) (Result, error) {
		nRaw, err := m.operand(0)
		if err != nil {
			return 0, err
		}
		heapNeeded, err := m.operand(1)
		if err != nil {
			return 0, err
		}
		n := uint64(nRaw.SmallSigned())
		if !m.heap.StackCheckAvailable(n + 1) {
			return 0, errStackFull
		}
		if !m.heap.HeapHasAvailable(uint64(heapNeeded.SmallSigned())) {
			return 0, heap.ErrHeapIsFull
		}
		m.heap.StackPushTermUnchecked(m.ctx.CP)
		m.heap.StackAllocUnchecked(n, zero)
		m.advance(3) // (StackNeeded, HeapNeeded, Live)
		return Normal, nil
	}
}

// opTestHeap checks the upcoming heap allocation up front, same
// fatal-on-exhaustion convention as allocate_heap, without touching the
// stack.
func opTestHeap(m *machine) (Result, error) {
	heapNeeded, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	if !m.heap.HeapHasAvailable(uint64(heapNeeded.SmallSigned())) {
		return 0, heap.ErrHeapIsFull
	}
	m.advance(2) // (HeapNeeded, Live)
	return Normal, nil
}

// opTrim drops the lowest-numbered, now-dead Y cells of the current
// frame, used once the compiler knows their values will never be read
// again (shrinking the live root set ahead of a call).
func opTrim(m *machine) (Result, error) {
	nRaw, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	m.heap.StackTrim(uint64(nRaw.SmallSigned()))
	m.advance(2) // (N, Remaining)
	return Normal, nil
}

// opInit nils out a single Y cell, used for variables the compiler wants
// cleared ahead of a GC-safe point without reserving a fresh cell for them.
func opInit(m *machine) (Result, error) {
	yDst, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	if err := m.store(yDst, term.Nil()); err != nil {
		return 0, err
	}
	m.advance(1)
	return Normal, nil
}

// opDeallocate pops N Y-cells and the CP beneath them, restoring ctx.CP so
// a following `return` jumps to the right place.
func opDeallocate(m *machine) (Result, error) {
	nRaw, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	m.ctx.CP = m.heap.StackDeallocate(uint64(nRaw.SmallSigned()))
	m.advance(1)
	return Normal, nil
}

func opMove(m *machine) (Result, error) {
	src, err := m.load(0)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, src); err != nil {
		return 0, err
	}
	m.advance(2)
	return Normal, nil
}

// opGetList destructures a cons cell into its head and tail registers in
// one step (the compiler's usual way of reading a list pattern).
func opGetList(m *machine) (Result, error) {
	src, err := m.load(0)
	if err != nil {
		return 0, err
	}
	hdDst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	tlDst, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	if err := m.store(hdDst, term.ConsHead(src, m.heap)); err != nil {
		return 0, err
	}
	if err := m.store(tlDst, term.ConsTail(src, m.heap)); err != nil {
		return 0, err
	}
	m.advance(3)
	return Normal, nil
}

func opGetHd(m *machine) (Result, error) {
	src, err := m.load(0)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, term.ConsHead(src, m.heap)); err != nil {
		return 0, err
	}
	m.advance(2)
	return Normal, nil
}

func opGetTl(m *machine) (Result, error) {
	src, err := m.load(0)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, term.ConsTail(src, m.heap)); err != nil {
		return 0, err
	}
	m.advance(2)
	return Normal, nil
}

// opPutList conses Head onto Tail and stores the result, the inverse of
// get_list.
func opPutList(m *machine) (Result, error) {
	head, err := m.load(0)
	if err != nil {
		return 0, err
	}
	tail, err := m.load(1)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	cell, err := m.heap.AllocCons(head, tail)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, cell); err != nil {
		return 0, err
	}
	m.advance(3)
	return Normal, nil
}

func opGetTupleElement(m *machine) (Result, error) {
	src, err := m.load(0)
	if err != nil {
		return 0, err
	}
	idxRaw, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	elem := term.TupleElem(src, int(idxRaw.SmallSigned()), m.heap)
	if err := m.store(dst, elem); err != nil {
		return 0, err
	}
	m.advance(3)
	return Normal, nil
}

// opSetTupleElement destructively overwrites a tuple slot in place: only
// ever emitted by the compiler immediately after the tuple's own
// construction, before any other reference to it can exist.
func opSetTupleElement(m *machine) (Result, error) {
	value, err := m.load(0)
	if err != nil {
		return 0, err
	}
	dstTuple, err := m.load(1)
	if err != nil {
		return 0, err
	}
	idxRaw, err := m.operand(2)
	if err != nil {
		return 0, err
	}
	addr := dstTuple.BoxedPtr() + (1+uint64(idxRaw.SmallSigned()))*term.WordBytes
	m.heap.WriteWord(addr, uint64(value))
	m.advance(3)
	return Normal, nil
}

// opPutTuple begins a tuple's construction: the header is reserved
// immediately (every element defaults to nil so the heap stays walkable
// mid-construction) and the following N `put` instructions fill each slot
// in turn, tracked via proc.TupleBuild since the handler itself is
// rebuilt fresh every Step.
func opPutTuple(m *machine) (Result, error) {
	nRaw, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	n := uint64(nRaw.SmallSigned())
	elems := make([]term.Term, n)
	for i := range elems {
		elems[i] = term.Nil()
	}
	tup, err := m.heap.AllocTuple(elems)
	if err != nil {
		return 0, err
	}
	if err := m.store(dst, tup); err != nil {
		return 0, err
	}
	m.proc.TupleBuild.Ptr = tup.BoxedPtr()
	m.proc.TupleBuild.Next = 0
	m.advance(2)
	return Normal, nil
}

// opPut fills the next slot of the tuple currently under construction by
// put_tuple.
func opPut(m *machine) (Result, error) {
	value, err := m.load(0)
	if err != nil {
		return 0, err
	}
	addr := m.proc.TupleBuild.Ptr + (1+m.proc.TupleBuild.Next)*term.WordBytes
	m.heap.WriteWord(addr, uint64(value))
	m.proc.TupleBuild.Next++
	m.advance(1)
	return Normal, nil
}
