package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/term"
)

func TestAllocBumpsHeapTopMonotonically(t *testing.T) {
	h := New(1024)
	prev := h.HeapTop()
	for i := 0; i < 5; i++ {
		_, err := h.Alloc(3, Uninitialized)
		require.NoError(t, err)
		assert.Greater(t, h.HeapTop(), prev)
		prev = h.HeapTop()
	}
}

func TestAllocZeroWordsSucceeds(t *testing.T) {
	h := New(256)
	p1, err := h.Alloc(0, Uninitialized)
	require.NoError(t, err)
	p2, err := h.Alloc(0, Uninitialized)
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "zero-word allocations return a stable marker pointer")
}

func TestAllocFailsWhenHeapMeetsStack(t *testing.T) {
	h := New(8 * term.WordBytes)
	h.StackAllocUnchecked(4, false)
	_, err := h.Alloc(5, Uninitialized)
	assert.ErrorIs(t, err, ErrHeapIsFull)

	// The exact remaining space still allocates.
	_, err = h.Alloc(4, Uninitialized)
	assert.NoError(t, err)
}

func TestAllocNilModePrefills(t *testing.T) {
	h := New(1024)
	ptr, err := h.Alloc(3, Nil)
	require.NoError(t, err)
	for i := uint64(0); i < 3; i++ {
		assert.Equal(t, uint64(term.Nil()), h.ReadWord(ptr+i*term.WordBytes))
	}
}

func TestAvailabilityChecksMatchAllocOutcome(t *testing.T) {
	h := New(8 * term.WordBytes)
	assert.True(t, h.HeapHasAvailable(8))
	assert.False(t, h.HeapHasAvailable(9))
	assert.True(t, h.StackCheckAvailable(8))
	h.StackAllocUnchecked(2, false)
	assert.False(t, h.HeapHasAvailable(7))
	assert.True(t, h.HeapHasAvailable(6))
}

func TestWalkerVisitsEveryObjectOnce(t *testing.T) {
	h := New(4096)
	tup, err := h.AllocTuple([]term.Term{term.MakeSmallSigned(1), term.MakeSmallSigned(2)})
	require.NoError(t, err)
	cons, err := h.AllocCons(term.MakeSmallSigned(3), term.Nil())
	require.NoError(t, err)
	flt, err := h.AllocFloat(2.5)
	require.NoError(t, err)

	visited := map[uint64]int{}
	w := h.Iter()
	for {
		addr, ok := w.Next()
		if !ok {
			break
		}
		visited[addr]++
	}
	assert.Equal(t, 1, visited[tup.BoxedPtr()])
	assert.Equal(t, 1, visited[flt.BoxedPtr()])
	// A cons cell carries no header; the walker still reaches its first
	// word exactly once because the tuple header before it declared its
	// own full extent.
	assert.Equal(t, 1, visited[cons.ConsPtr()])
}

func TestGuardSentinelWrittenAndChecked(t *testing.T) {
	h := New(1024)
	h.DebugGuards = true
	tup, err := h.AllocTuple([]term.Term{term.MakeSmallSigned(7)})
	require.NoError(t, err)

	assert.NotPanics(t, func() { h.CheckGuard(tup.BoxedPtr(), 2) })
	h.WriteWord(tup.BoxedPtr()+2*term.WordBytes, 0)
	assert.Panics(t, func() { h.CheckGuard(tup.BoxedPtr(), 2) })
}

func TestStackPushAndDeallocateReturnsCP(t *testing.T) {
	h := New(1024)
	cp := term.MakeCodePointer(1, 40)
	h.StackPushTermUnchecked(cp)
	h.StackAllocUnchecked(3, true)

	before := h.StackTop()
	got := h.StackDeallocate(3)
	assert.Equal(t, cp, got)
	assert.Equal(t, before+4*term.WordBytes, h.StackTop(), "stack depth shrinks by n+1 words")
}

func TestStackDeallocateAcceptsNonValueSentinel(t *testing.T) {
	h := New(1024)
	h.StackPushTermUnchecked(term.NonValue)
	h.StackAllocUnchecked(1, true)
	assert.Equal(t, term.NonValue, h.StackDeallocate(1))
}

func TestStackDeallocatePanicsOnNonCP(t *testing.T) {
	h := New(1024)
	h.StackPushTermUnchecked(term.MakeSmallSigned(5))
	h.StackAllocUnchecked(1, true)
	assert.Panics(t, func() { h.StackDeallocate(1) })
}

func TestGetYSetYRoundTripAndRangeCheck(t *testing.T) {
	h := New(1024)
	h.StackPushTermUnchecked(term.MakeCodePointer(0, 0))
	h.StackAllocUnchecked(2, true)

	require.NoError(t, h.SetY(0, term.MakeSmallSigned(11)))
	require.NoError(t, h.SetY(1, term.MakeSmallSigned(22)))
	v, err := h.GetY(0)
	require.NoError(t, err)
	assert.Equal(t, term.MakeSmallSigned(11), v)

	_, err = h.GetY(4096)
	var rangeErr *ErrStackIndexRange
	assert.ErrorAs(t, err, &rangeErr)
}

func TestStackTrimDropsLowYCells(t *testing.T) {
	h := New(1024)
	h.StackPushTermUnchecked(term.MakeCodePointer(0, 0))
	h.StackAllocUnchecked(3, true)
	require.NoError(t, h.SetY(2, term.MakeSmallSigned(99)))

	h.StackTrim(2)
	v, err := h.GetY(0)
	require.NoError(t, err)
	assert.Equal(t, term.MakeSmallSigned(99), v, "surviving cell is renumbered down to y0")
}

func TestUnrollStackUntilCatchFindsNearestMarker(t *testing.T) {
	h := New(1024)
	h.StackPushTermUnchecked(term.MakeCodePointer(2, 7))
	h.StackPushTermUnchecked(term.MakeCatch(2, 50))
	h.StackPushTermUnchecked(term.MakeSmallSigned(1))
	h.StackPushTermUnchecked(term.MakeSmallSigned(2))

	mod, off, drop, ok := h.UnrollStackUntilCatch()
	require.True(t, ok)
	assert.Equal(t, uint64(2), mod)
	assert.Equal(t, uint64(50), off)
	assert.Equal(t, uint64(3), drop, "two values above the marker plus the marker itself")

	h.StackTrim(drop)
	assert.Equal(t, term.MakeCodePointer(2, 7), h.StackDeallocate(0),
		"after the drop the frame's CP is back on top")
}

func TestUnrollStackUntilCatchReportsNoneOnCleanStack(t *testing.T) {
	h := New(1024)
	h.StackPushTermUnchecked(term.MakeCodePointer(0, 7))
	_, _, _, ok := h.UnrollStackUntilCatch()
	assert.False(t, ok)
}
