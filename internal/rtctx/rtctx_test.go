package rtctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

func TestNewContextXRegistersStartNonValue(t *testing.T) {
	c := New()
	for i := range c.X {
		assert.True(t, c.X[i].IsNonValue())
	}
}

func TestFetchOpcodeChargesFixedCostAndAdvances(t *testing.T) {
	c := New()
	c.Reductions = 10
	code := []term.Term{term.MakeOpcode(7), term.MakeSmallSigned(1)}

	op, err := c.FetchOpcode(code)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), op)
	assert.Equal(t, uint64(1), c.IP)
	assert.Equal(t, int64(10-FetchOpcodeCost), c.Reductions)
}

func TestFetchOpcodeRejectsNonOpcodeCell(t *testing.T) {
	c := New()
	_, err := c.FetchOpcode([]term.Term{term.MakeSmallSigned(3)})
	assert.Error(t, err)
}

func TestFetchOpcodeRejectsIPPastEnd(t *testing.T) {
	c := New()
	c.IP = 5
	_, err := c.FetchOpcode([]term.Term{term.MakeOpcode(0)})
	assert.Error(t, err)
}

func TestLoadResolvesXRegisterOperand(t *testing.T) {
	c := New()
	h := heap.New(256)
	c.X[3] = term.MakeSmallSigned(42)

	v, err := c.Load(term.MakeRegisterX(3), h)
	require.NoError(t, err)
	assert.Equal(t, term.MakeSmallSigned(42), v)
}

func TestLoadPassesImmediatesThrough(t *testing.T) {
	c := New()
	h := heap.New(256)
	v, err := c.Load(term.MakeAtom(9), h)
	require.NoError(t, err)
	assert.Equal(t, term.MakeAtom(9), v)
}

func TestLoadResolvesYRegisterFromStack(t *testing.T) {
	c := New()
	h := heap.New(256)
	h.StackPushTermUnchecked(term.MakeCodePointer(0, 0))
	h.StackAllocUnchecked(1, true)
	require.NoError(t, h.SetY(0, term.MakeSmallSigned(5)))

	v, err := c.Load(term.MakeRegisterY(0), h)
	require.NoError(t, err)
	assert.Equal(t, term.MakeSmallSigned(5), v)
}

func TestStoreWritesRegistersAndRejectsNonRegisters(t *testing.T) {
	c := New()
	h := heap.New(256)

	require.NoError(t, c.Store(term.MakeRegisterX(1), term.MakeAtom(4), h))
	assert.Equal(t, term.MakeAtom(4), c.X[1])

	assert.Error(t, c.Store(term.MakeAtom(4), term.MakeAtom(4), h),
		"storing into a non-register operand is a fatal internal error")
}

func TestStoreRefusesNonValue(t *testing.T) {
	c := New()
	h := heap.New(256)
	assert.Error(t, c.Store(term.MakeRegisterX(0), term.NonValue, h))
}

func TestReadTermAtOffsetsFromIP(t *testing.T) {
	c := New()
	c.IP = 1
	code := []term.Term{term.MakeOpcode(0), term.MakeSmallSigned(10), term.MakeSmallSigned(20)}

	v, err := c.ReadTermAt(code, 1)
	require.NoError(t, err)
	assert.Equal(t, term.MakeSmallSigned(20), v)

	_, err = c.ReadTermAt(code, 5)
	assert.Error(t, err)
}
