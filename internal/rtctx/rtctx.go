// Package rtctx holds the runtime context swapped into the active
// registers for whichever process the scheduler is currently running:
// the instruction pointer, the one-deep continuation pointer, the
// X and float register files, the GC root-set hint, and the reduction
// budget that bounds one inner-loop run.
package rtctx

import (
	"fmt"
	"math"

	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// NumXRegisters is the fixed size of the X register file.
const NumXRegisters = 256

// NumFloatRegisters is the fixed size of the float register file.
const NumFloatRegisters = 16

// FetchOpcodeCost is the fixed reduction charge taken by every opcode
// fetch, independent of which opcode it turns out to be.
const FetchOpcodeCost = 1

// Context is the register state belonging to exactly one process at a
// time. It is a plain struct — the scheduler swaps processes by pointing
// the dispatch loop at a different Context, not by copying register
// contents around.
type Context struct {
	IP uint64 // next instruction's offset into Module.Code
	CP term.Term

	X [NumXRegisters]term.Term
	F [NumFloatRegisters]float64

	// Live is how many leading X registers hold meaningful values; used
	// as a GC root-set hint by a future collector and by call/call_fun
	// to know how many arguments to carry across.
	Live uint64

	Reductions int64
}

// New returns a zeroed context with every X register set to NonValue, so
// an uninitialized register is never mistaken for a live term.
func New() *Context {
	c := &Context{}
	for i := range c.X {
		c.X[i] = term.NonValue
	}
	return c
}

// FetchOpcode reads the opcode cell at IP, advances IP past it, and
// charges the fixed fetch cost. Returns an error if the cell is not
// SPECIAL/OPCODE — code never fetches into the middle of its own operand
// stream if the loader built it correctly, so this is a fatal internal
// check, not a recoverable one.
func (c *Context) FetchOpcode(code []term.Term) (uint64, error) {
	if c.IP >= uint64(len(code)) {
		return 0, fmt.Errorf("rtctx: ip %d past end of code (len %d)", c.IP, len(code))
	}
	cell := code[c.IP]
	if !cell.IsOpcodeCell() {
		return 0, fmt.Errorf("rtctx: ip %d does not point at an opcode cell", c.IP)
	}
	c.Reductions -= FetchOpcodeCost
	op := cell.OpcodeValue()
	c.IP++
	return op, nil
}

// ReadTermAt reads the raw operand at IP+offset with no interpretation:
// op_arg_read_term_at.
func (c *Context) ReadTermAt(code []term.Term, offset uint64) (term.Term, error) {
	idx := c.IP + offset
	if idx >= uint64(len(code)) {
		return 0, fmt.Errorf("rtctx: operand offset %d past end of code", idx)
	}
	return code[idx], nil
}

// LoadTermAt reads the raw operand at IP+offset and, if it is a register
// reference, loads the value it names: op_arg_load_term_at.
func (c *Context) LoadTermAt(code []term.Term, offset uint64, h *heap.Heap) (term.Term, error) {
	raw, err := c.ReadTermAt(code, offset)
	if err != nil {
		return 0, err
	}
	return c.Load(raw, h)
}

// Load resolves a single already-read operand: if it names a register it
// returns the register's current value, otherwise it returns the operand
// unchanged (an immediate or a resolved pointer).
func (c *Context) Load(raw term.Term, h *heap.Heap) (term.Term, error) {
	if !raw.IsRegister() {
		return raw, nil
	}
	idx := raw.RegisterIndex()
	switch raw.RegisterKind() {
	case term.RegX:
		if idx >= NumXRegisters {
			return 0, fmt.Errorf("rtctx: x register %d out of range", idx)
		}
		return c.X[idx], nil
	case term.RegY:
		v, err := h.GetY(idx)
		if err != nil {
			return 0, err
		}
		return v, nil
	case term.RegFloat:
		if idx >= NumFloatRegisters {
			return 0, fmt.Errorf("rtctx: float register %d out of range", idx)
		}
		return term.MakeSmallSigned(int64(math.Float64bits(c.F[idx]))), nil
	default:
		return 0, fmt.Errorf("rtctx: unknown register kind %v", raw.RegisterKind())
	}
}

// Store writes value into the register dst names. Storing into anything
// other than a register reference is a fatal internal error.
func (c *Context) Store(dst, value term.Term, h *heap.Heap) error {
	if !dst.IsRegister() {
		return fmt.Errorf("rtctx: store destination %v is not a register", dst)
	}
	if value.IsNonValue() {
		return fmt.Errorf("rtctx: refusing to store non-value into %v", dst)
	}
	idx := dst.RegisterIndex()
	switch dst.RegisterKind() {
	case term.RegX:
		if idx >= NumXRegisters {
			return fmt.Errorf("rtctx: x register %d out of range", idx)
		}
		c.X[idx] = value
		return nil
	case term.RegY:
		return h.SetY(idx, value)
	case term.RegFloat:
		if idx >= NumFloatRegisters {
			return fmt.Errorf("rtctx: float register %d out of range", idx)
		}
		c.F[idx] = math.Float64frombits(uint64(value.SmallSigned()))
		return nil
	default:
		return fmt.Errorf("rtctx: unknown register kind %v", dst.RegisterKind())
	}
}
