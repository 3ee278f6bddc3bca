// Package code owns loaded modules, keyed by atom, and resolves
// {module, function, arity} triples to code pointers.
package code

import (
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// MFA identifies a callable by module atom, function atom and arity.
type MFA struct {
	Module   uint64
	Function uint64
	Arity    int
}

// FuncKey is the {function, arity} half of an MFA, used as a Module's own
// export-table key (the module half is implicit).
type FuncKey struct {
	Function uint64
	Arity    int
}

// Lambda is one FunT entry: a module-local closure template, resolved at
// make_fun2 time into a heap-allocated Closure box.
type Lambda struct {
	Function uint64 // atom index
	Arity    uint64
	Label    uint64 // entry offset into Code
	Index    uint64
	NumFree  uint64
	OldUniq  uint64
}

// Module is one loaded BEAM module: its instruction stream (opcode cells
// and pre-decoded operands, flattened into one term.Term array) plus the
// tables the loader resolved while installing it.
type Module struct {
	Name    uint64 // atom index
	Version uint64

	Code []term.Term

	// Exports maps every {function,arity} named in the ExpT chunk to its
	// func_info-preceded entry offset into Code.
	Exports map[FuncKey]uint64

	// Local functions (LocT) resolve the same way as Exports but are not
	// callable from another module.
	Locals map[FuncKey]uint64

	Lambdas []Lambda

	// Literals is this module's own literal heap: immutable for the
	// module's lifetime, never freed while it is loaded.
	Literals *heap.Heap
}

// EntryFor resolves a {function,arity} pair to its code offset, checking
// exports first and then local functions (erlang:apply/3-style calls only
// ever need exports, but the loader's own label fixups address both).
func (m *Module) EntryFor(fn uint64, arity int) (uint64, bool) {
	if off, ok := m.Exports[FuncKey{fn, arity}]; ok {
		return off, true
	}
	if off, ok := m.Locals[FuncKey{fn, arity}]; ok {
		return off, true
	}
	return 0, false
}
