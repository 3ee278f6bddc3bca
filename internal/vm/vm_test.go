package vm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/loader"
	"j5.nz/beamrt/internal/process"
	"j5.nz/beamrt/internal/term"
)

// installModule hand-assembles a single-function module directly onto the
// VM's code server, bypassing the loader entirely: internal/loader already
// has its own decode tests, so these exercise internal/vm's tick loop and
// internal/dispatch's handlers against instruction streams built the way a
// loader would leave them, not the loader itself.
func installModule(v *VM, modName string, funName string, arity int, code_ []term.Term) code.MFA {
	modAtom := v.atoms.Intern(modName)
	funAtom := v.atoms.Intern(funName)
	m := &code.Module{
		Name:    modAtom,
		Code:    code_,
		Exports: map[code.FuncKey]uint64{{Function: funAtom, Arity: arity}: 0},
	}
	v.code.Install(m)
	return code.MFA{Module: modAtom, Function: funAtom, Arity: arity}
}

// funcInfo returns the 4-cell func_info prefix every function entry
// carries; opFuncInfo never reads its operands, so their values only
// matter for readability.
func funcInfo(v *VM, modName, funName string, arity int) []term.Term {
	return []term.Term{
		term.MakeOpcode(uint64(loader.OpFuncInfo)),
		term.MakeAtom(v.atoms.Intern(modName)),
		term.MakeAtom(v.atoms.Intern(funName)),
		term.MakeSmallSigned(int64(arity)),
	}
}

func TestTickRunsEntryFunctionToReturn(t *testing.T) {
	v := New(nil)

	prog := funcInfo(v, "greet", "hello", 0)
	prog = append(prog,
		term.MakeOpcode(uint64(loader.OpMove)),
		term.MakeAtom(v.atoms.Intern("hiya")),
		term.MakeRegisterX(0),
		term.MakeOpcode(uint64(loader.OpReturn)),
	)
	mfa := installModule(v, "greet", "hello", 0, prog)

	pid, err := v.Spawn(mfa, nil)
	require.NoError(t, err)

	v.Run()

	assert.True(t, v.Scheduler().Idle())
	_, stillRegistered := v.Registry().Lookup(pid)
	assert.False(t, stillRegistered, "process should be removed from the registry once it returns")
}

// TestUnwindCatchesRaiseAndResumes mirrors the concrete "try ... catch"
// scenario: a raise/2 inside a protected region unwinds to the try_case
// handler, which rewrites x0 to 'ok and lets the function return normally
// instead of crashing the process.
//
// The frame reserves two Y cells, not one: unwind drops the catch marker's
// own cell along with everything above it, so try_case's y0 operand must
// still address a live cell once that drop has happened. A real compiler
// leaves a spare cell there for exactly this reason; allocating only the
// marker's own cell would make try_case's store walk off the live stack
// region.
func TestUnwindCatchesRaiseAndResumes(t *testing.T) {
	v := New(nil)

	const handlerOffset = 10
	modAtom := v.atoms.Intern("guarded")
	prog := funcInfo(v, "guarded", "run", 0)
	prog = append(prog,
		term.MakeOpcode(uint64(loader.OpTry)), // idx4
		term.MakeRegisterY(0),
		term.MakeCodePointer(modAtom, handlerOffset),
		term.MakeOpcode(uint64(loader.OpRaise)), // idx7
		term.MakeAtom(atomtable.AtomError),
		term.MakeAtom(atomtable.AtomBadarg),
		term.MakeOpcode(uint64(loader.OpTryCase)), // idx10 == handlerOffset
		term.MakeRegisterY(0),
		term.MakeOpcode(uint64(loader.OpMove)), // idx12
		term.MakeAtom(atomtable.AtomOk),
		term.MakeRegisterX(0),
		term.MakeOpcode(uint64(loader.OpReturn)), // idx15
	)
	mfa := installModule(v, "guarded", "run", 0, prog)

	pid, err := v.Spawn(mfa, nil)
	require.NoError(t, err)

	proc, ok := v.Registry().Lookup(pid)
	require.True(t, ok)
	proc.Heap.StackAllocUnchecked(2, true)

	v.Run()

	assert.Equal(t, term.MakeAtom(atomtable.AtomOk), proc.Ctx.X[0])
	assert.Equal(t, 0, proc.NumCatches)
	assert.Equal(t, process.StatusExited, proc.Status)
}

// TestUnwindWithNoCatchTerminatesProcess exercises the opposite path: a
// raise with no open catch frame has nowhere to unwind to, so Tick tears
// the process down instead of looping.
func TestUnwindWithNoCatchTerminatesProcess(t *testing.T) {
	v := New(nil)

	prog := funcInfo(v, "unguarded", "run", 0)
	prog = append(prog,
		term.MakeOpcode(uint64(loader.OpRaise)),
		term.MakeAtom(atomtable.AtomError),
		term.MakeAtom(atomtable.AtomBadarg),
	)
	mfa := installModule(v, "unguarded", "run", 0, prog)

	pid, err := v.Spawn(mfa, nil)
	require.NoError(t, err)

	v.Run()

	_, stillRegistered := v.Registry().Lookup(pid)
	assert.False(t, stillRegistered)
	assert.True(t, v.Scheduler().Idle())
}

// TestSpawnUnknownMFAFails checks that naming a function nothing exports
// is reported as an error rather than spawning a half-built process.
func TestSpawnUnknownMFAFails(t *testing.T) {
	v := New(nil)
	_, err := v.Spawn(code.MFA{Module: v.atoms.Intern("nope"), Function: v.atoms.Intern("nope"), Arity: 0}, nil)
	assert.Error(t, err)
}

func TestPlainArgumentsBuildsCharListPerArgument(t *testing.T) {
	v := New(nil)
	list, err := v.PlainArguments([]string{"hi"})
	require.NoError(t, err)

	assert.True(t, list.Tag() == term.TagCons)
}

// TestCallExtCrossesModulesAndReturns spawns a function in one module
// that call_ext's into a second module and returns: the continuation
// pointer must carry the caller's module so `return` lands back in the
// caller's own instruction stream, not at the same offset of the
// callee's.
func TestCallExtCrossesModulesAndReturns(t *testing.T) {
	v := New(nil)

	calleeProg := funcInfo(v, "callee", "answer", 0)
	calleeProg = append(calleeProg,
		term.MakeOpcode(uint64(loader.OpMove)),
		term.MakeAtom(v.atoms.Intern("from_callee")),
		term.MakeRegisterX(0),
		term.MakeOpcode(uint64(loader.OpReturn)),
	)
	installModule(v, "callee", "answer", 0, calleeProg)

	// The import box the loader would have left in the caller's stream.
	lits := heap.New(1024)
	importBox, err := lits.AllocImport(v.atoms.Intern("callee"), v.atoms.Intern("answer"), 0)
	require.NoError(t, err)

	callerProg := funcInfo(v, "caller", "run", 0)
	callerProg = append(callerProg,
		term.MakeOpcode(uint64(loader.OpAllocate)), // idx4
		term.MakeSmallSigned(0),
		term.MakeSmallSigned(0),
		term.MakeOpcode(uint64(loader.OpCallExt)), // idx7
		term.MakeSmallSigned(0),
		importBox,
		term.MakeOpcode(uint64(loader.OpDeallocate)), // idx10: return lands here
		term.MakeSmallSigned(0),
		term.MakeOpcode(uint64(loader.OpReturn)),
	)
	callerMod := &code.Module{
		Name:     v.atoms.Intern("caller"),
		Code:     callerProg,
		Exports:  map[code.FuncKey]uint64{{Function: v.atoms.Intern("run"), Arity: 0}: 0},
		Literals: lits,
	}
	v.code.Install(callerMod)

	pid, err := v.Spawn(code.MFA{Module: callerMod.Name, Function: v.atoms.Intern("run"), Arity: 0}, nil)
	require.NoError(t, err)

	proc, ok := v.Registry().Lookup(pid)
	require.True(t, ok)

	v.Run()

	assert.Equal(t, term.MakeAtom(v.atoms.Intern("from_callee")), proc.Ctx.X[0])
	assert.Equal(t, callerMod.Name, proc.Module.Name,
		"return must restore the caller's module")
}

// TestSelectValZeroPairsJumpsToFail checks the degenerate jump table: no
// candidate pairs at all means the fail label is taken unconditionally.
func TestSelectValZeroPairsJumpsToFail(t *testing.T) {
	v := New(nil)
	modAtom := v.atoms.Intern("sel")

	prog := funcInfo(v, "sel", "run", 1)
	prog = append(prog,
		term.MakeOpcode(uint64(loader.OpSelectVal)), // idx4
		term.MakeRegisterX(0),
		term.MakeCodePointer(modAtom, 8),
		term.MakeSmallSigned(0), // zero (value, label) pairs
		term.MakeOpcode(uint64(loader.OpMove)), // idx8
		term.MakeAtom(v.atoms.Intern("fell_through")),
		term.MakeRegisterX(0),
		term.MakeOpcode(uint64(loader.OpReturn)),
	)
	mfa := installModule(v, "sel", "run", 1, prog)

	pid, err := v.Spawn(mfa, []term.Term{term.MakeSmallSigned(99)})
	require.NoError(t, err)
	proc, _ := v.Registry().Lookup(pid)

	v.Run()

	assert.Equal(t, term.MakeAtom(v.atoms.Intern("fell_through")), proc.Ctx.X[0])
}

// TestSendReceiveTupleRoundTrip is the full messaging path: a sender
// builds {ok,[1,2,3]} on its own heap, sends it, and the receiver's
// remove_message leaves a structurally equal copy on the receiver's heap.
func TestSendReceiveTupleRoundTrip(t *testing.T) {
	v := New(nil)
	rcvAtom := v.atoms.Intern("rcv")

	rcvProg := funcInfo(v, "rcv", "recv", 0)
	rcvProg = append(rcvProg,
		term.MakeOpcode(uint64(loader.OpLoopRec)), // idx4
		term.MakeCodePointer(rcvAtom, 9),
		term.MakeRegisterX(0),
		term.MakeOpcode(uint64(loader.OpRemoveMessage)), // idx7
		term.MakeOpcode(uint64(loader.OpReturn)),        // idx8
		term.MakeOpcode(uint64(loader.OpWait)),          // idx9
		term.MakeCodePointer(rcvAtom, 4),
	)
	rcvMFA := installModule(v, "rcv", "recv", 0, rcvProg)

	okAtom := v.atoms.Intern("ok")
	sndProg := funcInfo(v, "snd", "send_to", 1)
	sndProg = append(sndProg,
		// Build [1,2,3] in x2.
		term.MakeOpcode(uint64(loader.OpMove)),
		term.Nil(),
		term.MakeRegisterX(2),
		term.MakeOpcode(uint64(loader.OpPutList)),
		term.MakeSmallSigned(3),
		term.MakeRegisterX(2),
		term.MakeRegisterX(2),
		term.MakeOpcode(uint64(loader.OpPutList)),
		term.MakeSmallSigned(2),
		term.MakeRegisterX(2),
		term.MakeRegisterX(2),
		term.MakeOpcode(uint64(loader.OpPutList)),
		term.MakeSmallSigned(1),
		term.MakeRegisterX(2),
		term.MakeRegisterX(2),
		// Build {ok, List} in x1 and send it to the pid in x0.
		term.MakeOpcode(uint64(loader.OpPutTuple)),
		term.MakeSmallSigned(2),
		term.MakeRegisterX(1),
		term.MakeOpcode(uint64(loader.OpPut)),
		term.MakeAtom(okAtom),
		term.MakeOpcode(uint64(loader.OpPut)),
		term.MakeRegisterX(2),
		term.MakeOpcode(uint64(loader.OpSend)),
		term.MakeOpcode(uint64(loader.OpReturn)),
	)
	sndMFA := installModule(v, "snd", "send_to", 1, sndProg)

	rcvPid, err := v.Spawn(rcvMFA, nil)
	require.NoError(t, err)
	rcvProc, _ := v.Registry().Lookup(rcvPid)

	_, err = v.Spawn(sndMFA, []term.Term{term.MakeLocalPid(rcvPid)})
	require.NoError(t, err)

	v.Run()

	got := rcvProc.Ctx.X[0]
	require.Equal(t, term.TagBoxed, got.Tag(), "receiver got the tuple")
	assert.Equal(t, 2, term.TupleArity(got, rcvProc.Heap))
	assert.Equal(t, term.MakeAtom(okAtom), term.TupleElem(got, 0, rcvProc.Heap))

	list := term.TupleElem(got, 1, rcvProc.Heap)
	require.Equal(t, term.TagCons, list.Tag())
	assert.True(t, rcvProc.Heap.Contains(list.ConsPtr()),
		"the copied list lives inside the receiver's own heap")
	want := []int64{1, 2, 3}
	for _, expect := range want {
		require.Equal(t, term.TagCons, list.Tag())
		assert.Equal(t, term.MakeSmallSigned(expect), term.ConsHead(list, rcvProc.Heap))
		list = term.ConsTail(list, rcvProc.Heap)
	}
	assert.True(t, list.IsNil())
}

// TestAddOverflowsSmallIntoBignum drives erlang:'+'/2 through a bif2
// instruction at the exact top of the small-integer range: the result no
// longer fits a SMALL_INT and must come back as a boxed bignum.
func TestAddOverflowsSmallIntoBignum(t *testing.T) {
	v := New(nil)

	lits := heap.New(1024)
	plusBox, err := lits.AllocImport(atomtable.AtomErlang, v.atoms.Intern("+"), 2)
	require.NoError(t, err)

	prog := funcInfo(v, "math", "bump", 2)
	prog = append(prog,
		term.MakeOpcode(uint64(loader.OpBif2)), // idx4
		term.Nil(),                             // no fail label: errors raise
		plusBox,
		term.MakeRegisterX(0),
		term.MakeRegisterX(1),
		term.MakeRegisterX(0),
		term.MakeOpcode(uint64(loader.OpReturn)),
	)
	mathMod := &code.Module{
		Name:     v.atoms.Intern("math"),
		Code:     prog,
		Exports:  map[code.FuncKey]uint64{{Function: v.atoms.Intern("bump"), Arity: 2}: 0},
		Literals: lits,
	}
	v.code.Install(mathMod)

	pid, err := v.Spawn(
		code.MFA{Module: mathMod.Name, Function: v.atoms.Intern("bump"), Arity: 2},
		[]term.Term{term.MakeSmallSigned(term.LargestSmall), term.MakeSmallSigned(1)},
	)
	require.NoError(t, err)
	proc, _ := v.Registry().Lookup(pid)

	v.Run()

	got := proc.Ctx.X[0]
	require.Equal(t, term.TagBoxed, got.Tag(), "sum must be boxed")
	want := new(big.Int).Add(big.NewInt(term.LargestSmall), big.NewInt(1))
	assert.Equal(t, 0, want.Cmp(term.ReadBigInt(got, proc.Heap)))
}
