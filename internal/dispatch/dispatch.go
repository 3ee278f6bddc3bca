// Package dispatch implements the fetch-decode-execute step for one
// process: given a loaded code.Module's flattened instruction stream and
// a process's register context, it executes opcodes until the process
// yields, finishes, raises, or exhausts its reduction budget.
//
// internal/vm owns the outer scheduling loop; this package only ever
// advances one process by one opcode at a time, so it never needs to know
// about any process but the one it was handed.
package dispatch

import (
	"fmt"

	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/loader"
	"j5.nz/beamrt/internal/native"
	"j5.nz/beamrt/internal/process"
	"j5.nz/beamrt/internal/rtctx"
	"j5.nz/beamrt/internal/term"
)

// Result reports what happened after a Step call, for internal/vm's outer
// loop to act on.
type Result int

const (
	// Normal means the process is still runnable and has reductions left;
	// the caller should call Step again.
	Normal Result = iota
	// Finished means the process returned past its entry frame (its CP
	// register was the zero value) and should be torn down.
	Finished
	// Yield means the process ran out of reductions and should be
	// re-enqueued at the back of its run queue.
	Yield
	// YieldInfiniteWait means the process executed `wait` with an empty
	// mailbox and should move to the scheduler's wait set instead of any
	// run queue.
	YieldInfiniteWait
)

// Exception is a catchable Erlang-level error (error/exit/throw), as
// opposed to a Go error returned by Step, which is always a fatal,
// non-catchable condition (a malformed instruction stream, a native
// function's internal contract violation, or heap/stack exhaustion).
// internal/vm type-asserts for this to decide whether to unwind to a
// catch frame or tear the process down outright.
type Exception struct {
	Kind   term.Term // 'error | 'exit | 'throw
	Reason term.Term
}

func (e *Exception) Error() string { return "dispatch: uncaught exception" }

// machine bundles everything one opcode handler needs; it is rebuilt
// fresh on every Step call rather than cached on the process, since it is
// cheap (a handful of pointers) and keeping it ephemeral means a
// handler can never accidentally read stale state after a cross-module
// call mutates proc.Module.
type machine struct {
	host    native.Host
	natives *native.Registry
	proc    *process.Process
	ctx     *rtctx.Context
	heap    *heap.Heap
	code    []term.Term
}

type handlerFunc func(*machine) (Result, error)

var handlers = map[loader.Op]handlerFunc{
	loader.OpFuncInfo: opFuncInfo,

	loader.OpCall:         opCall,
	loader.OpCallLast:     opCallLast,
	loader.OpCallOnly:     opCallOnly,
	loader.OpCallExt:      opCallExt,
	loader.OpCallExtLast:  opCallExtLast,
	loader.OpCallExtOnly:  opCallExtOnly,
	loader.OpReturn:       opReturn,
	loader.OpJump:         opJump,
	loader.OpSelectVal:    opSelectVal,
	loader.OpBadmatch:     opBadmatch,

	loader.OpAllocate:         opAllocate(false),
	loader.OpAllocateZero:     opAllocate(true),
	loader.OpAllocateHeap:     opAllocateHeap(false),
	loader.OpAllocateHeapZero: opAllocateHeap(true),
	loader.OpTestHeap:         opTestHeap,
	loader.OpTrim:             opTrim,
	loader.OpInit:             opInit,
	loader.OpDeallocate:       opDeallocate,

	loader.OpMove:             opMove,
	loader.OpGetList:          opGetList,
	loader.OpGetHd:            opGetHd,
	loader.OpGetTl:            opGetTl,
	loader.OpPutList:          opPutList,
	loader.OpGetTupleElement:  opGetTupleElement,
	loader.OpSetTupleElement:  opSetTupleElement,
	loader.OpPutTuple:         opPutTuple,
	loader.OpPut:              opPut,

	loader.OpIsLt:           opIsLt,
	loader.OpIsGe:           opIsGe,
	loader.OpIsEq:           opIsEq,
	loader.OpIsEqExact:      opIsEqExact,
	loader.OpIsNe:           opIsNe,
	loader.OpIsNeExact:      opIsNeExact,
	loader.OpIsInteger:      opIsPredicate(func(t term.Term, h term.HeapReader) bool { return isIntegerTerm(t, h) }),
	loader.OpIsFloat:        opIsPredicate(isFloatTerm),
	loader.OpIsNumber:       opIsPredicate(isNumberTerm),
	loader.OpIsAtom:         opIsPredicate(func(t term.Term, _ term.HeapReader) bool { return t.Tag() == term.TagAtom }),
	loader.OpIsPid:          opIsPredicate(isPidTerm),
	loader.OpIsReference:    opIsPredicate(isReferenceTerm),
	loader.OpIsPort:         opIsPredicate(isPortTerm),
	loader.OpIsNil:          opIsPredicate(func(t term.Term, _ term.HeapReader) bool { return t.IsNil() }),
	loader.OpIsBinary:       opIsPredicate(isBinaryTerm),
	loader.OpIsList:         opIsPredicate(isListTerm),
	loader.OpIsNonemptyList: opIsPredicate(isNonemptyListTerm),
	loader.OpIsTuple:        opIsPredicate(isTupleTerm),
	loader.OpIsFunction:     opIsPredicate(isFunctionTerm),
	loader.OpIsFunction2:    opIsFunction2,
	loader.OpIsTaggedTuple:  opIsTaggedTuple,
	loader.OpTestArity:      opTestArity,

	loader.OpCallFun:  opCallFun,
	loader.OpMakeFun2: opMakeFun2,

	loader.OpBif0:    opBif0,
	loader.OpBif1:    opBif1,
	loader.OpBif2:    opBif2,
	loader.OpGcBif1:  opGcBif1,
	loader.OpGcBif2:  opGcBif2,
	loader.OpGcBif3:  opGcBif3,

	loader.OpTry:     opTry,
	loader.OpTryEnd:  opTryEnd,
	loader.OpTryCase: opTryCase,
	loader.OpRaise:   opRaise,

	loader.OpSend:          opSend,
	loader.OpLoopRec:       opLoopRec,
	loader.OpLoopRecEnd:    opLoopRecEnd,
	loader.OpRemoveMessage: opRemoveMessage,
	loader.OpWait:          opWait,

	loader.OpBsStartMatch3: opBsStartMatch3,
	loader.OpBsGetInteger:  opBsGetInteger,
	loader.OpBsGetBinary:   opBsGetBinary,
	loader.OpBsSkipBits:    opBsSkipBits,
	loader.OpBsTestTail:    opBsTestTail,
}

// Step fetches and executes exactly one opcode for proc, charging its
// fixed reduction cost first; individual handlers charge nothing further,
// matching this runtime's flat reduction-accounting choice. The caller is
// expected to loop on Result == Normal && proc.Ctx.Reductions > 0.
func Step(host native.Host, natives *native.Registry, proc *process.Process) (Result, error) {
	m := &machine{
		host:    host,
		natives: natives,
		proc:    proc,
		ctx:     proc.Ctx,
		heap:    proc.Heap,
		code:    proc.Module.Code,
	}

	opVal, err := m.ctx.FetchOpcode(m.code)
	if err != nil {
		return 0, err
	}
	op := loader.Op(opVal)
	handler, ok := handlers[op]
	if !ok {
		return 0, fmt.Errorf("dispatch: no handler registered for opcode %s", op)
	}
	return handler(m)
}

func (m *machine) operand(offset uint64) (term.Term, error) {
	return m.ctx.ReadTermAt(m.code, offset)
}

func (m *machine) load(offset uint64) (term.Term, error) {
	return m.ctx.LoadTermAt(m.code, offset, m.heap)
}

func (m *machine) store(dst, v term.Term) error {
	return m.ctx.Store(dst, v, m.heap)
}

func (m *machine) advance(n uint64) { m.ctx.IP += n }

// predicateJump implements the uniform is_*/test_arity/is_tagged_tuple
// convention: every such opcode's operand 0 is a fail label; the
// instruction falls through past its own nWords operands when ok is true,
// or jumps to the fail label when ok is false.
func (m *machine) predicateJump(ok bool, nWords uint64) (Result, error) {
	failRaw, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	if ok {
		m.advance(nWords)
		return Normal, nil
	}
	m.ctx.IP = failRaw.CodePointerOffset()
	return Normal, nil
}
