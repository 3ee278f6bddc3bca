// Package loader ties internal/beamfile, internal/compactterm and
// internal/etf together: it reads a parsed BEAM container, decodes every
// chunk this runtime understands, and emits a code.Module whose
// instruction stream is made of pre-decoded term.Term opcode cells and
// operands.
package loader

// Op is this runtime's own opcode numbering. It does not attempt to match
// any specific OTP release's genop.tab: the BEAM container format is
// decoded bit-exactly, but assigning real OTP opcode numbers would require
// carrying the exact, version-dependent genop table bundled with every
// compiler release, which is the same kind of per-version renumbering
// problem the compact-term extended tags already have. A
// from-scratch opcode table, keyed by name, is the loader-internal
// contract between internal/loader and internal/dispatch.
type Op uint8

const (
	OpLabel Op = iota
	OpFuncInfo
	OpCall
	OpCallLast
	OpCallOnly
	OpCallExt
	OpCallExtLast
	OpCallExtOnly
	OpBif0
	OpBif1
	OpBif2
	OpGcBif1
	OpGcBif2
	OpGcBif3
	OpAllocate
	OpAllocateZero
	OpAllocateHeap
	OpAllocateHeapZero
	OpTestHeap
	OpTrim
	OpInit
	OpDeallocate
	OpReturn
	OpSend
	OpLoopRec
	OpLoopRecEnd
	OpRemoveMessage
	OpWait
	OpIsLt
	OpIsGe
	OpIsEq
	OpIsEqExact
	OpIsNe
	OpIsNeExact
	OpIsInteger
	OpIsFloat
	OpIsNumber
	OpIsAtom
	OpIsPid
	OpIsReference
	OpIsPort
	OpIsNil
	OpIsBinary
	OpIsList
	OpIsNonemptyList
	OpIsTuple
	OpIsFunction
	OpIsFunction2
	OpIsTaggedTuple
	OpTestArity
	OpSelectVal
	OpJump
	OpMove
	OpGetList
	OpGetHd
	OpGetTl
	OpPutList
	OpGetTupleElement
	OpSetTupleElement
	OpPutTuple
	OpPut
	OpBadmatch
	OpCallFun
	OpMakeFun2
	OpTry
	OpTryEnd
	OpTryCase
	OpRaise
	OpBsStartMatch3
	OpBsGetInteger
	OpBsGetBinary
	OpBsSkipBits
	OpBsTestTail
	numOps
)

var opNames = [numOps]string{
	OpLabel:            "label",
	OpFuncInfo:         "func_info",
	OpCall:             "call",
	OpCallLast:         "call_last",
	OpCallOnly:         "call_only",
	OpCallExt:          "call_ext",
	OpCallExtLast:      "call_ext_last",
	OpCallExtOnly:      "call_ext_only",
	OpBif0:             "bif0",
	OpBif1:             "bif1",
	OpBif2:             "bif2",
	OpGcBif1:           "gc_bif1",
	OpGcBif2:           "gc_bif2",
	OpGcBif3:           "gc_bif3",
	OpAllocate:         "allocate",
	OpAllocateZero:     "allocate_zero",
	OpAllocateHeap:     "allocate_heap",
	OpAllocateHeapZero: "allocate_heap_zero",
	OpTestHeap:         "test_heap",
	OpTrim:             "trim",
	OpInit:             "init",
	OpDeallocate:       "deallocate",
	OpReturn:           "return",
	OpSend:             "send",
	OpLoopRec:          "loop_rec",
	OpLoopRecEnd:       "loop_rec_end",
	OpRemoveMessage:    "remove_message",
	OpWait:             "wait",
	OpIsLt:             "is_lt",
	OpIsGe:             "is_ge",
	OpIsEq:             "is_eq",
	OpIsEqExact:        "is_eq_exact",
	OpIsNe:             "is_ne",
	OpIsNeExact:        "is_ne_exact",
	OpIsInteger:        "is_integer",
	OpIsFloat:          "is_float",
	OpIsNumber:         "is_number",
	OpIsAtom:           "is_atom",
	OpIsPid:            "is_pid",
	OpIsReference:      "is_reference",
	OpIsPort:           "is_port",
	OpIsNil:            "is_nil",
	OpIsBinary:         "is_binary",
	OpIsList:           "is_list",
	OpIsNonemptyList:   "is_nonempty_list",
	OpIsTuple:          "is_tuple",
	OpIsFunction:       "is_function",
	OpIsFunction2:      "is_function2",
	OpIsTaggedTuple:    "is_tagged_tuple",
	OpTestArity:        "test_arity",
	OpSelectVal:        "select_val",
	OpJump:             "jump",
	OpMove:             "move",
	OpGetList:          "get_list",
	OpGetHd:            "get_hd",
	OpGetTl:            "get_tl",
	OpPutList:          "put_list",
	OpGetTupleElement:  "get_tuple_element",
	OpSetTupleElement:  "set_tuple_element",
	OpPutTuple:         "put_tuple",
	OpPut:              "put",
	OpBadmatch:         "badmatch",
	OpCallFun:          "call_fun",
	OpMakeFun2:         "make_fun2",
	OpTry:              "try",
	OpTryEnd:           "try_end",
	OpTryCase:          "try_case",
	OpRaise:            "raise",
	OpBsStartMatch3:    "bs_start_match3",
	OpBsGetInteger:     "bs_get_integer",
	OpBsGetBinary:      "bs_get_binary",
	OpBsSkipBits:       "bs_skip_bits",
	OpBsTestTail:       "bs_test_tail",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, numOps)
	for op, name := range opNames {
		m[name] = Op(op)
	}
	return m
}()

// LookupOp resolves an opcode name (as recorded in a Code chunk produced
// by this runtime's own assembler-equivalent) to its Op value.
func LookupOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// arity is the fixed operand count of every opcode except the variable-
// length families (put_tuple's trailing put stream and select_val's
// jump-table pairs are threaded through the decoded operand list itself,
// since compactterm already captures put_tuple's arity and select_val's
// list length inline).
var arity = [numOps]int{
	OpLabel:            1,
	OpFuncInfo:         3,
	OpCall:             2,
	OpCallLast:         3,
	OpCallOnly:         2,
	OpCallExt:          2,
	OpCallExtLast:      3,
	OpCallExtOnly:      2,
	OpBif0:             2,
	OpBif1:             4,
	OpBif2:             5,
	OpGcBif1:           5,
	OpGcBif2:           6,
	OpGcBif3:           7,
	OpAllocate:         2,
	OpAllocateZero:     2,
	OpAllocateHeap:     3,
	OpAllocateHeapZero: 3,
	OpTestHeap:         2,
	OpTrim:             2,
	OpInit:             1,
	OpDeallocate:       1,
	OpReturn:           0,
	OpSend:             0,
	OpLoopRec:          2,
	OpLoopRecEnd:       1,
	OpRemoveMessage:    0,
	OpWait:             1,
	OpIsLt:             3,
	OpIsGe:             3,
	OpIsEq:             3,
	OpIsEqExact:        3,
	OpIsNe:             3,
	OpIsNeExact:        3,
	OpIsInteger:        2,
	OpIsFloat:          2,
	OpIsNumber:         2,
	OpIsAtom:           2,
	OpIsPid:            2,
	OpIsReference:      2,
	OpIsPort:           2,
	OpIsNil:            2,
	OpIsBinary:         2,
	OpIsList:           2,
	OpIsNonemptyList:   2,
	OpIsTuple:          2,
	OpIsFunction:       2,
	OpIsFunction2:      3,
	OpIsTaggedTuple:    4,
	OpTestArity:        3,
	OpSelectVal:        3,
	OpJump:             1,
	OpMove:             2,
	OpGetList:          3,
	OpGetHd:            2,
	OpGetTl:            2,
	OpPutList:          3,
	OpGetTupleElement:  3,
	OpSetTupleElement:  3,
	OpPutTuple:         2,
	OpPut:              1,
	OpBadmatch:         1,
	OpCallFun:          1,
	OpMakeFun2:         1,
	OpTry:              2,
	OpTryEnd:           1,
	OpTryCase:          1,
	OpRaise:            2,
	OpBsStartMatch3:    4,
	OpBsGetInteger:     6,
	OpBsGetBinary:      6,
	OpBsSkipBits:       5,
	OpBsTestTail:       2,
}

// Arity reports how many compact-term operands follow op's one-byte opcode
// tag in the Code chunk's byte stream.
func Arity(op Op) int { return arity[op] }
