package term

// BoxType identifies the concrete shape of a boxed heap object. It is
// packed into the low bits of every BoxHeader, alongside the object's
// storage size in words.
type BoxType uint8

const (
	BoxTuple BoxType = iota
	BoxBinary
	BoxClosure
	BoxExport
	BoxImport
	BoxBigInt
	BoxFloat
	BoxMap
	BoxExternalPid
	BoxExternalPort
	BoxExternalRef
	BoxBinaryMatchState
	BoxJumpTable
)

const (
	boxTypeBits = 4
	boxTypeMask = (1 << boxTypeBits) - 1
)

func (bt BoxType) String() string {
	switch bt {
	case BoxTuple:
		return "tuple"
	case BoxBinary:
		return "binary"
	case BoxClosure:
		return "closure"
	case BoxExport:
		return "export"
	case BoxImport:
		return "import"
	case BoxBigInt:
		return "bignum"
	case BoxFloat:
		return "float"
	case BoxMap:
		return "map"
	case BoxExternalPid:
		return "external_pid"
	case BoxExternalPort:
		return "external_port"
	case BoxExternalRef:
		return "external_ref"
	case BoxBinaryMatchState:
		return "binary_match_state"
	case BoxJumpTable:
		return "jump_table"
	default:
		return "unknown_box"
	}
}

// GuardSentinel is written immediately after the last word of each boxed
// object when heap guards are enabled, to catch writes past the object.
const GuardSentinel uint64 = 0xDEADBEEFCAFEBABE

// TermClass is the coarse classification used by the Erlang total term
// order: number < atom < ref < fun < port < pid < tuple < map < nil < list
// < binary.
type TermClass int

const (
	ClassNumber TermClass = iota
	ClassAtom
	ClassRef
	ClassFun
	ClassPort
	ClassPid
	ClassTuple
	ClassMap
	ClassList
	ClassBinary
	// ClassSpecial is used internally for values that should never
	// participate in a term-order comparison (headers, registers,
	// catches, opcodes, load-time placeholders).
	ClassSpecial
)
