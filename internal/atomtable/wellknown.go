package atomtable

// wellKnownAtoms is interned in order at Table construction time, so each
// name's index matches the exported constant below: a fixed table of
// well-known atoms at indices the rest of the runtime can reference as
// compile-time constants instead of interning them at every use.
var wellKnownAtoms = []string{
	"erlang",    // AtomErlang
	"true",      // AtomTrue
	"false",     // AtomFalse
	"undefined", // AtomUndefined
	"ok",        // AtomOk
	"error",     // AtomError
	"throw",     // AtomThrow
	"exit",      // AtomExit
	"normal",    // AtomNormal
	"badarg",    // AtomBadarg
	"badarith",  // AtomBadarith
	"badmatch",  // AtomBadmatch
	"badfun",    // AtomBadfun
	"function_clause",
	"undef",
	"nocatch",
	"timeout_value",
	"noproc",
	"system_limit",
	"infinity",
	"self",
	"spawn",
	"register",
	"process_flag",
	"trap_exit",
	"EXIT",
	"DOWN",
}

const (
	AtomErlang uint64 = iota
	AtomTrue
	AtomFalse
	AtomUndefined
	AtomOk
	AtomError
	AtomThrow
	AtomExit
	AtomNormal
	AtomBadarg
	AtomBadarith
	AtomBadmatch
	AtomBadfun
	AtomFunctionClause
	AtomUndef
	AtomNocatch
	AtomTimeoutValue
	AtomNoproc
	AtomSystemLimit
	AtomInfinity
	AtomSelf
	AtomSpawn
	AtomRegister
	AtomProcessFlag
	AtomTrapExit
	AtomEXIT
	AtomDOWN
)
