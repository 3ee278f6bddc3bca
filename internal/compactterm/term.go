package compactterm

import "math/big"

// Kind identifies the shape of a decoded load-time term.
type Kind int

const (
	KindSmallInt Kind = iota
	KindBigInt
	KindNil
	KindAtom    // raw load-time atom table index, not yet resolved
	KindXReg
	KindYReg
	KindFPReg
	KindLabel   // raw label id, resolved to a CP-tagged word in pass 2
	KindLiteral // index into the module's literal table
	KindExtList // jump-table element list (bs_select_val/select_val operand)
	KindFloat   // only produced on r19-variant modules
)

// LtTerm is a decoded load-time term: not yet an internal/term.Term, since
// atoms/labels/literals still need postprocessing passes to resolve.
type LtTerm struct {
	Kind  Kind
	Int   int64
	Big   *big.Int
	Float float64
	List  []LtTerm
}

func smallInt(v int64) LtTerm  { return LtTerm{Kind: KindSmallInt, Int: v} }
func bigInt(v *big.Int) LtTerm { return LtTerm{Kind: KindBigInt, Big: v} }
func atomRef(idx int64) LtTerm { return LtTerm{Kind: KindAtom, Int: idx} }
func xreg(idx int64) LtTerm    { return LtTerm{Kind: KindXReg, Int: idx} }
func yreg(idx int64) LtTerm    { return LtTerm{Kind: KindYReg, Int: idx} }
func fpreg(idx int64) LtTerm   { return LtTerm{Kind: KindFPReg, Int: idx} }
func label(idx int64) LtTerm   { return LtTerm{Kind: KindLabel, Int: idx} }
func literal(idx int64) LtTerm { return LtTerm{Kind: KindLiteral, Int: idx} }
