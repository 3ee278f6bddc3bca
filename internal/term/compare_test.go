package term_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

type fixture struct {
	h     *heap.Heap
	atoms *atomtable.Table
}

func newFixture() *fixture {
	return &fixture{h: heap.New(64 * 1024), atoms: atomtable.New()}
}

func (f *fixture) atom(name string) term.Term {
	return term.MakeAtom(f.atoms.Intern(name))
}

func (f *fixture) tuple(t *testing.T, elems ...term.Term) term.Term {
	tup, err := f.h.AllocTuple(elems)
	require.NoError(t, err)
	return tup
}

func (f *fixture) list(t *testing.T, elems ...term.Term) term.Term {
	acc := term.Nil()
	for i := len(elems) - 1; i >= 0; i-- {
		cell, err := f.h.AllocCons(elems[i], acc)
		require.NoError(t, err)
		acc = cell
	}
	return acc
}

func (f *fixture) cmp(a, b term.Term, exact bool) term.Ordering {
	return term.Compare(a, b, exact, f.h, f.atoms)
}

func TestCompareCrossClassPrecedence(t *testing.T) {
	f := newFixture()
	flt, err := f.h.AllocFloat(3.5)
	require.NoError(t, err)
	bin, err := f.h.AllocOnHeapBinary([]byte{1}, 8)
	require.NoError(t, err)

	// number < atom < pid < tuple < nil/list < binary, sampling the
	// classes this runtime can actually construct.
	ordered := []term.Term{
		term.MakeSmallSigned(99999),
		flt, // numbers share a class regardless of magnitude
		f.atom("zzz"),
		term.MakeLocalPid(0),
		f.tuple(t, term.MakeSmallSigned(1)),
		term.Nil(),
		bin,
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if i == 0 && j == 1 {
				continue // both numbers, compared by value not class
			}
			assert.Equal(t, term.Less, f.cmp(ordered[i], ordered[j], false),
				"expected index %d < index %d", i, j)
			assert.Equal(t, term.Greater, f.cmp(ordered[j], ordered[i], false))
		}
	}
}

func TestCompareSmallIntegers(t *testing.T) {
	f := newFixture()
	assert.Equal(t, term.Less, f.cmp(term.MakeSmallSigned(-5), term.MakeSmallSigned(3), false))
	assert.Equal(t, term.Equal, f.cmp(term.MakeSmallSigned(7), term.MakeSmallSigned(7), true))
	assert.Equal(t, term.Greater, f.cmp(term.MakeSmallSigned(10), term.MakeSmallSigned(2), false))
}

func TestCompareIntegerAgainstFloatCoerces(t *testing.T) {
	f := newFixture()
	flt, err := f.h.AllocFloat(3.0)
	require.NoError(t, err)
	assert.Equal(t, term.Equal, f.cmp(term.MakeSmallSigned(3), flt, false))
	assert.NotEqual(t, term.Equal, f.cmp(term.MakeSmallSigned(3), flt, true))
}

func TestCompareBignumAgainstSmall(t *testing.T) {
	f := newFixture()
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	bigTerm, err := f.h.AllocBigIntFromBig(huge)
	require.NoError(t, err)
	assert.Equal(t, term.Greater, f.cmp(bigTerm, term.MakeSmallSigned(term.LargestSmall), false))
	assert.Equal(t, term.Less, f.cmp(term.MakeSmallSigned(0), bigTerm, false))
}

func TestCompareAtomsByName(t *testing.T) {
	f := newFixture()
	// Atom order is lexicographic on the name, not on intern order.
	zebra := f.atom("zebra")
	apple := f.atom("apple")
	assert.Equal(t, term.Less, f.cmp(apple, zebra, false))
	assert.Equal(t, term.Equal, f.cmp(apple, f.atom("apple"), true))
}

func TestCompareTuplesArityFirstThenElements(t *testing.T) {
	f := newFixture()
	small := f.tuple(t, f.atom("b"))
	big2 := f.tuple(t, f.atom("a"), f.atom("a"))
	assert.Equal(t, term.Less, f.cmp(small, big2, false), "shorter tuple sorts first regardless of elements")

	left := f.tuple(t, term.MakeSmallSigned(1), term.MakeSmallSigned(2))
	right := f.tuple(t, term.MakeSmallSigned(1), term.MakeSmallSigned(3))
	assert.Equal(t, term.Less, f.cmp(left, right, false))
}

func TestCompareListsElementwiseAndNilFirst(t *testing.T) {
	f := newFixture()
	ab := f.list(t, f.atom("a"), f.atom("b"))
	ac := f.list(t, f.atom("a"), f.atom("c"))
	assert.Equal(t, term.Less, f.cmp(ab, ac, false))
	assert.Equal(t, term.Less, f.cmp(term.Nil(), ab, false), "nil sorts before every non-empty list")
	assert.Equal(t, term.Equal, f.cmp(ab, f.list(t, f.atom("a"), f.atom("b")), true))
}

func TestCompareDeepListNoStackOverflow(t *testing.T) {
	f := newFixture()
	deep := func() term.Term {
		acc := term.Nil()
		for i := 0; i < 1500; i++ {
			cell, err := f.h.AllocCons(term.MakeSmallSigned(int64(i)), acc)
			require.NoError(t, err)
			acc = cell
		}
		return acc
	}
	a, b := deep(), deep()
	assert.Equal(t, term.Equal, f.cmp(a, b, true))
}

func TestCompareBinariesBytewiseThenLength(t *testing.T) {
	f := newFixture()
	ab, err := f.h.AllocOnHeapBinary([]byte{1, 2}, 16)
	require.NoError(t, err)
	abc, err := f.h.AllocOnHeapBinary([]byte{1, 2, 3}, 24)
	require.NoError(t, err)
	ax, err := f.h.AllocOnHeapBinary([]byte{1, 9}, 16)
	require.NoError(t, err)
	assert.Equal(t, term.Less, f.cmp(ab, abc, false))
	assert.Equal(t, term.Less, f.cmp(ab, ax, false))
	assert.Equal(t, term.Less, f.cmp(term.EmptyBinary(), ab, false))
}

func TestDisplayPrintableListAsString(t *testing.T) {
	f := newFixture()
	hi := f.list(t, term.MakeSmallSigned('H'), term.MakeSmallSigned('i'))
	assert.Equal(t, `"Hi"`, term.Display(hi, f.h, f.atoms))
}

func TestDisplayNonPrintableListWithCommas(t *testing.T) {
	f := newFixture()
	l := f.list(t, term.MakeSmallSigned(1), term.MakeSmallSigned(2), term.MakeSmallSigned(300))
	assert.Equal(t, "[1,2,300]", term.Display(l, f.h, f.atoms))
}

func TestDisplayImproperListShowsTail(t *testing.T) {
	f := newFixture()
	cell, err := f.h.AllocCons(term.MakeSmallSigned(1), term.MakeSmallSigned(2))
	require.NoError(t, err)
	assert.Equal(t, "[1|2]", term.Display(cell, f.h, f.atoms))
}

func TestDisplayTupleAtomsAndQuoting(t *testing.T) {
	f := newFixture()
	tup := f.tuple(t, f.atom("ok"), f.atom("Hello world"))
	assert.Equal(t, "{ok,'Hello world'}", term.Display(tup, f.h, f.atoms))
}

func TestDisplayConstSpecials(t *testing.T) {
	f := newFixture()
	assert.Equal(t, "[]", term.Display(term.Nil(), f.h, f.atoms))
	assert.Equal(t, "{}", term.Display(term.EmptyTuple(), f.h, f.atoms))
	assert.Equal(t, "<<>>", term.Display(term.EmptyBinary(), f.h, f.atoms))
}

func TestDisplayBinaryBytes(t *testing.T) {
	f := newFixture()
	bin, err := f.h.AllocOnHeapBinary([]byte{1, 2, 250}, 24)
	require.NoError(t, err)
	assert.Equal(t, "<<1,2,250>>", term.Display(bin, f.h, f.atoms))
}
