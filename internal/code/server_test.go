package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/term"
)

func testModule(atoms *atomtable.Table, name, fn string, arity int, entry uint64, codeLen int) (*Module, MFA) {
	modAtom := atoms.Intern(name)
	fnAtom := atoms.Intern(fn)
	m := &Module{
		Name:    modAtom,
		Code:    make([]term.Term, codeLen),
		Exports: map[FuncKey]uint64{{Function: fnAtom, Arity: arity}: entry},
	}
	return m, MFA{Module: modAtom, Function: fnAtom, Arity: arity}
}

func TestInstallBumpsVersionOnReplace(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	m1, _ := testModule(atoms, "m", "f", 0, 0, 4)
	s.Install(m1)
	assert.Equal(t, uint64(1), m1.Version)

	m2, _ := testModule(atoms, "m", "f", 0, 0, 4)
	s.Install(m2)
	assert.Equal(t, uint64(2), m2.Version)

	got, ok := s.Module(m2.Name)
	require.True(t, ok)
	assert.Same(t, m2, got)
}

func TestLookupMFAResolvesLoadedCode(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	m, mfa := testModule(atoms, "m", "f", 1, 3, 8)
	s.Install(m)

	res, err := s.LookupMFA(mfa, false)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.False(t, res.IsNative)
	assert.Equal(t, mfa.Module, res.CodePtr.CodePointerModule())
	assert.Equal(t, uint64(3), res.CodePtr.CodePointerOffset())
}

func TestLookupMFATriesNativesFirst(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	m, mfa := testModule(atoms, "m", "f", 0, 0, 4)
	s.Install(m)
	s.IsNative = func(q MFA) bool { return q == mfa }

	res, err := s.LookupMFA(mfa, false)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.IsNative)
}

func TestLookupMFANotFoundWithoutLoadPermission(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	res, err := s.LookupMFA(MFA{Module: atoms.Intern("ghost"), Function: atoms.Intern("f")}, false)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestLookupMFAWrongArityNotFound(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	m, mfa := testModule(atoms, "m", "f", 2, 0, 4)
	s.Install(m)
	mfa.Arity = 3
	res, err := s.LookupMFA(mfa, false)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestReverseLookupFindsOwningFunction(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	modAtom := atoms.Intern("m")
	f1 := atoms.Intern("first")
	f2 := atoms.Intern("second")
	m := &Module{
		Name: modAtom,
		Code: make([]term.Term, 20),
		Exports: map[FuncKey]uint64{
			{Function: f1, Arity: 0}: 0,
			{Function: f2, Arity: 1}: 10,
		},
	}
	s.Install(m)

	got, ok := s.ReverseLookup(term.MakeCodePointer(modAtom, 14))
	require.True(t, ok)
	assert.Equal(t, MFA{Module: modAtom, Function: f2, Arity: 1}, got)

	got, ok = s.ReverseLookup(term.MakeCodePointer(modAtom, 4))
	require.True(t, ok)
	assert.Equal(t, f1, got.Function)
}

func TestReverseLookupRejectsNonCPAndForeignModule(t *testing.T) {
	atoms := atomtable.New()
	s := New(atoms)
	m, _ := testModule(atoms, "m", "f", 0, 0, 8)
	s.Install(m)

	_, ok := s.ReverseLookup(term.MakeSmallSigned(3))
	assert.False(t, ok)

	_, ok = s.ReverseLookup(term.MakeCodePointer(atoms.Intern("other"), 2))
	assert.False(t, ok)
}

func TestEntryForChecksExportsThenLocals(t *testing.T) {
	atoms := atomtable.New()
	fn := atoms.Intern("f")
	local := atoms.Intern("helper")
	m := &Module{
		Name:    atoms.Intern("m"),
		Exports: map[FuncKey]uint64{{Function: fn, Arity: 0}: 2},
		Locals:  map[FuncKey]uint64{{Function: local, Arity: 1}: 9},
	}
	off, ok := m.EntryFor(fn, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(2), off)

	off, ok = m.EntryFor(local, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(9), off)

	_, ok = m.EntryFor(local, 2)
	assert.False(t, ok)
}
