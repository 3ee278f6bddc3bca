package code

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/term"
)

// slot holds a module's current and (for a future hot-reload swap, never
// exercised beyond the version counter) previous version.
type slot struct {
	current  *Module
	previous *Module
}

// NativeLookup is the narrow capability CodeServer needs from the native
// function registry: whether an MFA resolves to a built-in. Kept as a
// function value (rather than importing internal/native) so internal/code
// never depends on internal/native — native depends on code, not the
// other way around.
type NativeLookup func(mfa MFA) (found bool)

// Loader is the capability CodeServer needs from internal/loader to
// satisfy LookupMFA's allow_load path. Kept as a function value for the
// same reason as NativeLookup: internal/loader already depends on
// internal/code (it builds *Module), so code cannot import loader back.
type Loader func(path string, atoms *atomtable.Table) (*Module, error)

// Server is the code server: it owns every loaded module, keyed by atom,
// and is the sole place MFA -> code pointer resolution happens.
type Server struct {
	mu      sync.Mutex
	modules map[uint64]*slot
	atoms   *atomtable.Table

	SearchPath []string
	IsNative   NativeLookup
	LoadFile   Loader
}

// New constructs an empty code server bound to the given atom table.
func New(atoms *atomtable.Table) *Server {
	return &Server{modules: make(map[uint64]*slot), atoms: atoms}
}

// Install registers a freshly loaded module, replacing any prior version
// and bumping the version counter. The previous version is retained only
// as a placeholder for future hot-reload; nothing currently reads it.
func (s *Server) Install(m *Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.modules[m.Name]
	if !ok {
		sl = &slot{}
		s.modules[m.Name] = sl
	}
	m.Version = sl.current.version() + 1
	sl.previous = sl.current
	sl.current = m
}

func (m *Module) version() uint64 {
	if m == nil {
		return 0
	}
	return m.Version
}

// LookupResult is the tri-state outcome of LookupMFA.
type LookupResult struct {
	Found      bool
	IsNative   bool
	CodePtr    term.Term // CP-tagged term, valid when Found && !IsNative
	ModuleName uint64
}

// LookupMFA resolves mfa to a callable. Native functions are tried first;
// if not found and allowLoad is set, the module's .beam file is searched
// for and loaded before retrying once.
func (s *Server) LookupMFA(mfa MFA, allowLoad bool) (LookupResult, error) {
	if s.IsNative != nil && s.IsNative(mfa) {
		return LookupResult{Found: true, IsNative: true, ModuleName: mfa.Module}, nil
	}

	if ptr, ok := s.lookupLoaded(mfa); ok {
		return LookupResult{Found: true, CodePtr: ptr, ModuleName: mfa.Module}, nil
	}

	if !allowLoad {
		return LookupResult{}, nil
	}

	if err := s.loadFromSearchPath(mfa.Module); err != nil {
		return LookupResult{}, err
	}
	if ptr, ok := s.lookupLoaded(mfa); ok {
		return LookupResult{Found: true, CodePtr: ptr, ModuleName: mfa.Module}, nil
	}
	return LookupResult{}, nil
}

func (s *Server) lookupLoaded(mfa MFA) (term.Term, bool) {
	s.mu.Lock()
	sl, ok := s.modules[mfa.Module]
	s.mu.Unlock()
	if !ok || sl.current == nil {
		return 0, false
	}
	off, ok := sl.current.EntryFor(mfa.Function, mfa.Arity)
	if !ok {
		return 0, false
	}
	return term.MakeCodePointer(mfa.Module, off), true
}

func (s *Server) loadFromSearchPath(moduleAtom uint64) error {
	if s.LoadFile == nil {
		return fmt.Errorf("code: no loader configured")
	}
	name := s.atoms.Name(moduleAtom)
	for _, dir := range s.SearchPath {
		path := filepath.Join(dir, name+".beam")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := s.LoadFile(path, s.atoms)
		if err != nil {
			return fmt.Errorf("code: loading %q: %w", path, err)
		}
		s.Install(m)
		return nil
	}
	return fmt.Errorf("code: module %q not found on search path", name)
}

// ReverseLookup finds the {module, function, arity} that owns a code
// pointer, for diagnostics: within the module the pointer names, it picks
// the function with the greatest entry offset not exceeding the pointer.
func (s *Server) ReverseLookup(ptr term.Term) (MFA, bool) {
	if !ptr.IsCodePointer() {
		return MFA{}, false
	}
	offset := ptr.CodePointerOffset()
	wantModule := ptr.CodePointerModule()

	s.mu.Lock()
	defer s.mu.Unlock()
	for modAtom, sl := range s.modules {
		if modAtom != wantModule {
			continue
		}
		m := sl.current
		if m == nil || offset >= uint64(len(m.Code)) {
			continue
		}
		best := FuncKey{}
		bestOff := uint64(0)
		found := false
		for fk, off := range m.Exports {
			if off <= offset && (!found || off > bestOff) {
				best, bestOff, found = fk, off, true
			}
		}
		for fk, off := range m.Locals {
			if off <= offset && (!found || off > bestOff) {
				best, bestOff, found = fk, off, true
			}
		}
		if found {
			return MFA{Module: modAtom, Function: best.Function, Arity: best.Arity}, true
		}
	}
	return MFA{}, false
}

// Module returns the current installed version of name, if any.
func (s *Server) Module(nameAtom uint64) (*Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.modules[nameAtom]
	if !ok || sl.current == nil {
		return nil, false
	}
	return sl.current, true
}
