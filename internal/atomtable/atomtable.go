// Package atomtable implements the process-wide, globally interned
// name -> small-index bijection that backs every ATOM term. Atom creation
// is the only concurrent operation the runtime performs against shared
// state, so the table guards its two directions with a single RWMutex
// rather than a pair of locks, since contention here is expected to be
// negligible next to the dispatch loop.
package atomtable

import (
	"encoding/binary"
	"sync"
)

// record is the index -> {name, length, first-4-bytes} side of the
// bijection. The first-4-bytes field lets a short-atom comparison
// short-circuit on a single word before touching the string; Display/
// Compare in internal/term compare full strings today, but the field is
// kept for any future fast-path comparison.
type record struct {
	name   string
	length int
	first4 uint32
}

// Table is the global interned atom table.
type Table struct {
	mu      sync.RWMutex
	byName  map[string]uint64
	byIndex []record
}

// New constructs a Table pre-populated with the fixed well-known atoms at
// the indices their compile-time constants expect.
func New() *Table {
	t := &Table{byName: make(map[string]uint64, len(wellKnownAtoms)*2)}
	for _, name := range wellKnownAtoms {
		t.intern(name)
	}
	return t
}

// Intern registers name if not already present and returns its index. A
// name always interns to the same index for the lifetime of the table.
func (t *Table) Intern(name string) uint64 {
	t.mu.RLock()
	if idx, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return idx
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.byName[name]; ok {
		return idx
	}
	return t.intern(name)
}

// intern must be called with t.mu held for writing.
func (t *Table) intern(name string) uint64 {
	idx := uint64(len(t.byIndex))
	var buf [4]byte
	copy(buf[:], name)
	t.byIndex = append(t.byIndex, record{
		name:   name,
		length: len(name),
		first4: binary.LittleEndian.Uint32(buf[:]),
	})
	t.byName[name] = idx
	return idx
}

// Name resolves index back to its interned string. Panics if index was
// never registered — a reverse lookup miss is always an internal
// consistency bug, never a user-facing condition.
func (t *Table) Name(index uint64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index >= uint64(len(t.byIndex)) {
		panic("atomtable: index out of range")
	}
	return t.byIndex[index].name
}

// Lookup returns the index for name and whether it was already
// registered, without interning it.
func (t *Table) Lookup(name string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byName[name]
	return idx, ok
}

// Len reports how many atoms are currently interned.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byIndex)
}
