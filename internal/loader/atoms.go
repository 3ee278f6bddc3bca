package loader

import (
	"encoding/binary"
	"fmt"

	"j5.nz/beamrt/internal/atomtable"
)

// parseAtomChunk decodes an Atom or AtU8 chunk: a count followed by that
// many length-prefixed names. Atom indices in every other chunk and in
// the Code stream are 1-based against this list; index 0 always means
// "no atom" (compactterm already maps it to KindNil for tagAtom operands).
func parseAtomChunk(data []byte) ([]string, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("loader: atom chunk too short")
	}
	count := binary.BigEndian.Uint32(data[:4])
	pos := 4
	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("loader: atom chunk truncated at entry %d", i)
		}
		n := int(data[pos])
		pos++
		if pos+n > len(data) {
			return nil, fmt.Errorf("loader: atom chunk truncated reading name %d", i)
		}
		names = append(names, string(data[pos:pos+n]))
		pos += n
	}
	return names, nil
}

// internAtoms interns every module-local atom name into the global table
// and returns the local(1-based)->global index mapping: local[0] is the
// 1st atom, matching BEAM's "module name is always local atom 1" rule.
func internAtoms(names []string, atoms *atomtable.Table) []uint64 {
	global := make([]uint64, len(names))
	for i, n := range names {
		global[i] = atoms.Intern(n)
	}
	return global
}
