package loader

import (
	"encoding/binary"
	"fmt"

	"j5.nz/beamrt/internal/code"
)

// importEntry is one raw ImpT row: module-local atom indices for module
// and function, plus arity. Resolved to global atom indices by the
// caller, which already has the local->global mapping.
type importEntry struct {
	module, function uint64
	arity            uint64
}

func parseImpT(data []byte) ([]importEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("loader: ImpT chunk too short")
	}
	count := binary.BigEndian.Uint32(data[:4])
	entries := make([]importEntry, 0, count)
	pos := 4
	for i := uint32(0); i < count; i++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("loader: ImpT entry %d truncated", i)
		}
		m := binary.BigEndian.Uint32(data[pos:])
		f := binary.BigEndian.Uint32(data[pos+4:])
		a := binary.BigEndian.Uint32(data[pos+8:])
		pos += 12
		entries = append(entries, importEntry{uint64(m), uint64(f), uint64(a)})
	}
	return entries, nil
}

// exportEntry is one raw ExpT/LocT row: module-local function atom index,
// arity, and the *label id* (not yet an offset — resolved against the
// label table built while decoding Code).
type exportEntry struct {
	function, arity, label uint64
}

func parseExpT(data []byte) ([]exportEntry, error) { return parseFuncTable(data, "ExpT") }
func parseLocT(data []byte) ([]exportEntry, error) { return parseFuncTable(data, "LocT") }

func parseFuncTable(data []byte, name string) ([]exportEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("loader: %s chunk too short", name)
	}
	count := binary.BigEndian.Uint32(data[:4])
	entries := make([]exportEntry, 0, count)
	pos := 4
	for i := uint32(0); i < count; i++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("loader: %s entry %d truncated", name, i)
		}
		f := binary.BigEndian.Uint32(data[pos:])
		a := binary.BigEndian.Uint32(data[pos+4:])
		l := binary.BigEndian.Uint32(data[pos+8:])
		pos += 12
		entries = append(entries, exportEntry{uint64(f), uint64(a), uint64(l)})
	}
	return entries, nil
}

// parseFunT decodes the lambda table: one entry per fun-expression in the
// module, each naming the wrapper function it was compiled as and the
// number of free variables it captures. Newer compilers append a 16-byte
// MD5 uniq and an extra old-index field; this loader reads only the
// original 6-word layout every generation still emits in the same order,
// matching this runtime's Non-goal of bit-exact compatibility with one
// specific compiler generation.
func parseFunT(data []byte) ([]code.Lambda, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("loader: FunT chunk too short")
	}
	count := binary.BigEndian.Uint32(data[:4])
	out := make([]code.Lambda, 0, count)
	pos := 4
	for i := uint32(0); i < count; i++ {
		if pos+24 > len(data) {
			return nil, fmt.Errorf("loader: FunT entry %d truncated", i)
		}
		fn := binary.BigEndian.Uint32(data[pos:])
		arity := binary.BigEndian.Uint32(data[pos+4:])
		label := binary.BigEndian.Uint32(data[pos+8:])
		index := binary.BigEndian.Uint32(data[pos+12:])
		nfree := binary.BigEndian.Uint32(data[pos+16:])
		oldUniq := binary.BigEndian.Uint32(data[pos+20:])
		pos += 24
		out = append(out, code.Lambda{
			Function: uint64(fn),
			Arity:    uint64(arity),
			Label:    uint64(label),
			Index:    uint64(index),
			NumFree:  uint64(nfree),
			OldUniq:  uint64(oldUniq),
		})
	}
	return out, nil
}
