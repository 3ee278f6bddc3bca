// Package beamfile parses the on-disk BEAM module container down to its
// raw chunks: "FOR1" IFF magic, a "BEAM" form type, then an unordered
// sequence of 4-byte-named, 4-byte-size-prefixed, 4-byte-aligned chunks.
// It does not interpret chunk payloads — internal/loader does that — it
// only hands back name -> bytes.
package beamfile

import (
	"encoding/binary"
	"fmt"
)

// Chunk names this runtime understands. Anything else is retained in
// Chunks (by name) but never consulted.
const (
	ChunkAtom = "Atom"
	ChunkAtU8 = "AtU8"
	ChunkCode = "Code"
	ChunkStrT = "StrT"
	ChunkImpT = "ImpT"
	ChunkExpT = "ExpT"
	ChunkLocT = "LocT"
	ChunkFunT = "FunT"
	ChunkLitT = "LitT"
	ChunkLine = "Line"
	ChunkAttr = "Attr"
	ChunkCInf = "CInf"
	ChunkDbgi = "Dbgi"
	ChunkAbst = "Abst"
)

// File is a parsed BEAM container: every chunk's raw bytes, keyed by its
// 4-byte name, in file order.
type File struct {
	Order  []string
	Chunks map[string][]byte
}

// Chunk returns a chunk's payload and whether it was present.
func (f *File) Chunk(name string) ([]byte, bool) {
	b, ok := f.Chunks[name]
	return b, ok
}

// Parse reads a complete BEAM container from data.
func Parse(data []byte) (*File, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("beamfile: file too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "FOR1" {
		return nil, fmt.Errorf("beamfile: bad magic %q, want \"FOR1\"", data[0:4])
	}
	formSize := binary.BigEndian.Uint32(data[4:8])
	if uint64(formSize)+8 > uint64(len(data)) {
		return nil, fmt.Errorf("beamfile: form size %d exceeds file length %d", formSize, len(data))
	}
	if string(data[8:12]) != "BEAM" {
		return nil, fmt.Errorf("beamfile: bad form type %q, want \"BEAM\"", data[8:12])
	}

	f := &File{Chunks: make(map[string][]byte)}
	pos := 12
	end := int(formSize) + 8
	for pos < end {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("beamfile: truncated chunk header at offset %d", pos)
		}
		name := string(data[pos : pos+4])
		size := binary.BigEndian.Uint32(data[pos+4 : pos+8])
		pos += 8
		if pos+int(size) > len(data) {
			return nil, fmt.Errorf("beamfile: chunk %q size %d overruns file at offset %d", name, size, pos)
		}
		payload := data[pos : pos+int(size)]
		f.Order = append(f.Order, name)
		f.Chunks[name] = payload
		pos += int(size)
		// Chunks are 4-byte aligned; skip padding.
		if pad := (4 - pos%4) % 4; pad != 0 {
			pos += pad
		}
	}
	return f, nil
}
