package loader

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/etf"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// parseLitChunk inflates a LitT chunk's zlib-deflated body and ETF-decodes
// each entry directly onto the module's literal heap. The per-entry size
// prefix is redundant (the ETF decoder already knows how many bytes it
// consumed) and is ignored.
func parseLitChunk(data []byte, h *heap.Heap, atoms *atomtable.Table) ([]term.Term, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("loader: LitT chunk too short")
	}
	uncompressedSize := binary.BigEndian.Uint32(data[:4])
	zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return nil, fmt.Errorf("loader: LitT zlib: %w", err)
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("loader: LitT inflate: %w", err)
	}
	if uint32(len(body)) != uncompressedSize {
		return nil, fmt.Errorf("loader: LitT inflated to %d bytes, header declared %d", len(body), uncompressedSize)
	}
	if len(body) < 4 {
		return nil, fmt.Errorf("loader: LitT body too short")
	}
	count := binary.BigEndian.Uint32(body[:4])
	pos := 4
	out := make([]term.Term, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(body) {
			return nil, fmt.Errorf("loader: LitT entry %d truncated", i)
		}
		size := binary.BigEndian.Uint32(body[pos : pos+4])
		pos += 4
		if pos+int(size) > len(body) {
			return nil, fmt.Errorf("loader: LitT entry %d overruns chunk", i)
		}
		entry := body[pos : pos+int(size)]
		pos += int(size)

		r := etf.NewReader(entry)
		val, err := etf.Decode(r, h, atoms)
		if err != nil {
			return nil, fmt.Errorf("loader: LitT entry %d: %w", i, err)
		}
		out = append(out, val)
	}
	return out, nil
}
