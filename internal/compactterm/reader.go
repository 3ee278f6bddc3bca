// Package compactterm decodes the compact term encoding used inside a
// BEAM "Code" chunk's instruction stream: a 3-bit tag in the low bits of
// each leading byte selects one of seven small literal shapes or an
// extended tag carrying floats, jump tables, float registers, allocation
// lists, and literal-table references.
package compactterm

import "fmt"

// Reader is a forward-only byte cursor over a Code chunk.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential compact-term reads starting at 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos reports the current byte offset, used by the loader to record
// instruction-start offsets for label targets.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) readU8() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("compactterm: unexpected end of stream at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("compactterm: need %d bytes at offset %d, only %d remain", n, r.pos, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Done reports whether the stream is exhausted.
func (r *Reader) Done() bool { return r.pos >= len(r.buf) }

// ReadByte reads the raw opcode byte that precedes a BEAM instruction's
// compact-term-encoded operands. Exported for internal/loader, which reads
// it directly rather than through Read.
func (r *Reader) ReadByte() (byte, error) { return r.readU8() }
