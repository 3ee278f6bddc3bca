package loader

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/term"
)

// Fixture helpers: hand-assemble a minimal BEAM container the way the
// compiler would lay one out, so LoadBytes is exercised end to end
// (container -> chunks -> compact terms -> three fixup passes) without a
// real compiler in the loop.

func beChunk(buf []byte, name string, payload []byte) []byte {
	buf = append(buf, name...)
	var sz [4]byte
	binary.BigEndian.PutUint32(sz[:], uint32(len(payload)))
	buf = append(buf, sz[:]...)
	buf = append(buf, payload...)
	if pad := (4 - len(payload)%4) % 4; pad != 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf
}

func container(order []string, chunks map[string][]byte) []byte {
	var body []byte
	body = append(body, "BEAM"...)
	for _, name := range order {
		body = beChunk(body, name, chunks[name])
	}
	var out []byte
	out = append(out, "FOR1"...)
	var sz [4]byte
	binary.BigEndian.PutUint32(sz[:], uint32(len(body)))
	out = append(out, sz[:]...)
	return append(out, body...)
}

func atomChunk(names ...string) []byte {
	var out []byte
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(names)))
	out = append(out, count[:]...)
	for _, n := range names {
		out = append(out, byte(len(n)))
		out = append(out, n...)
	}
	return out
}

func codeChunk(instrs []byte) []byte {
	header := make([]byte, 20)
	binary.BigEndian.PutUint32(header[0:4], 20)   // sub-header size
	binary.BigEndian.PutUint32(header[4:8], 0)    // instruction set
	binary.BigEndian.PutUint32(header[8:12], 200) // opcode_max: newer variant
	binary.BigEndian.PutUint32(header[12:16], 2)  // labels
	binary.BigEndian.PutUint32(header[16:20], 1)  // functions
	return append(header, instrs...)
}

// Compact-term encoders for the 4-bit-value fast path, enough for any
// fixture operand under 8.
func ctSmall(v byte) byte { return v<<4 | 0 }
func ctAtom(v byte) byte  { return v<<4 | 2 }
func ctXReg(v byte) byte  { return v<<4 | 3 }
func ctLabel(v byte) byte { return v<<4 | 5 }

func litChunk(t *testing.T, entries ...[]byte) []byte {
	var body []byte
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(entries)))
	body = append(body, count[:]...)
	for _, e := range entries {
		var sz [4]byte
		binary.BigEndian.PutUint32(sz[:], uint32(len(e)))
		body = append(body, sz[:]...)
		body = append(body, e...)
	}

	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	_, err := zw.Write(body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var out []byte
	var usz [4]byte
	binary.BigEndian.PutUint32(usz[:], uint32(len(body)))
	out = append(out, usz[:]...)
	return append(out, deflated.Bytes()...)
}

func funcRow(function, arity, label uint32) []byte {
	row := make([]byte, 12)
	binary.BigEndian.PutUint32(row[0:4], function)
	binary.BigEndian.PutUint32(row[4:8], arity)
	binary.BigEndian.PutUint32(row[8:12], label)
	return row
}

func TestLoadBytesEndToEnd(t *testing.T) {
	atoms := atomtable.New()

	instrs := []byte{
		byte(OpLabel), ctLabel(1),
		byte(OpFuncInfo), ctAtom(1), ctAtom(2), ctSmall(0),
		byte(OpMove), ctSmall(5), ctXReg(0),
		byte(OpMove), 0x47, ctSmall(0), ctXReg(1), // 0x47: extended literal tag
		byte(OpCallExt), ctSmall(2), ctSmall(0),
		byte(OpJump), ctLabel(1),
		byte(OpReturn),
	}

	var expT []byte
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], 1)
	expT = append(expT, count[:]...)
	expT = append(expT, funcRow(2, 0, 1)...) // run/0 at label 1

	var impT []byte
	binary.BigEndian.PutUint32(count[:], 1)
	impT = append(impT, count[:]...)
	impT = append(impT, funcRow(3, 4, 2)...) // erlang:'+'/2

	data := container(
		[]string{"AtU8", "Code", "ExpT", "ImpT", "LitT"},
		map[string][]byte{
			"AtU8": atomChunk("m", "run", "erlang", "+"),
			"Code": codeChunk(instrs),
			"ExpT": expT,
			"ImpT": impT,
			"LitT": litChunk(t, []byte{131, 97, 42}),
		},
	)

	mod, err := LoadBytes(data, atoms)
	require.NoError(t, err)

	modAtom, ok := atoms.Lookup("m")
	require.True(t, ok)
	assert.Equal(t, modAtom, mod.Name)

	// Exports resolve through the label table to instruction offsets.
	runAtom, _ := atoms.Lookup("run")
	entry, ok := mod.EntryFor(runAtom, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(0), entry)

	// Pass 1: opcode cells are SPECIAL/OPCODE decorated, atoms resolved
	// to runtime atom terms, register operands to register terms.
	require.True(t, mod.Code[0].IsOpcodeCell())
	assert.Equal(t, uint64(OpFuncInfo), mod.Code[0].OpcodeValue())
	assert.Equal(t, term.MakeAtom(modAtom), mod.Code[1])
	assert.Equal(t, term.MakeSmallSigned(5), mod.Code[5])
	assert.Equal(t, term.MakeRegisterX(0), mod.Code[6])

	// Literal fixup: the LitT entry (ETF for 42) lands in the operand.
	assert.Equal(t, term.MakeSmallSigned(42), mod.Code[8])

	// Import fixup: call_ext's import index became a boxed Import on the
	// literal heap naming erlang:'+'/2.
	importBox := mod.Code[12]
	require.Equal(t, term.TagBoxed, importBox.Tag())
	erlangAtom, _ := atoms.Lookup("erlang")
	plusAtom, _ := atoms.Lookup("+")
	gotMod, gotFn, gotArity := term.ImportFields(importBox, mod.Literals)
	assert.Equal(t, erlangAtom, gotMod)
	assert.Equal(t, plusAtom, gotFn)
	assert.Equal(t, uint64(2), gotArity)

	// Label fixup: jump's operand became a CP into this module at the
	// label's instruction offset.
	cp := mod.Code[14]
	require.True(t, cp.IsCodePointer())
	assert.Equal(t, modAtom, cp.CodePointerModule())
	assert.Equal(t, uint64(0), cp.CodePointerOffset())
}

func TestLoadBytesLabelZeroResolvesToNil(t *testing.T) {
	atoms := atomtable.New()
	instrs := []byte{
		byte(OpLabel), ctLabel(1),
		byte(OpFuncInfo), ctAtom(1), ctAtom(2), ctSmall(0),
		byte(OpJump), ctLabel(0), // label id 0: "no handler"
		byte(OpReturn),
	}
	data := container(
		[]string{"AtU8", "Code"},
		map[string][]byte{
			"AtU8": atomChunk("m", "run"),
			"Code": codeChunk(instrs),
		},
	)
	mod, err := LoadBytes(data, atoms)
	require.NoError(t, err)
	assert.Equal(t, term.Nil(), mod.Code[5])
}

func TestLoadBytesRejectsUndefinedLabel(t *testing.T) {
	atoms := atomtable.New()
	instrs := []byte{
		byte(OpLabel), ctLabel(1),
		byte(OpFuncInfo), ctAtom(1), ctAtom(2), ctSmall(0),
		byte(OpJump), ctLabel(7),
		byte(OpReturn),
	}
	data := container(
		[]string{"AtU8", "Code"},
		map[string][]byte{
			"AtU8": atomChunk("m", "run"),
			"Code": codeChunk(instrs),
		},
	)
	_, err := LoadBytes(data, atoms)
	assert.Error(t, err)
}

func TestLoadBytesRejectsMissingCodeChunk(t *testing.T) {
	atoms := atomtable.New()
	data := container([]string{"AtU8"}, map[string][]byte{"AtU8": atomChunk("m")})
	_, err := LoadBytes(data, atoms)
	assert.Error(t, err)
}

func TestLoadBytesRejectsUnknownOpcodeByte(t *testing.T) {
	atoms := atomtable.New()
	data := container(
		[]string{"AtU8", "Code"},
		map[string][]byte{
			"AtU8": atomChunk("m"),
			"Code": codeChunk([]byte{255}),
		},
	)
	_, err := LoadBytes(data, atoms)
	assert.Error(t, err)
}

func TestLoadBytesSkipsUnknownChunksSilently(t *testing.T) {
	atoms := atomtable.New()
	instrs := []byte{
		byte(OpLabel), ctLabel(1),
		byte(OpFuncInfo), ctAtom(1), ctAtom(2), ctSmall(0),
		byte(OpReturn),
	}
	data := container(
		[]string{"AtU8", "Dbgi", "Code", "CInf"},
		map[string][]byte{
			"AtU8": atomChunk("m", "run"),
			"Dbgi": {1, 2, 3, 4},
			"Code": codeChunk(instrs),
			"CInf": {9, 9},
		},
	)
	_, err := LoadBytes(data, atoms)
	assert.NoError(t, err)
}
