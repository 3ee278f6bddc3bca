package compactterm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSmall4BitPositive(t *testing.T) {
	// nibble 0b0111 = 7, tag = LiteralInt.
	r := NewReader([]byte{0b01110000})
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindSmallInt, lt.Kind)
	assert.Equal(t, int64(7), lt.Int)
}

func TestReadSmall4BitNegative(t *testing.T) {
	// nibble 0b1001 = -7 as a signed 4-bit integer, tag = LiteralInt.
	r := NewReader([]byte{0b10010000})
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindSmallInt, lt.Kind)
	assert.Equal(t, int64(-7), lt.Int)
}

func TestReadEleventBitValue(t *testing.T) {
	r := NewReader([]byte{0b10101000, 255})
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindSmallInt, lt.Kind)
	assert.Equal(t, int64(0b101*256+255), lt.Int)
}

func TestReadAtomZeroIsNil(t *testing.T) {
	r := NewReader([]byte{0b00000010}) // nibble 0, tag = Atom
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindNil, lt.Kind)
}

func TestReadAtomNonzero(t *testing.T) {
	r := NewReader([]byte{0b00110010}) // nibble 3, tag = Atom
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindAtom, lt.Kind)
	assert.Equal(t, int64(3), lt.Int)
}

func TestReadXAndYRegisters(t *testing.T) {
	r := NewReader([]byte{0b00100011, 0b01000100}) // x(2), y(4)
	x, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindXReg, x.Kind)
	assert.Equal(t, int64(2), x.Int)

	y, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindYReg, y.Kind)
	assert.Equal(t, int64(4), y.Int)
}

func TestReadBigIntegerPositive(t *testing.T) {
	// tag = Integer(1), nBytes = (0b011 >> ...) encode n_bytes=value+2=3.
	// Header byte: bits5-7 = 1 (n_bytes=1+2=3), bit4=1, bit3=1, tag=1.
	header := byte(0b001_1_1_001)
	r := NewReader([]byte{header, 0x01, 0x00, 0x00})
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindBigInt, lt.Kind)
	assert.Equal(t, big.NewInt(0x010000), lt.Big)
}

func TestReadBigIntegerNegative(t *testing.T) {
	header := byte(0b001_1_1_001)
	r := NewReader([]byte{header, 0xFF, 0xFF, 0xFF})
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	assert.Equal(t, KindBigInt, lt.Kind)
	assert.Equal(t, big.NewInt(-1), lt.Big)
}

func TestReadExtListNewerVariant(t *testing.T) {
	// List ext tag (newer variant) = 0x17, then a literal-int count of 2,
	// then two small-int elements.
	r := NewReader([]byte{0x17, 0b00100000, 0b00010000, 0b00100000})
	lt, err := Read(r, VariantNewer)
	require.NoError(t, err)
	require.Equal(t, KindExtList, lt.Kind)
	require.Len(t, lt.List, 2)
	assert.Equal(t, int64(1), lt.List[0].Int)
	assert.Equal(t, int64(2), lt.List[1].Int)
}

func TestReadExtFloatR19Only(t *testing.T) {
	bits := []byte{0x3F, 0xF3, 0xC0, 0xC1, 0xFC, 0x8F, 0x32, 0x38}
	data := append([]byte{0x17}, bits...)
	r := NewReader(data)
	lt, err := Read(r, VariantR19)
	require.NoError(t, err)
	assert.Equal(t, KindFloat, lt.Kind)
	assert.InDelta(t, 1.23456, lt.Float, 1e-9)
}

func TestReadUnknownExtTagErrors(t *testing.T) {
	r := NewReader([]byte{0xFF})
	_, err := Read(r, VariantNewer)
	assert.Error(t, err)
}

func TestReadTruncatedStreamErrors(t *testing.T) {
	r := NewReader([]byte{0b00001000}) // 11-bit case, needs one more byte
	_, err := Read(r, VariantNewer)
	assert.Error(t, err)
}
