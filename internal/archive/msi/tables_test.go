package msi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStreamNamePairsCharacters(t *testing.T) {
	encoded := EncodeStreamName("Directory")
	assert.NotEqual(t, "Directory", encoded)
	// Nine alphabet characters pack into four pairs plus one single.
	assert.Len(t, []rune(encoded), 5)
	// Re-running encoding is deterministic.
	assert.Equal(t, encoded, EncodeStreamName("Directory"))
}

func TestParseStringPoolShortRefs(t *testing.T) {
	stringData := []byte("FooBarBaz")
	var pool []byte
	pool = append(pool, 0, 0) // codepage
	pool = append(pool, 0, 0) // flags (short refs)
	appendPoolEntry(&pool, 3) // "Foo"
	appendPoolEntry(&pool, 3) // "Bar"
	appendPoolEntry(&pool, 3) // "Baz"

	sp := parseStringPool(pool, stringData)
	assert.Equal(t, 2, sp.refSize())
	assert.Equal(t, "Foo", sp.get(1))
	assert.Equal(t, "Bar", sp.get(2))
	assert.Equal(t, "Baz", sp.get(3))
	assert.Equal(t, "", sp.get(0))
}

func appendPoolEntry(pool *[]byte, length uint16) {
	var b [4]byte
	binary.LittleEndian.PutUint16(b[0:2], length)
	*pool = append(*pool, b[:]...)
}

func TestDecodeTableColumnMajorLayout(t *testing.T) {
	stringData := []byte("DirARootDirB")
	var pool []byte
	pool = append(pool, 0, 0, 0, 0)
	appendPoolEntry(&pool, 4) // "DirA"
	appendPoolEntry(&pool, 4) // "Root"
	appendPoolEntry(&pool, 4) // "DirB"
	sp := parseStringPool(pool, stringData)

	columns := []column{{"Directory", colString}, {"Directory_Parent", colString}}
	// Column-major: all "Directory" values first, then all
	// "Directory_Parent" values. Two rows: (DirA -> Root), (DirB -> Root).
	data := []byte{
		1, 0, // row0.Directory = ref 1 (DirA)
		3, 0, // row1.Directory = ref 3 (DirB)
		2, 0, // row0.Directory_Parent = ref 2 (Root)
		2, 0, // row1.Directory_Parent = ref 2 (Root)
	}

	rows, err := decodeTable(data, columns, sp)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "DirA", rows[0]["Directory"])
	assert.Equal(t, "Root", rows[0]["Directory_Parent"])
	assert.Equal(t, "DirB", rows[1]["Directory"])
	assert.Equal(t, "Root", rows[1]["Directory_Parent"])
}

func TestDecodeTableSignCorrectedIntegers(t *testing.T) {
	columns := []column{{"Attributes", colInt16}}
	// Encoded value is the true value XORed with 0x8000; -1 round-trips
	// through that correction back to 0xFFFF before the XOR is undone.
	var encoded [2]byte
	binary.LittleEndian.PutUint16(encoded[:], uint16(int16(-1))^0x8000)

	rows, err := decodeTable(encoded[:], columns, &stringPool{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, -1, rows[0]["Attributes"])
}
