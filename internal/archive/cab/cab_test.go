package cab

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStoredCabinet assembles a minimal single-folder, single-file,
// uncompressed ("stored") CAB image containing one file.
func buildStoredCabinet(t *testing.T, name string, payload []byte) []byte {
	t.Helper()

	const headerSize = 36
	const folderRecordSize = 8
	dataOffset := uint32(headerSize + folderRecordSize)
	dataBlockSize := 8 + len(payload)
	coffFiles := uint32(int(dataOffset) + dataBlockSize)

	var buf bytes.Buffer
	buf.WriteString("MSCF")
	writeU32(&buf, 0) // reserved1
	writeU32(&buf, 0) // cbCabinet, patched below
	writeU32(&buf, 0) // reserved2
	writeU32(&buf, coffFiles)
	writeU32(&buf, 0) // reserved3
	buf.WriteByte(3)  // versionMinor
	buf.WriteByte(1)  // versionMajor
	writeU16(&buf, 1) // cFolders
	writeU16(&buf, 1) // cFiles
	writeU16(&buf, 0) // flags
	writeU16(&buf, 0) // setID
	writeU16(&buf, 0) // iCabinet

	// CFFOLDER
	writeU32(&buf, dataOffset)
	writeU16(&buf, 1) // cCFData
	writeU16(&buf, compressNone)

	// CFDATA
	writeU32(&buf, 0) // csum
	writeU16(&buf, uint16(len(payload)))
	writeU16(&buf, uint16(len(payload)))
	buf.Write(payload)

	// CFFILE
	writeU32(&buf, uint32(len(payload)))
	writeU32(&buf, 0) // uoffFolderStart
	writeU16(&buf, 0) // iFolder
	writeU16(&buf, 0) // date
	writeU16(&buf, 0) // time
	writeU16(&buf, 0) // attribs
	buf.WriteString(name)
	buf.WriteByte(0)

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(out)))
	return out
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func TestParseStoredCabinetSingleFile(t *testing.T) {
	data := buildStoredCabinet(t, "hello.txt", []byte("hello world"))

	files, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "hello.txt", files[0].Name)
	assert.Equal(t, []byte("hello world"), files[0].Data)
}

func TestParseRejectsBadSignature(t *testing.T) {
	_, err := Parse([]byte("not a cabinet file at all"))
	require.Error(t, err)
}

func TestParseRejectsLZX(t *testing.T) {
	data := buildStoredCabinet(t, "hello.txt", []byte("hello world"))
	// Patch the folder's compression type field to LZX.
	data[36+6] = compressLZX
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of scope")
}
