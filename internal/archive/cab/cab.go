// Package cab decompresses Microsoft Cabinet archives. It supports
// the "stored" (uncompressed) and MSZIP folder compression types,
// which cover every CAB this pipeline ever needs to open; LZX is out
// of scope (see the module's design notes) and surfaces as an error
// rather than being silently mishandled.
package cab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const (
	compressNone    = 0
	compressMSZIP   = 1
	compressQuantum = 2
	compressLZX     = 3
)

// File is one decompressed member of a cabinet.
type File struct {
	Name string
	Data []byte
}

// folder is an internal record of one CFFOLDER plus the CFDATA blocks
// belonging to it.
type folder struct {
	compressType int
	dataOffset   uint32
	dataCount    uint16
}

// Parse decompresses every file stored in a single-cabinet CAB image.
// Multi-cabinet (spanned) archives are not supported; the manifest
// never ships SDK/CRT payloads spanning more than one cabinet.
func Parse(data []byte) ([]File, error) {
	if len(data) < 36 || string(data[0:4]) != "MSCF" {
		return nil, fmt.Errorf("cab: not a cabinet file (bad signature)")
	}

	coffFiles := binary.LittleEndian.Uint32(data[16:20])
	cFolders := binary.LittleEndian.Uint16(data[26:28])
	cFiles := binary.LittleEndian.Uint16(data[28:30])
	flags := binary.LittleEndian.Uint16(data[30:32])

	off := 36
	var cbCFFolder, cbCFData int
	if flags&0x0004 != 0 { // cfhdrRESERVE_PRESENT
		cbCFHeader := int(binary.LittleEndian.Uint16(data[off : off+2]))
		cbCFFolder = int(data[off+2])
		cbCFData = int(data[off+3])
		off += 4 + cbCFHeader
	}
	if flags&0x0001 != 0 { // cfhdrPREV_CABINET: skip null-terminated strings
		off = skipCString(data, off)
		off = skipCString(data, off)
	}
	if flags&0x0002 != 0 { // cfhdrNEXT_CABINET
		off = skipCString(data, off)
		off = skipCString(data, off)
	}

	folders := make([]folder, cFolders)
	for i := range folders {
		f := folder{
			dataOffset:   binary.LittleEndian.Uint32(data[off : off+4]),
			dataCount:    binary.LittleEndian.Uint16(data[off+4 : off+6]),
			compressType: int(binary.LittleEndian.Uint16(data[off+6:off+8])) & 0x0F,
		}
		folders[i] = f
		off += 8 + cbCFFolder
	}

	decompressed := make([][]byte, len(folders))
	for i, f := range folders {
		buf, err := decompressFolder(data, f, cbCFData)
		if err != nil {
			return nil, fmt.Errorf("cab: decompressing folder %d: %w", i, err)
		}
		decompressed[i] = buf
	}

	var files []File
	off = int(coffFiles)
	for i := 0; i < int(cFiles); i++ {
		if off+16 > len(data) {
			return nil, fmt.Errorf("cab: truncated file entry %d", i)
		}
		cbFile := binary.LittleEndian.Uint32(data[off : off+4])
		uoffFolderStart := binary.LittleEndian.Uint32(data[off+4 : off+8])
		iFolder := binary.LittleEndian.Uint16(data[off+8 : off+10])
		off += 16
		nameEnd := bytes.IndexByte(data[off:], 0)
		if nameEnd < 0 {
			return nil, fmt.Errorf("cab: unterminated file name at offset %d", off)
		}
		name := string(data[off : off+nameEnd])
		off += nameEnd + 1

		if int(iFolder) >= len(decompressed) {
			return nil, fmt.Errorf("cab: file %q references out-of-range folder %d", name, iFolder)
		}
		folderData := decompressed[iFolder]
		start := int(uoffFolderStart)
		end := start + int(cbFile)
		if end > len(folderData) {
			return nil, fmt.Errorf("cab: file %q extends past decompressed folder data", name)
		}
		files = append(files, File{Name: name, Data: folderData[start:end]})
	}

	return files, nil
}

func skipCString(data []byte, off int) int {
	idx := bytes.IndexByte(data[off:], 0)
	if idx < 0 {
		return len(data)
	}
	return off + idx + 1
}

// decompressFolder reads every CFDATA block belonging to f and
// concatenates their decompressed bytes. MSZIP blocks share a sliding
// window across the folder, so the previous block's tail is threaded
// in as the next block's dictionary.
func decompressFolder(data []byte, f folder, cbCFData int) ([]byte, error) {
	off := int(f.dataOffset)
	var out []byte

	switch f.compressType {
	case compressNone:
		for i := 0; i < int(f.dataCount); i++ {
			block, next, err := readDataBlock(data, off, cbCFData)
			if err != nil {
				return nil, err
			}
			out = append(out, block...)
			off = next
		}
		return out, nil

	case compressMSZIP:
		for i := 0; i < int(f.dataCount); i++ {
			compressed, next, err := readDataBlock(data, off, cbCFData)
			if err != nil {
				return nil, err
			}
			off = next
			if len(compressed) < 2 || compressed[0] != 'C' || compressed[1] != 'K' {
				return nil, fmt.Errorf("cab: MSZIP block missing CK signature")
			}
			dict := tail(out, 32768)
			fr := flate.NewReaderDict(bytes.NewReader(compressed[2:]), dict)
			decoded, err := io.ReadAll(fr)
			fr.(io.Closer).Close()
			if err != nil {
				return nil, fmt.Errorf("cab: inflating MSZIP block: %w", err)
			}
			out = append(out, decoded...)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("cab: unsupported compression type %d (LZX/Quantum are out of scope)", f.compressType)
	}
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

// readDataBlock reads one CFDATA record at off: csum, compressed size,
// uncompressed size, cbCFData reserved bytes, then the payload.
func readDataBlock(data []byte, off, cbCFData int) (payload []byte, next int, err error) {
	if off+8 > len(data) {
		return nil, 0, fmt.Errorf("cab: truncated data block header at offset %d", off)
	}
	cbData := binary.LittleEndian.Uint16(data[off+4 : off+6])
	start := off + 8 + cbCFData
	end := start + int(cbData)
	if end > len(data) {
		return nil, 0, fmt.Errorf("cab: truncated data block payload at offset %d", off)
	}
	return data[start:end], end, nil
}
