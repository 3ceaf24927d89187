// Package cfb reads OLE2 Compound File Binary documents, the
// container format MSI databases are stored in. It implements just
// enough of the format (FAT/MiniFAT sector chains and the directory
// tree) to enumerate and read back named streams; it is not a general
// purpose OLE library.
package cfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unicode/utf16"
)

const (
	sectorFree       = 0xFFFFFFFF
	sectorEndOfChain = 0xFFFFFFFE
	sectorFAT        = 0xFFFFFFFD
	sectorDIFAT      = 0xFFFFFFFC

	headerSize         = 512
	directoryEntrySize = 128

	objectTypeStream = 2
	objectTypeRoot   = 5
)

var signature = [8]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Entry describes one directory entry in the compound file.
type Entry struct {
	Name               string
	Type               byte
	StartSector        uint32
	Size               uint64
	Left, Right, Child uint32
}

// Reader provides random access to the named streams of an OLE
// compound document.
type Reader struct {
	data           []byte
	sectorSize     int
	miniSectorSize int
	fat            []uint32
	miniFAT        []uint32
	entries        []Entry
	miniStreamData []byte
	byName         map[string]*Entry
}

// Open reads and parses the compound file at path.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReader(data)
}

// NewReader parses an in-memory compound file image.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < headerSize {
		return nil, errors.New("cfb: file too small to contain a header")
	}
	if string(data[0:8]) != string(signature[:]) {
		return nil, errors.New("cfb: bad signature, not an OLE compound file")
	}

	sectorShift := binary.LittleEndian.Uint16(data[30:32])
	miniSectorShift := binary.LittleEndian.Uint16(data[32:34])
	numFATSectors := binary.LittleEndian.Uint32(data[44:48])
	firstDirSector := binary.LittleEndian.Uint32(data[48:52])
	miniStreamCutoff := binary.LittleEndian.Uint32(data[56:60])
	firstMiniFATSector := binary.LittleEndian.Uint32(data[60:64])
	numMiniFATSectors := binary.LittleEndian.Uint32(data[64:68])
	firstDIFATSector := binary.LittleEndian.Uint32(data[68:72])
	numDIFATSectors := binary.LittleEndian.Uint32(data[72:76])

	r := &Reader{
		data:           data,
		sectorSize:     1 << sectorShift,
		miniSectorSize: 1 << miniSectorShift,
		byName:         make(map[string]*Entry),
	}

	difat := make([]uint32, 0, 109+int(numDIFATSectors)*(r.sectorSize/4-1))
	for i := 0; i < 109; i++ {
		off := 76 + i*4
		difat = append(difat, binary.LittleEndian.Uint32(data[off:off+4]))
	}

	sector := firstDIFATSector
	for i := uint32(0); i < numDIFATSectors; i++ {
		buf, err := r.sectorBytes(sector)
		if err != nil {
			return nil, err
		}
		entriesPerSector := r.sectorSize/4 - 1
		for j := 0; j < entriesPerSector; j++ {
			difat = append(difat, binary.LittleEndian.Uint32(buf[j*4:j*4+4]))
		}
		sector = binary.LittleEndian.Uint32(buf[r.sectorSize-4 : r.sectorSize])
	}

	r.fat = make([]uint32, 0, int(numFATSectors)*(r.sectorSize/4))
	for _, fatSector := range difat {
		if fatSector == sectorFree {
			continue
		}
		buf, err := r.sectorBytes(fatSector)
		if err != nil {
			return nil, err
		}
		for off := 0; off+4 <= len(buf); off += 4 {
			r.fat = append(r.fat, binary.LittleEndian.Uint32(buf[off:off+4]))
		}
	}

	r.miniFAT, _ = r.readChain(firstMiniFATSector, func(buf []byte) []uint32 {
		out := make([]uint32, 0, len(buf)/4)
		for off := 0; off+4 <= len(buf); off += 4 {
			out = append(out, binary.LittleEndian.Uint32(buf[off:off+4]))
		}
		return out
	})
	_ = numMiniFATSectors

	dirData, err := r.readStreamBySector(firstDirSector, 0, false)
	if err != nil {
		return nil, fmt.Errorf("cfb: reading directory stream: %w", err)
	}
	numEntries := len(dirData) / directoryEntrySize
	r.entries = make([]Entry, 0, numEntries)
	for i := 0; i < numEntries; i++ {
		e := parseEntry(dirData[i*directoryEntrySize : (i+1)*directoryEntrySize])
		r.entries = append(r.entries, e)
	}

	var root *Entry
	for i := range r.entries {
		if r.entries[i].Type == objectTypeRoot {
			root = &r.entries[i]
			break
		}
	}
	if root != nil && root.Size > 0 {
		r.miniStreamData, err = r.readStreamBySector(root.StartSector, root.Size, false)
		if err != nil {
			return nil, fmt.Errorf("cfb: reading mini stream: %w", err)
		}
	}

	r.indexNames()
	_ = miniStreamCutoff
	return r, nil
}

func (r *Reader) indexNames() {
	var walk func(id uint32, prefix string)
	if len(r.entries) == 0 {
		return
	}
	var root *Entry
	for i := range r.entries {
		if r.entries[i].Type == objectTypeRoot {
			root = &r.entries[i]
		}
	}
	if root == nil {
		return
	}
	walk = func(id uint32, prefix string) {
		if id == sectorFree || id >= uint32(len(r.entries)) {
			return
		}
		e := &r.entries[id]
		if e.Left != sectorFree {
			walk(e.Left, prefix)
		}
		if e.Type == objectTypeStream {
			r.byName[e.Name] = e
		}
		if e.Child != sectorFree {
			walk(e.Child, e.Name+"/")
		}
		if e.Right != sectorFree {
			walk(e.Right, prefix)
		}
	}
	walk(root.Child, "")
}

func parseEntry(b []byte) Entry {
	nameLen := int(binary.LittleEndian.Uint16(b[64:66]))
	var name string
	if nameLen >= 2 {
		u16 := make([]uint16, (nameLen-2)/2)
		for i := range u16 {
			u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
		}
		name = string(utf16.Decode(u16))
	}
	return Entry{
		Name:        name,
		Type:        b[66],
		Left:        binary.LittleEndian.Uint32(b[68:72]),
		Right:       binary.LittleEndian.Uint32(b[72:76]),
		Child:       binary.LittleEndian.Uint32(b[76:80]),
		StartSector: binary.LittleEndian.Uint32(b[116:120]),
		Size:        binary.LittleEndian.Uint64(b[120:128]),
	}
}

func (r *Reader) sectorBytes(sector uint32) ([]byte, error) {
	start := headerSize + int(sector)*r.sectorSize
	end := start + r.sectorSize
	if start < 0 || end > len(r.data) {
		return nil, fmt.Errorf("cfb: sector %d out of range", sector)
	}
	return r.data[start:end], nil
}

func (r *Reader) readChain(start uint32, decode func([]byte) []uint32) ([]uint32, error) {
	var out []uint32
	sector := start
	seen := make(map[uint32]bool)
	for sector != sectorEndOfChain && sector != sectorFree {
		if seen[sector] {
			return out, fmt.Errorf("cfb: cyclic FAT chain at sector %d", sector)
		}
		seen[sector] = true
		buf, err := r.sectorBytes(sector)
		if err != nil {
			return out, err
		}
		out = append(out, decode(buf)...)
		if int(sector) >= len(r.fat) {
			break
		}
		sector = r.fat[sector]
	}
	return out, nil
}

// readStreamBySector follows the FAT chain (or, when mini is set, the
// MiniFAT chain over the mini stream) starting at startSector and
// concatenates sector contents, truncating to size when size is nonzero.
func (r *Reader) readStreamBySector(startSector uint32, size uint64, mini bool) ([]byte, error) {
	var out []byte
	sector := startSector
	seen := make(map[uint32]bool)
	chain := r.fat
	secSize := r.sectorSize
	if mini {
		chain = r.miniFAT
		secSize = r.miniSectorSize
	}
	for sector != sectorEndOfChain && sector != sectorFree {
		if seen[sector] {
			return out, fmt.Errorf("cfb: cyclic chain at sector %d", sector)
		}
		seen[sector] = true

		var buf []byte
		var err error
		if mini {
			buf, err = r.miniSectorBytes(sector)
		} else {
			buf, err = r.sectorBytes(sector)
		}
		if err != nil {
			return out, err
		}
		out = append(out, buf...)

		if int(sector) >= len(chain) {
			break
		}
		sector = chain[sector]
	}
	_ = secSize
	if size > 0 && uint64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}

func (r *Reader) miniSectorBytes(sector uint32) ([]byte, error) {
	start := int(sector) * r.miniSectorSize
	end := start + r.miniSectorSize
	if start < 0 || end > len(r.miniStreamData) {
		return nil, fmt.Errorf("cfb: mini sector %d out of range", sector)
	}
	return r.miniStreamData[start:end], nil
}

// Names returns every stream name registered in the directory tree.
func (r *Reader) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// ReadStream returns the full bytes of the named stream, as stored.
func (r *Reader) ReadStream(name string) ([]byte, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("cfb: stream %q not found", name)
	}
	mini := e.Size < miniStreamCutoffDefault
	return r.readStreamBySector(e.StartSector, e.Size, mini)
}

// miniStreamCutoffDefault mirrors the header's mini stream cutoff
// size field, which is always 4096 bytes in practice.
const miniStreamCutoffDefault = 4096
