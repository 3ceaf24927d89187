// Package msi decodes the subset of an MSI installer database needed
// to extract files: the Media, Directory, Component and File tables,
// and the directory tree they describe. MSI table storage packs each
// column into its own contiguous column-major array inside the table
// stream, and table/column names are obfuscated before being used as
// CFB stream names; both quirks are decoded here.
package msi

import (
	"encoding/binary"
	"fmt"

	"github.com/xwin-go/xwin/internal/archive/cfb"
)

// msiNameAlphabet is the 64-character alphabet MSI uses to obfuscate
// table names into CFB stream names, packing two characters into each
// UTF-16 code unit.
var msiNameAlphabet = []rune(
	"0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ._abcdefghijklmnopqrstuvwxyz",
)

func msiNameIndex(r rune) (int, bool) {
	for i, c := range msiNameAlphabet {
		if c == r {
			return i, true
		}
	}
	return 0, false
}

// EncodeStreamName obfuscates a table or special-stream name into the
// form used for CFB stream lookups.
func EncodeStreamName(name string) string {
	runes := []rune(name)
	out := make([]rune, 0, len(runes)/2+1)
	for i := 0; i < len(runes); {
		c1, ok1 := msiNameIndex(runes[i])
		if !ok1 {
			out = append(out, runes[i])
			i++
			continue
		}
		if i+1 < len(runes) {
			if c2, ok2 := msiNameIndex(runes[i+1]); ok2 {
				out = append(out, rune(0x3800+c1+c2*64))
				i += 2
				continue
			}
		}
		out = append(out, rune(0x4800+c1))
		i++
	}
	return string(out)
}

// stringPool decodes the database's _StringPool/_StringData stream
// pair: a pool of interned strings referenced by index from every
// other table.
type stringPool struct {
	values   []string
	longRefs bool
}

func parseStringPool(poolData, stringData []byte) *stringPool {
	sp := &stringPool{values: []string{""}}
	if len(poolData) < 4 {
		return sp
	}
	flags := binary.LittleEndian.Uint16(poolData[2:4])
	sp.longRefs = flags&0x8000 != 0

	offset := 0
	for i := 4; i+4 <= len(poolData); i += 4 {
		length := int(binary.LittleEndian.Uint16(poolData[i : i+2]))
		if offset+length > len(stringData) {
			break
		}
		sp.values = append(sp.values, string(stringData[offset:offset+length]))
		offset += length
	}
	return sp
}

func (sp *stringPool) get(ref uint32) string {
	if int(ref) >= len(sp.values) {
		return ""
	}
	return sp.values[ref]
}

func (sp *stringPool) refSize() int {
	if sp.longRefs {
		return 3
	}
	return 2
}

// columnKind identifies how a fixed-schema column is encoded on disk.
type columnKind int

const (
	colString columnKind = iota
	colInt16
	colInt32
)

type column struct {
	name string
	kind columnKind
}

func (c column) width(sp *stringPool) int {
	switch c.kind {
	case colString:
		return sp.refSize()
	case colInt16:
		return 2
	case colInt32:
		return 4
	default:
		return 0
	}
}

// Directory/Component/File/Media column schemas. MSI ships a generic
// _Columns table describing arbitrary schemas, but the pipeline only
// ever reads these four fixed tables, so their layout is hardcoded
// rather than derived generically.
var directoryColumns = []column{{"Directory", colString}, {"Directory_Parent", colString}, {"DefaultDir", colString}}
var componentColumns = []column{{"Component", colString}, {"ComponentId", colString}, {"Directory_", colString}, {"Attributes", colInt16}, {"Condition", colString}, {"KeyPath", colString}}
var fileColumns = []column{{"File", colString}, {"Component_", colString}, {"FileName", colString}, {"FileSize", colInt32}, {"Version", colString}, {"Language", colString}, {"Attributes", colInt16}, {"Sequence", colInt16}}
var mediaColumns = []column{{"DiskId", colInt16}, {"LastSequence", colInt16}, {"DiskPrompt", colString}, {"Cabinet", colString}, {"VolumeLabel", colString}, {"Source", colString}}

// Row is a decoded table row keyed by column name; string columns
// resolve to their pool value, integer columns to their raw (sign-
// corrected) value.
type Row map[string]any

func decodeTable(data []byte, columns []column, sp *stringPool) ([]Row, error) {
	rowSize := 0
	for _, c := range columns {
		rowSize += c.width(sp)
	}
	if rowSize == 0 {
		return nil, fmt.Errorf("msi: zero-width table schema")
	}
	rowCount := len(data) / rowSize
	if rowCount == 0 {
		return nil, nil
	}

	rows := make([]Row, rowCount)
	for i := range rows {
		rows[i] = make(Row, len(columns))
	}

	colOffset := 0
	for _, c := range columns {
		width := c.width(sp)
		base := colOffset * rowCount
		for r := 0; r < rowCount; r++ {
			start := base + r*width
			end := start + width
			if end > len(data) {
				break
			}
			chunk := data[start:end]
			switch c.kind {
			case colString:
				var ref uint32
				for i, b := range chunk {
					ref |= uint32(b) << (8 * i)
				}
				rows[r][c.name] = sp.get(ref)
			case colInt16:
				v := binary.LittleEndian.Uint16(chunk)
				rows[r][c.name] = int32(int16(v ^ 0x8000))
			case colInt32:
				v := binary.LittleEndian.Uint32(chunk)
				rows[r][c.name] = int32(v ^ 0x80000000)
			}
		}
		colOffset += width
	}
	return rows, nil
}

// Database is the decoded subset of an MSI installer database needed
// to walk its directory tree and extract files.
type Database struct {
	Directories []Row
	Components  []Row
	Files       []Row
	Media       []Row

	reader *cfb.Reader
}

// OpenDatabase reads the Media, Directory, Component and File tables
// out of the compound file at path.
func OpenDatabase(path string) (*Database, error) {
	r, err := cfb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("msi: opening %s: %w", path, err)
	}
	db, err := decodeDatabase(r)
	if err != nil {
		return nil, err
	}
	db.reader = r
	return db, nil
}

// Cabinet returns the embedded CAB stream named by a Media table
// Cabinet value.
func (db *Database) Cabinet(cabinetName string) ([]byte, error) {
	return CabStream(db.reader, cabinetName)
}

func decodeDatabase(r *cfb.Reader) (*Database, error) {
	poolData, err := r.ReadStream(EncodeStreamName("_StringPool"))
	if err != nil {
		return nil, fmt.Errorf("msi: reading string pool: %w", err)
	}
	stringData, err := r.ReadStream(EncodeStreamName("_StringData"))
	if err != nil {
		return nil, fmt.Errorf("msi: reading string data: %w", err)
	}
	sp := parseStringPool(poolData, stringData)

	db := &Database{}
	for _, t := range []struct {
		name    string
		columns []column
		out     *[]Row
	}{
		{"Directory", directoryColumns, &db.Directories},
		{"Component", componentColumns, &db.Components},
		{"File", fileColumns, &db.Files},
		{"Media", mediaColumns, &db.Media},
	} {
		data, err := r.ReadStream(EncodeStreamName(t.name))
		if err != nil {
			return nil, fmt.Errorf("msi: reading %s table: %w", t.name, err)
		}
		rows, err := decodeTable(data, t.columns, sp)
		if err != nil {
			return nil, fmt.Errorf("msi: decoding %s table: %w", t.name, err)
		}
		*t.out = rows
	}
	return db, nil
}

// CabStream returns the embedded CAB stream for the given cabinet
// file name as recorded in the Media table (its Cabinet column
// usually holds a "#"-prefixed stream name for embedded cabinets).
func CabStream(r *cfb.Reader, cabinetName string) ([]byte, error) {
	name := cabinetName
	if len(name) > 0 && name[0] == '#' {
		name = name[1:]
	}
	return r.ReadStream(EncodeStreamName(name))
}
