// Record types for the container body.
//
// After the header, the file is a sequence of single-line JSON records.
// Four types exist: file metadata, grid descriptors, retired records and
// grid payloads. Every record starts with {"idx":N,"_id":"...","_ts":N so
// the type byte and ID sit at fixed offsets; the scanner reads them
// without parsing and only decodes the lines it needs. A descriptor is
// small and points at its payload by byte offset, which lets enumeration
// and transform updates skip bulk voxel data entirely.
package densevdb

import (
	"time"

	json "github.com/goccy/go-json"
)

// Record type markers.
const (
	TypeMeta    = 1 // File metadata
	TypeGrid    = 2 // Live grid descriptor
	TypeRetired = 3 // Superseded descriptor, kept in place
	TypePayload = 4 // Compressed leaf data
)

// TypePos is the byte offset of the record type digit.
const TypePos = 7

// MaxNameSize is the maximum length of a grid name in bytes.
const MaxNameSize = 256

// MinRecordSize is the minimum valid record length.
// Format: {"idx":N,"_id":"XXXXXXXXXXXXXXXX","_ts":NNNNNNNNNNNNN
const MinRecordSize = 53

// MetaRecord holds the file-level metadata.
type MetaRecord struct {
	Type      int                  `json:"idx"`
	ID        string               `json:"_id"`
	Timestamp int64                `json:"_ts"`
	Meta      map[string]metaEntry `json:"_m,omitempty"`
}

// GridRecord describes one grid and locates its payload.
type GridRecord struct {
	Type       int                  `json:"idx"`
	ID         string               `json:"_id"`
	Timestamp  int64                `json:"_ts"`
	Name       string               `json:"_l"`
	Kind       string               `json:"_k"`
	Resolution Resolution           `json:"_r"`
	Transform  Transform            `json:"_x"`
	Background []float64            `json:"_bg"`
	Voxels     int64                `json:"_n"`
	Leaves     int                  `json:"_lc"`
	Meta       map[string]metaEntry `json:"_m,omitempty"`
	Offset     int64                `json:"_o"` // Byte position of the payload record
}

// PayloadRecord carries the encoded leaves of one grid.
type PayloadRecord struct {
	Type      int    `json:"idx"`
	ID        string `json:"_id"`
	Timestamp int64  `json:"_ts"`
	Size      int    `json:"_sz"` // Uncompressed leaf stream length
	Checksum  string `json:"_cs"` // xxHash3 of the uncompressed stream
	Data      string `json:"_d"`
}

func decodeMeta(data []byte) (*MetaRecord, error) {
	var r MetaRecord
	if err := json.Unmarshal(data, &r); err != nil || r.Type != TypeMeta {
		return nil, ErrCorruptRecord
	}
	return &r, nil
}

func decodeGrid(data []byte) (*GridRecord, error) {
	var r GridRecord
	if err := json.Unmarshal(data, &r); err != nil || r.Type != TypeGrid {
		return nil, ErrCorruptRecord
	}
	return &r, nil
}

func decodePayload(data []byte) (*PayloadRecord, error) {
	var r PayloadRecord
	if err := json.Unmarshal(data, &r); err != nil || r.Type != TypePayload {
		return nil, ErrCorruptRecord
	}
	return &r, nil
}

// valid checks if a line represents a record (starts with '{' and is long
// enough to carry the fixed prefix).
func valid(line []byte) bool {
	return len(line) >= MinRecordSize && line[0] == '{'
}

// kindOf returns the record type digit of a valid line.
func kindOf(line []byte) int {
	return int(line[TypePos] - '0')
}

// now returns the current time in unix milliseconds.
func now() int64 {
	return time.Now().UnixMilli()
}
