// Header management for the container file.
//
// The header is exactly HeaderSize bytes: a JSON object padded with spaces
// and terminated with a newline. It records the format version, the dirty
// flag used for crash detection, the ID hash algorithm, the compression
// applied to every payload and a UUID identifying the file.
package densevdb

import (
	"bytes"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// HeaderSize is the fixed size of the header in bytes.
const HeaderSize = 128

// FormatVersion is the container version written by this package.
const FormatVersion = 1

// dirtyPos is the byte offset of the _e value: {"_v":N,"_e":X
const dirtyPos = 13

// Header contains file metadata stored at the start of the container.
type Header struct {
	Version     int    `json:"_v"`   // FormatVersion
	Error       int    `json:"_e"`   // 0=clean, 1=dirty (update interrupted)
	Algorithm   int    `json:"_alg"` // ID hash algorithm (1=xxHash3, 2=FNV1a, 3=Blake2b)
	Compression int    `json:"_c"`   // Compression of every payload record
	Timestamp   int64  `json:"_ts"`  // Unix milliseconds when committed
	UUID        string `json:"_u"`   // File identity, regenerated on every commit
}

func newHeader(alg int, c Compression) *Header {
	return &Header{
		Version:     FormatVersion,
		Algorithm:   alg,
		Compression: int(c),
		Timestamp:   now(),
		UUID:        uuid.NewString(),
	}
}

// header reads and validates the header of f.
func header(f *os.File) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	if buf[HeaderSize-1] != '\n' {
		return nil, ErrCorruptHeader
	}

	var hdr Header
	if err := json.Unmarshal(bytes.TrimSpace(buf), &hdr); err != nil {
		return nil, ErrCorruptHeader
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptHeader, hdr.Version)
	}
	if hash("", hdr.Algorithm) == "" {
		return nil, fmt.Errorf("%w: unknown hash algorithm %d", ErrCorruptHeader, hdr.Algorithm)
	}
	if !Compression(hdr.Compression).valid() {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorruptHeader, hdr.Compression)
	}
	if _, err := uuid.Parse(hdr.UUID); err != nil {
		return nil, fmt.Errorf("%w: uuid: %w", ErrCorruptHeader, err)
	}
	return &hdr, nil
}

// dirty sets or clears the dirty flag at its fixed offset in the header.
func dirty(w *os.File, v bool) error {
	b := byte('0')
	if v {
		b = '1'
	}
	_, err := w.WriteAt([]byte{b}, dirtyPos)
	return err
}

// encode serialises the header to exactly HeaderSize bytes with padding.
func (h *Header) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}

	// Pad with spaces to HeaderSize-1, then add newline
	if len(data) > HeaderSize-1 {
		return nil, ErrCorruptHeader // header too large
	}

	buf := make([]byte, HeaderSize)
	copy(buf, data)
	for i := len(data); i < HeaderSize-1; i++ {
		buf[i] = ' '
	}
	buf[HeaderSize-1] = '\n'

	return buf, nil
}
