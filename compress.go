// Compression for grid payloads.
//
// A container carries one Compression for every grid it holds. The two
// active-mask modes store only the active values of each leaf (inactive
// slots are rebuilt from the background on load) and then run the leaf
// stream through a codec: zlib for the zip tier, zstd at its fastest level
// for the blosc tier. CompressNone stores every slot of every leaf raw.
//
// Whatever the codec, the bytes are Ascii85-encoded so the payload fits in
// a JSON string on a single line. The alphabet includes '"', '\\', '<', '>'
// and '&', which the JSON encoder still escapes.
package densevdb

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the codec and mask combination used on commit.
type Compression int

const (
	CompressNone Compression = iota
	CompressZip
	CompressBlosc
)

// SelectCompression maps a host preference flag onto a Compression:
// 0 is the zip tier, 1 the blosc tier and any other value disables
// compression entirely, including the active mask.
func SelectCompression(flag int) Compression {
	switch flag {
	case 0:
		return CompressZip
	case 1:
		return CompressBlosc
	default:
		return CompressNone
	}
}

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressZip:
		return "active_mask+zip"
	case CompressBlosc:
		return "active_mask+blosc"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

// ActiveMask reports whether only active values are stored.
func (c Compression) ActiveMask() bool {
	return c == CompressZip || c == CompressBlosc
}

func (c Compression) valid() bool {
	return c >= CompressNone && c <= CompressBlosc
}

// Shared zstd encoder/decoder, both safe for concurrent use. SpeedFastest
// matches the blosc tier's intent of cheap block compression over ratio.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// pack compresses data with the codec of c and Ascii85-encodes the result.
func pack(data []byte, c Compression) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	var compressed []byte
	switch c {
	case CompressNone:
		compressed = data
	case CompressZip:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
		if err != nil {
			return "", fmt.Errorf("%w: zlib: %w", ErrEngine, err)
		}
		if _, err := zw.Write(data); err != nil {
			return "", fmt.Errorf("%w: zlib: %w", ErrEngine, err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("%w: zlib: %w", ErrEngine, err)
		}
		compressed = buf.Bytes()
	case CompressBlosc:
		compressed = zstdEncoder.EncodeAll(data, nil)
	default:
		return "", fmt.Errorf("%w: compression %d", ErrInvalidArgument, int(c))
	}

	var encoded bytes.Buffer
	enc := ascii85.NewEncoder(&encoded)
	// bytes.Buffer.Write never errors; enc.Close flushes trailing padding.
	_, _ = enc.Write(compressed)
	_ = enc.Close()

	return encoded.String(), nil
}

// unpack reverses pack.
func unpack(encoded string, c Compression) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	dec := ascii85.NewDecoder(bytes.NewReader([]byte(encoded)))
	compressed, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: ascii85: %w", ErrDecompress, err)
	}

	switch c {
	case CompressNone:
		return compressed, nil
	case CompressZip:
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %w", ErrDecompress, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %w", ErrDecompress, err)
		}
		return out, nil
	case CompressBlosc:
		out, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrDecompress, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrCorruptHeader, int(c))
	}
}
