// Low-level read primitives for the newline-delimited record format.
//
// Every record is a single JSON line terminated by '\n'. These functions
// read individual lines and walk the body via SectionReader or ReadAt so
// they never depend on, or disturb, the shared file position.
package densevdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// line reads the record starting at offset up to the next newline.
func line(f *os.File, offset int64) ([]byte, error) {
	sz, err := size(f)
	if err != nil {
		return nil, err
	}

	remaining := sz - offset
	if offset < HeaderSize || remaining <= 0 {
		return nil, fmt.Errorf("%w: offset %d outside file", ErrCorruptRecord, offset)
	}

	section := io.NewSectionReader(f, offset, remaining)
	reader := bufio.NewReader(section)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}

	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	return data, nil
}

// records walks every line of the body in file order, calling fn with the
// line's offset and bytes. The slice is only valid for the duration of the
// call. Lines that are not records (blank or truncated) are skipped.
//
// Payload lines are never buffered whole: fn receives only their fixed
// prefix, enough for valid and kindOf, and the rest is discarded. Use line
// to read a payload in full. Every other record must fit in
// config.MaxRecordSize.
func records(f *os.File, config Config, fn func(offset int64, data []byte) error) error {
	sz, err := size(f)
	if err != nil {
		return err
	}
	if sz < HeaderSize {
		return ErrCorruptHeader
	}

	section := io.NewSectionReader(f, HeaderSize, sz-HeaderSize)
	br := bufio.NewReaderSize(section, config.ReadBuffer)
	buf := make([]byte, 0, MinRecordSize)
	offset := int64(HeaderSize)

	for {
		data, n, err := nextLine(br, buf[:0], config.MaxRecordSize)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: offset %d: %w", ErrCorruptRecord, offset, err)
		}
		if valid(data) {
			if err := fn(offset, data); err != nil {
				return err
			}
		}
		offset += n
		buf = data
	}
}

// errRecordTooLong reports a non-payload line over Config.MaxRecordSize.
var errRecordTooLong = errors.New("record too long")

// nextLine reads one line into buf without its newline and returns the
// bytes kept and the bytes consumed. A payload line keeps only its first
// MinRecordSize bytes. io.EOF is returned only when nothing was read.
func nextLine(br *bufio.Reader, buf []byte, limit int) ([]byte, int64, error) {
	var n int64
	payload := false
	for {
		chunk, err := br.ReadSlice('\n')
		n += int64(len(chunk))
		if err == nil {
			chunk = chunk[:len(chunk)-1]
		}

		if payload {
			if room := MinRecordSize - len(buf); room > 0 {
				buf = append(buf, chunk[:min(room, len(chunk))]...)
			}
		} else {
			buf = append(buf, chunk...)
			if len(buf) > TypePos && buf[0] == '{' && kindOf(buf) == TypePayload {
				payload = true
				buf = buf[:min(len(buf), MinRecordSize)]
			} else if len(buf) > limit {
				return nil, n, fmt.Errorf("%w: over %d bytes", errRecordTooLong, limit)
			}
		}

		switch err {
		case nil:
			return buf, n, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if n == 0 {
				return nil, 0, io.EOF
			}
			return buf, n, nil
		default:
			return nil, n, err
		}
	}
}

func size(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
