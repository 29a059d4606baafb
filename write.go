// Write primitives.
//
// A commit streams a brand new file through recordWriter, which tracks the
// byte offset of each record so descriptors can point at their payloads.
// In-place edits of an existing container go through appender: records
// are appended at the tail and older ones retired by patching their type
// byte. The dirty flag is set before the first append so an interrupted
// edit is detectable, and cleared by finish once everything is flushed.
package densevdb

import (
	"bufio"
	"os"

	json "github.com/goccy/go-json"
)

// recordWriter serialises records sequentially to a fresh file.
type recordWriter struct {
	bw  *bufio.Writer
	off int64
}

func newRecordWriter(f *os.File, size int) *recordWriter {
	return &recordWriter{bw: bufio.NewWriterSize(f, size)}
}

// raw writes pre-encoded bytes followed by a newline and returns the
// offset they start at.
func (w *recordWriter) raw(data []byte) (int64, error) {
	offset := w.off
	if _, err := w.bw.Write(data); err != nil {
		return 0, err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return 0, err
	}
	w.off += int64(len(data)) + 1
	return offset, nil
}

// record marshals v and writes it as one line.
func (w *recordWriter) record(v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return w.raw(data)
}

func (w *recordWriter) flush() error {
	return w.bw.Flush()
}

// appender edits an existing container in place.
type appender struct {
	w      *os.File
	header *Header
	tail   int64
	sync   bool
}

// raw appends bytes at the tail and advances it. The dirty flag is set on
// the first write so that an interruption before finish is recorded.
func (a *appender) raw(line []byte) (int64, error) {
	if a.header.Error == 0 {
		a.header.Error = 1
		if err := dirty(a.w, true); err != nil {
			return 0, err
		}
	}

	offset := a.tail
	data := append(line, '\n')
	if _, err := a.w.WriteAt(data, offset); err != nil {
		return 0, err
	}
	a.tail += int64(len(data))

	if a.sync {
		a.w.Sync()
	}
	return offset, nil
}

// writeAt patches bytes at an existing offset without moving the tail.
// Used to flip a record's type byte when retiring it.
func (a *appender) writeAt(offset int64, data []byte) error {
	if _, err := a.w.WriteAt(data, offset); err != nil {
		return err
	}
	if a.sync {
		a.w.Sync()
	}
	return nil
}

// finish clears the dirty flag and flushes to stable storage.
func (a *appender) finish() error {
	if a.header.Error == 1 {
		if err := dirty(a.w, false); err != nil {
			return err
		}
		a.header.Error = 0
	}
	return a.w.Sync()
}
