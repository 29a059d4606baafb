package densevdb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRecordWriterOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdbx")
	f, _ := os.Create(path)
	defer f.Close()

	rw := newRecordWriter(f, 4096)
	first, err := rw.raw([]byte("abc"))
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	second, _ := rw.raw([]byte("defgh"))
	if err := rw.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if first != 0 || second != 4 {
		t.Errorf("offsets = %d, %d; want 0, 4", first, second)
	}
	if rw.off != 10 {
		t.Errorf("off = %d, want 10", rw.off)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "abc\ndefgh\n" {
		t.Errorf("file = %q", data)
	}
}

func TestRecordWriterRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdbx")
	f, _ := os.Create(path)
	defer f.Close()

	rw := newRecordWriter(f, 4096)
	rw.record(&MetaRecord{Type: TypeMeta, ID: "0123456789abcdef", Timestamp: 1234567890123})
	rw.flush()

	data, _ := os.ReadFile(path)
	want := `{"idx":1,"_id":"0123456789abcdef","_ts":1234567890123}` + "\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

// newTestAppender returns an appender over a committed empty container.
func newTestAppender(t *testing.T, sync bool) (*appender, string) {
	t.Helper()
	w := newTestWriter(t)
	path := filepath.Join(t.TempDir(), "test.vdbx")
	if err := w.Commit(path); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	hdr, err := header(f)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	tail, _ := size(f)
	return &appender{w: f, header: hdr, tail: tail, sync: sync}, path
}

func TestAppenderRaw(t *testing.T) {
	a, path := newTestAppender(t, false)
	initial := a.tail

	offset, err := a.raw([]byte(`{"test":"data"}`))
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if offset != initial {
		t.Errorf("offset = %d, want %d", offset, initial)
	}
	if a.tail != initial+16 {
		t.Errorf("tail = %d, want %d", a.tail, initial+16)
	}

	data, _ := os.ReadFile(path)
	if string(data[offset:]) != "{\"test\":\"data\"}\n" {
		t.Errorf("appended = %q", data[offset:])
	}
}

func TestAppenderDirtyFlag(t *testing.T) {
	a, path := newTestAppender(t, true)

	a.raw([]byte(`{"test":"data"}`))
	if a.header.Error != 1 {
		t.Error("header.Error should be 1 after write")
	}
	data, _ := os.ReadFile(path)
	if data[dirtyPos] != '1' {
		t.Errorf("dirty byte = %q, want '1'", data[dirtyPos])
	}

	if err := a.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	data, _ = os.ReadFile(path)
	if data[dirtyPos] != '0' || a.header.Error != 0 {
		t.Errorf("dirty byte = %q after finish, want '0'", data[dirtyPos])
	}
}

func TestAppenderWriteAt(t *testing.T) {
	a, path := newTestAppender(t, true)
	tail := a.tail

	offset, _ := a.raw([]byte(`{"idx":2,"x":1}`))
	if err := a.writeAt(offset+TypePos, []byte{'0' + TypeRetired}); err != nil {
		t.Fatalf("writeAt: %v", err)
	}
	if a.tail != tail+16 {
		t.Errorf("writeAt moved tail to %d", a.tail)
	}

	data, _ := os.ReadFile(path)
	if string(data[offset:]) != "{\"idx\":3,\"x\":1}\n" {
		t.Errorf("patched = %q", data[offset:])
	}
}
