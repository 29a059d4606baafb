package densevdb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestRoundTripFloat(t *testing.T) {
	for _, c := range []Compression{CompressNone, CompressZip, CompressBlosc} {
		t.Run(c.String(), func(t *testing.T) {
			w := newTestWriter(t)
			w.SetCompression(c)
			res := Resolution{10, 7, 5}
			data := ramp(res.Cells())
			if _, err := w.ExportFloat("density", data, res, Identity()); err != nil {
				t.Fatalf("ExportFloat: %v", err)
			}
			r, _ := commitAndOpen(t, w)

			if r.Compression() != c {
				t.Errorf("Compression = %v, want %v", r.Compression(), c)
			}
			out := make([]float32, res.Cells())
			if err := r.ImportFloat("density", out, res); err != nil {
				t.Fatalf("ImportFloat: %v", err)
			}
			if diff := cmp.Diff(data, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTripInt(t *testing.T) {
	w := newTestWriter(t)
	res := Resolution{3, 3, 3}
	data := make([]int32, res.Cells())
	for i := range data {
		data[i] = int32(i%4) - 1
	}
	if _, err := w.ExportInt("flags", data, res, Identity()); err != nil {
		t.Fatalf("ExportInt: %v", err)
	}
	r, _ := commitAndOpen(t, w)

	out := make([]int32, res.Cells())
	if err := r.ImportInt("flags", out, res); err != nil {
		t.Fatalf("ImportInt: %v", err)
	}
	if diff := cmp.Diff(data, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripVector(t *testing.T) {
	w := newTestWriter(t)
	w.SetCompression(CompressBlosc)
	res := Resolution{6, 5, 4}
	n := res.Cells()
	x, y, z := ramp(n), make([]float32, n), make([]float32, n)
	for i := range y {
		y[i] = -x[i]
		if i%5 == 0 {
			z[i] = 2
		}
	}
	if _, err := w.ExportVector("vel", x, y, z, res, Identity(), VecInvariant, true); err != nil {
		t.Fatalf("ExportVector: %v", err)
	}
	r, _ := commitAndOpen(t, w)

	ox, oy, oz := make([]float32, n), make([]float32, n), make([]float32, n)
	if err := r.ImportVector("vel", ox, oy, oz, res); err != nil {
		t.Fatalf("ImportVector: %v", err)
	}
	for _, c := range []struct {
		axis      string
		want, got []float32
	}{{"x", x, ox}, {"y", y, oy}, {"z", z, oz}} {
		if diff := cmp.Diff(c.want, c.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", c.axis, diff)
		}
	}

	typ, err := r.Classify("vel")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if typ != TypeColor {
		t.Errorf("Classify = %q, want %q", typ, TypeColor)
	}
}

func TestRoundTripMasked(t *testing.T) {
	w := newTestWriter(t)
	res := Resolution{4, 4, 4}
	n := res.Cells()
	checker := make([]int32, n)
	full := make([]float32, n)
	want := make([]float32, n)
	for i := range full {
		full[i] = 5
		if i%2 == 0 {
			checker[i] = 1
			want[i] = 5
		}
	}
	mask, _ := w.ExportInt("mask", checker, res, Identity())
	if _, err := w.ExportFloat("density", full, res, Identity(), WithMask(mask)); err != nil {
		t.Fatalf("ExportFloat: %v", err)
	}
	r, _ := commitAndOpen(t, w)

	out := make([]float32, n)
	for i := range out {
		out[i] = -99 // import must overwrite every cell
	}
	if err := r.ImportFloat("density", out, res); err != nil {
		t.Fatalf("ImportFloat: %v", err)
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("masked import mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripMeta(t *testing.T) {
	w := newTestWriter(t)
	xf := ScaleTranslate(0.5, [3]float32{-1, 0, 1})
	w.SetFloat("dt", 0.04)
	w.SetInt("frame", 12)
	w.SetVec3f("gravity", [3]float32{0, -9.81, 0})
	w.SetVec3i("domain", [3]int32{64, 32, 16})
	w.SetMat4("obmat", xf)
	r, _ := commitAndOpen(t, w)

	if v, err := r.Float("dt"); err != nil || v != 0.04 {
		t.Errorf("Float(dt) = %v, %v", v, err)
	}
	if v, err := r.Int("frame"); err != nil || v != 12 {
		t.Errorf("Int(frame) = %v, %v", v, err)
	}
	if v, err := r.Vec3f("gravity"); err != nil || v != [3]float32{0, -9.81, 0} {
		t.Errorf("Vec3f(gravity) = %v, %v", v, err)
	}
	if v, err := r.Vec3i("domain"); err != nil || v != [3]int32{64, 32, 16} {
		t.Errorf("Vec3i(domain) = %v, %v", v, err)
	}
	if v, err := r.Mat4("obmat"); err != nil || v != xf {
		t.Errorf("Mat4(obmat) = %v, %v", v, err)
	}

	if _, err := r.Float("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Float(missing) = %v, want ErrNotFound", err)
	}
	if _, err := r.Int("dt"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Int(dt) = %v, want ErrTypeMismatch", err)
	}

	m, err := r.Meta()
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	want := []string{"domain", "dt", "frame", "gravity", "obmat"}
	if diff := cmp.Diff(want, m.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripGridProperties(t *testing.T) {
	w := newTestWriter(t)
	res := Resolution{5, 4, 3}
	xf := ScaleTranslate(0.1, [3]float32{0.5, 0.5, 0.5})
	w.ExportVector("vel", ramp(60), ramp(60), ramp(60), res, xf, VecCovariant, false)
	r, _ := commitAndOpen(t, w)

	g, err := r.Grid("vel")
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	if g.Resolution() != res {
		t.Errorf("Resolution = %v, want %v", g.Resolution(), res)
	}
	if g.Transform() != xf {
		t.Errorf("Transform = %v, want %v", g.Transform(), xf)
	}
	if g.VecType() != VecCovariant {
		t.Errorf("VecType = %v, want %v", g.VecType(), VecCovariant)
	}
	if g.Kind() != KindVec3Float {
		t.Errorf("Kind = %v, want %v", g.Kind(), KindVec3Float)
	}
	typ, _ := g.Classify()
	if typ != TypeVector {
		t.Errorf("Classify = %q, want %q", typ, TypeVector)
	}
}

func TestReaderGrids(t *testing.T) {
	w := newTestWriter(t)
	res := Resolution{2, 2, 2}
	w.ExportFloat("density", ramp(8), res, Identity())
	w.ExportInt("flags", []int32{0, 1, 0, 1, 0, 1, 0, 1}, res, Identity())
	w.ExportVector("color", ramp(8), ramp(8), ramp(8), res, Identity(), VecInvariant, true)
	r, _ := commitAndOpen(t, w)

	got, err := r.Grids()
	if err != nil {
		t.Fatalf("Grids: %v", err)
	}
	all := Bounds{Max: [3]int32{1, 1, 1}}
	want := []GridInfo{
		{Name: "density", Type: TypeFloat, Kind: KindFloat, Resolution: res, ActiveVoxels: 5, Bounds: all},
		{Name: "flags", Type: TypeInt32, Kind: KindInt32, Resolution: res, ActiveVoxels: 4,
			Bounds: Bounds{Min: [3]int32{1, 0, 0}, Max: [3]int32{1, 1, 1}}},
		{Name: "color", Type: TypeColor, Kind: KindVec3Float, Resolution: res, ActiveVoxels: 5, Bounds: all},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Grids mismatch (-want +got):\n%s", diff)
	}
}

func TestImportErrors(t *testing.T) {
	w := newTestWriter(t)
	res := Resolution{3, 3, 3}
	w.ExportFloat("density", ramp(27), res, Identity())
	r, _ := commitAndOpen(t, w)

	sentinel := float32(-7)
	out := make([]float32, 27)
	for i := range out {
		out[i] = sentinel
	}
	ints := make([]int32, 27)

	tests := []struct {
		name string
		err  error
		code Code
		fn   func() error
	}{
		{"missing grid", ErrNotFound, CodeNotFound, func() error {
			return r.ImportFloat("nope", out, res)
		}},
		{"resolution mismatch", ErrResolution, CodeInvalidArgument, func() error {
			return r.ImportFloat("density", out, Resolution{3, 3, 2})
		}},
		{"short buffer", ErrResolution, CodeInvalidArgument, func() error {
			return r.ImportFloat("density", out[:26], res)
		}},
		{"wrong kind", ErrTypeMismatch, CodeTypeMismatch, func() error {
			return r.ImportInt("density", ints, res)
		}},
		{"wrong kind vector", ErrTypeMismatch, CodeTypeMismatch, func() error {
			return r.ImportVector("density", out, out, out, res)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, tt.err) {
				t.Errorf("got %v, want %v", err, tt.err)
			}
			if CodeOf(err) != tt.code {
				t.Errorf("code = %v, want %v", CodeOf(err), tt.code)
			}
		})
	}

	for i, v := range out {
		if v != sentinel {
			t.Fatalf("failed import wrote cell %d", i)
		}
	}
}

func TestReaderLifecycle(t *testing.T) {
	w := newTestWriter(t)
	w.ExportFloat("density", ramp(8), Resolution{2, 2, 2}, Identity())
	path := filepath.Join(t.TempDir(), "a.vdbx")
	if err := w.Commit(path); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r := NewReader(Config{})
	if _, err := r.Float("x"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Float before Open = %v, want ErrNotOpen", err)
	}
	if err := r.ImportFloat("density", make([]float32, 8), Resolution{2, 2, 2}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ImportFloat before Open = %v, want ErrNotOpen", err)
	}
	if _, err := r.Grids(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Grids before Open = %v, want ErrNotOpen", err)
	}

	if err := r.Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Open(path); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
	if r.UUID() == "" {
		t.Error("UUID empty after Open")
	}

	g, _ := r.Grid("density")
	r.Close()
	if g.ActiveVoxelCount() != 0 {
		t.Error("grid not released by Close")
	}
	if _, err := r.Grid("density"); !errors.Is(err, ErrClosed) {
		t.Errorf("Grid after Close = %v, want ErrClosed", err)
	}
	if err := r.Open(path); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v, want ErrClosed", err)
	}
}

func TestReaderOpenFailures(t *testing.T) {
	dir := t.TempDir()

	r := NewReader(Config{})
	defer r.Close()
	err := r.Open(filepath.Join(dir, "missing.vdbx"))
	if err == nil {
		t.Fatal("Open of missing file succeeded")
	}
	if CodeOf(err) != CodeEngineFailure {
		t.Errorf("code = %v, want %v", CodeOf(err), CodeEngineFailure)
	}

	junk := filepath.Join(dir, "junk.vdbx")
	os.WriteFile(junk, []byte("not a container"), 0644)
	if err := r.Open(junk); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("Open of junk = %v, want ErrCorruptHeader", err)
	}

	// A failed open leaves the reader usable.
	w := newTestWriter(t)
	w.ExportFloat("density", ramp(8), Resolution{2, 2, 2}, Identity())
	good := filepath.Join(dir, "good.vdbx")
	w.Commit(good)
	if err := r.Open(good); err != nil {
		t.Errorf("Open after failures: %v", err)
	}
}

func TestReaderChecksum(t *testing.T) {
	w := newTestWriter(t)
	w.SetCompression(CompressNone)
	w.ExportFloat("density", ramp(64), Resolution{4, 4, 4}, Identity())
	path := filepath.Join(t.TempDir(), "a.vdbx")
	if err := w.Commit(path); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, _ := os.ReadFile(path)
	c := catalogueFile(t, path)
	// Corrupt one character inside the ascii85 payload body.
	off := c.grids[0].rec.Offset
	pos := off + int64(bytes.Index(data[off:], []byte(`"_d":"`))) + 20
	if data[pos] == 'A' {
		data[pos] = 'B'
	} else {
		data[pos] = 'A'
	}
	os.WriteFile(path, data, 0644)

	r := NewReader(Config{})
	defer r.Close()
	err := r.Open(path)
	if err == nil {
		t.Fatal("Open of corrupted payload succeeded")
	}
	if CodeOf(err) != CodeEngineFailure {
		t.Errorf("code = %v, want %v", CodeOf(err), CodeEngineFailure)
	}
}

func TestReaderWarnsDirty(t *testing.T) {
	w := newTestWriter(t)
	path := filepath.Join(t.TempDir(), "a.vdbx")
	w.Commit(path)

	f, _ := os.OpenFile(path, os.O_RDWR, 0)
	dirty(f, true)
	f.Close()

	logger, hook := test.NewNullLogger()
	r := NewReader(Config{Logger: logger})
	defer r.Close()
	if err := r.Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Error("no warning for dirty container")
	}
}

// catalogueFile reads the live descriptors of the container at path.
func catalogueFile(t *testing.T, path string) *catalog {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	c, err := catalogue(f, Config{}.withDefaults())
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	return c
}
