package densevdb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFluidFile(t *testing.T) (string, []float32) {
	t.Helper()
	w := newTestWriter(t)
	res := Resolution{4, 4, 4}
	data := ramp(res.Cells())
	w.SetInt("frame", 3)
	w.ExportFloat("density", data, res, Identity())
	w.ExportFloat("densityHigh", data, res, Identity())
	w.ExportVector("velocity", data, data, data, res, Identity(), VecContravariantRelative, false)
	path := filepath.Join(t.TempDir(), "fluid.vdbx")
	if err := w.Commit(path); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return path, data
}

func TestUpdateTransform(t *testing.T) {
	path, data := writeFluidFile(t)
	base := ScaleTranslate(0.5, [3]float32{1, 2, 3})
	high := ScaleTranslate(0.25, [3]float32{1, 2, 3})

	if err := UpdateTransform(path, base, high, Config{}); err != nil {
		t.Fatalf("UpdateTransform: %v", err)
	}

	r := NewReader(Config{})
	defer r.Close()
	if err := r.Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := map[string]Transform{
		"density":     base,
		"densityHigh": high,
		"velocity":    base,
	}
	for name, xf := range want {
		g, err := r.Grid(name)
		if err != nil {
			t.Fatalf("Grid(%s): %v", name, err)
		}
		if g.Transform() != xf {
			t.Errorf("%s transform = %v, want %v", name, g.Transform(), xf)
		}
		m := g.Meta()
		vs, _ := m.Vec3f(metaVoxelSize)
		if vs != xf.VoxelSize() {
			t.Errorf("%s voxel_size = %v, want %v", name, vs, xf.VoxelSize())
		}
	}

	// Voxel data, grid order and file metadata survive.
	infos, _ := r.Grids()
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if diff := cmp.Diff([]string{"density", "densityHigh", "velocity"}, names); diff != "" {
		t.Errorf("grid order mismatch (-want +got):\n%s", diff)
	}
	out := make([]float32, len(data))
	if err := r.ImportFloat("densityHigh", out, Resolution{4, 4, 4}); err != nil {
		t.Fatalf("ImportFloat: %v", err)
	}
	if diff := cmp.Diff(data, out); diff != "" {
		t.Errorf("voxels changed by update (-want +got):\n%s", diff)
	}
	if v, err := r.Int("frame"); err != nil || v != 3 {
		t.Errorf("frame = %v, %v; want 3", v, err)
	}
	vs, _ := r.Grid("velocity")
	if vs.VecType() != VecContravariantRelative {
		t.Errorf("VecType = %v, want %v", vs.VecType(), VecContravariantRelative)
	}
}

func TestUpdateTransformRetires(t *testing.T) {
	path, _ := writeFluidFile(t)
	before, _ := os.ReadFile(path)

	if err := UpdateTransform(path, Identity(), Identity(), Config{}); err != nil {
		t.Fatalf("UpdateTransform: %v", err)
	}
	after, _ := os.ReadFile(path)

	if len(after) <= len(before) {
		t.Fatalf("file did not grow: %d -> %d", len(before), len(after))
	}
	if after[dirtyPos] != '0' {
		t.Errorf("dirty flag = %q after update, want '0'", after[dirtyPos])
	}

	var live, retired int
	for _, line := range bytes.Split(after[HeaderSize:], []byte{'\n'}) {
		if !valid(line) {
			continue
		}
		switch kindOf(line) {
		case TypeGrid:
			live++
		case TypeRetired:
			retired++
		}
	}
	if live != 3 || retired != 3 {
		t.Errorf("live = %d, retired = %d; want 3 and 3", live, retired)
	}
}

func TestUpdateTransformTwice(t *testing.T) {
	path, _ := writeFluidFile(t)
	first := ScaleTranslate(2, [3]float32{})
	second := ScaleTranslate(3, [3]float32{})

	UpdateTransform(path, first, first, Config{})
	if err := UpdateTransform(path, second, first, Config{}); err != nil {
		t.Fatalf("second UpdateTransform: %v", err)
	}

	got, err := ListGrids(path, Config{})
	if err != nil {
		t.Fatalf("ListGrids: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListGrids = %d grids, want 3", len(got))
	}

	r := NewReader(Config{})
	defer r.Close()
	r.Open(path)
	g, _ := r.Grid("density")
	if g.Transform() != second {
		t.Errorf("density transform = %v, want %v", g.Transform(), second)
	}
	g, _ = r.Grid("densityHigh")
	if g.Transform() != first {
		t.Errorf("densityHigh transform = %v, want %v", g.Transform(), first)
	}
}

func TestUpdateTransformInvalid(t *testing.T) {
	path, _ := writeFluidFile(t)
	before, _ := os.ReadFile(path)
	var singular Transform

	if err := UpdateTransform(path, singular, Identity(), Config{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("singular base = %v, want ErrInvalidArgument", err)
	}
	if err := UpdateTransform(path, Identity(), singular, Config{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("singular high = %v, want ErrInvalidArgument", err)
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("rejected update modified the file")
	}
}

func TestUpdateTransformMissingFile(t *testing.T) {
	err := UpdateTransform(filepath.Join(t.TempDir(), "missing.vdbx"), Identity(), Identity(), Config{})
	if err == nil {
		t.Fatal("UpdateTransform of missing file succeeded")
	}
	if CodeOf(err) != CodeEngineFailure {
		t.Errorf("code = %v, want %v", CodeOf(err), CodeEngineFailure)
	}
}
