package densevdb

import (
	"path/filepath"
	"testing"
)

// benchField returns a 64³ field that is populated in one octant.
func benchField() ([]float32, Resolution) {
	res := Resolution{64, 64, 64}
	data := make([]float32, res.Cells())
	for z := range 32 {
		for y := range 32 {
			for x := range 32 {
				data[res.Index(x, y, z)] = float32(x+y+z) + 1
			}
		}
	}
	return data, res
}

func BenchmarkExportFloat(b *testing.B) {
	data, res := benchField()
	w := NewWriter(Config{})
	defer w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g, _ := w.ExportFloat("density", data, res, Identity())
		// Drop the grid so the name can be reused.
		delete(w.grids, "density")
		w.order = w.order[:0]
		g.release()
	}
}

func BenchmarkCommit(b *testing.B) {
	data, res := benchField()
	for _, c := range []Compression{CompressNone, CompressZip, CompressBlosc} {
		b.Run(c.String(), func(b *testing.B) {
			dir := b.TempDir()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				w := NewWriter(Config{})
				w.SetCompression(c)
				w.ExportFloat("density", data, res, Identity())
				w.Commit(filepath.Join(dir, "bench.vdbx"))
				w.Close()
			}
		})
	}
}

func BenchmarkOpenImport(b *testing.B) {
	data, res := benchField()
	path := filepath.Join(b.TempDir(), "bench.vdbx")
	w := NewWriter(Config{})
	w.ExportFloat("density", data, res, Identity())
	w.Commit(path)
	w.Close()

	out := make([]float32, res.Cells())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := NewReader(Config{})
		r.Open(path)
		r.ImportFloat("density", out, res)
		r.Close()
	}
}

func BenchmarkListGrids(b *testing.B) {
	data, res := benchField()
	path := filepath.Join(b.TempDir(), "bench.vdbx")
	w := NewWriter(Config{})
	for _, name := range []string{"density", "heat", "flame", "fuel"} {
		w.ExportFloat(name, data, res, Identity())
	}
	w.Commit(path)
	w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ListGrids(path, Config{})
	}
}
