package densevdb

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConcurrentReaders(t *testing.T) {
	path, data := writeFluidFile(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := NewReader(Config{})
			defer r.Close()
			if err := r.Open(path); err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			out := make([]float32, len(data))
			if err := r.ImportFloat("density", out, Resolution{4, 4, 4}); err != nil {
				t.Errorf("ImportFloat: %v", err)
				return
			}
			if diff := cmp.Diff(data, out); diff != "" {
				t.Errorf("import mismatch (-want +got):\n%s", diff)
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentReadUpdate(t *testing.T) {
	path, _ := writeFluidFile(t)
	a := ScaleTranslate(1, [3]float32{})
	b := ScaleTranslate(2, [3]float32{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			xf := a
			if i%2 == 1 {
				xf = b
			}
			if err := UpdateTransform(path, xf, xf, Config{}); err != nil {
				t.Errorf("UpdateTransform: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				infos, err := ListGrids(path, Config{})
				if err != nil {
					t.Errorf("ListGrids: %v", err)
					return
				}
				if len(infos) != 3 {
					t.Errorf("ListGrids = %d grids, want 3", len(infos))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentWriters(t *testing.T) {
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w := NewWriter(Config{})
			defer w.Close()
			w.ExportFloat("density", ramp(27), Resolution{3, 3, 3}, Identity())
			path := filepath.Join(dir, string(rune('a'+n))+".vdbx")
			if err := w.Commit(path); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	matches, _ := filepath.Glob(filepath.Join(dir, "*.vdbx"))
	if len(matches) != 4 {
		t.Errorf("files = %d, want 4", len(matches))
	}
}
