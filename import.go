package densevdb

import (
	"fmt"

	"github.com/jpl-au/densevdb/internal/tree"
)

// ImportFloat copies the float grid name into out. Every one of the
// res.Cells() cells is written: active voxels with their value, the rest
// with the background. Nothing is written if any check fails.
func (r *Reader) ImportFloat(name string, out []float32, res Resolution) error {
	g, err := r.importable(name, res, KindFloat, len(out))
	if err != nil {
		return err
	}
	return guard("import float", func() error {
		t, err := g.floatTree()
		if err != nil {
			return err
		}
		gather(t, res, func(i int, v float32) { out[i] = v })
		return nil
	})
}

// ImportInt copies the int32 grid name into out.
func (r *Reader) ImportInt(name string, out []int32, res Resolution) error {
	g, err := r.importable(name, res, KindInt32, len(out))
	if err != nil {
		return err
	}
	return guard("import int32", func() error {
		t, err := g.intTree()
		if err != nil {
			return err
		}
		gather(t, res, func(i int, v int32) { out[i] = v })
		return nil
	})
}

// ImportVector copies the vector grid name into three component arrays.
func (r *Reader) ImportVector(name string, x, y, z []float32, res Resolution) error {
	g, err := r.importable(name, res, KindVec3Float, len(x), len(y), len(z))
	if err != nil {
		return err
	}
	return guard("import vector", func() error {
		t, err := g.vecTree()
		if err != nil {
			return err
		}
		gather(t, res, func(i int, v tree.Vec3f) {
			x[i], y[i], z[i] = v[0], v[1], v[2]
		})
		return nil
	})
}

// importable resolves name and validates the destination before any
// buffer is touched.
func (r *Reader) importable(name string, res Resolution, want ValueKind, lengths ...int) (*Grid, error) {
	if err := r.opened(); err != nil {
		return nil, fmt.Errorf("import %q: %w", name, err)
	}
	g, ok := r.grids[name]
	if !ok {
		return nil, fmt.Errorf("import %q: %w", name, ErrNotFound)
	}
	if res != g.res {
		return nil, fmt.Errorf("import %q: %w: got %v, grid is %v", name, ErrResolution, res, g.res)
	}
	cells := res.Cells()
	for _, n := range lengths {
		if n < cells {
			return nil, fmt.Errorf("import %q: %w: %d values for %d cells", name, ErrResolution, n, cells)
		}
	}
	if g.kind != want {
		return nil, fmt.Errorf("import %q: %w", name, g.mismatch(want))
	}
	return g, nil
}

// gather visits every dense cell in storage order.
func gather[T tree.Value](t *tree.Tree[T], res Resolution, put func(i int, v T)) {
	i := 0
	for z := range res[2] {
		for y := range res[1] {
			for x := range res[0] {
				v, _ := t.Value(tree.Coord{X: int32(x), Y: int32(y), Z: int32(z)})
				put(i, v)
				i++
			}
		}
	}
}
