package densevdb

import (
	"fmt"
	"math"

	"github.com/jpl-au/densevdb/internal/tree"
)

// ExportOption adjusts how a dense array is turned into a grid.
type ExportOption func(*exportOptions)

type exportOptions struct {
	mask      *Grid
	tolerance float32
}

// WithMask restricts the written cells to those active in mask. Any grid
// kind can serve as a mask; only its topology is consulted.
func WithMask(mask *Grid) ExportOption {
	return func(o *exportOptions) { o.mask = mask }
}

// WithTolerance leaves cells within tol of the background inactive. The
// default of 0 keeps every non-background cell so round trips are exact.
func WithTolerance(tol float32) ExportOption {
	return func(o *exportOptions) { o.tolerance = tol }
}

// beyond reports whether v differs from the zero background by more than
// tol. NaN is never within tolerance, so NaN cells stay active.
func beyond(v, tol float32) bool {
	return !(float32(math.Abs(float64(v))) <= tol)
}

// ExportFloat builds a float grid from data and registers it under name.
func (w *Writer) ExportFloat(name string, data []float32, res Resolution, xform Transform, opts ...ExportOption) (*Grid, error) {
	o, err := w.prepare(name, res, xform, opts, len(data))
	if err != nil {
		return nil, err
	}
	var g *Grid
	err = guard("export float", func() error {
		t := tree.New[float32](0)
		scatter(t, res, o, func(i int) (float32, bool) {
			v := data[i]
			return v, beyond(v, o.tolerance)
		})
		g = w.newGrid(name, KindFloat, res, xform, t)
		return w.register(g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ExportInt builds an int32 grid from data and registers it under name.
// The tolerance is compared against the absolute integer value.
func (w *Writer) ExportInt(name string, data []int32, res Resolution, xform Transform, opts ...ExportOption) (*Grid, error) {
	o, err := w.prepare(name, res, xform, opts, len(data))
	if err != nil {
		return nil, err
	}
	var g *Grid
	err = guard("export int32", func() error {
		t := tree.New[int32](0)
		scatter(t, res, o, func(i int) (int32, bool) {
			v := data[i]
			return v, math.Abs(float64(v)) > float64(o.tolerance)
		})
		g = w.newGrid(name, KindInt32, res, xform, t)
		return w.register(g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ExportVector builds a 3-float vector grid from three component arrays.
// vt records the vector role and isColor the color hint read back by
// Classify.
func (w *Writer) ExportVector(name string, x, y, z []float32, res Resolution, xform Transform, vt VecType, isColor bool, opts ...ExportOption) (*Grid, error) {
	o, err := w.prepare(name, res, xform, opts, len(x), len(y), len(z))
	if err != nil {
		return nil, err
	}
	if !vt.valid() {
		return nil, fmt.Errorf("export %q: %w: vector type %d", name, ErrInvalidArgument, vt)
	}
	var g *Grid
	err = guard("export vector", func() error {
		t := tree.New(tree.Vec3f{})
		scatter(t, res, o, func(i int) (tree.Vec3f, bool) {
			v := tree.Vec3f{x[i], y[i], z[i]}
			// Any component beyond tolerance keeps the voxel.
			keep := beyond(v[0], o.tolerance) ||
				beyond(v[1], o.tolerance) ||
				beyond(v[2], o.tolerance)
			return v, keep
		})
		g = w.newGrid(name, KindVec3Float, res, xform, t)
		g.meta.Set(metaIsColor, BoolValue(isColor))
		g.meta.Set(metaVectorType, IntValue(int32(vt)))
		return w.register(g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// prepare runs the checks shared by every export before any voxel is
// touched. lengths are the sizes of the caller's arrays.
func (w *Writer) prepare(name string, res Resolution, xform Transform, opts []ExportOption, lengths ...int) (exportOptions, error) {
	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := w.mutable(); err != nil {
		return o, fmt.Errorf("export %q: %w", name, err)
	}
	if err := validName(name); err != nil {
		return o, fmt.Errorf("export: %w", err)
	}
	if err := res.Validate(); err != nil {
		return o, fmt.Errorf("export %q: %w", name, err)
	}
	cells := res.Cells()
	for _, n := range lengths {
		if n < cells {
			return o, fmt.Errorf("export %q: %w: %d values for %d cells", name, ErrInvalidArgument, n, cells)
		}
	}
	if err := xform.Validate(); err != nil {
		return o, fmt.Errorf("export %q: %w", name, err)
	}
	if o.tolerance < 0 || math.IsNaN(float64(o.tolerance)) {
		return o, fmt.Errorf("export %q: %w: tolerance %v", name, ErrInvalidArgument, o.tolerance)
	}
	if o.mask != nil && o.mask.data == nil {
		return o, fmt.Errorf("export %q: mask %q: %w", name, o.mask.name, ErrClosed)
	}
	if _, ok := w.grids[name]; ok {
		return o, fmt.Errorf("export %q: %w", name, ErrNameCollision)
	}
	return o, nil
}

// scatter walks the dense extent in storage order and activates each cell
// that value reports as kept and the mask, if any, allows.
func scatter[T tree.Value](t *tree.Tree[T], res Resolution, o exportOptions, value func(i int) (T, bool)) {
	i := 0
	for z := range res[2] {
		for y := range res[1] {
			for x := range res[0] {
				v, keep := value(i)
				i++
				if !keep {
					continue
				}
				c := tree.Coord{X: int32(x), Y: int32(y), Z: int32(z)}
				if o.mask != nil && !o.mask.data.IsActive(c) {
					continue
				}
				t.SetValueOn(c, v)
			}
		}
	}
	t.Prune()
}

func (w *Writer) newGrid(name string, kind ValueKind, res Resolution, xform Transform, data payload) *Grid {
	g := &Grid{
		name:      name,
		kind:      kind,
		res:       res,
		transform: xform,
		data:      data,
	}
	g.meta.Set(metaVoxelSize, Vec3fValue(xform.VoxelSize()))
	if box, ok := data.ActiveBBox(); ok {
		g.meta.Set(metaBBoxMin, Vec3iValue([3]int32{box.Min.X, box.Min.Y, box.Min.Z}))
		g.meta.Set(metaBBoxMax, Vec3iValue([3]int32{box.Max.X, box.Max.Y, box.Max.Z}))
	}
	return g
}
