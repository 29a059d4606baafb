// Index-to-world transforms.
//
// A Transform is a 4×4 affine matrix in row-vector convention: a voxel
// coordinate [x y z 1] multiplied on the left gives its world position, so
// the translation lives in the last row and the last column must be
// (0, 0, 0, 1). This is the layout simulation hosts already hand over, so
// matrices pass through without transposition.
package densevdb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Transform maps grid index space to world space.
type Transform [4][4]float32

// Identity returns the unit transform.
func Identity() Transform {
	return Transform{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// ScaleTranslate returns a transform with uniform voxel size and origin.
func ScaleTranslate(voxel float32, origin [3]float32) Transform {
	return Transform{
		{voxel, 0, 0, 0},
		{0, voxel, 0, 0},
		{0, 0, voxel, 0},
		{origin[0], origin[1], origin[2], 1},
	}
}

// TransformFromSlice builds a Transform from 16 row-major values.
func TransformFromSlice(v []float32) (Transform, error) {
	var t Transform
	if len(v) != 16 {
		return t, fmt.Errorf("%w: transform needs 16 values, got %d", ErrInvalidArgument, len(v))
	}
	for r := range 4 {
		copy(t[r][:], v[r*4:r*4+4])
	}
	return t, nil
}

func (t Transform) dense() *mat.Dense {
	d := mat.NewDense(4, 4, nil)
	for r := range 4 {
		for c := range 4 {
			d.Set(r, c, float64(t[r][c]))
		}
	}
	return d
}

// Validate checks that t is a finite, invertible affine map.
func (t Transform) Validate() error {
	for r := range 4 {
		for c := range 4 {
			v := float64(t[r][c])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: transform has non-finite element [%d][%d]", ErrInvalidArgument, r, c)
			}
		}
	}
	if t[0][3] != 0 || t[1][3] != 0 || t[2][3] != 0 || t[3][3] != 1 {
		return fmt.Errorf("%w: transform is not affine", ErrInvalidArgument)
	}
	linear := t.dense().Slice(0, 3, 0, 3)
	if mat.Det(linear) == 0 {
		return fmt.Errorf("%w: transform is singular", ErrInvalidArgument)
	}
	return nil
}

// Inverse returns the world-to-index transform.
func (t Transform) Inverse() (Transform, error) {
	if err := t.Validate(); err != nil {
		return Transform{}, err
	}
	var inv mat.Dense
	if err := inv.Inverse(t.dense()); err != nil {
		return Transform{}, fmt.Errorf("%w: transform: %w", ErrInvalidArgument, err)
	}
	var out Transform
	for r := range 4 {
		for c := range 4 {
			out[r][c] = float32(inv.At(r, c))
		}
	}
	return out, nil
}

// Apply maps an index-space position to world space.
func (t Transform) Apply(p [3]float64) [3]float64 {
	row := mat.NewDense(1, 4, []float64{p[0], p[1], p[2], 1})
	var w mat.Dense
	w.Mul(row, t.dense())
	return [3]float64{w.At(0, 0), w.At(0, 1), w.At(0, 2)}
}

// VoxelSize returns the world-space length of one voxel step along each
// index axis.
func (t Transform) VoxelSize() [3]float32 {
	d := t.dense()
	var out [3]float32
	for i := range 3 {
		axis := mat.NewVecDense(3, []float64{d.At(i, 0), d.At(i, 1), d.At(i, 2)})
		out[i] = float32(mat.Norm(axis, 2))
	}
	return out
}
