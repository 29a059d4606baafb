// Grid handles.
//
// A Grid is the host's opaque view of one sparse field. Its value kind is
// one of a closed set (Float, Int32, Vec3Float) and the voxels live in an
// internal tree whose concrete type is fixed by that kind; nothing outside
// the package can reach the tree. Grids belong to the session that created
// or loaded them and are released when that session closes.
package densevdb

import (
	"fmt"
	"math"

	"github.com/jpl-au/densevdb/internal/tree"
)

// ValueKind is the voxel representation of a grid.
type ValueKind int

const (
	KindFloat ValueKind = iota + 1
	KindInt32
	KindVec3Float
)

// String returns the engine type name persisted for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt32:
		return "int32"
	case KindVec3Float:
		return "vec3s"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func parseValueKind(s string) (ValueKind, bool) {
	for _, k := range []ValueKind{KindFloat, KindInt32, KindVec3Float} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// VecType is the semantic role of a vector grid, which governs how its
// values respond to a later change of transform. It is stored with the
// grid and never interpreted here.
type VecType int16

const (
	VecInvariant VecType = iota
	VecCovariant
	VecCovariantNormalize
	VecContravariantRelative
	VecContravariantAbsolute
)

func (v VecType) valid() bool {
	return v >= VecInvariant && v <= VecContravariantAbsolute
}

// Resolution is the dense extent of a grid along x, y and z.
type Resolution [3]int

// Validate rejects non-positive dimensions and extents whose cell count
// does not fit in an int.
func (r Resolution) Validate() error {
	n := 1
	for i, d := range r {
		if d <= 0 {
			return fmt.Errorf("%w: resolution %v has non-positive dimension %d", ErrInvalidArgument, r, i)
		}
		if d > math.MaxInt32 || n > math.MaxInt/d {
			return fmt.Errorf("%w: resolution %v too large", ErrInvalidArgument, r)
		}
		n *= d
	}
	return nil
}

// Cells returns the number of dense cells.
func (r Resolution) Cells() int {
	return r[0] * r[1] * r[2]
}

// Index returns the flat offset of (x, y, z): x varies fastest, then y,
// then z.
func (r Resolution) Index(x, y, z int) int {
	return x + r[0]*(y+r[1]*z)
}

// Grid metadata names written by the exporter.
const (
	metaIsColor    = "is_color"
	metaVectorType = "vector_type"
	metaVoxelSize  = "voxel_size"
	metaBBoxMin    = "file_bbox_min"
	metaBBoxMax    = "file_bbox_max"
)

// Bounds is an inclusive box of index-space voxel coordinates.
type Bounds struct {
	Min, Max [3]int32
}

// boundsOf reads the active bounds recorded in grid metadata. A grid with
// no active voxels has none and reports the zero Bounds.
func boundsOf(meta *Meta) Bounds {
	lo, err := meta.Vec3i(metaBBoxMin)
	if err != nil {
		return Bounds{}
	}
	hi, err := meta.Vec3i(metaBBoxMax)
	if err != nil {
		return Bounds{}
	}
	return Bounds{Min: lo, Max: hi}
}

// payload is the sealed set of trees a grid can own.
type payload interface {
	tree.Topology
	Prune()
	Clear()
}

// Grid is an opaque handle to one sparse field owned by a session.
type Grid struct {
	name      string
	kind      ValueKind
	res       Resolution
	transform Transform
	meta      Meta
	data      payload // *tree.Tree[float32] | *tree.Tree[int32] | *tree.Tree[tree.Vec3f]
}

// Name returns the grid name, unique within its session.
func (g *Grid) Name() string { return g.name }

// Kind returns the voxel representation.
func (g *Grid) Kind() ValueKind { return g.kind }

// Resolution returns the dense extent the grid was exported at.
func (g *Grid) Resolution() Resolution { return g.res }

// Transform returns the index-to-world transform.
func (g *Grid) Transform() Transform { return g.transform }

// ActiveVoxelCount returns the number of populated cells, or 0 once the
// owning session has been closed.
func (g *Grid) ActiveVoxelCount() int64 {
	if g.data == nil {
		return 0
	}
	return g.data.ActiveVoxelCount()
}

// IsActive reports whether the cell at (x, y, z) is populated.
func (g *Grid) IsActive(x, y, z int) bool {
	if g.data == nil {
		return false
	}
	return g.data.IsActive(tree.Coord{X: int32(x), Y: int32(y), Z: int32(z)})
}

// Meta returns a copy of the grid's metadata.
func (g *Grid) Meta() Meta {
	return g.meta.clone()
}

// Classify returns the grid's semantic type label. See the package
// function Classify.
func (g *Grid) Classify() (string, error) {
	return Classify(g)
}

// VecType returns the stored vector role. Non-vector grids report
// VecInvariant.
func (g *Grid) VecType() VecType {
	v, err := g.meta.Int(metaVectorType)
	if err != nil {
		return VecInvariant
	}
	return VecType(v)
}

// release drops the tree. The Grid value stays valid as an identity but
// reports no voxels.
func (g *Grid) release() {
	if g.data != nil {
		g.data.Clear()
		g.data = nil
	}
}

// floatTree, intTree and vecTree return the typed tree or a type mismatch.
func (g *Grid) floatTree() (*tree.Tree[float32], error) {
	t, ok := g.data.(*tree.Tree[float32])
	if !ok {
		return nil, g.mismatch(KindFloat)
	}
	return t, nil
}

func (g *Grid) intTree() (*tree.Tree[int32], error) {
	t, ok := g.data.(*tree.Tree[int32])
	if !ok {
		return nil, g.mismatch(KindInt32)
	}
	return t, nil
}

func (g *Grid) vecTree() (*tree.Tree[tree.Vec3f], error) {
	t, ok := g.data.(*tree.Tree[tree.Vec3f])
	if !ok {
		return nil, g.mismatch(KindVec3Float)
	}
	return t, nil
}

func (g *Grid) mismatch(want ValueKind) error {
	if g.data == nil {
		return fmt.Errorf("grid %q: %w", g.name, ErrClosed)
	}
	return fmt.Errorf("grid %q is %v, not %v: %w", g.name, g.kind, want, ErrTypeMismatch)
}

// validName rejects names the container cannot hold.
func validName(name string) error {
	if name == "" || len(name) > MaxNameSize {
		return fmt.Errorf("%w: grid name %q", ErrInvalidArgument, name)
	}
	for _, r := range name {
		if r == 0 || r == '\n' {
			return fmt.Errorf("%w: grid name %q", ErrInvalidArgument, name)
		}
	}
	return nil
}
