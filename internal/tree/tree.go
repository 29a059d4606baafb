// Package tree is the sparse voxel store behind every grid.
//
// Voxels are grouped into 8³ leaf blocks keyed by their origin (the
// coordinate with the low three bits of each axis cleared). A leaf holds a
// 512-bit active mask and a full value array; inactive slots carry the
// tree's background value. Only leaves containing at least one voxel ever
// written are allocated, so memory tracks the populated region rather than
// the bounding box.
//
// A Tree is not safe for concurrent mutation. Concurrent reads are fine.
package tree

import (
	"cmp"
	"errors"
	"math"
	"slices"
)

// Leaf geometry.
const (
	Log2Dim = 3
	Dim     = 1 << Log2Dim       // 8
	Size    = Dim * Dim * Dim    // 512
	mask    = int32(^(Dim - 1))  // clears the in-leaf bits
)

var (
	ErrMisaligned = errors.New("leaf origin is not leaf-aligned")
	ErrDuplicate  = errors.New("leaf already present")
)

// Coord is an integer voxel coordinate in index space.
type Coord struct {
	X, Y, Z int32
}

// BBox is an inclusive coordinate bounding box.
type BBox struct {
	Min, Max Coord
}

// Vec3f is a three component single precision vector value.
type Vec3f [3]float32

// Value lists the voxel types a Tree can hold.
type Value interface {
	float32 | int32 | Vec3f
}

// Topology is the value-agnostic view of a tree: which voxels are active
// and how many. Any Tree satisfies it regardless of value type, which is
// what lets a grid of one kind mask the export of another.
type Topology interface {
	IsActive(c Coord) bool
	ActiveVoxelCount() int64
	LeafCount() int
	ActiveBBox() (BBox, bool)
}

// Leaf is one 8³ block.
type Leaf[T Value] struct {
	Origin Coord
	Mask   Mask
	Values [Size]T
}

// Tree maps leaf origins to leaves.
type Tree[T Value] struct {
	background T
	leaves     map[Coord]*Leaf[T]
}

// New returns an empty tree whose unset voxels read as background.
func New[T Value](background T) *Tree[T] {
	return &Tree[T]{background: background, leaves: make(map[Coord]*Leaf[T])}
}

// Origin returns the origin of the leaf containing c.
func Origin(c Coord) Coord {
	return Coord{c.X & mask, c.Y & mask, c.Z & mask}
}

// Offset returns the slot of c within its leaf. x varies fastest.
func Offset(c Coord) int {
	return int(c.X&(Dim-1)) | int(c.Y&(Dim-1))<<Log2Dim | int(c.Z&(Dim-1))<<(2*Log2Dim)
}

// At returns the coordinate of slot i in the leaf.
func (l *Leaf[T]) At(i int) Coord {
	return Coord{
		X: l.Origin.X + int32(i&(Dim-1)),
		Y: l.Origin.Y + int32((i>>Log2Dim)&(Dim-1)),
		Z: l.Origin.Z + int32(i>>(2*Log2Dim)),
	}
}

// Background returns the value reported for inactive voxels.
func (t *Tree[T]) Background() T {
	return t.background
}

// leaf returns the leaf containing c, allocating it if create is set.
func (t *Tree[T]) leaf(c Coord, create bool) *Leaf[T] {
	o := Origin(c)
	l := t.leaves[o]
	if l == nil && create {
		l = &Leaf[T]{Origin: o}
		for i := range l.Values {
			l.Values[i] = t.background
		}
		t.leaves[o] = l
	}
	return l
}

// SetValueOn stores v at c and marks the voxel active.
func (t *Tree[T]) SetValueOn(c Coord, v T) {
	l := t.leaf(c, true)
	i := Offset(c)
	l.Values[i] = v
	l.Mask.Set(i)
}

// Value returns the voxel at c and whether it is active.
func (t *Tree[T]) Value(c Coord) (T, bool) {
	l := t.leaf(c, false)
	if l == nil {
		return t.background, false
	}
	i := Offset(c)
	if !l.Mask.Get(i) {
		return t.background, false
	}
	return l.Values[i], true
}

// IsActive reports whether c is an active voxel.
func (t *Tree[T]) IsActive(c Coord) bool {
	l := t.leaf(c, false)
	return l != nil && l.Mask.Get(Offset(c))
}

// ActiveVoxelCount returns the number of active voxels.
func (t *Tree[T]) ActiveVoxelCount() int64 {
	var n int64
	for _, l := range t.leaves {
		n += int64(l.Mask.Count())
	}
	return n
}

// LeafCount returns the number of allocated leaves.
func (t *Tree[T]) LeafCount() int {
	return len(t.leaves)
}

// ActiveBBox returns the bounds of the active voxels. ok is false for an
// empty tree.
func (t *Tree[T]) ActiveBBox() (box BBox, ok bool) {
	box = BBox{
		Min: Coord{math.MaxInt32, math.MaxInt32, math.MaxInt32},
		Max: Coord{math.MinInt32, math.MinInt32, math.MinInt32},
	}
	for _, l := range t.leaves {
		for i := range Size {
			if !l.Mask.Get(i) {
				continue
			}
			box.expand(l.At(i))
			ok = true
		}
	}
	return box, ok
}

func (b *BBox) expand(c Coord) {
	b.Min.X = min(b.Min.X, c.X)
	b.Min.Y = min(b.Min.Y, c.Y)
	b.Min.Z = min(b.Min.Z, c.Z)
	b.Max.X = max(b.Max.X, c.X)
	b.Max.Y = max(b.Max.Y, c.Y)
	b.Max.Z = max(b.Max.Z, c.Z)
}

// Leaves returns the leaves ordered by origin (z, then y, then x) so that
// serialisation is deterministic.
func (t *Tree[T]) Leaves() []*Leaf[T] {
	out := make([]*Leaf[T], 0, len(t.leaves))
	for _, l := range t.leaves {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *Leaf[T]) int {
		return compareCoord(a.Origin, b.Origin)
	})
	return out
}

// AddLeaf inserts a fully formed leaf, as produced by a decoder.
func (t *Tree[T]) AddLeaf(l *Leaf[T]) error {
	if Origin(l.Origin) != l.Origin {
		return ErrMisaligned
	}
	if _, ok := t.leaves[l.Origin]; ok {
		return ErrDuplicate
	}
	t.leaves[l.Origin] = l
	return nil
}

// Prune drops leaves with no active voxels.
func (t *Tree[T]) Prune() {
	for o, l := range t.leaves {
		if l.Mask.Empty() {
			delete(t.leaves, o)
		}
	}
}

// Clear releases every leaf.
func (t *Tree[T]) Clear() {
	clear(t.leaves)
}

func compareCoord(a, b Coord) int {
	if c := cmp.Compare(a.Z, b.Z); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}
