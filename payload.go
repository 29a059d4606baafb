// Binary leaf stream.
//
// A grid payload is the little-endian concatenation of its leaves in
// origin order, preceded by a uint32 leaf count:
//
//	int32 x, y, z    leaf origin
//	uint64 × 8       active mask
//	values           512 values, or only the active ones in slot order
//	                 when the container uses an active-mask compression
//
// Values are 4 bytes (float, int32) or 12 bytes (three floats).
package densevdb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jpl-au/densevdb/internal/tree"
)

var le = binary.LittleEndian

const leafHeaderSize = 3*4 + tree.Size/8

// codec reads and writes one voxel value.
type codec[T tree.Value] struct {
	size int
	put  func(b []byte, v T)
	get  func(b []byte) T
}

var (
	floatCodec = codec[float32]{
		size: 4,
		put:  func(b []byte, v float32) { le.PutUint32(b, math.Float32bits(v)) },
		get:  func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) },
	}
	intCodec = codec[int32]{
		size: 4,
		put:  func(b []byte, v int32) { le.PutUint32(b, uint32(v)) },
		get:  func(b []byte) int32 { return int32(le.Uint32(b)) },
	}
	vecCodec = codec[tree.Vec3f]{
		size: 12,
		put: func(b []byte, v tree.Vec3f) {
			for i := range 3 {
				le.PutUint32(b[i*4:], math.Float32bits(v[i]))
			}
		},
		get: func(b []byte) tree.Vec3f {
			var v tree.Vec3f
			for i := range 3 {
				v[i] = math.Float32frombits(le.Uint32(b[i*4:]))
			}
			return v
		},
	}
)

func encodeTree[T tree.Value](t *tree.Tree[T], c codec[T], activeMask bool) []byte {
	leaves := t.Leaves()

	n := 4
	for _, l := range leaves {
		count := tree.Size
		if activeMask {
			count = l.Mask.Count()
		}
		n += leafHeaderSize + count*c.size
	}

	buf := make([]byte, n)
	le.PutUint32(buf, uint32(len(leaves)))
	pos := 4
	for _, l := range leaves {
		le.PutUint32(buf[pos:], uint32(l.Origin.X))
		le.PutUint32(buf[pos+4:], uint32(l.Origin.Y))
		le.PutUint32(buf[pos+8:], uint32(l.Origin.Z))
		pos += 12
		for _, w := range l.Mask {
			le.PutUint64(buf[pos:], w)
			pos += 8
		}
		for i := range tree.Size {
			if activeMask && !l.Mask.Get(i) {
				continue
			}
			c.put(buf[pos:], l.Values[i])
			pos += c.size
		}
	}
	return buf
}

func decodeTree[T tree.Value](data []byte, bg T, c codec[T], activeMask bool) (*tree.Tree[T], error) {
	t := tree.New(bg)
	if len(data) == 0 {
		return t, nil
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: leaf stream truncated", ErrCorruptRecord)
	}
	count := int(le.Uint32(data))
	pos := 4
	for range count {
		if len(data)-pos < leafHeaderSize {
			return nil, fmt.Errorf("%w: leaf stream truncated", ErrCorruptRecord)
		}
		l := &tree.Leaf[T]{Origin: tree.Coord{
			X: int32(le.Uint32(data[pos:])),
			Y: int32(le.Uint32(data[pos+4:])),
			Z: int32(le.Uint32(data[pos+8:])),
		}}
		pos += 12
		for i := range l.Mask {
			l.Mask[i] = le.Uint64(data[pos:])
			pos += 8
		}

		values := tree.Size
		if activeMask {
			values = l.Mask.Count()
		}
		if len(data)-pos < values*c.size {
			return nil, fmt.Errorf("%w: leaf values truncated", ErrCorruptRecord)
		}
		for i := range tree.Size {
			if activeMask && !l.Mask.Get(i) {
				l.Values[i] = bg
				continue
			}
			l.Values[i] = c.get(data[pos:])
			pos += c.size
		}

		if err := t.AddLeaf(l); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		}
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes in leaf stream", ErrCorruptRecord, len(data)-pos)
	}
	return t, nil
}

// encodeGrid serialises the grid's tree.
func encodeGrid(g *Grid, activeMask bool) ([]byte, error) {
	switch t := g.data.(type) {
	case *tree.Tree[float32]:
		return encodeTree(t, floatCodec, activeMask), nil
	case *tree.Tree[int32]:
		return encodeTree(t, intCodec, activeMask), nil
	case *tree.Tree[tree.Vec3f]:
		return encodeTree(t, vecCodec, activeMask), nil
	default:
		return nil, fmt.Errorf("grid %q: %w", g.name, ErrClosed)
	}
}

// decodeGridData rebuilds a tree of the given kind.
func decodeGridData(kind ValueKind, data []byte, bg []float64, activeMask bool) (payload, error) {
	var (
		p   payload
		err error
	)
	switch kind {
	case KindFloat:
		if len(bg) != 1 {
			return nil, fmt.Errorf("%w: float background", ErrCorruptRecord)
		}
		var t *tree.Tree[float32]
		if t, err = decodeTree(data, float32(bg[0]), floatCodec, activeMask); err == nil {
			p = t
		}
	case KindInt32:
		if len(bg) != 1 {
			return nil, fmt.Errorf("%w: int32 background", ErrCorruptRecord)
		}
		var t *tree.Tree[int32]
		if t, err = decodeTree(data, int32(bg[0]), intCodec, activeMask); err == nil {
			p = t
		}
	case KindVec3Float:
		if len(bg) != 3 {
			return nil, fmt.Errorf("%w: vector background", ErrCorruptRecord)
		}
		var t *tree.Tree[tree.Vec3f]
		bgv := tree.Vec3f{float32(bg[0]), float32(bg[1]), float32(bg[2])}
		if t, err = decodeTree(data, bgv, vecCodec, activeMask); err == nil {
			p = t
		}
	default:
		return nil, fmt.Errorf("%w: value kind %v", ErrCorruptRecord, kind)
	}
	return p, err
}

// background returns the grid's background in its persisted form. float64
// holds every float32 and int32 exactly.
func background(g *Grid) []float64 {
	switch t := g.data.(type) {
	case *tree.Tree[float32]:
		return []float64{float64(t.Background())}
	case *tree.Tree[int32]:
		return []float64{float64(t.Background())}
	case *tree.Tree[tree.Vec3f]:
		bg := t.Background()
		return []float64{float64(bg[0]), float64(bg[1]), float64(bg[2])}
	default:
		return nil
	}
}
