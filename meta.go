// Typed metadata attached to files and grids.
//
// Metadata is a small closed set of value shapes (float, int32, 3-float,
// 3-int, 4×4 float matrix, plus bool for grid-level hints) intended for
// simulation parameters that travel alongside bulk grid data: time step,
// domain offset, object transform. It is deliberately not a general
// key/value store. Each name holds exactly one value; setting an existing
// name replaces its value and shape.
package densevdb

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// MetaKind is the shape of a metadata value. The string forms are the
// type names persisted in the container.
type MetaKind int

const (
	MetaFloat MetaKind = iota + 1
	MetaInt
	MetaVec3f
	MetaVec3i
	MetaMat4
	MetaBool
)

var metaKindNames = map[MetaKind]string{
	MetaFloat: "float",
	MetaInt:   "int32",
	MetaVec3f: "vec3s",
	MetaVec3i: "vec3i",
	MetaMat4:  "mat4s",
	MetaBool:  "bool",
}

func (k MetaKind) String() string {
	if s, ok := metaKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("meta(%d)", int(k))
}

func parseMetaKind(s string) (MetaKind, bool) {
	for k, name := range metaKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Value is one tagged metadata value.
type Value struct {
	kind MetaKind
	f    [16]float32 // float, vec3s and mat4s use the leading elements
	i    [3]int32    // int32 and vec3i
	b    bool
}

func FloatValue(v float32) Value    { return Value{kind: MetaFloat, f: [16]float32{v}} }
func IntValue(v int32) Value        { return Value{kind: MetaInt, i: [3]int32{v}} }
func Vec3iValue(v [3]int32) Value   { return Value{kind: MetaVec3i, i: v} }
func BoolValue(v bool) Value        { return Value{kind: MetaBool, b: v} }
func Vec3fValue(v [3]float32) Value { return Value{kind: MetaVec3f, f: [16]float32{v[0], v[1], v[2]}} }

func Mat4Value(v Transform) Value {
	val := Value{kind: MetaMat4}
	for r := range 4 {
		copy(val.f[r*4:], v[r][:])
	}
	return val
}

// Kind returns the shape of the value.
func (v Value) Kind() MetaKind { return v.kind }

// String formats the value for display: scalars bare, vectors and
// matrices bracketed in row order.
func (v Value) String() string {
	switch v.kind {
	case MetaBool:
		return strconv.FormatBool(v.b)
	case MetaFloat:
		return strconv.FormatFloat(float64(v.f[0]), 'g', -1, 32)
	case MetaInt:
		return strconv.Itoa(int(v.i[0]))
	}
	var parts []string
	for _, f := range v.floats() {
		parts = append(parts, strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	for _, n := range v.ints() {
		parts = append(parts, strconv.Itoa(int(n)))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (v Value) floats() []float32 {
	switch v.kind {
	case MetaFloat:
		return v.f[:1]
	case MetaVec3f:
		return v.f[:3]
	case MetaMat4:
		return v.f[:16]
	}
	return nil
}

func (v Value) ints() []int32 {
	switch v.kind {
	case MetaInt:
		return v.i[:1]
	case MetaVec3i:
		return v.i[:3]
	}
	return nil
}

// finite rejects NaN and infinities, which the container cannot encode.
func (v Value) finite() bool {
	for _, f := range v.floats() {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

// Meta maps names to values. The zero value is an empty, usable map.
type Meta struct {
	values map[string]Value
}

// Set stores v under name, replacing any previous value.
func (m *Meta) Set(name string, v Value) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: metadata name %q", ErrInvalidArgument, name)
	}
	if _, ok := metaKindNames[v.kind]; !ok {
		return fmt.Errorf("%w: metadata %q has no kind", ErrInvalidArgument, name)
	}
	if !v.finite() {
		return fmt.Errorf("%w: metadata %q is not finite", ErrInvalidArgument, name)
	}
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	m.values[name] = v
	return nil
}

// Get returns the raw value stored under name.
func (m *Meta) Get(name string) (Value, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Delete removes name. Removing a missing name is a no-op.
func (m *Meta) Delete(name string) {
	delete(m.values, name)
}

// Len returns the number of entries.
func (m *Meta) Len() int {
	return len(m.values)
}

// Names returns the entry names in sorted order.
func (m *Meta) Names() []string {
	names := make([]string, 0, len(m.values))
	for n := range m.values {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// lookup fetches name and checks its shape.
func (m *Meta) lookup(name string, want MetaKind) (Value, error) {
	v, ok := m.values[name]
	if !ok {
		return Value{}, fmt.Errorf("metadata %q: %w", name, ErrNotFound)
	}
	if v.kind != want {
		return Value{}, fmt.Errorf("metadata %q is %v, not %v: %w", name, v.kind, want, ErrTypeMismatch)
	}
	return v, nil
}

// Float returns a float entry.
func (m *Meta) Float(name string) (float32, error) {
	v, err := m.lookup(name, MetaFloat)
	return v.f[0], err
}

// Int returns an int32 entry.
func (m *Meta) Int(name string) (int32, error) {
	v, err := m.lookup(name, MetaInt)
	return v.i[0], err
}

// Vec3f returns a 3-float entry.
func (m *Meta) Vec3f(name string) ([3]float32, error) {
	v, err := m.lookup(name, MetaVec3f)
	return [3]float32{v.f[0], v.f[1], v.f[2]}, err
}

// Vec3i returns a 3-int entry.
func (m *Meta) Vec3i(name string) ([3]int32, error) {
	v, err := m.lookup(name, MetaVec3i)
	return v.i, err
}

// Mat4 returns a 4×4 matrix entry.
func (m *Meta) Mat4(name string) (Transform, error) {
	v, err := m.lookup(name, MetaMat4)
	var out Transform
	for r := range 4 {
		copy(out[r][:], v.f[r*4:r*4+4])
	}
	return out, err
}

// Bool returns a bool entry.
func (m *Meta) Bool(name string) (bool, error) {
	v, err := m.lookup(name, MetaBool)
	return v.b, err
}

func (m *Meta) clone() Meta {
	var c Meta
	if len(m.values) > 0 {
		c.values = make(map[string]Value, len(m.values))
		for k, v := range m.values {
			c.values[k] = v
		}
	}
	return c
}

// metaEntry is the persisted form of a Value.
type metaEntry struct {
	Type  string    `json:"t"`
	Float []float32 `json:"f,omitempty"`
	Int   []int32   `json:"i,omitempty"`
	Bool  *bool     `json:"b,omitempty"`
}

func (m *Meta) entries() map[string]metaEntry {
	if len(m.values) == 0 {
		return nil
	}
	out := make(map[string]metaEntry, len(m.values))
	for name, v := range m.values {
		e := metaEntry{Type: v.kind.String(), Float: v.floats(), Int: v.ints()}
		if v.kind == MetaBool {
			b := v.b
			e.Bool = &b
		}
		out[name] = e
	}
	return out
}

func metaFromEntries(entries map[string]metaEntry) (Meta, error) {
	var m Meta
	for name, e := range entries {
		kind, ok := parseMetaKind(e.Type)
		if !ok {
			return Meta{}, fmt.Errorf("%w: metadata %q has unknown type %q", ErrCorruptRecord, name, e.Type)
		}
		v := Value{kind: kind}
		if len(e.Float) != len(v.floats()) || len(e.Int) != len(v.ints()) || (kind == MetaBool) != (e.Bool != nil) {
			return Meta{}, fmt.Errorf("%w: metadata %q has malformed %s value", ErrCorruptRecord, name, e.Type)
		}
		copy(v.f[:], e.Float)
		copy(v.i[:], e.Int)
		if e.Bool != nil {
			v.b = *e.Bool
		}
		if err := m.Set(name, v); err != nil {
			return Meta{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		}
	}
	return m, nil
}
