package tree

import "math/bits"

// Mask is the 512-bit active state of a leaf, one bit per slot.
type Mask [Size / 64]uint64

// Set turns bit i on.
func (m *Mask) Set(i int) {
	m[i>>6] |= 1 << (i & 63)
}

// Get reports whether bit i is on.
func (m *Mask) Get(i int) bool {
	return m[i>>6]&(1<<(i&63)) != 0
}

// Count returns the number of bits on.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// Empty reports whether no bit is on.
func (m *Mask) Empty() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}
