package rhi

import (
	"fmt"
	"iter"
	"math/bits"
	"strconv"
	"strings"
)

// MaxAccelerators is the number of accelerators a mask can address.
const MaxAccelerators = 32

// AcceleratorMask selects one or more physical accelerators. A valid mask is
// never zero; constructors panic rather than produce an empty mask.
type AcceleratorMask uint32

// DefaultAcceleratorMask selects accelerator 0.
const DefaultAcceleratorMask AcceleratorMask = 1

// NewAcceleratorMask returns the mask with the given indices set.
// It panics if no index is given or an index is out of range.
func NewAcceleratorMask(indices ...int) AcceleratorMask {
	if len(indices) == 0 {
		panic(ErrEmptyMask)
	}
	var m AcceleratorMask
	for _, i := range indices {
		if i < 0 || i >= MaxAccelerators {
			panic(fmt.Sprintf("rhi: accelerator index %d out of range", i))
		}
		m |= 1 << i
	}
	return m
}

// AllAccelerators returns the mask selecting accelerators [0, n).
func AllAccelerators(n int) AcceleratorMask {
	if n <= 0 || n > MaxAccelerators {
		panic(fmt.Sprintf("rhi: accelerator count %d out of range", n))
	}
	if n == MaxAccelerators {
		return ^AcceleratorMask(0)
	}
	return AcceleratorMask(1)<<n - 1
}

// Valid reports whether m has at least one bit set.
func (m AcceleratorMask) Valid() bool { return m != 0 }

// Union returns m | o.
func (m AcceleratorMask) Union(o AcceleratorMask) AcceleratorMask { return m | o }

// Intersect returns m & o and whether the result is a valid mask.
func (m AcceleratorMask) Intersect(o AcceleratorMask) (AcceleratorMask, bool) {
	r := m & o
	return r, r != 0
}

// Contains reports whether every accelerator of o is in m.
func (m AcceleratorMask) Contains(o AcceleratorMask) bool { return m&o == o }

// Has reports whether accelerator i is in m.
func (m AcceleratorMask) Has(i int) bool {
	return i >= 0 && i < MaxAccelerators && m&(1<<i) != 0
}

// Count returns the number of accelerators in m.
func (m AcceleratorMask) Count() int { return bits.OnesCount32(uint32(m)) }

// First returns the lowest accelerator index, or -1 for an empty mask.
func (m AcceleratorMask) First() int {
	if m == 0 {
		return -1
	}
	return bits.TrailingZeros32(uint32(m))
}

// Single returns the only accelerator index when m selects exactly one.
func (m AcceleratorMask) Single() (int, bool) {
	if m.Count() != 1 {
		return -1, false
	}
	return m.First(), true
}

// All iterates the accelerator indices in ascending order.
func (m AcceleratorMask) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for v := uint32(m); v != 0; v &= v - 1 {
			if !yield(bits.TrailingZeros32(v)) {
				return
			}
		}
	}
}

// String returns the mask as a set, e.g. "{0,1}".
func (m AcceleratorMask) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for i := range m.All() {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(i))
	}
	b.WriteByte('}')
	return b.String()
}
