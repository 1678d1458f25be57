// Package bitmap provides the fixed-size bit sets pool blocks use for their
// mark and in-use bits, one bit per cell.
package bitmap

import "math/bits"

// Bitmap is a fixed-size set of bits. The zero value holds no bits; use New.
type Bitmap []uint64

// New returns a bitmap able to hold n bits, all clear.
func New(n int) Bitmap {
	return make(Bitmap, (n+63)/64)
}

// Set sets bit i.
func (b Bitmap) Set(i int) { b[i>>6] |= 1 << (uint(i) & 63) }

// Clear clears bit i.
func (b Bitmap) Clear(i int) { b[i>>6] &^= 1 << (uint(i) & 63) }

// Test reports whether bit i is set.
func (b Bitmap) Test(i int) bool { return b[i>>6]&(1<<(uint(i)&63)) != 0 }

// ClearAll clears every bit.
func (b Bitmap) ClearAll() {
	for i := range b {
		b[i] = 0
	}
}

// Count returns the number of set bits.
func (b Bitmap) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}
