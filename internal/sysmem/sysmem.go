// Package sysmem is the underlying system allocator the heap draws its
// chunks from. On Linux, macOS and FreeBSD chunks are anonymous private
// mappings; elsewhere they are ordinary byte slices. Memory handed out is
// always zeroed and never moves.
package sysmem

import (
	"errors"
	"fmt"
)

// ErrExhausted indicates the allocator could not provide the requested memory.
var ErrExhausted = errors.New("sysmem: allocation failed")

// Allocator hands out zeroed, fixed-address memory regions.
type Allocator interface {
	// Alloc returns a zeroed region of exactly size bytes.
	Alloc(size int) ([]byte, error)

	// Free returns a region obtained from Alloc. The slice must be the one
	// Alloc returned, not a sub-slice.
	Free(mem []byte) error
}

// New returns the platform's default allocator.
func New() Allocator {
	return newPlatform()
}

// Slice is an Allocator backed by the Go heap. Useful where mappings are
// unavailable and in tests.
type Slice struct{}

// Alloc implements Allocator.
func (Slice) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sysmem: invalid size %d", size)
	}
	return make([]byte, size), nil
}

// Free implements Allocator. The slice is left to the Go collector.
func (Slice) Free(mem []byte) error {
	return nil
}
