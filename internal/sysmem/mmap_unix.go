//go:build linux || darwin || freebsd

package sysmem

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type mmapAllocator struct{}

func newPlatform() Allocator { return mmapAllocator{} }

// Alloc maps size bytes of anonymous private memory.
func (mmapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sysmem: invalid size %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrExhausted, size, err)
	}
	return mem, nil
}

// Free unmaps a region returned by Alloc.
func (mmapAllocator) Free(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	err := unix.Munmap(mem)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}
