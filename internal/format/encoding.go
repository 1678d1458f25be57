package format

import "encoding/binary"

// Heap words are little-endian regardless of the host.

// PutWord writes a uint64 word at off.
func PutWord(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+WordSize], v)
}

// ReadWord reads a uint64 word at off.
func ReadWord(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+WordSize])
}

// PutI64 writes an int64 word at off.
func PutI64(b []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(b[off:off+WordSize], uint64(v))
}

// ReadI64 reads an int64 word at off.
func ReadI64(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+WordSize]))
}

// Addr builds an address from a chunk id and a byte offset.
func Addr(chunk uint32, off int) uint64 {
	return uint64(chunk)<<ChunkShift | uint64(off)
}

// ChunkOf returns the chunk id of an address.
func ChunkOf(addr uint64) uint32 {
	return uint32(addr >> ChunkShift)
}

// OffsetOf returns the byte offset of an address inside its chunk.
func OffsetOf(addr uint64) int {
	return int(addr & OffsetMask)
}
