package format

// AlignWord returns n aligned up to the next word boundary.
//
// Example:
//
//	AlignWord(1)  = 8
//	AlignWord(8)  = 8
//	AlignWord(9)  = 16
func AlignWord(n int) int {
	return AlignTo(n, WordSize)
}

// AlignTo returns n aligned up to a power-of-two boundary.
func AlignTo(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// IsWordAligned reports whether addr sits on a word boundary.
func IsWordAligned(addr uint64) bool {
	return addr&WordMask == 0
}

// VectorBytes returns the allocation size of a vector-like object with the
// given number of words after the header. Vector-block allocations are never
// smaller than MinVectorBytes.
func VectorBytes(words int) int {
	n := VectorHeaderLen + words*WordSize
	if n < MinVectorBytes {
		n = MinVectorBytes
	}
	return n
}

// SdataBytes returns the size of a string payload entry holding n bytes.
func SdataBytes(n int) int {
	return SdataHeaderSize + AlignWord(n)
}
