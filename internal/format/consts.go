// Package format holds the in-memory layout of heap objects: word size, tag
// bits, object header bits and cell sizes. Everything here is plain
// constants and small helpers so the collector packages can agree on the
// byte layout without importing each other.
package format

const (
	// WordSize is the size of one heap word in bytes.
	WordSize = 8

	// WordMask masks the sub-word bits of an address or size.
	WordMask = WordSize - 1

	// TagBits is the number of low bits of a value used as the type tag.
	TagBits = 3

	// TagMask extracts the tag from a value.
	TagMask = 1<<TagBits - 1

	// ChunkShift positions the chunk id inside an address. The low 32 bits
	// are the byte offset inside the chunk.
	ChunkShift = 32

	// OffsetMask extracts the chunk offset from an address.
	OffsetMask = 1<<ChunkShift - 1

	// MaxChunkSize is the largest single chunk the address encoding allows.
	MaxChunkSize = 1 << ChunkShift
)

// Tags. A value whose tag is TagFixnum is an immediate integer; all other
// tags reference memory.
const (
	TagFixnum = 0
	TagSymbol = 1
	TagString = 2
	TagCons   = 3
	TagFloat  = 4
	TagVector = 5
)

// Cell sizes in bytes.
const (
	ConsSize         = 2 * WordSize
	FloatSize        = WordSize
	SymbolSize       = 4 * WordSize
	StringHeaderSize = 3 * WordSize
)

// Word offsets inside fixed-size cells.
const (
	ConsCarOffset = 0
	ConsCdrOffset = WordSize

	SymbolNameOffset     = 0
	SymbolValueOffset    = WordSize
	SymbolFunctionOffset = 2 * WordSize
	SymbolPlistOffset    = 3 * WordSize

	StringSizeOffset     = 0
	StringSizeByteOffset = WordSize
	StringDataOffset     = 2 * WordSize
)

// String payload entries (sdata): a back pointer to the owning header, the
// byte count, then the bytes padded to a word boundary.
const (
	SdataBackOffset  = 0
	SdataBytesOffset = WordSize
	SdataHeaderSize  = 2 * WordSize
)

// Mark flag shared by string sizes and vector headers.
const MarkFlag = uint64(1) << 63

// Vector header layout:
//
//	bit 63      mark flag
//	bit 62      pseudovector flag
//	bits 56-61  pseudovector type
//	bits 28-55  raw (untraced) word count
//	bits 0-27   traced slot count
const (
	PseudoFlag      = uint64(1) << 62
	PvecTypeShift   = 56
	PvecTypeMask    = uint64(0x3F)
	RawWordsShift   = 28
	RawWordsMask    = uint64(1<<28 - 1)
	SlotCountMask   = uint64(1<<28 - 1)
	VectorHeaderLen = WordSize

	// FreeSizeMask holds the byte size of a free chunk in a vector block.
	FreeSizeMask = uint64(1<<56 - 1)
)

// Block geometry.
const (
	// CellBlockSize is the byte size of one cell pool block.
	CellBlockSize = 16 * 1024

	// VectorBlockSize is the byte size of one vector block.
	VectorBlockSize = 8 * 1024

	// LargeVectorBytes is the object size above which a vector-like object
	// gets its own chunk.
	LargeVectorBytes = VectorBlockSize / 2

	// MinVectorBytes is the smallest vector-block allocation; a free chunk
	// needs room for its header and the free-list link.
	MinVectorBytes = 2 * WordSize

	// SblockSize is the byte size of a small string payload block.
	SblockSize = 8 * 1024

	// LargeStringBytes is the payload size above which a string gets a
	// payload block of its own.
	LargeStringBytes = 1024
)
