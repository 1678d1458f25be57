package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// Value is a tagged reference: either an immediate fixnum or the address of
// a heap object with its type in the low bits.
//
// A Value held only in a Go variable is invisible to the collector. Keep
// values that must survive an allocation in a protected slot (Protect,
// StaticPro), on the mutator Stack, or pass them as arguments to the
// allocating call.
type Value uint64

// Tag is the type tag stored in a value's low bits.
type Tag uint8

const (
	TagFixnum Tag = format.TagFixnum
	TagSymbol Tag = format.TagSymbol
	TagString Tag = format.TagString
	TagCons   Tag = format.TagCons
	TagFloat  Tag = format.TagFloat
	TagVector Tag = format.TagVector
)

const (
	// MaxFixnum is the largest integer representable as an immediate.
	MaxFixnum = int64(1)<<(63-format.TagBits) - 1
	// MinFixnum is the smallest integer representable as an immediate.
	MinFixnum = -MaxFixnum - 1
)

// Fixnum returns the immediate value for n. Bits above the fixnum range are
// lost; use FixnumInRange to check first.
func Fixnum(n int64) Value { return Value(uint64(n) << format.TagBits) }

// FixnumInRange reports whether n fits in a fixnum.
func FixnumInRange(n int64) bool { return n >= MinFixnum && n <= MaxFixnum }

// Tag returns the value's type tag.
func (v Value) Tag() Tag { return Tag(v & format.TagMask) }

// IsFixnum reports whether v is an immediate integer.
func (v Value) IsFixnum() bool { return v.Tag() == TagFixnum }

// Int returns the integer of a fixnum. It is meaningless for other values.
func (v Value) Int() int64 { return int64(v) >> format.TagBits }

func (v Value) addr() uint64 { return uint64(v) &^ format.TagMask }

func makeRef(addr uint64, tag Tag) Value { return Value(addr | uint64(tag)) }

func (v Value) String() string {
	if v.IsFixnum() {
		return fmt.Sprintf("%d", v.Int())
	}
	return fmt.Sprintf("#<%s %#x>", v.Tag(), v.addr())
}

func (t Tag) String() string {
	switch t {
	case TagFixnum:
		return "fixnum"
	case TagSymbol:
		return "symbol"
	case TagString:
		return "string"
	case TagCons:
		return "cons"
	case TagFloat:
		return "float"
	case TagVector:
		return "vectorlike"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Kind is the runtime type of a value.
type Kind uint8

const (
	KindInvalid Kind = iota // reclaimed or foreign reference
	KindFixnum
	KindCons
	KindFloat
	KindSymbol
	KindString
	KindVector
	KindRecord
	KindFinalizer
	KindUserPtr
	KindSubr
	numKinds
)

// Kinds lists every allocatable kind, in reporting order.
var Kinds = []Kind{
	KindCons, KindFloat, KindSymbol, KindString,
	KindVector, KindRecord, KindFinalizer, KindUserPtr, KindSubr,
}

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindFixnum:
		return "fixnum"
	case KindCons:
		return "cons"
	case KindFloat:
		return "float"
	case KindSymbol:
		return "symbol"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindRecord:
		return "record"
	case KindFinalizer:
		return "finalizer"
	case KindUserPtr:
		return "user-ptr"
	case KindSubr:
		return "subr"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Pseudovector types, stored in bits 56-61 of a vector header.
const (
	pvecRecord    = 1
	pvecFinalizer = 2
	pvecUserPtr   = 3
	pvecSubr      = 4
	pvecDead      = 5
	pvecFree      = 63
)

func pvecKind(hdr uint64) Kind {
	if hdr&format.PseudoFlag == 0 {
		return KindVector
	}
	switch (hdr >> format.PvecTypeShift) & format.PvecTypeMask {
	case pvecRecord:
		return KindRecord
	case pvecFinalizer:
		return KindFinalizer
	case pvecUserPtr:
		return KindUserPtr
	case pvecSubr:
		return KindSubr
	default:
		return KindInvalid
	}
}

func pvecType(hdr uint64) uint64 {
	if hdr&format.PseudoFlag == 0 {
		return 0
	}
	return (hdr >> format.PvecTypeShift) & format.PvecTypeMask
}

func isFreeHeader(hdr uint64) bool {
	return hdr&format.PseudoFlag != 0 && pvecType(hdr) == pvecFree
}

func vectorHeader(pvec uint64, lisp, raw int) uint64 {
	if pvec == 0 {
		return uint64(lisp)
	}
	return format.PseudoFlag | pvec<<format.PvecTypeShift |
		uint64(raw)<<format.RawWordsShift | uint64(lisp)
}

func freeHeader(nbytes int) uint64 {
	return format.PseudoFlag | uint64(pvecFree)<<format.PvecTypeShift | uint64(nbytes)
}

// headerSlots returns the traced slot count of a vector-like header.
func headerSlots(hdr uint64) int { return int(hdr & format.SlotCountMask) }

// headerRaw returns the raw word count of a vector-like header.
func headerRaw(hdr uint64) int {
	if hdr&format.PseudoFlag == 0 {
		return 0
	}
	return int((hdr >> format.RawWordsShift) & format.RawWordsMask)
}

// objectBytes returns the footprint of the vector-like object or free chunk
// described by hdr.
func objectBytes(hdr uint64) int {
	if isFreeHeader(hdr) {
		return int(hdr & format.FreeSizeMask)
	}
	return format.VectorBytes(headerSlots(hdr) + headerRaw(hdr))
}
