package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

var tagRegion = [...]regions.Type{
	TagSymbol: regions.TypeSymbol,
	TagString: regions.TypeString,
	TagCons:   regions.TypeCons,
	TagFloat:  regions.TypeFloat,
}

var tagCellSize = [...]int{
	TagSymbol: format.SymbolSize,
	TagString: format.StringHeaderSize,
	TagCons:   format.ConsSize,
	TagFloat:  format.FloatSize,
}

// liveAt reports whether a live object of the given tag starts at addr in
// c. With exact unset, vector-block objects only get a header sanity check
// instead of a walk of the block.
func (h *Heap) liveAt(c *chunk, addr uint64, tag Tag, exact bool) bool {
	if c == h.pure.chunk {
		return true
	}
	switch tag {
	case TagCons, TagFloat, TagSymbol, TagString:
		return c.typ == tagRegion[tag] && cellLive(c, addr, tagCellSize[tag])
	case TagVector:
		switch c.typ {
		case regions.TypeVectorLike:
			return format.OffsetOf(addr) == 0 && !isFreeHeader(h.word(addr))
		case regions.TypeVectorBlock:
			if exact {
				return h.vectorStartsAt(c, addr)
			}
			off := format.OffsetOf(addr)
			if !format.IsWordAligned(addr) || off+format.VectorHeaderLen > len(c.mem) {
				return false
			}
			hdr := h.word(addr)
			return !isFreeHeader(hdr) && pvecType(hdr) != pvecDead
		}
	}
	return false
}

// objectAddr validates v as a live object with the given tag and returns its
// address.
func (h *Heap) objectAddr(op string, v Value, want Kind) (uint64, error) {
	if h.closed {
		return 0, ErrClosed
	}
	tag := kindTag(want)
	if v.Tag() != tag {
		return 0, wrongType(op, want, h.KindOf(v))
	}
	addr := v.addr()
	c := h.chunkOf(addr)
	if c == nil || !h.liveAt(c, addr, tag, false) {
		return 0, fmt.Errorf("%w: %s on %s", ErrDeadObject, op, v)
	}
	return addr, nil
}

// vectorAddr validates v as a vector-like object of kind want.
func (h *Heap) vectorAddr(op string, v Value, want Kind) (uint64, uint64, error) {
	if v.Tag() != TagVector {
		return 0, 0, wrongType(op, want, h.KindOf(v))
	}
	addr, err := h.objectAddr(op, v, KindVector)
	if err != nil {
		return 0, 0, err
	}
	hdr := h.word(addr)
	if got := pvecKind(hdr); got != want {
		return 0, 0, wrongType(op, want, got)
	}
	return addr, hdr, nil
}

func kindTag(k Kind) Tag {
	switch k {
	case KindCons:
		return TagCons
	case KindFloat:
		return TagFloat
	case KindSymbol:
		return TagSymbol
	case KindString:
		return TagString
	case KindVector, KindRecord, KindFinalizer, KindUserPtr, KindSubr:
		return TagVector
	}
	return TagFixnum
}

// KindOf returns the runtime kind of v, or KindInvalid for a reference to
// reclaimed memory.
func (h *Heap) KindOf(v Value) Kind {
	if v.IsFixnum() {
		return KindFixnum
	}
	if h.closed {
		return KindInvalid
	}
	addr := v.addr()
	c := h.chunkOf(addr)
	if c == nil || !h.liveAt(c, addr, v.Tag(), false) {
		return KindInvalid
	}
	switch v.Tag() {
	case TagCons:
		return KindCons
	case TagFloat:
		return KindFloat
	case TagSymbol:
		return KindSymbol
	case TagString:
		return KindString
	case TagVector:
		return pvecKind(h.word(addr))
	}
	return KindInvalid
}

// IsLive reports whether v is an immediate or a reference to a live object.
func (h *Heap) IsLive(v Value) bool {
	return h.KindOf(v) != KindInvalid
}

// IsPure reports whether v lives in the pure arena.
func (h *Heap) IsPure(v Value) bool {
	return !v.IsFixnum() && h.pure.chunk != nil && format.ChunkOf(v.addr()) == h.pure.chunk.id
}

func (h *Heap) checkMutable(op string, v Value) error {
	if h.IsPure(v) {
		return fmt.Errorf("%w: %s on %s", ErrPureMutation, op, v)
	}
	return nil
}
