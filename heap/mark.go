package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// The mark phase is iterative: markObject sets the mark and queues the
// object, drainMarkStack traces queued objects until none are left. Deep
// structures cost mark-stack entries, never Go stack frames.

// markObject marks v and queues it for tracing. Immediates and pure
// objects are skipped.
func (h *Heap) markObject(v Value) {
	if v.IsFixnum() {
		return
	}
	addr := v.addr()
	c := h.chunkOf(addr)
	if c == nil || v.Tag() > TagVector {
		h.fatal(fmt.Errorf("%w: %s", ErrDanglingRef, v))
	}
	if c == h.pure.chunk {
		return
	}
	if c.typ == regions.TypeVectorLike || h.opts.CheckReferences {
		h.checkRef(c, v)
	}
	if h.marked(v) {
		return
	}
	h.setMark(v)
	h.markStack = append(h.markStack, v)
}

// checkRef confirms through the region index that v is a live object.
func (h *Heap) checkRef(c *chunk, v Value) {
	addr := v.addr()
	n, ok := h.index.Find(addr)
	if !ok || n.Owner != c || !h.liveAt(c, addr, v.Tag(), true) {
		h.fatal(fmt.Errorf("%w: %s", ErrDanglingRef, v))
	}
}

func (h *Heap) drainMarkStack() {
	for len(h.markStack) > 0 {
		last := len(h.markStack) - 1
		v := h.markStack[last]
		h.markStack = h.markStack[:last]

		addr := v.addr()
		switch v.Tag() {
		case TagCons:
			h.markObject(Value(h.word(addr + format.ConsCarOffset)))
			h.markObject(Value(h.word(addr + format.ConsCdrOffset)))
		case TagSymbol:
			h.markObject(Value(h.word(addr + format.SymbolNameOffset)))
			h.markObject(Value(h.word(addr + format.SymbolValueOffset)))
			h.markObject(Value(h.word(addr + format.SymbolFunctionOffset)))
			h.markObject(Value(h.word(addr + format.SymbolPlistOffset)))
		case TagVector:
			hdr := h.word(addr)
			for i, n := 0, headerSlots(hdr); i < n; i++ {
				h.markObject(Value(h.word(slotAddr(addr, i))))
			}
		}
	}
}

// marked reports whether v carries a mark. Immediates and pure objects
// always count as marked.
func (h *Heap) marked(v Value) bool {
	if v.IsFixnum() {
		return true
	}
	addr := v.addr()
	c := h.chunkOf(addr)
	if c == nil {
		return false
	}
	if c == h.pure.chunk {
		return true
	}
	switch v.Tag() {
	case TagString, TagVector:
		return h.word(addr)&format.MarkFlag != 0
	default:
		b, i, ok := cellIndex(c, addr, tagCellSize[v.Tag()])
		return ok && b.marks != nil && b.marks.Test(i)
	}
}

func (h *Heap) setMark(v Value) {
	addr := v.addr()
	switch v.Tag() {
	case TagString, TagVector:
		h.setWord(addr, h.word(addr)|format.MarkFlag)
	default:
		b, i, ok := cellIndex(h.chunkOf(addr), addr, tagCellSize[v.Tag()])
		if !ok || b.marks == nil {
			h.fatal(fmt.Errorf("%w: %s", ErrDanglingRef, v))
		}
		b.marks.Set(i)
	}
}
