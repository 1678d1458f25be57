package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// Verify checks the heap's structural invariants: the region index, every
// pool's free list and in-use accounting, vector block tiling, string
// back pointers and the finalizer lists. It returns the first violation
// as a *ValidationError. Verify must not be called during a collection.
func (h *Heap) Verify() error {
	if h.closed {
		return ErrClosed
	}
	if err := h.index.Verify(); err != nil {
		return &ValidationError{Type: "RegionIndex", Message: err.Error()}
	}
	checks := []func() error{
		h.verifyChunks,
		func() error { return h.verifyCellPool(&h.conses) },
		func() error { return h.verifyCellPool(&h.floats) },
		func() error { return h.verifyCellPool(&h.symbols) },
		func() error { return h.verifyCellPool(&h.strHeaders) },
		h.verifyVectors,
		h.verifyStrings,
		h.verifyFinalizers,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heap) verifyChunks() error {
	indexed := 0
	for _, c := range h.chunks {
		if c == nil || c.typ == regions.TypeNone {
			continue
		}
		indexed++
		n, ok := h.index.Get(c.node)
		if !ok || n.Owner != c || n.Start != c.base() || n.End != c.end() || n.Type != c.typ {
			return &ValidationError{
				Type:    "RegionIndex",
				Message: "chunk not registered with its own range",
				Addr:    c.base(),
				Details: map[string]interface{}{"chunk": c.id, "type": c.typ.String()},
			}
		}
	}
	if indexed != h.index.Len() {
		return &ValidationError{
			Type:    "RegionIndex",
			Message: fmt.Sprintf("index holds %d regions for %d indexed chunks", h.index.Len(), indexed),
		}
	}
	return nil
}

func (h *Heap) verifyCellPool(p *cellPool) error {
	live := 0
	blocks := 0
	for b := p.blocks; b != nil; b = b.next {
		blocks++
		if h.chunkOf(b.chunk.base()) != b.chunk || b.chunk.cells != b {
			return &ValidationError{Type: "CellPool", Message: p.kind.String() + " block detached from chunk table", Addr: b.chunk.base()}
		}
		live += b.inUse.Count()
		if b.marks != nil && b.marks.Count() != 0 {
			return &ValidationError{Type: "CellPool", Message: p.kind.String() + " mark bits left set", Addr: b.chunk.base()}
		}
	}
	if blocks != p.nblocks {
		return &ValidationError{Type: "CellPool", Message: fmt.Sprintf("%s: %d blocks linked, %d counted", p.kind, blocks, p.nblocks)}
	}

	seen := make(map[uint64]bool)
	n := 0
	for a := p.free; a != 0; a = h.word(a + p.linkOffset()) {
		c := h.chunkOf(a)
		if c == nil || c.cells == nil || c.typ != p.regionType {
			return &ValidationError{Type: "FreeList", Message: p.kind.String() + " free list leaves its pool", Addr: a}
		}
		b, i, ok := cellIndex(c, a, p.cellSize)
		if !ok || b.inUse.Test(i) {
			return &ValidationError{Type: "FreeList", Message: p.kind.String() + " free list holds a live or unissued cell", Addr: a}
		}
		if seen[a] {
			return &ValidationError{Type: "FreeList", Message: p.kind.String() + " free list has a cycle", Addr: a}
		}
		seen[a] = true
		if p.cellSize > format.WordSize && Value(h.word(a)) != h.deadV {
			return &ValidationError{Type: "FreeList", Message: p.kind.String() + " free cell lost its dead marker", Addr: a}
		}
		n++
	}
	if n != p.nfree {
		return &ValidationError{Type: "FreeList", Message: fmt.Sprintf("%s: %d free cells linked, %d counted", p.kind, n, p.nfree)}
	}
	if int64(live) != h.counters[p.kind].live {
		return &ValidationError{
			Type:    "Accounting",
			Message: fmt.Sprintf("%s: %d cells in use, %d counted live", p.kind, live, h.counters[p.kind].live),
		}
	}
	return nil
}

func (h *Heap) verifyVectors() error {
	vp := &h.vectors
	freeAt := make(map[uint64]int)
	blocks := 0
	for b := vp.blocks; b != nil; b = b.next {
		blocks++
		off := 0
		for off < format.VectorBlockSize {
			hdr := format.ReadWord(b.chunk.mem, off)
			size := objectBytes(hdr)
			if size < format.MinVectorBytes || size%format.WordSize != 0 {
				return &ValidationError{Type: "VectorBlock", Message: fmt.Sprintf("object of %d bytes", size), Addr: b.chunk.base() + uint64(off)}
			}
			if hdr&format.MarkFlag != 0 {
				return &ValidationError{Type: "VectorBlock", Message: "mark bit left set", Addr: b.chunk.base() + uint64(off)}
			}
			if isFreeHeader(hdr) {
				freeAt[b.chunk.base()+uint64(off)] = size
			}
			off += size
		}
		if off != format.VectorBlockSize {
			return &ValidationError{Type: "VectorBlock", Message: "objects overrun the block", Addr: b.chunk.base()}
		}
	}
	if blocks != vp.nblocks {
		return &ValidationError{Type: "VectorBlock", Message: fmt.Sprintf("%d blocks linked, %d counted", blocks, vp.nblocks)}
	}

	n := 0
	var nbytes int64
	for i, a := range vp.freeLists {
		for ; a != 0; a = h.word(a + format.WordSize) {
			size, ok := freeAt[a]
			if !ok {
				return &ValidationError{Type: "VectorFreeList", Message: "entry is not a free chunk", Addr: a}
			}
			if size != i*format.WordSize {
				return &ValidationError{Type: "VectorFreeList", Message: fmt.Sprintf("%d-byte chunk on the %d-word list", size, i), Addr: a}
			}
			delete(freeAt, a)
			n++
			nbytes += int64(size)
		}
	}
	for a := range freeAt {
		return &ValidationError{Type: "VectorFreeList", Message: "free chunk missing from the free lists", Addr: a}
	}
	if n != vp.nfree || nbytes != vp.freeBytes {
		return &ValidationError{Type: "VectorFreeList", Message: fmt.Sprintf("%d chunks / %d bytes linked, %d / %d counted", n, nbytes, vp.nfree, vp.freeBytes)}
	}

	for _, c := range vp.large {
		if c.typ != regions.TypeVectorLike || h.chunkOf(c.base()) != c {
			return &ValidationError{Type: "LargeVector", Message: "large object detached from chunk table", Addr: c.base()}
		}
		if format.ReadWord(c.mem, 0)&format.MarkFlag != 0 {
			return &ValidationError{Type: "LargeVector", Message: "mark bit left set", Addr: c.base()}
		}
	}
	return nil
}

func (h *Heap) verifyStrings() error {
	for b := h.strHeaders.blocks; b != nil; b = b.next {
		for i := 0; i < b.used; i++ {
			if !b.inUse.Test(i) {
				continue
			}
			addr := format.Addr(b.chunk.id, i*format.StringHeaderSize)
			if h.word(addr)&format.MarkFlag != 0 {
				return &ValidationError{Type: "String", Message: "mark bit left set", Addr: addr}
			}
			data := h.word(addr + format.StringDataOffset)
			entry := data - format.SdataHeaderSize
			c := h.chunkOf(entry)
			if c == nil || c.sblock == nil {
				return &ValidationError{Type: "String", Message: "payload outside any payload block", Addr: addr}
			}
			if back := h.word(entry + format.SdataBackOffset); back != addr {
				return &ValidationError{
					Type:    "String",
					Message: "payload back pointer does not name its header",
					Addr:    addr,
					Details: map[string]interface{}{"back": back},
				}
			}
		}
	}
	for _, sb := range h.strs.small {
		if sb.used > format.SblockSize {
			return &ValidationError{Type: "Sblock", Message: "fill past block end", Addr: sb.chunk.base()}
		}
	}
	return nil
}

func (h *Heap) verifyFinalizers() error {
	for _, head := range []Value{h.finalizers, h.doomed} {
		a := head.addr()
		prev := a
		steps := 0
		for rec := h.finField(a, finNext); ; rec = h.finField(rec, finNext) {
			if h.finField(rec, finPrev) != prev {
				return &ValidationError{Type: "Finalizer", Message: "broken prev link", Addr: rec}
			}
			if rec == a {
				break
			}
			if pvecKind(h.word(rec)) != KindFinalizer {
				return &ValidationError{Type: "Finalizer", Message: "non-finalizer on finalizer list", Addr: rec}
			}
			prev = rec
			steps++
			if uint64(steps) > h.counters[KindFinalizer].allocated {
				return &ValidationError{Type: "Finalizer", Message: "finalizer list does not close", Addr: a}
			}
		}
	}
	return nil
}
