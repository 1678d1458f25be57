package heap

import (
	"github.com/joshuapare/heapkit/heap/bitmap"
	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// cellBlock is one chunk carved into equal cells. Cells below used have
// been handed out at least once; inUse tells which of those are live.
type cellBlock struct {
	chunk  *chunk
	ncells int
	used   int
	inUse  bitmap.Bitmap
	marks  bitmap.Bitmap // nil when the pool marks in object headers
	next   *cellBlock    // next older block
}

// cellPool allocates fixed-size cells of one kind. Free cells are threaded
// into a singly linked list through the cells themselves: a cell of two or
// more words holds the dead sentinel in word 0 and the link in word 1, an
// 8-byte cell holds only the link.
type cellPool struct {
	kind       Kind
	regionType regions.Type
	cellSize   int
	headerMark bool // mark flag lives in bit 63 of word 0

	blocks  *cellBlock // newest first
	nblocks int

	free  uint64 // address of the first free cell, 0 when empty
	nfree int
}

func newCellPool(kind Kind, typ regions.Type, cellSize int, headerMark bool) cellPool {
	return cellPool{kind: kind, regionType: typ, cellSize: cellSize, headerMark: headerMark}
}

func (p *cellPool) linkOffset() uint64 {
	if p.cellSize == format.WordSize {
		return 0
	}
	return format.WordSize
}

// allocCell returns the address of an uninitialized cell.
func (h *Heap) allocCell(p *cellPool) (uint64, error) {
	if p.free != 0 {
		addr := p.free
		p.free = h.word(addr + p.linkOffset())
		p.nfree--
		c := h.chunkOf(addr)
		c.cells.inUse.Set(format.OffsetOf(addr) / p.cellSize)
		return addr, nil
	}

	if p.blocks == nil || p.blocks.used == p.blocks.ncells {
		if err := h.newCellBlock(p); err != nil {
			return 0, err
		}
	}
	b := p.blocks
	i := b.used
	b.used++
	b.inUse.Set(i)
	return format.Addr(b.chunk.id, i*p.cellSize), nil
}

func (h *Heap) newCellBlock(p *cellPool) error {
	c, err := h.allocChunk(format.CellBlockSize, p.regionType)
	if err != nil {
		return err
	}
	n := format.CellBlockSize / p.cellSize
	b := &cellBlock{
		chunk:  c,
		ncells: n,
		inUse:  bitmap.New(n),
		next:   p.blocks,
	}
	if !p.headerMark {
		b.marks = bitmap.New(n)
	}
	c.cells = b
	p.blocks = b
	p.nblocks++
	return nil
}

// releaseCell returns a cell to the free list outside of a sweep, used to
// roll back a half-finished allocation.
func (h *Heap) releaseCell(p *cellPool, addr uint64) {
	c := h.chunkOf(addr)
	c.cells.inUse.Clear(format.OffsetOf(addr) / p.cellSize)
	h.pushFreeCell(p, addr)
}

func (h *Heap) pushFreeCell(p *cellPool, addr uint64) {
	if p.cellSize > format.WordSize {
		h.setWord(addr, uint64(h.deadV))
	}
	h.setWord(addr+p.linkOffset(), p.free)
	p.free = addr
	p.nfree++
}

// cellIndex locates addr inside a cell block. ok is false unless addr is
// the exact start of a cell that has been handed out.
func cellIndex(c *chunk, addr uint64, cellSize int) (b *cellBlock, i int, ok bool) {
	b = c.cells
	if b == nil {
		return nil, 0, false
	}
	off := format.OffsetOf(addr)
	if off%cellSize != 0 {
		return nil, 0, false
	}
	i = off / cellSize
	if i >= b.used {
		return nil, 0, false
	}
	return b, i, true
}

// cellLive reports whether addr is the start of a live cell in c.
func cellLive(c *chunk, addr uint64, cellSize int) bool {
	b, i, ok := cellIndex(c, addr, cellSize)
	return ok && b.inUse.Test(i)
}

// sweepCells frees every unmarked live cell, clears marks on survivors and
// rebuilds the free list. onFree runs before a cell is overwritten. Blocks
// stay with the pool even when they end up empty; every free cell goes on
// the free list.
func (h *Heap) sweepCells(p *cellPool, onFree func(addr uint64)) (freed int) {
	p.free = 0
	p.nfree = 0
	link := p.linkOffset()

	for b := p.blocks; b != nil; b = b.next {
		var head, tail uint64
		count := 0

		for i := b.used - 1; i >= 0; i-- {
			addr := format.Addr(b.chunk.id, i*p.cellSize)
			if b.inUse.Test(i) {
				if h.cellMarked(p, b, i, addr) {
					if p.headerMark {
						h.setWord(addr, h.word(addr)&^format.MarkFlag)
					}
					continue
				}
				if onFree != nil {
					onFree(addr)
				}
				b.inUse.Clear(i)
				h.noteFree(p.kind, p.cellSize)
				freed++
			}
			if p.cellSize > format.WordSize {
				h.setWord(addr, uint64(h.deadV))
			}
			h.setWord(addr+link, head)
			if head == 0 {
				tail = addr
			}
			head = addr
			count++
		}

		if b.marks != nil {
			b.marks.ClearAll()
		}
		if head != 0 {
			h.setWord(tail+link, p.free)
			p.free = head
			p.nfree += count
		}
	}

	return freed
}

func (h *Heap) cellMarked(p *cellPool, b *cellBlock, i int, addr uint64) bool {
	if p.headerMark {
		return h.word(addr)&format.MarkFlag != 0
	}
	return b.marks.Test(i)
}
