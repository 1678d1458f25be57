package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// Vector-like objects (vectors, records, finalizers, user pointers, subrs)
// share one header word followed by traced slots and then raw words. Small
// objects are carved out of fixed-size vector blocks through free lists
// segregated by exact byte size; an object above LargeVectorBytes gets a
// chunk of its own.

type vectorBlock struct {
	chunk *chunk
	next  *vectorBlock
}

const numVectorFreeLists = format.VectorBlockSize/format.WordSize + 1

type vectorPool struct {
	blocks  *vectorBlock
	nblocks int

	// freeLists[n] chains free chunks of exactly n words. A free chunk has a
	// free header in word 0 and the link in word 1.
	freeLists [numVectorFreeLists]uint64
	nfree     int
	freeBytes int64

	large []*chunk
}

// allocVectorLike allocates a vector-like object and writes its header.
// Slots and raw words are left for the caller to fill.
func (h *Heap) allocVectorLike(kind Kind, pvec uint64, lisp, raw int, protect ...Value) (uint64, error) {
	if lisp < 0 || uint64(lisp) > format.SlotCountMask || raw < 0 || uint64(raw) > format.RawWordsMask {
		return 0, fmt.Errorf("%w: vector of %d slots", ErrOutOfRange, lisp)
	}
	nbytes := format.VectorBytes(lisp + raw)
	if int64(nbytes) > format.MaxChunkSize {
		return 0, fmt.Errorf("%w: vector of %d bytes", ErrOutOfMemory, nbytes)
	}
	if err := h.beginAlloc(protect...); err != nil {
		return 0, err
	}

	var addr uint64
	if nbytes > format.LargeVectorBytes {
		c, err := h.allocChunk(nbytes, regions.TypeVectorLike)
		if err != nil {
			return 0, err
		}
		h.vectors.large = append(h.vectors.large, c)
		addr = c.base()
	} else {
		a, err := h.allocSmallVector(nbytes)
		if err != nil {
			return 0, err
		}
		addr = a
	}
	h.setWord(addr, vectorHeader(pvec, lisp, raw))
	h.noteAlloc(kind, nbytes)
	return addr, nil
}

func (h *Heap) allocSmallVector(nbytes int) (uint64, error) {
	vp := &h.vectors
	want := nbytes / format.WordSize
	if vp.freeLists[want] != 0 {
		return h.popVectorFree(want), nil
	}
	// A larger chunk must leave a remainder big enough to be a free chunk.
	for i := want + format.MinVectorBytes/format.WordSize; i < numVectorFreeLists; i++ {
		if vp.freeLists[i] != 0 {
			addr := h.popVectorFree(i)
			h.pushVectorFree(addr+uint64(nbytes), i*format.WordSize-nbytes)
			return addr, nil
		}
	}

	c, err := h.allocChunk(format.VectorBlockSize, regions.TypeVectorBlock)
	if err != nil {
		return 0, err
	}
	b := &vectorBlock{chunk: c, next: vp.blocks}
	c.vblock = b
	vp.blocks = b
	vp.nblocks++
	addr := c.base()
	h.pushVectorFree(addr+uint64(nbytes), format.VectorBlockSize-nbytes)
	return addr, nil
}

func (h *Heap) pushVectorFree(addr uint64, nbytes int) {
	vp := &h.vectors
	i := nbytes / format.WordSize
	h.setWord(addr, freeHeader(nbytes))
	h.setWord(addr+format.WordSize, vp.freeLists[i])
	vp.freeLists[i] = addr
	vp.nfree++
	vp.freeBytes += int64(nbytes)
}

func (h *Heap) popVectorFree(i int) uint64 {
	vp := &h.vectors
	addr := vp.freeLists[i]
	vp.freeLists[i] = h.word(addr + format.WordSize)
	vp.nfree--
	vp.freeBytes -= int64(i * format.WordSize)
	return addr
}

// vectorStartsAt walks a vector block and reports whether a live object
// starts exactly at addr.
func (h *Heap) vectorStartsAt(c *chunk, addr uint64) bool {
	target := format.OffsetOf(addr)
	for off := 0; off < len(c.mem); {
		hdr := format.ReadWord(c.mem, off)
		if off == target {
			return !isFreeHeader(hdr)
		}
		if off > target {
			return false
		}
		off += objectBytes(hdr)
	}
	return false
}

func slotAddr(addr uint64, i int) uint64 {
	return addr + format.VectorHeaderLen + uint64(i)*format.WordSize
}

func rawAddr(addr uint64, hdr uint64, j int) uint64 {
	return slotAddr(addr, headerSlots(hdr)+j)
}

/******************** Vectors and records ********************/

// MakeVector allocates a vector of n slots, each set to init.
func (h *Heap) MakeVector(n int, init Value) (Value, error) {
	addr, err := h.allocVectorLike(KindVector, 0, n, 0, init)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		h.setWord(slotAddr(addr, i), uint64(init))
	}
	return makeRef(addr, TagVector), nil
}

// Vector allocates a vector holding vals.
func (h *Heap) Vector(vals ...Value) (Value, error) {
	addr, err := h.allocVectorLike(KindVector, 0, len(vals), 0, vals...)
	if err != nil {
		return 0, err
	}
	for i, v := range vals {
		h.setWord(slotAddr(addr, i), uint64(v))
	}
	return makeRef(addr, TagVector), nil
}

// MakeRecord allocates a record of type typ with n fields set to init.
func (h *Heap) MakeRecord(typ Value, n int, init Value) (Value, error) {
	addr, err := h.allocVectorLike(KindRecord, pvecRecord, n+1, 0, typ, init)
	if err != nil {
		return 0, err
	}
	h.setWord(slotAddr(addr, 0), uint64(typ))
	for i := 1; i <= n; i++ {
		h.setWord(slotAddr(addr, i), uint64(init))
	}
	return makeRef(addr, TagVector), nil
}

// Record allocates a record of type typ holding fields.
func (h *Heap) Record(typ Value, fields ...Value) (Value, error) {
	keep := append([]Value{typ}, fields...)
	addr, err := h.allocVectorLike(KindRecord, pvecRecord, len(fields)+1, 0, keep...)
	if err != nil {
		return 0, err
	}
	h.setWord(slotAddr(addr, 0), uint64(typ))
	for i, v := range fields {
		h.setWord(slotAddr(addr, i+1), uint64(v))
	}
	return makeRef(addr, TagVector), nil
}

func (h *Heap) arrayAddr(op string, v Value) (uint64, uint64, error) {
	if v.Tag() != TagVector {
		return 0, 0, wrongType(op, KindVector, h.KindOf(v))
	}
	addr, err := h.objectAddr(op, v, KindVector)
	if err != nil {
		return 0, 0, err
	}
	hdr := h.word(addr)
	if k := pvecKind(hdr); k != KindVector && k != KindRecord {
		return 0, 0, wrongType(op, KindVector, k)
	}
	return addr, hdr, nil
}

// VectorLen returns the slot count of a vector or record. A record's type
// counts as slot 0.
func (h *Heap) VectorLen(v Value) (int, error) {
	_, hdr, err := h.arrayAddr("length", v)
	if err != nil {
		return 0, err
	}
	return headerSlots(hdr), nil
}

// Aref returns slot i of a vector or record.
func (h *Heap) Aref(v Value, i int) (Value, error) {
	addr, hdr, err := h.arrayAddr("aref", v)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= headerSlots(hdr) {
		return 0, fmt.Errorf("%w: aref %d of %d", ErrOutOfRange, i, headerSlots(hdr))
	}
	return Value(h.word(slotAddr(addr, i))), nil
}

// Aset replaces slot i of a vector or record.
func (h *Heap) Aset(v Value, i int, x Value) error {
	addr, hdr, err := h.arrayAddr("aset", v)
	if err != nil {
		return err
	}
	if i < 0 || i >= headerSlots(hdr) {
		return fmt.Errorf("%w: aset %d of %d", ErrOutOfRange, i, headerSlots(hdr))
	}
	if err := h.checkMutable("aset", v); err != nil {
		return err
	}
	h.setWord(slotAddr(addr, i), uint64(x))
	return nil
}

// RecordType returns the type slot of a record.
func (h *Heap) RecordType(v Value) (Value, error) {
	addr, _, err := h.vectorAddr("type-of", v, KindRecord)
	if err != nil {
		return 0, err
	}
	return Value(h.word(slotAddr(addr, 0))), nil
}

/******************** User pointers ********************/

type userPtr struct {
	payload any
	release func(any)
}

// MakeUserPtr wraps a Go value. release, if non-nil, runs with the payload
// when the object is reclaimed. It runs during a collection and must not
// touch the heap.
func (h *Heap) MakeUserPtr(payload any, release func(any)) (Value, error) {
	addr, err := h.allocVectorLike(KindUserPtr, pvecUserPtr, 0, 1)
	if err != nil {
		return 0, err
	}
	h.nextUPtr++
	h.userPtrs[h.nextUPtr] = &userPtr{payload: payload, release: release}
	h.setWord(rawAddr(addr, h.word(addr), 0), h.nextUPtr)
	return makeRef(addr, TagVector), nil
}

// UserPtrPayload returns the Go value wrapped by a user pointer.
func (h *Heap) UserPtrPayload(v Value) (any, error) {
	addr, hdr, err := h.vectorAddr("user-ptr", v, KindUserPtr)
	if err != nil {
		return nil, err
	}
	up := h.userPtrs[h.word(rawAddr(addr, hdr, 0))]
	if up == nil {
		return nil, fmt.Errorf("%w: user-ptr %s", ErrDeadObject, v)
	}
	return up.payload, nil
}

func (h *Heap) releaseUserPtr(id uint64) {
	up := h.userPtrs[id]
	delete(h.userPtrs, id)
	if up == nil || up.release == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*FatalError); ok {
				panic(r)
			}
			h.log.Warn("user-ptr release hook panicked", "id", id, "panic", r)
		}
	}()
	up.release(up.payload)
}

/******************** Subrs ********************/

// SubrFunc is a built-in function callable from finalizers.
type SubrFunc func(h *Heap, args []Value) (Value, error)

type subrEntry struct {
	name string
	fn   SubrFunc
}

// MakeSubr wraps a Go function as a callable heap object.
func (h *Heap) MakeSubr(name string, fn SubrFunc) (Value, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: nil subr %q", ErrNotCallable, name)
	}
	addr, err := h.allocVectorLike(KindSubr, pvecSubr, 0, 1)
	if err != nil {
		return 0, err
	}
	var id uint64
	if n := len(h.subrFree); n > 0 {
		id = h.subrFree[n-1]
		h.subrFree = h.subrFree[:n-1]
		h.subrs[id] = subrEntry{name: name, fn: fn}
	} else {
		id = uint64(len(h.subrs))
		h.subrs = append(h.subrs, subrEntry{name: name, fn: fn})
	}
	h.setWord(rawAddr(addr, h.word(addr), 0), id)
	return makeRef(addr, TagVector), nil
}

// SubrName returns the name a subr was created with.
func (h *Heap) SubrName(v Value) (string, error) {
	addr, hdr, err := h.vectorAddr("subr-name", v, KindSubr)
	if err != nil {
		return "", err
	}
	return h.subrs[h.word(rawAddr(addr, hdr, 0))].name, nil
}

/******************** Sweep ********************/

// sweepVectors frees unmarked vector-like objects, coalesces adjacent free
// space in each block, rebuilds the free lists and returns empty blocks and
// dead large objects to the system.
func (h *Heap) sweepVectors(rep *Report) {
	vp := &h.vectors
	clear(vp.freeLists[:])
	vp.nfree = 0
	vp.freeBytes = 0

	var prev *vectorBlock
	for b := vp.blocks; b != nil; {
		next := b.next
		base := b.chunk.base()
		runStart := -1
		for off := 0; off < format.VectorBlockSize; {
			hdr := format.ReadWord(b.chunk.mem, off)
			size := objectBytes(hdr)
			switch {
			case !isFreeHeader(hdr) && hdr&format.MarkFlag != 0:
				format.PutWord(b.chunk.mem, off, hdr&^format.MarkFlag)
				if runStart >= 0 {
					h.pushVectorFree(base+uint64(runStart), off-runStart)
					runStart = -1
				}
			default:
				if !isFreeHeader(hdr) {
					h.releaseVector(base+uint64(off), hdr, rep)
				}
				if runStart < 0 {
					runStart = off
				}
			}
			off += size
		}

		if runStart == 0 {
			if prev == nil {
				vp.blocks = next
			} else {
				prev.next = next
			}
			vp.nblocks--
			h.freeChunk(b.chunk)
			b = next
			continue
		}
		if runStart > 0 {
			h.pushVectorFree(base+uint64(runStart), format.VectorBlockSize-runStart)
		}
		prev = b
		b = next
	}

	keep := vp.large[:0]
	for _, c := range vp.large {
		hdr := format.ReadWord(c.mem, 0)
		if hdr&format.MarkFlag != 0 {
			format.PutWord(c.mem, 0, hdr&^format.MarkFlag)
			keep = append(keep, c)
			continue
		}
		h.releaseVector(c.base(), hdr, rep)
		h.freeChunk(c)
	}
	clear(vp.large[len(keep):])
	vp.large = keep
}

// releaseVector runs the type-specific release step for a dead object.
func (h *Heap) releaseVector(addr, hdr uint64, rep *Report) {
	k := pvecKind(hdr)
	switch k {
	case KindUserPtr:
		h.releaseUserPtr(h.word(rawAddr(addr, hdr, 0)))
	case KindSubr:
		id := h.word(rawAddr(addr, hdr, 0))
		h.subrs[id] = subrEntry{}
		h.subrFree = append(h.subrFree, id)
	}
	h.noteFree(k, objectBytes(hdr))
	rep.Freed[k]++
}
