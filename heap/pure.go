package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// The pure arena is one chunk filled by bumping an offset. Objects in it are
// immutable, never marked and never swept. Copies are hash-consed: two
// requests with equal content get the same object.
//
// Once the arena fills up it stays overflowed: later copies go to the
// ordinary heap and the shortfall is counted.

const maxPureDepth = 10000

type pureArena struct {
	chunk *chunk
	used  int

	overflow      bool
	overflowBytes int64

	dedup     bool
	table     map[uint64][]Value
	objects   int
	dedupHits uint64
}

func (h *Heap) initPure(size int, dedup bool) error {
	c, err := h.allocChunk(size, regions.TypeNone)
	if err != nil {
		return fmt.Errorf("heap: pure arena: %w", err)
	}
	h.pure = pureArena{chunk: c, dedup: dedup, table: make(map[uint64][]Value)}

	// Free cells point at the dead sentinel, so it comes first.
	dead, _ := h.pureAlloc(format.VectorBytes(0))
	h.setWord(dead, vectorHeader(pvecDead, 0, 0))
	h.deadV = makeRef(dead, TagVector)

	h.nilV = h.pureSymbol("nil")
	h.tV = h.pureSymbol("t")
	for _, sym := range []Value{h.nilV, h.tV} {
		a := sym.addr()
		h.setWord(a+format.SymbolValueOffset, uint64(h.nilV))
		h.setWord(a+format.SymbolFunctionOffset, uint64(h.nilV))
		h.setWord(a+format.SymbolPlistOffset, uint64(h.nilV))
	}
	h.setWord(h.tV.addr()+format.SymbolValueOffset, uint64(h.tV))
	h.obarray["nil"] = h.nilV
	h.obarray["t"] = h.tV
	return nil
}

// pureSymbol builds a constant symbol during bootstrap. The arena is fresh,
// so it cannot overflow here.
func (h *Heap) pureSymbol(name string) Value {
	n, _ := h.pureString([]byte(name), len(name), false)
	addr, _ := h.pureAlloc(format.SymbolSize)
	h.setWord(addr+format.SymbolNameOffset, uint64(n))
	return makeRef(addr, TagSymbol)
}

// pureAlloc bumps the arena. It fails, permanently, once the arena is full.
func (h *Heap) pureAlloc(n int) (uint64, bool) {
	p := &h.pure
	if p.overflow || p.used+n > len(p.chunk.mem) {
		if !p.overflow {
			p.overflow = true
			h.log.Warn("pure storage exhausted, copying to the heap instead",
				"size", len(p.chunk.mem), "used", p.used, "request", n)
		}
		p.overflowBytes += int64(n)
		return 0, false
	}
	addr := format.Addr(p.chunk.id, p.used)
	p.used += n
	p.objects++
	return addr, true
}

// Purecopy returns an immutable copy of v in the pure arena, deduplicated
// against earlier copies. Lists, vectors and records are copied deeply.
// Interned symbols are returned unchanged; uninterned symbols, finalizers,
// user pointers and subrs cannot be copied.
func (h *Heap) Purecopy(v Value) (Value, error) {
	if h.closed {
		return 0, ErrClosed
	}
	if v.IsFixnum() || h.IsPure(v) {
		return v, nil
	}
	release := h.InhibitCollection()
	defer release()
	return h.purecopy(v, 0)
}

// SetPureDedup turns hash-consing of pure copies on or off.
func (h *Heap) SetPureDedup(on bool) { h.pure.dedup = on }

func (h *Heap) purecopy(v Value, depth int) (Value, error) {
	if v.IsFixnum() || h.IsPure(v) {
		return v, nil
	}
	if depth > maxPureDepth {
		return 0, fmt.Errorf("%w: nested deeper than %d", ErrNotPurifiable, maxPureDepth)
	}
	switch k := h.KindOf(v); k {
	case KindSymbol:
		if h.interned(v) {
			return v, nil
		}
		return 0, fmt.Errorf("%w: uninterned symbol", ErrNotPurifiable)
	case KindFloat:
		f, _ := h.FloatValue(v)
		return h.pureFloat(f)
	case KindString:
		si, _ := h.stringInfo("purecopy", v)
		b := append([]byte(nil), h.bytesAt(si.data, si.nbytes)...)
		return h.pureString(b, si.chars, si.multibyte)
	case KindCons:
		return h.purecopyList(v, depth)
	case KindVector, KindRecord:
		addr := v.addr()
		hdr := h.word(addr) &^ format.MarkFlag
		slots := make([]Value, headerSlots(hdr))
		for i := range slots {
			s, err := h.purecopy(Value(h.word(slotAddr(addr, i))), depth+1)
			if err != nil {
				return 0, err
			}
			slots[i] = s
		}
		return h.pureVector(hdr, slots)
	case KindInvalid:
		return 0, fmt.Errorf("%w: purecopy of %s", ErrDeadObject, v)
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotPurifiable, k)
	}
}

// purecopyList walks the spine iteratively so long lists do not recurse.
func (h *Heap) purecopyList(v Value, depth int) (Value, error) {
	var cars []Value
	cur, slow := v, v
	for cur.Tag() == TagCons && !h.IsPure(cur) {
		addr, err := h.objectAddr("purecopy", cur, KindCons)
		if err != nil {
			return 0, err
		}
		cars = append(cars, Value(h.word(addr+format.ConsCarOffset)))
		cur = Value(h.word(addr + format.ConsCdrOffset))
		if len(cars)%2 == 0 {
			slow = Value(h.word(slow.addr() + format.ConsCdrOffset))
			if slow == cur {
				return 0, ErrCircular
			}
		}
	}

	tail, err := h.purecopy(cur, depth+1)
	if err != nil {
		return 0, err
	}
	for i := len(cars) - 1; i >= 0; i-- {
		car, err := h.purecopy(cars[i], depth+1)
		if err != nil {
			return 0, err
		}
		if tail, err = h.pureCons(car, tail); err != nil {
			return 0, err
		}
	}
	return tail, nil
}

/******************** Hash-consing ********************/

func (h *Heap) pureFind(content []byte) (Value, uint64, bool) {
	if !h.pure.dedup {
		return 0, 0, false
	}
	key := xxhash.Sum64(content)
	for _, c := range h.pure.table[key] {
		if bytes.Equal(h.pureContent(c), content) {
			h.pure.dedupHits++
			return c, key, true
		}
	}
	return 0, key, false
}

func (h *Heap) pureRemember(key uint64, v Value) {
	if h.pure.dedup {
		h.pure.table[key] = append(h.pure.table[key], v)
	}
}

// pureContent serializes what makes two pure objects interchangeable:
// kind, scalar payload and the identity of every child.
func (h *Heap) pureContent(v Value) []byte {
	addr := v.addr()
	switch v.Tag() {
	case TagCons:
		return consContent(Value(h.word(addr+format.ConsCarOffset)), Value(h.word(addr+format.ConsCdrOffset)))
	case TagFloat:
		return floatContent(math.Float64frombits(h.word(addr)))
	case TagString:
		si, _ := h.stringInfo("purecopy", v)
		return stringContent(h.bytesAt(si.data, si.nbytes), si.chars, si.multibyte)
	case TagVector:
		hdr := h.word(addr)
		slots := make([]Value, headerSlots(hdr))
		for i := range slots {
			slots[i] = Value(h.word(slotAddr(addr, i)))
		}
		return vectorContent(hdr, slots)
	}
	return nil
}

func consContent(car, cdr Value) []byte {
	b := []byte{byte(KindCons)}
	b = binary.LittleEndian.AppendUint64(b, uint64(car))
	return binary.LittleEndian.AppendUint64(b, uint64(cdr))
}

func floatContent(f float64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{byte(KindFloat)}, math.Float64bits(f))
}

func stringContent(s []byte, chars int, multibyte bool) []byte {
	b := []byte{byte(KindString), 0}
	if multibyte {
		b[1] = 1
	}
	b = binary.LittleEndian.AppendUint64(b, uint64(chars))
	return append(b, s...)
}

func vectorContent(hdr uint64, slots []Value) []byte {
	b := binary.LittleEndian.AppendUint64([]byte{byte(KindVector)}, hdr)
	for _, s := range slots {
		b = binary.LittleEndian.AppendUint64(b, uint64(s))
	}
	return b
}

/******************** Builders ********************/

func (h *Heap) pureCons(car, cdr Value) (Value, error) {
	content := consContent(car, cdr)
	v, key, ok := h.pureFind(content)
	if ok {
		return v, nil
	}
	addr, ok := h.pureAlloc(format.ConsSize)
	if !ok {
		return h.Cons(car, cdr)
	}
	h.setWord(addr+format.ConsCarOffset, uint64(car))
	h.setWord(addr+format.ConsCdrOffset, uint64(cdr))
	v = makeRef(addr, TagCons)
	h.pureRemember(key, v)
	return v, nil
}

func (h *Heap) pureFloat(f float64) (Value, error) {
	content := floatContent(f)
	v, key, ok := h.pureFind(content)
	if ok {
		return v, nil
	}
	addr, ok := h.pureAlloc(format.FloatSize)
	if !ok {
		return h.MakeFloat(f)
	}
	h.setWord(addr, math.Float64bits(f))
	v = makeRef(addr, TagFloat)
	h.pureRemember(key, v)
	return v, nil
}

// pureString lays the header and its payload entry out back to back.
func (h *Heap) pureString(b []byte, chars int, multibyte bool) (Value, error) {
	content := stringContent(b, chars, multibyte)
	v, key, ok := h.pureFind(content)
	if ok {
		return v, nil
	}
	addr, ok := h.pureAlloc(format.StringHeaderSize + format.SdataBytes(len(b)))
	if !ok {
		return h.makeString(b, chars, multibyte)
	}
	entry := addr + format.StringHeaderSize
	data := entry + format.SdataHeaderSize
	h.setWord(entry+format.SdataBackOffset, addr)
	h.setWord(entry+format.SdataBytesOffset, uint64(len(b)))
	copy(h.bytesAt(data, len(b)), b)
	h.initStringHeader(addr, chars, len(b), multibyte, data)
	v = makeRef(addr, TagString)
	h.pureRemember(key, v)
	return v, nil
}

func (h *Heap) pureVector(hdr uint64, slots []Value) (Value, error) {
	content := vectorContent(hdr, slots)
	v, key, ok := h.pureFind(content)
	if ok {
		return v, nil
	}
	addr, ok := h.pureAlloc(format.VectorBytes(len(slots)))
	if !ok {
		if pvecKind(hdr) == KindRecord {
			return h.Record(slots[0], slots[1:]...)
		}
		return h.Vector(slots...)
	}
	h.setWord(addr, hdr)
	for i, s := range slots {
		h.setWord(slotAddr(addr, i), uint64(s))
	}
	v = makeRef(addr, TagVector)
	h.pureRemember(key, v)
	return v, nil
}
