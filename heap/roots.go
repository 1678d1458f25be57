package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// Frame is a saved depth of the protect stack.
type Frame int

// Protect registers Go-side slots as roots until the matching Unprotect.
// The collector reads the slots when it runs, so later assignments are
// seen.
func (h *Heap) Protect(slots ...*Value) Frame {
	f := Frame(len(h.protects))
	h.protects = append(h.protects, slots...)
	return f
}

func (h *Heap) protectSlice(vals []Value) Frame {
	f := Frame(len(h.protects))
	for i := range vals {
		h.protects = append(h.protects, &vals[i])
	}
	return f
}

// Unprotect pops every slot registered since f was returned.
func (h *Heap) Unprotect(f Frame) {
	if int(f) < 0 || int(f) > len(h.protects) {
		h.fatal(fmt.Errorf("%w: frame %d with depth %d", ErrProtectUnderflow, f, len(h.protects)))
	}
	clear(h.protects[f:])
	h.protects = h.protects[:f]
}

// StaticPro registers a long-lived root slot. The table has a fixed
// capacity; overflowing it is fatal.
func (h *Heap) StaticPro(slot *Value) {
	if len(h.statics) == cap(h.statics) {
		h.fatal(fmt.Errorf("%w: %d slots", ErrStaticRootsFull, cap(h.statics)))
	}
	h.statics = append(h.statics, slot)
}

// StaticUnpro removes a slot registered with StaticPro.
func (h *Heap) StaticUnpro(slot *Value) bool {
	for i, s := range h.statics {
		if s == slot {
			last := len(h.statics) - 1
			h.statics[i] = h.statics[last]
			h.statics[last] = nil
			h.statics = h.statics[:last]
			return true
		}
	}
	return false
}

// RootProvider reports extra roots when a collection runs. MarkRoots must
// not allocate.
type RootProvider interface {
	MarkRoots(mark func(Value))
}

// RootProviderFunc adapts a function to RootProvider.
type RootProviderFunc func(mark func(Value))

// MarkRoots implements RootProvider.
func (f RootProviderFunc) MarkRoots(mark func(Value)) { f(mark) }

type providerEntry struct {
	p RootProvider
}

// AddRootProvider registers p until the returned function is called.
func (h *Heap) AddRootProvider(p RootProvider) (remove func()) {
	e := &providerEntry{p: p}
	h.providers = append(h.providers, e)
	return func() {
		for i, x := range h.providers {
			if x == e {
				h.providers = append(h.providers[:i], h.providers[i+1:]...)
				return
			}
		}
	}
}

// markRoots marks everything reachable from the precise roots and the
// conservatively scanned stack.
func (h *Heap) markRoots(rep *Report) {
	for _, slot := range h.statics {
		h.markObject(*slot)
	}
	rep.Roots.Static = len(h.statics)

	for _, slot := range h.protects {
		h.markObject(*slot)
	}
	rep.Roots.Protected = len(h.protects)

	for _, sym := range h.obarray {
		h.markObject(sym)
	}
	rep.Roots.Interned = len(h.obarray)

	for _, e := range h.providers {
		e.p.MarkRoots(func(v Value) {
			rep.Roots.Provided++
			h.markObject(v)
		})
	}

	rep.Roots.Conservative = h.scanStack()
}

// scanStack treats every word on the mutator stack as a possible value or
// raw pointer. With ValueAlignment below the word size it repeats the scan
// at each possible misalignment.
func (h *Heap) scanStack() (hits int) {
	data := h.stack.live()
	for start := 0; start < format.WordSize; start += h.opts.ValueAlignment {
		for off := start; off+format.WordSize <= len(data); off += format.WordSize {
			if h.markMaybe(format.ReadWord(data, off)) {
				hits++
			}
		}
	}
	return hits
}

var regionTag = [...]Tag{
	regions.TypeCons:        TagCons,
	regions.TypeString:      TagString,
	regions.TypeSymbol:      TagSymbol,
	regions.TypeFloat:       TagFloat,
	regions.TypeVectorBlock: TagVector,
	regions.TypeVectorLike:  TagVector,
}

// markMaybe marks the object w might refer to. w counts as a reference when
// it lands exactly on the start of a live object, either tagged with that
// object's type or as an untagged address.
func (h *Heap) markMaybe(w uint64) bool {
	addr := w &^ format.TagMask
	if addr == 0 {
		return false
	}
	n, ok := h.index.Find(addr)
	if !ok || n.Type == regions.TypeSpare || int(n.Type) >= len(regionTag) {
		return false
	}
	want := regionTag[n.Type]
	if tag := Tag(w & format.TagMask); tag != want && tag != TagFixnum {
		return false
	}
	if !h.liveAt(n.Owner, addr, want, true) {
		return false
	}
	v := makeRef(addr, want)
	if h.marked(v) {
		return false
	}
	h.markObject(v)
	return true
}
