package heap

import (
	"time"

	"github.com/joshuapare/heapkit/heap/regions"
)

// KindStats holds the counters for one object kind.
type KindStats struct {
	Kind      string `json:"kind"`
	Allocated uint64 `json:"allocated"`  // ever allocated
	Live      int64  `json:"live"`       // live after the last sweep plus allocated since
	LiveBytes int64  `json:"live_bytes"` // footprint of Live, payloads included
	Free      int    `json:"free"`       // cells (or free chunks) ready for reuse
}

// Stats is a snapshot of heap counters.
type Stats struct {
	Kinds []KindStats `json:"kinds"`

	Collections    uint64        `json:"collections"`
	GCTime         time.Duration `json:"gc_time_ns"`
	ConsingSinceGC int64         `json:"consing_since_gc"`
	ConsThreshold  int64         `json:"cons_threshold"`
	ConsPercentage float64       `json:"cons_percentage"`
	Threshold      int64         `json:"threshold"`
	LiveBytes      int64         `json:"live_bytes"`

	Chunks          int   `json:"chunks"`
	SystemBytes     int64 `json:"system_bytes"`
	Regions         int   `json:"regions"`
	VectorBlocks    int   `json:"vector_blocks"`
	VectorFreeBytes int64 `json:"vector_free_bytes"`
	LargeVectors    int   `json:"large_vectors"`
	Sblocks         int   `json:"sblocks"`
	LargeSblocks    int   `json:"large_sblocks"`
	StringsMoved    int64 `json:"string_bytes_moved"`

	PureSize          int    `json:"pure_size"`
	PureUsed          int    `json:"pure_used"`
	PureObjects       int    `json:"pure_objects"`
	PureOverflow      bool   `json:"pure_overflow"`
	PureOverflowBytes int64  `json:"pure_overflow_bytes"`
	PureDedup         bool   `json:"pure_dedup"`
	PureDedupHits     uint64 `json:"pure_dedup_hits"`

	MemoryFull    bool   `json:"memory_full"`
	ReserveHeld   bool   `json:"reserve_held"`
	OutOfMemories uint64 `json:"out_of_memory"`

	StaticRoots       int    `json:"static_roots"`
	StaticRootsCap    int    `json:"static_roots_cap"`
	Interned          int    `json:"interned"`
	FinalizersActive  int    `json:"finalizers_active"`
	FinalizersPending int    `json:"finalizers_pending"`
	FinalizersRun     uint64 `json:"finalizers_run"`
	FinalizerErrors   uint64 `json:"finalizer_errors"`
}

// Kind returns the counters for k.
func (s Stats) Kind(k Kind) KindStats {
	for _, ks := range s.Kinds {
		if ks.Kind == k.String() {
			return ks
		}
	}
	return KindStats{Kind: k.String()}
}

// Stats returns a snapshot of the heap's counters.
func (h *Heap) Stats() Stats {
	s := Stats{
		Collections:    h.gcCount,
		GCTime:         h.gcTime,
		ConsingSinceGC: h.consingSinceGC,
		ConsThreshold:  h.consThreshold,
		ConsPercentage: h.consPercentage,
		Threshold:      h.Threshold(),
		LiveBytes:      h.liveBytes,

		SystemBytes:     h.sysBytes,
		Regions:         h.index.Len(),
		VectorBlocks:    h.vectors.nblocks,
		VectorFreeBytes: h.vectors.freeBytes,
		LargeVectors:    len(h.vectors.large),
		Sblocks:         len(h.strs.small),
		LargeSblocks:    len(h.strs.large),
		StringsMoved:    h.strs.bytesMoved,

		PureUsed:          h.pure.used,
		PureObjects:       h.pure.objects,
		PureOverflow:      h.pure.overflow,
		PureOverflowBytes: h.pure.overflowBytes,
		PureDedup:         h.pure.dedup,
		PureDedupHits:     h.pure.dedupHits,

		MemoryFull:    h.memFull,
		ReserveHeld:   h.reserve != nil,
		OutOfMemories: h.ooms,

		StaticRoots:     len(h.statics),
		StaticRootsCap:  cap(h.statics),
		Interned:        len(h.obarray),
		FinalizersRun:   h.finalizersRun,
		FinalizerErrors: h.finalizerErrors,
	}
	if h.pure.chunk != nil {
		s.PureSize = len(h.pure.chunk.mem)
	}
	for _, c := range h.chunks {
		if c != nil {
			s.Chunks++
		}
	}
	if !h.closed {
		s.FinalizersActive = h.countFinalizers(h.finalizers)
		s.FinalizersPending = h.countFinalizers(h.doomed)
	}

	free := map[Kind]int{
		KindCons:   h.conses.nfree,
		KindFloat:  h.floats.nfree,
		KindSymbol: h.symbols.nfree,
		KindString: h.strHeaders.nfree,
		KindVector: h.vectors.nfree,
	}
	for _, k := range Kinds {
		c := h.counters[k]
		s.Kinds = append(s.Kinds, KindStats{
			Kind:      k.String(),
			Allocated: c.allocated,
			Live:      c.live,
			LiveBytes: c.liveBytes,
			Free:      free[k],
		})
	}
	return s
}

// Region describes one entry of the region index.
type Region struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Type  string `json:"type"`
}

// Regions lists the region index in address order.
func (h *Heap) Regions() []Region {
	var out []Region
	h.index.Walk(func(n regions.Node[*chunk]) bool {
		out = append(out, Region{Start: n.Start, End: n.End, Type: n.Type.String()})
		return true
	})
	return out
}

// RegionAt returns the indexed region containing addr. The pure arena and
// string payload blocks are not indexed.
func (h *Heap) RegionAt(addr uint64) (Region, bool) {
	n, ok := h.index.Find(addr)
	if !ok {
		return Region{}, false
	}
	return Region{Start: n.Start, End: n.End, Type: n.Type.String()}, true
}
