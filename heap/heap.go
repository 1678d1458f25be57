package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// chunk is one region obtained from the system allocator. Its id forms the
// high half of every address inside it.
type chunk struct {
	id   uint32
	mem  []byte
	typ  regions.Type   // TypeNone for chunks kept out of the region index
	node regions.NodeID // index node, 0 when not indexed

	// At most one owner is set.
	cells  *cellBlock
	vblock *vectorBlock
	sblock *sblock
}

func (c *chunk) base() uint64 { return format.Addr(c.id, 0) }

func (c *chunk) end() uint64 { return c.base() + uint64(len(c.mem)) }

// Heap is a mark-and-sweep managed heap for interpreter values.
//
// NOT thread-safe: a Heap belongs to a single mutator.
type Heap struct {
	opts Options
	log  *slog.Logger
	sys  sysmem.Allocator

	// Chunk table indexed by chunk id; freed chunks leave nil holes and ids
	// are never reused. Slot 0 is always nil so no address is 0.
	chunks    []*chunk
	sysBytes  int64
	index     *regions.Tree[*chunk]
	reserve   *chunk
	memFull   bool
	closed    bool
	ooms      uint64
	reserveAt int // ReserveSize

	// Cell pools.
	conses     cellPool
	floats     cellPool
	symbols    cellPool
	strHeaders cellPool

	vectors vectorPool
	strs    stringData
	pure    pureArena

	// Well-known objects, all pure.
	nilV, tV, deadV Value

	obarray map[string]Value

	// Roots.
	statics   []*Value
	protects  []*Value
	providers []*providerEntry
	stack     *Stack

	// Finalizer list heads (sentinel records).
	finalizers Value
	doomed     Value

	subrs    []subrEntry
	subrFree []uint64 // reclaimed subrs slots
	userPtrs map[uint64]*userPtr
	nextUPtr uint64

	// Collector state.
	gcInProgress      bool
	inhibit           int
	runningFinalizers bool
	pendingCollect    bool
	markStack         []Value

	// Threshold controller.
	consingSinceGC int64
	consThreshold  int64
	consPercentage float64
	liveBytes      int64

	counters        [numKinds]kindCounters
	gcCount         uint64
	gcTime          time.Duration
	finalizersRun   uint64
	finalizerErrors uint64
	lastReport      *Report
}

type kindCounters struct {
	allocated uint64
	live      int64
	liveBytes int64
}

// New creates a heap. A nil opts selects DefaultOptions. It fails when the
// emergency reserve or the pure arena cannot be obtained.
func New(opts *Options) (*Heap, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	o, err := o.normalize()
	if err != nil {
		return nil, err
	}

	h := &Heap{
		opts:           o,
		log:            o.Logger,
		sys:            o.Allocator,
		chunks:         []*chunk{nil},
		index:          regions.New[*chunk](),
		obarray:        make(map[string]Value),
		statics:        make([]*Value, 0, o.MaxStaticRoots),
		userPtrs:       make(map[uint64]*userPtr),
		consThreshold:  o.ConsThreshold,
		consPercentage: o.ConsPercentage,
		reserveAt:      o.ReserveSize,
	}
	if h.log == nil {
		h.log = logger.L
	}
	if h.sys == nil {
		h.sys = sysmem.New()
	}
	h.conses = newCellPool(KindCons, regions.TypeCons, format.ConsSize, false)
	h.floats = newCellPool(KindFloat, regions.TypeFloat, format.FloatSize, false)
	h.symbols = newCellPool(KindSymbol, regions.TypeSymbol, format.SymbolSize, false)
	h.strHeaders = newCellPool(KindString, regions.TypeString, format.StringHeaderSize, true)

	if err := h.refillReserve(); err != nil {
		return nil, fmt.Errorf("heap: emergency reserve: %w", err)
	}
	if err := h.initPure(o.PureSize, !o.DisablePureDedup); err != nil {
		_ = h.Close()
		return nil, err
	}
	h.stack = newStack(o.StackSize)
	if err := h.initFinalizers(); err != nil {
		_ = h.Close()
		return nil, err
	}
	// Bootstrap allocations do not count toward the first collection.
	h.consingSinceGC = 0

	h.log.Debug("heap created",
		"pure_size", o.PureSize,
		"cons_threshold", o.ConsThreshold,
		"reserve", o.ReserveSize)
	return h, nil
}

// Close returns every chunk to the system allocator. The heap is unusable
// afterwards; release hooks of live user pointers are not run.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	var errs []error
	for id, c := range h.chunks {
		if c == nil {
			continue
		}
		if err := h.sys.Free(c.mem); err != nil {
			errs = append(errs, fmt.Errorf("chunk %d: %w", id, err))
		}
		h.chunks[id] = nil
	}
	h.sysBytes = 0
	h.reserve = nil
	h.index = regions.New[*chunk]()
	return errors.Join(errs...)
}

// Nil returns the nil symbol.
func (h *Heap) Nil() Value { return h.nilV }

// T returns the t symbol.
func (h *Heap) T() Value { return h.tV }

// Stack returns the mutator stack scanned conservatively by the collector.
func (h *Heap) Stack() *Stack { return h.stack }

// MemoryFull reports whether an allocation failed since the emergency
// reserve was last refilled.
func (h *Heap) MemoryFull() bool { return h.memFull }

// InProgress reports whether a collection is running. Only code called
// from inside one (release hooks, root providers) can observe true.
func (h *Heap) InProgress() bool { return h.gcInProgress }

/******************** Chunks ********************/

// allocChunk obtains a chunk and registers it in the region index unless
// typ is TypeNone.
func (h *Heap) allocChunk(size int, typ regions.Type) (*chunk, error) {
	if h.gcInProgress {
		h.fatal(ErrAllocDuringGC)
	}
	if size <= 0 || int64(size) > format.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk of %d bytes", ErrOutOfMemory, size)
	}
	mem, err := h.sysAlloc(size)
	if err != nil {
		return nil, err
	}
	return h.addChunk(mem, typ), nil
}

func (h *Heap) addChunk(mem []byte, typ regions.Type) *chunk {
	c := &chunk{id: uint32(len(h.chunks)), mem: mem, typ: typ}
	h.chunks = append(h.chunks, c)
	h.sysBytes += int64(len(mem))
	if typ != regions.TypeNone {
		id, err := h.index.Insert(c.base(), c.end(), typ, c)
		if err != nil {
			h.fatal(fmt.Errorf("%w: %w", ErrRegionCorruption, err))
		}
		c.node = id
	}
	return c
}

// freeChunk deregisters c and returns its memory to the system allocator.
func (h *Heap) freeChunk(c *chunk) {
	if c.node != 0 {
		if err := h.index.Delete(c.node); err != nil {
			h.fatal(fmt.Errorf("%w: %w", ErrRegionCorruption, err))
		}
		c.node = 0
	}
	h.chunks[c.id] = nil
	h.sysBytes -= int64(len(c.mem))
	if err := h.sys.Free(c.mem); err != nil {
		h.log.Warn("chunk release failed", "chunk", c.id, "size", len(c.mem), "err", err)
	}
}

// sysAlloc asks the system allocator for memory. On failure it gives up the
// emergency reserve and retries once before reporting exhaustion.
func (h *Heap) sysAlloc(size int) ([]byte, error) {
	mem, err := h.sys.Alloc(size)
	if err == nil {
		return mem, nil
	}
	if h.reserve != nil {
		h.releaseReserve()
		mem, err2 := h.sys.Alloc(size)
		if err2 == nil {
			h.memFull = true
			return mem, nil
		}
		err = err2
	}
	h.memFull = true
	h.ooms++
	h.log.Warn("memory exhausted", "size", size, "err", err)
	return nil, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
}

// releaseReserve frees the emergency reserve. Failing to give it back is
// fatal: the reserve exists precisely so this step cannot fail.
func (h *Heap) releaseReserve() {
	c := h.reserve
	h.reserve = nil
	if err := h.index.Delete(c.node); err != nil {
		h.fatal(fmt.Errorf("%w: %w", ErrRegionCorruption, err))
	}
	h.chunks[c.id] = nil
	h.sysBytes -= int64(len(c.mem))
	if err := h.sys.Free(c.mem); err != nil {
		h.fatal(fmt.Errorf("%w: %w", ErrReserveRelease, err))
	}
	h.log.Warn("emergency reserve released", "size", len(c.mem))
}

// refillReserve re-acquires the emergency reserve if it was spent.
func (h *Heap) refillReserve() error {
	if h.reserve != nil || h.reserveAt == 0 {
		return nil
	}
	mem, err := h.sys.Alloc(h.reserveAt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	h.reserve = h.addChunk(mem, regions.TypeSpare)
	h.memFull = false
	return nil
}

func (h *Heap) chunkOf(addr uint64) *chunk {
	id := format.ChunkOf(addr)
	if id == 0 || int(id) >= len(h.chunks) {
		return nil
	}
	return h.chunks[id]
}

// word reads the word at addr. addr must lie inside a live chunk.
func (h *Heap) word(addr uint64) uint64 {
	return format.ReadWord(h.chunks[format.ChunkOf(addr)].mem, format.OffsetOf(addr))
}

func (h *Heap) setWord(addr uint64, w uint64) {
	format.PutWord(h.chunks[format.ChunkOf(addr)].mem, format.OffsetOf(addr), w)
}

func (h *Heap) signedWord(addr uint64) int64 {
	return format.ReadI64(h.chunks[format.ChunkOf(addr)].mem, format.OffsetOf(addr))
}

func (h *Heap) setSignedWord(addr uint64, v int64) {
	format.PutI64(h.chunks[format.ChunkOf(addr)].mem, format.OffsetOf(addr), v)
}

// bytesAt returns n bytes starting at addr.
func (h *Heap) bytesAt(addr uint64, n int) []byte {
	off := format.OffsetOf(addr)
	return h.chunks[format.ChunkOf(addr)].mem[off : off+n]
}

/******************** Fatal path ********************/

// fatal logs err, calls the OnFatal hook, and panics with a *FatalError.
func (h *Heap) fatal(err error) {
	h.log.Error("fatal heap error", "err", err)
	if h.opts.OnFatal != nil {
		h.opts.OnFatal(err)
	}
	panic(&FatalError{Err: err})
}
