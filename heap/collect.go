package heap

import (
	"time"
)

// RootCounts tallies the roots a collection started from.
type RootCounts struct {
	Static       int `json:"static"`
	Protected    int `json:"protected"`
	Interned     int `json:"interned"`
	Provided     int `json:"provided"`
	Conservative int `json:"conservative"` // stack words that hit an unmarked object
}

// Report describes one collection.
type Report struct {
	Cycle            uint64        `json:"cycle"`
	Freed            [numKinds]int `json:"freed"` // indexed by Kind
	LiveBytes        int64         `json:"live_bytes"`
	FinalizersQueued int           `json:"finalizers_queued"`
	StringBytesMoved int64         `json:"string_bytes_moved"`
	SblocksFreed     int           `json:"sblocks_freed"`
	Roots            RootCounts    `json:"roots"`
	Duration         time.Duration `json:"duration_ns"`
}

// FreedOf returns how many objects of kind k the collection reclaimed.
func (r *Report) FreedOf(k Kind) int { return r.Freed[k] }

// TotalFreed returns the number of objects reclaimed across all kinds.
func (r *Report) TotalFreed() (n int) {
	for _, f := range r.Freed {
		n += f
	}
	return n
}

// Collect runs a full stop-the-world collection, then the finalizers it
// doomed (unless Options.DeferFinalizers is set).
//
// It refuses to run inside InhibitCollection, and is deferred while
// finalizers are running. Starting a collection from inside one (from a
// release hook or root provider) is fatal.
func (h *Heap) Collect() (*Report, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if h.gcInProgress {
		h.fatal(ErrRecursiveGC)
	}
	if h.inhibit > 0 {
		return nil, ErrCollectionInhibited
	}
	if h.runningFinalizers {
		h.pendingCollect = true
		return nil, ErrCollectionDeferred
	}

	start := time.Now()
	rep := &Report{Cycle: h.gcCount + 1}
	h.gcInProgress = true

	h.markRoots(rep)
	h.drainMarkStack()

	// Reachability is settled before the finalizer lists are consulted, so
	// a finalizer never keeps its own target alive.
	rep.FinalizersQueued = h.queueDoomedFinalizers()
	h.markFinalizers()

	rep.Freed[KindCons] = h.sweepCells(&h.conses, nil)
	rep.Freed[KindFloat] = h.sweepCells(&h.floats, nil)
	rep.Freed[KindSymbol] = h.sweepCells(&h.symbols, nil)
	h.sweepStrings(rep)
	h.sweepVectors(rep)

	h.gcInProgress = false
	h.markStack = h.markStack[:0]

	var live int64
	for _, c := range h.counters {
		live += c.liveBytes
	}
	h.liveBytes = live
	rep.LiveBytes = live
	h.consingSinceGC = 0
	h.gcCount++
	rep.Duration = time.Since(start)
	h.gcTime += rep.Duration
	h.lastReport = rep

	if err := h.refillReserve(); err != nil {
		h.log.Warn("emergency reserve not refilled", "err", err)
	}

	h.log.Debug("gc",
		"cycle", rep.Cycle,
		"freed", rep.TotalFreed(),
		"live_bytes", rep.LiveBytes,
		"doomed", rep.FinalizersQueued,
		"conservative_hits", rep.Roots.Conservative,
		"duration", rep.Duration)

	if !h.opts.DeferFinalizers {
		h.RunFinalizers()
	}
	return rep, nil
}

// LastReport returns the report of the most recent collection, or nil.
func (h *Heap) LastReport() *Report { return h.lastReport }
