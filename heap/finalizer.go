package heap

import (
	"fmt"
)

// Finalizer records are vector-like objects with one traced slot (the
// callback) and three raw words: the target, which is deliberately not
// traced, and the prev/next links of a circular list. Every record sits on
// exactly one of two lists, each headed by a sentinel record: the active
// list, or the doomed list of records whose target became unreachable.
const (
	finTarget = 0
	finPrev   = 1
	finNext   = 2
	finRaw    = 3
)

func (h *Heap) finField(rec uint64, j int) uint64 {
	return h.word(rawAddr(rec, h.word(rec), j))
}

func (h *Heap) setFinField(rec uint64, j int, w uint64) {
	h.setWord(rawAddr(rec, h.word(rec), j), w)
}

func (h *Heap) finUnlink(rec uint64) {
	prev, next := h.finField(rec, finPrev), h.finField(rec, finNext)
	h.setFinField(prev, finNext, next)
	h.setFinField(next, finPrev, prev)
	h.setFinField(rec, finPrev, rec)
	h.setFinField(rec, finNext, rec)
}

// finAppend links rec in just before head, i.e. at the tail.
func (h *Heap) finAppend(head, rec uint64) {
	prev := h.finField(head, finPrev)
	h.setFinField(rec, finPrev, prev)
	h.setFinField(rec, finNext, head)
	h.setFinField(prev, finNext, rec)
	h.setFinField(head, finPrev, rec)
}

func (h *Heap) newFinalizerRecord(target, fn Value) (uint64, error) {
	addr, err := h.allocVectorLike(KindFinalizer, pvecFinalizer, 1, finRaw, target, fn)
	if err != nil {
		return 0, err
	}
	h.setWord(slotAddr(addr, 0), uint64(fn))
	h.setFinField(addr, finTarget, uint64(target))
	h.setFinField(addr, finPrev, addr)
	h.setFinField(addr, finNext, addr)
	return addr, nil
}

func (h *Heap) initFinalizers() error {
	active, err := h.newFinalizerRecord(h.nilV, h.nilV)
	if err != nil {
		return err
	}
	h.finalizers = makeRef(active, TagVector)
	h.StaticPro(&h.finalizers)

	doomed, err := h.newFinalizerRecord(h.nilV, h.nilV)
	if err != nil {
		return err
	}
	h.doomed = makeRef(doomed, TagVector)
	h.StaticPro(&h.doomed)
	return nil
}

// MakeFinalizer arranges for fn to be called with target once target
// becomes unreachable. The registration holds target weakly and stays in
// place until it fires. Immediate and pure targets are never unreachable,
// so their finalizers never fire.
func (h *Heap) MakeFinalizer(target, fn Value) (Value, error) {
	rec, err := h.newFinalizerRecord(target, fn)
	if err != nil {
		return 0, err
	}
	h.finAppend(h.finalizers.addr(), rec)
	return makeRef(rec, TagVector), nil
}

// FinalizerTarget returns the object a finalizer watches, or nil once the
// finalizer has run.
func (h *Heap) FinalizerTarget(v Value) (Value, error) {
	addr, _, err := h.vectorAddr("finalizer-target", v, KindFinalizer)
	if err != nil {
		return 0, err
	}
	return Value(h.finField(addr, finTarget)), nil
}

// queueDoomedFinalizers moves every active record whose target is unmarked
// onto the doomed list. Runs after root marking and before the finalizer
// lists themselves are marked.
func (h *Heap) queueDoomedFinalizers() (n int) {
	head := h.finalizers.addr()
	doomed := h.doomed.addr()
	for rec := h.finField(head, finNext); rec != head; {
		next := h.finField(rec, finNext)
		if !h.marked(Value(h.finField(rec, finTarget))) {
			h.finUnlink(rec)
			h.finAppend(doomed, rec)
			n++
		}
		rec = next
	}
	return n
}

// markFinalizers keeps every record on either list alive, along with its
// callback. Doomed targets are kept too, so they survive until their
// callback has seen them.
func (h *Heap) markFinalizers() {
	head := h.finalizers.addr()
	for rec := h.finField(head, finNext); rec != head; rec = h.finField(rec, finNext) {
		h.markObject(makeRef(rec, TagVector))
	}
	doomed := h.doomed.addr()
	for rec := h.finField(doomed, finNext); rec != doomed; rec = h.finField(rec, finNext) {
		h.markObject(makeRef(rec, TagVector))
		h.markObject(Value(h.finField(rec, finTarget)))
	}
	h.drainMarkStack()
}

func (h *Heap) countFinalizers(head Value) (n int) {
	a := head.addr()
	for rec := h.finField(a, finNext); rec != a; rec = h.finField(rec, finNext) {
		n++
	}
	return n
}

// PendingFinalizers returns the number of doomed finalizers not yet run.
func (h *Heap) PendingFinalizers() int { return h.countFinalizers(h.doomed) }

// RunFinalizers calls the callback of every doomed finalizer, in the order
// they were doomed. Each record is unlinked and cleared before its callback
// runs, so it fires at most once. A failing callback is logged and does not
// stop the others. Collections requested meanwhile run once the queue is
// empty.
func (h *Heap) RunFinalizers() (ran int) {
	if h.closed || h.runningFinalizers {
		return 0
	}
	if h.gcInProgress {
		h.fatal(fmt.Errorf("heap: finalizers run during collection"))
	}
	h.runningFinalizers = true
	doomed := h.doomed.addr()
	for {
		rec := h.finField(doomed, finNext)
		if rec == doomed {
			break
		}
		h.finUnlink(rec)
		fn := Value(h.word(slotAddr(rec, 0)))
		target := Value(h.finField(rec, finTarget))
		h.setWord(slotAddr(rec, 0), uint64(h.nilV))
		h.setFinField(rec, finTarget, uint64(h.nilV))

		// Nothing else references target now; keep it alive while the
		// callback runs.
		f := h.Protect(&fn, &target)
		h.callFinalizer(fn, target)
		h.Unprotect(f)
		ran++
	}
	h.runningFinalizers = false
	h.finalizersRun += uint64(ran)

	if h.pendingCollect {
		h.pendingCollect = false
		if _, err := h.Collect(); err != nil {
			h.log.Debug("deferred collection skipped", "err", err)
		}
	}
	return ran
}

func (h *Heap) callFinalizer(fn, target Value) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*FatalError); ok {
				panic(r)
			}
			h.finalizerErrors++
			h.log.Warn("finalizer panicked", "fn", fn, "target", target, "panic", r)
		}
	}()
	if _, err := h.Funcall(fn, target); err != nil {
		h.finalizerErrors++
		h.log.Warn("finalizer failed", "fn", fn, "target", target, "err", err)
	}
}

// Funcall calls fn with args. Subrs run directly; anything else goes to
// Options.Funcall.
func (h *Heap) Funcall(fn Value, args ...Value) (Value, error) {
	if h.KindOf(fn) == KindSubr {
		addr := fn.addr()
		e := h.subrs[h.word(rawAddr(addr, h.word(addr), 0))]
		return e.fn(h, args)
	}
	if h.opts.Funcall != nil {
		return h.opts.Funcall(h, fn, args)
	}
	return 0, fmt.Errorf("%w: %s", ErrNotCallable, fn)
}
