package heap

import (
	"errors"
	"fmt"
)

// beginAlloc runs at the top of every allocating call. When enough has been
// allocated since the last collection it collects first, keeping args
// alive across it.
func (h *Heap) beginAlloc(args ...Value) error {
	if h.closed {
		return ErrClosed
	}
	if h.gcInProgress {
		h.fatal(ErrAllocDuringGC)
	}
	if !h.collectDue() {
		return nil
	}
	f := h.protectSlice(args)
	_, err := h.Collect()
	h.Unprotect(f)
	if err != nil && !errors.Is(err, ErrCollectionInhibited) && !errors.Is(err, ErrCollectionDeferred) {
		return err
	}
	return nil
}

// noteAlloc accounts a new object of kind k occupying nbytes.
func (h *Heap) noteAlloc(k Kind, nbytes int) {
	c := &h.counters[k]
	c.allocated++
	c.live++
	c.liveBytes += int64(nbytes)
	h.consingSinceGC += int64(nbytes)
}

// noteFree accounts a reclaimed object of kind k.
func (h *Heap) noteFree(k Kind, nbytes int) {
	h.counters[k].live--
	h.counters[k].liveBytes -= int64(nbytes)
}

// Threshold returns the number of bytes that must be allocated since the
// last collection before the next automatic one:
// max(ConsThreshold, ConsPercentage * live bytes).
func (h *Heap) Threshold() int64 {
	t := h.consThreshold
	if h.consPercentage > 0 {
		if p := int64(h.consPercentage * float64(h.liveBytes)); p > t {
			t = p
		}
	}
	return t
}

func (h *Heap) collectDue() bool {
	return h.consingSinceGC > h.Threshold() && h.inhibit == 0 && !h.runningFinalizers
}

// MaybeCollect collects if the allocation threshold has been crossed. It
// returns a nil report when no collection ran.
func (h *Heap) MaybeCollect() (*Report, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if !h.collectDue() {
		return nil, nil
	}
	return h.Collect()
}

// ConsingSinceGC returns the bytes allocated since the last collection.
func (h *Heap) ConsingSinceGC() int64 { return h.consingSinceGC }

// SetConsThreshold changes the minimum allocation volume between automatic
// collections.
func (h *Heap) SetConsThreshold(n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative cons threshold %d", ErrBadOptions, n)
	}
	h.consThreshold = n
	return nil
}

// SetConsPercentage changes the live-heap fraction between automatic
// collections. Zero or negative disables the proportional term.
func (h *Heap) SetConsPercentage(p float64) {
	h.consPercentage = p
}

// InhibitCollection suspends automatic and explicit collections until the
// returned function is called. Calls nest.
func (h *Heap) InhibitCollection() (release func()) {
	h.inhibit++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		h.inhibit--
	}
}
