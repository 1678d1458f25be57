package heap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizer_RunsOnceForUnreachableTarget(t *testing.T) {
	h := newTestHeap(t, func(o *Options) { o.DeferFinalizers = true })

	var seen []string
	fn, err := h.MakeSubr("note", func(h *Heap, args []Value) (Value, error) {
		s, err := h.StringText(args[0])
		if err != nil {
			return 0, err
		}
		seen = append(seen, s)
		return h.Nil(), nil
	})
	require.NoError(t, err)

	rec, err := h.MakeFinalizer(mustString(t, h, "x"), fn)
	require.NoError(t, err)
	require.Equal(t, KindFinalizer, h.KindOf(rec))
	require.Equal(t, 1, h.Stats().FinalizersActive)

	rep := mustCollect(t, h)
	require.Equal(t, 1, rep.FinalizersQueued)
	require.Zero(t, rep.FreedOf(KindString), "a doomed target lives until its finalizer runs")
	require.Equal(t, 1, h.PendingFinalizers())
	require.Empty(t, seen)

	// Still queued: another collection neither frees nor re-queues it.
	rep = mustCollect(t, h)
	require.Zero(t, rep.FinalizersQueued)
	require.Zero(t, rep.FreedOf(KindString))
	require.Equal(t, 1, h.PendingFinalizers())

	require.Equal(t, 1, h.RunFinalizers())
	require.Equal(t, []string{"x"}, seen)
	require.Zero(t, h.PendingFinalizers())
	require.Zero(t, h.RunFinalizers())

	rep = mustCollect(t, h)
	require.Equal(t, 1, rep.FreedOf(KindString))
	require.Equal(t, 1, rep.FreedOf(KindFinalizer))
	require.Equal(t, []string{"x"}, seen)

	st := h.Stats()
	require.Equal(t, uint64(1), st.FinalizersRun)
	require.Zero(t, st.FinalizersActive)
	require.NoError(t, h.Verify())
}

func TestFinalizer_TargetClearedAfterRun(t *testing.T) {
	h := newTestHeap(t)

	fn, n := counter()
	f, err := h.MakeSubr("count", fn)
	require.NoError(t, err)
	var rec Value
	fr := h.Protect(&rec)
	defer h.Unprotect(fr)
	rec, err = h.MakeFinalizer(mustCons(t, h, Fixnum(1), Fixnum(2)), f)
	require.NoError(t, err)

	mustCollect(t, h)
	require.Equal(t, 1, *n)
	target, err := h.FinalizerTarget(rec)
	require.NoError(t, err)
	require.Equal(t, h.Nil(), target)

	// A protected record does not fire again.
	mustCollect(t, h)
	require.Equal(t, 1, *n)
}

func TestFinalizer_CallbackDoesNotKeepTargetAlive(t *testing.T) {
	var got []Value
	h := newTestHeap(t, func(o *Options) {
		o.Funcall = func(h *Heap, fn Value, args []Value) (Value, error) {
			got = append(got, fn, args[0])
			return h.Nil(), nil
		}
	})

	x := mustString(t, h, "captured")
	fn := mustCons(t, h, Fixnum(0), x)
	_, err := h.MakeFinalizer(x, fn)
	require.NoError(t, err)

	rep := mustCollect(t, h)
	require.Equal(t, 1, rep.FinalizersQueued)
	require.Len(t, got, 2)
	cdr, err := h.Cdr(got[0])
	require.NoError(t, err)
	require.Equal(t, got[1], cdr)
	require.Equal(t, x, got[1])
}

func TestFinalizer_ReachableOrImmediateTargets(t *testing.T) {
	h := newTestHeap(t)

	fn, n := counter()
	f, err := h.MakeSubr("count", fn)
	require.NoError(t, err)
	var keep Value
	fr := h.Protect(&keep)
	defer h.Unprotect(fr)
	keep = mustString(t, h, "kept")

	_, err = h.MakeFinalizer(keep, f)
	require.NoError(t, err)
	_, err = h.MakeFinalizer(Fixnum(3), f)
	require.NoError(t, err)
	pure, err := h.Purecopy(mustString(t, h, "forever"))
	require.NoError(t, err)
	_, err = h.MakeFinalizer(pure, f)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rep := mustCollect(t, h)
		require.Zero(t, rep.FinalizersQueued)
	}
	require.Zero(t, *n)
	require.Equal(t, 3, h.Stats().FinalizersActive)
}

func TestFinalizer_FailuresAreContained(t *testing.T) {
	h := newTestHeap(t)

	bad, err := h.MakeSubr("bad", func(h *Heap, args []Value) (Value, error) {
		return 0, errors.New("refused")
	})
	require.NoError(t, err)
	worse, err := h.MakeSubr("worse", func(h *Heap, args []Value) (Value, error) {
		panic("finalizer blew up")
	})
	require.NoError(t, err)
	good, n := counter()
	ok, err := h.MakeSubr("good", good)
	require.NoError(t, err)

	for _, fn := range []Value{bad, worse, ok} {
		_, err := h.MakeFinalizer(mustCons(t, h, Fixnum(0), Fixnum(0)), fn)
		require.NoError(t, err)
	}
	// Not callable at all.
	_, err = h.MakeFinalizer(mustCons(t, h, Fixnum(0), Fixnum(0)), Fixnum(7))
	require.NoError(t, err)

	rep := mustCollect(t, h)
	require.Equal(t, 4, rep.FinalizersQueued)
	require.Equal(t, 1, *n)

	st := h.Stats()
	require.Equal(t, uint64(4), st.FinalizersRun)
	require.Equal(t, uint64(3), st.FinalizerErrors)
	require.Zero(t, st.FinalizersPending)
}

func TestFinalizer_CollectFromCallbackIsDeferred(t *testing.T) {
	h := newTestHeap(t)

	var collectErr error
	fn, err := h.MakeSubr("gc", func(h *Heap, args []Value) (Value, error) {
		_, collectErr = h.Collect()
		return h.Nil(), nil
	})
	require.NoError(t, err)
	_, err = h.MakeFinalizer(mustCons(t, h, Fixnum(1), Fixnum(1)), fn)
	require.NoError(t, err)

	mustCollect(t, h)
	require.ErrorIs(t, collectErr, ErrCollectionDeferred)
	require.Equal(t, uint64(2), h.Stats().Collections)
	require.Equal(t, uint64(2), h.LastReport().Cycle)
}

func TestFinalizer_AllocationInsideCallbackDoesNotCollect(t *testing.T) {
	h := newTestHeap(t)

	fn, err := h.MakeSubr("alloc", func(h *Heap, args []Value) (Value, error) {
		return h.List(Fixnum(1), Fixnum(2), Fixnum(3), Fixnum(4))
	})
	require.NoError(t, err)
	_, err = h.MakeFinalizer(mustCons(t, h, Fixnum(1), Fixnum(1)), fn)
	require.NoError(t, err)

	require.NoError(t, h.SetConsThreshold(0))
	h.SetConsPercentage(0)
	mustCollect(t, h)

	st := h.Stats()
	require.Equal(t, uint64(1), st.Collections)
	require.Zero(t, st.FinalizerErrors)
	require.Positive(t, h.ConsingSinceGC())
}
