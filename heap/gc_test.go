package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
)

func TestCollect_UnreachableConsesReturnToFreeList(t *testing.T) {
	h := newTestHeap(t)

	const n = 1000
	for i := 0; i < n; i++ {
		mustCons(t, h, Fixnum(int64(i)), h.Nil())
	}
	require.Equal(t, int64(n), h.Stats().Kind(KindCons).Live)

	rep := mustCollect(t, h)
	require.Equal(t, n, rep.FreedOf(KindCons))
	require.Equal(t, n, h.conses.nfree)
	require.Equal(t, int64(0), h.Stats().Kind(KindCons).Live)
	require.Equal(t, n, h.Stats().Kind(KindCons).Free)

	// Every freed cell is on the list exactly once.
	seen := map[uint64]bool{}
	for a := h.conses.free; a != 0; a = h.word(a + h.conses.linkOffset()) {
		require.False(t, seen[a], "cell %#x listed twice", a)
		seen[a] = true
	}
	require.Len(t, seen, n)
	require.NoError(t, h.Verify())
}

func TestCollect_FreedCellsAreReused(t *testing.T) {
	h := newTestHeap(t)

	for i := 0; i < 500; i++ {
		mustCons(t, h, Fixnum(1), Fixnum(2))
	}
	mustCollect(t, h)
	blocks := h.conses.nblocks

	for i := 0; i < 500; i++ {
		mustCons(t, h, Fixnum(3), Fixnum(4))
	}
	require.Equal(t, blocks, h.conses.nblocks)
	require.Equal(t, 0, h.conses.nfree)
	require.NoError(t, h.Verify())
}

func TestCollect_EmptyCellBlocksStayWithPool(t *testing.T) {
	h := newTestHeap(t)

	const perBlock = format.CellBlockSize / format.ConsSize
	n := 3*perBlock + perBlock/2
	for i := 0; i < n; i++ {
		mustCons(t, h, Fixnum(int64(i)), h.Nil())
	}
	blocks := h.conses.nblocks
	require.Equal(t, 4, blocks)
	chunks := h.Stats().Chunks

	rep := mustCollect(t, h)
	require.Equal(t, n, rep.FreedOf(KindCons))
	require.Equal(t, blocks, h.conses.nblocks, "cell block returned to the system")
	require.Equal(t, n, h.conses.nfree)
	require.Equal(t, chunks, h.Stats().Chunks)
	require.NoError(t, h.Verify())

	// The freed cells satisfy the same volume again without growing.
	for i := 0; i < n; i++ {
		mustCons(t, h, Fixnum(int64(i)), h.Nil())
	}
	require.Equal(t, blocks, h.conses.nblocks)
	require.Zero(t, h.conses.nfree)
	require.NoError(t, h.Verify())
}

func TestCollect_ProtectedStructureSurvives(t *testing.T) {
	h := newTestHeap(t)

	var root Value
	f := h.Protect(&root)
	defer h.Unprotect(f)

	sym, err := h.MakeSymbol("payload")
	require.NoError(t, err)
	root, err = h.List(sym, mustString(t, h, "text"), Fixnum(9))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		mustCons(t, h, Fixnum(int64(i)), h.Nil()) // garbage
	}

	rep := mustCollect(t, h)
	require.Equal(t, 100, rep.FreedOf(KindCons))
	require.Zero(t, rep.FreedOf(KindSymbol))

	got, err := h.ListSlice(root)
	require.NoError(t, err)
	name, err := h.SymbolName(got[0])
	require.NoError(t, err)
	require.Equal(t, "payload", name)
	text, err := h.StringText(got[1])
	require.NoError(t, err)
	require.Equal(t, "text", text)
	require.NoError(t, h.Verify())
}

func TestCollect_DeepStructuresDoNotRecurse(t *testing.T) {
	h := newTestHeap(t)

	const depth = 200000
	var cdrChain, carChain Value
	f := h.Protect(&cdrChain, &carChain)
	defer h.Unprotect(f)

	cdrChain, carChain = h.Nil(), h.Nil()
	for i := 0; i < depth; i++ {
		var err error
		cdrChain, err = h.Cons(Fixnum(int64(i)), cdrChain)
		require.NoError(t, err)
		carChain, err = h.Cons(carChain, h.Nil())
		require.NoError(t, err)
	}
	require.NotZero(t, h.Stats().Collections, "threshold should have fired while building")

	rep := mustCollect(t, h)
	require.Zero(t, rep.FreedOf(KindCons))

	got, err := h.ListSlice(cdrChain)
	require.NoError(t, err)
	require.Len(t, got, depth)

	n := 0
	for v := carChain; v != h.Nil(); n++ {
		v, err = h.Car(v)
		require.NoError(t, err)
	}
	require.Equal(t, depth, n)
	require.NoError(t, h.Verify())
}

func TestCollect_MarksAreClearedBetweenCycles(t *testing.T) {
	h := newTestHeap(t)

	var keep Value
	f := h.Protect(&keep)
	defer h.Unprotect(f)
	keep, _ = h.List(Fixnum(1), mustString(t, h, "s"))
	v, err := h.Vector(keep, Fixnum(2))
	require.NoError(t, err)
	keep, err = h.Cons(v, keep)
	require.NoError(t, err)

	mustCollect(t, h)
	require.NoError(t, h.Verify())

	// Nothing changed, so a second cycle frees nothing and still finds
	// everything reachable.
	rep := mustCollect(t, h)
	require.Zero(t, rep.TotalFreed())
	require.NoError(t, h.Verify())

	keep = h.Nil()
	rep = mustCollect(t, h)
	require.Equal(t, 3, rep.FreedOf(KindCons))
	require.Equal(t, 1, rep.FreedOf(KindVector))
	require.Equal(t, 1, rep.FreedOf(KindString))
}

func TestStaticPro(t *testing.T) {
	h := newTestHeap(t)

	var slot Value
	h.StaticPro(&slot)
	slot = mustCons(t, h, Fixnum(1), Fixnum(2))
	mustCollect(t, h)
	require.Equal(t, KindCons, h.KindOf(slot))

	require.True(t, h.StaticUnpro(&slot))
	require.False(t, h.StaticUnpro(&slot))
	rep := mustCollect(t, h)
	require.Equal(t, 1, rep.FreedOf(KindCons))
}

func TestStaticPro_OverflowIsFatal(t *testing.T) {
	var fatalErr error
	h := newTestHeap(t, func(o *Options) {
		o.MaxStaticRoots = 4 // two are taken by the finalizer lists
		o.OnFatal = func(err error) { fatalErr = err }
	})

	var a, b, c Value
	h.StaticPro(&a)
	h.StaticPro(&b)
	requireFatal(t, ErrStaticRootsFull, func() { h.StaticPro(&c) })
	require.ErrorIs(t, fatalErr, ErrStaticRootsFull)
}

func TestUnprotect_PastStackIsFatal(t *testing.T) {
	var fatalErr error
	h := newTestHeap(t, func(o *Options) {
		o.OnFatal = func(err error) { fatalErr = err }
	})

	var a Value
	f := h.Protect(&a)
	h.Unprotect(f)
	requireFatal(t, ErrProtectUnderflow, func() { h.Unprotect(f + 1) })
	require.ErrorIs(t, fatalErr, ErrProtectUnderflow)
}

func TestInternedSymbolsAreRoots(t *testing.T) {
	h := newTestHeap(t)

	sym, err := h.Intern("answer")
	require.NoError(t, err)
	require.NoError(t, h.SetSymbolValue(sym, mustCons(t, h, Fixnum(42), h.Nil())))

	rep := mustCollect(t, h)
	require.Zero(t, rep.FreedOf(KindCons))
	require.Zero(t, rep.FreedOf(KindSymbol))

	again, err := h.Intern("answer")
	require.NoError(t, err)
	require.Equal(t, sym, again)
	val, err := h.SymbolValue(sym)
	require.NoError(t, err)
	car, err := h.Car(val)
	require.NoError(t, err)
	require.Equal(t, Fixnum(42), car)

	require.True(t, h.Unintern("answer"))
	rep = mustCollect(t, h)
	require.Equal(t, 1, rep.FreedOf(KindSymbol))
	require.Equal(t, 1, rep.FreedOf(KindCons))
}

func TestRootProvider(t *testing.T) {
	h := newTestHeap(t)

	held := mustCons(t, h, Fixnum(1), Fixnum(2))
	remove := h.AddRootProvider(RootProviderFunc(func(mark func(Value)) {
		mark(held)
	}))
	rep := mustCollect(t, h)
	require.Zero(t, rep.FreedOf(KindCons))
	require.Equal(t, 1, rep.Roots.Provided)

	remove()
	rep = mustCollect(t, h)
	require.Equal(t, 1, rep.FreedOf(KindCons))
}

func TestCollect_AllocationDuringCollectionIsFatal(t *testing.T) {
	h := newTestHeap(t)

	h.AddRootProvider(RootProviderFunc(func(mark func(Value)) {
		_, _ = h.Cons(Fixnum(1), Fixnum(2))
	}))
	requireFatal(t, ErrAllocDuringGC, func() { _, _ = h.Collect() })
}

func TestCollect_NestedCollectionIsFatal(t *testing.T) {
	h := newTestHeap(t)

	_, err := h.MakeUserPtr("res", func(any) { _, _ = h.Collect() })
	require.NoError(t, err)
	requireFatal(t, ErrRecursiveGC, func() { _, _ = h.Collect() })
}

func TestCollect_DanglingReferenceIsFatal(t *testing.T) {
	h := newTestHeap(t, func(o *Options) { o.CheckReferences = true })

	stale := mustCons(t, h, Fixnum(1), Fixnum(2))
	mustCollect(t, h)

	h.Protect(&stale)
	requireFatal(t, ErrDanglingRef, func() { _, _ = h.Collect() })
}

func TestCollect_DanglingLargeVectorIsFatal(t *testing.T) {
	h := newTestHeap(t)

	stale, err := h.MakeVector(2000, h.Nil())
	require.NoError(t, err)
	mustCollect(t, h)

	h.Protect(&stale)
	requireFatal(t, ErrDanglingRef, func() { _, _ = h.Collect() })
}

func TestCollect_ReportTracksCycles(t *testing.T) {
	h := newTestHeap(t)

	r1 := mustCollect(t, h)
	r2 := mustCollect(t, h)
	require.Equal(t, uint64(1), r1.Cycle)
	require.Equal(t, uint64(2), r2.Cycle)
	require.Same(t, r2, h.LastReport())
	require.Equal(t, uint64(2), h.Stats().Collections)
	require.Zero(t, h.ConsingSinceGC())
}

func TestClosedHeap(t *testing.T) {
	h := newTestHeap(t)
	require.NoError(t, h.Close())

	_, err := h.Cons(Fixnum(1), Fixnum(2))
	require.ErrorIs(t, err, ErrClosed)
	_, err = h.Collect()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, h.Verify(), ErrClosed)
}

func TestCollect_InProgressVisibleOnlyInside(t *testing.T) {
	h := newTestHeap(t)

	var during bool
	remove := h.AddRootProvider(RootProviderFunc(func(mark func(Value)) {
		during = h.InProgress()
	}))
	defer remove()

	require.False(t, h.InProgress())
	mustCollect(t, h)
	require.True(t, during)
	require.False(t, h.InProgress())
}
