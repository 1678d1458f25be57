package heap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/sysmem"
)

// newTestHeap creates a heap on Go-allocated memory and closes it when the
// test ends.
func newTestHeap(t testing.TB, mutate ...func(*Options)) *Heap {
	t.Helper()
	o := DefaultOptions()
	o.Allocator = sysmem.Slice{}
	for _, m := range mutate {
		m(&o)
	}
	h, err := New(&o)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, h.Close())
	})
	return h
}

func mustCons(t testing.TB, h *Heap, car, cdr Value) Value {
	t.Helper()
	v, err := h.Cons(car, cdr)
	require.NoError(t, err)
	return v
}

func mustString(t testing.TB, h *Heap, s string) Value {
	t.Helper()
	v, err := h.MakeString(s)
	require.NoError(t, err)
	return v
}

func mustCollect(t testing.TB, h *Heap) *Report {
	t.Helper()
	rep, err := h.Collect()
	require.NoError(t, err)
	require.NotNil(t, rep)
	return rep
}

// requireFatal runs fn and asserts it dies on the fatal path with target.
func requireFatal(t testing.TB, target error, fn func()) {
	t.Helper()
	var got any
	func() {
		defer func() { got = recover() }()
		fn()
	}()
	require.NotNil(t, got, "expected a fatal panic")
	fe, ok := got.(*FatalError)
	require.True(t, ok, "panic value %T is not *FatalError: %v", got, got)
	require.True(t, errors.Is(fe, target), "fatal error %v does not wrap %v", fe, target)
}

func counter() (SubrFunc, *int) {
	n := 0
	return func(h *Heap, args []Value) (Value, error) {
		n++
		return h.Nil(), nil
	}, &n
}
