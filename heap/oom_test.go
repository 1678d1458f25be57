package heap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// bootstrapBytes is what New draws from the system with PureSize 4096:
// reserve, pure arena and the vector block holding the finalizer lists.
const bootstrapBytes = DefaultReserveSize + 4096 + format.VectorBlockSize

func TestOOM_ReserveCarriesHeapThroughExhaustion(t *testing.T) {
	// Large vectors get chunks of their own, and those go back to the
	// system when swept. The budget fits two beyond bootstrap; the reserve
	// covers two more.
	large := format.VectorBytes(1000)
	lim := sysmem.NewLimited(sysmem.Slice{}, int64(bootstrapBytes+2*large))
	h := newTestHeap(t, func(o *Options) {
		o.Allocator = lim
		o.PureSize = 4096
	})
	require.True(t, h.Stats().ReserveHeld)

	var err error
	allocated := 0
	for ; allocated < 100; allocated++ {
		if _, err = h.MakeVector(1000, Fixnum(int64(allocated))); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Equal(t, 4, allocated)

	st := h.Stats()
	require.True(t, st.MemoryFull)
	require.True(t, h.MemoryFull())
	require.False(t, st.ReserveHeld)
	require.Equal(t, uint64(1), st.OutOfMemories)

	// The vectors were garbage; a collection returns their chunks and
	// refills the reserve.
	rep := mustCollect(t, h)
	require.Equal(t, allocated, rep.FreedOf(KindVector))
	st = h.Stats()
	require.False(t, st.MemoryFull)
	require.True(t, st.ReserveHeld)
	require.Zero(t, st.LargeVectors)

	v, err := h.MakeVector(1000, Fixnum(9))
	require.NoError(t, err)
	got, err := h.Aref(v, 999)
	require.NoError(t, err)
	require.Equal(t, Fixnum(9), got)
	require.False(t, h.MemoryFull())
	require.NoError(t, h.Verify())
}

func TestOOM_NewFails(t *testing.T) {
	lim := sysmem.NewLimited(sysmem.Slice{}, 0)
	lim.FailNext(1)
	o := DefaultOptions()
	o.Allocator = lim
	_, err := New(&o)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.ErrorIs(t, err, sysmem.ErrExhausted)
}

// brokenFree fails every Free while broken is set.
type brokenFree struct {
	sysmem.Slice
	broken bool
}

func (b *brokenFree) Free(mem []byte) error {
	if b.broken {
		return errors.New("munmap refused")
	}
	return nil
}

func TestOOM_ReserveReleaseFailureIsFatal(t *testing.T) {
	bf := &brokenFree{}
	lim := sysmem.NewLimited(bf, bootstrapBytes)
	var fatalErr error
	h := newTestHeap(t, func(o *Options) {
		o.Allocator = lim
		o.PureSize = 4096
		o.OnFatal = func(err error) { fatalErr = err }
	})
	// Runs before the heap's own cleanup closes it.
	t.Cleanup(func() { bf.broken = false })

	bf.broken = true
	requireFatal(t, ErrReserveRelease, func() {
		_, _ = h.MakeFloat(1)
	})
	require.ErrorIs(t, fatalErr, ErrReserveRelease)
}

func TestOptions_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"negative threshold", func(o *Options) { o.ConsThreshold = -1 }},
		{"tiny pure arena", func(o *Options) { o.PureSize = 100 }},
		{"odd alignment", func(o *Options) { o.ValueAlignment = 3 }},
		{"negative stack", func(o *Options) { o.StackSize = -8 }},
		{"negative reserve", func(o *Options) { o.ReserveSize = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultOptions()
			o.Allocator = sysmem.Slice{}
			tc.mutate(&o)
			_, err := New(&o)
			require.ErrorIs(t, err, ErrBadOptions)
		})
	}

	h, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}
