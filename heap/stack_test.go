package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStack_PushPopReset(t *testing.T) {
	h := newTestHeap(t, func(o *Options) { o.StackSize = 32 })
	s := h.Stack()
	require.Equal(t, 32, s.Cap())

	require.NoError(t, s.Push(Fixnum(1)))
	mark := s.SP()
	require.NoError(t, s.Push(Fixnum(2)))
	require.NoError(t, s.PushBytes([]byte{1, 2, 3}))
	require.NoError(t, s.Push(Fixnum(3)))
	require.ErrorIs(t, s.Push(Fixnum(4)), ErrStackOverflow)

	require.NoError(t, s.Reset(mark))
	require.Equal(t, 8, s.SP())
	v, err := s.Get(0)
	require.NoError(t, err)
	require.Equal(t, Fixnum(1), v)
	require.NoError(t, s.Set(0, Fixnum(5)))

	v, err = s.Pop()
	require.NoError(t, err)
	require.Equal(t, Fixnum(5), v)
	_, err = s.Pop()
	require.ErrorIs(t, err, ErrStackUnderflow)
	require.ErrorIs(t, s.Reset(4), ErrStackUnderflow)
	_, err = s.Get(0)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestConservative_TaggedValueOnStackSurvives(t *testing.T) {
	h := newTestHeap(t)

	v := mustCons(t, h, Fixnum(1), mustString(t, h, "kept"))
	require.NoError(t, h.Stack().Push(v))

	rep := mustCollect(t, h)
	require.Equal(t, 1, rep.Roots.Conservative)
	require.Equal(t, KindCons, h.KindOf(v))
	cdr, err := h.Cdr(v)
	require.NoError(t, err)
	text, err := h.StringText(cdr)
	require.NoError(t, err)
	require.Equal(t, "kept", text)
}

func TestConservative_RawAddressSurvives(t *testing.T) {
	h := newTestHeap(t)

	f, err := h.MakeFloat(3.25)
	require.NoError(t, err)
	vec, err := h.MakeVector(4, f)
	require.NoError(t, err)
	require.NoError(t, h.Stack().Push(Value(vec.addr())))

	mustCollect(t, h)
	require.Equal(t, KindVector, h.KindOf(vec))
	got, err := h.FloatValue(f)
	require.NoError(t, err)
	require.Equal(t, 3.25, got)
}

func TestConservative_InteriorPointerDoesNotRetain(t *testing.T) {
	h := newTestHeap(t)

	c := mustCons(t, h, Fixnum(1), Fixnum(2))
	require.NoError(t, h.Stack().Push(Value(c.addr()+8)))

	rep := mustCollect(t, h)
	require.Equal(t, 1, rep.FreedOf(KindCons))
	require.Equal(t, KindInvalid, h.KindOf(c))
}

func TestConservative_MismatchedTagDoesNotRetain(t *testing.T) {
	h := newTestHeap(t)

	c := mustCons(t, h, Fixnum(1), Fixnum(2))
	require.NoError(t, h.Stack().Push(makeRef(c.addr(), TagFloat)))

	mustCollect(t, h)
	require.Equal(t, KindInvalid, h.KindOf(c))
}

func TestConservative_FreedCellIsNotResurrected(t *testing.T) {
	h := newTestHeap(t)

	c := mustCons(t, h, Fixnum(1), Fixnum(2))
	mustCollect(t, h)
	require.Equal(t, KindInvalid, h.KindOf(c))

	// A stale word naming a free cell must not mark it.
	require.NoError(t, h.Stack().Push(c))
	rep := mustCollect(t, h)
	require.Zero(t, rep.Roots.Conservative)
	require.NoError(t, h.Verify())
}

func TestConservative_VectorBlockNeedsObjectStart(t *testing.T) {
	h := newTestHeap(t)

	v, err := h.MakeVector(3, h.Nil())
	require.NoError(t, err)
	require.NoError(t, h.Stack().Push(makeRef(v.addr()+16, TagVector)))

	mustCollect(t, h)
	require.Equal(t, KindInvalid, h.KindOf(v))
}

func TestConservative_MisalignedValues(t *testing.T) {
	tests := []struct {
		name      string
		alignment int
		survives  bool
	}{
		{"word-aligned scan misses it", 8, false},
		{"byte-aligned scan finds it", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHeap(t, func(o *Options) { o.ValueAlignment = tt.alignment })

			c := mustCons(t, h, Fixnum(7), Fixnum(8))
			require.NoError(t, h.Stack().PushBytes([]byte{1, 2, 3}))
			require.NoError(t, h.Stack().Push(c))

			mustCollect(t, h)
			if tt.survives {
				require.Equal(t, KindCons, h.KindOf(c))
			} else {
				require.Equal(t, KindInvalid, h.KindOf(c))
			}
		})
	}
}

func TestConservative_ResetStackReleases(t *testing.T) {
	h := newTestHeap(t)

	base := h.Stack().SP()
	c := mustCons(t, h, Fixnum(1), Fixnum(2))
	require.NoError(t, h.Stack().Push(c))
	mustCollect(t, h)
	require.Equal(t, KindCons, h.KindOf(c))

	require.NoError(t, h.Stack().Reset(base))
	mustCollect(t, h)
	require.Equal(t, KindInvalid, h.KindOf(c))
}
