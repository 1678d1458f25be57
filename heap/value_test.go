package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixnum_RoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, -12345, MaxFixnum, MinFixnum} {
		v := Fixnum(n)
		require.True(t, v.IsFixnum())
		require.Equal(t, TagFixnum, v.Tag())
		require.Equal(t, n, v.Int(), "n=%d", n)
	}
}

func TestFixnumInRange(t *testing.T) {
	require.True(t, FixnumInRange(MaxFixnum))
	require.True(t, FixnumInRange(MinFixnum))
	require.False(t, FixnumInRange(MaxFixnum+1))
	require.False(t, FixnumInRange(MinFixnum-1))
}

func TestValue_String(t *testing.T) {
	require.Equal(t, "-7", Fixnum(-7).String())
	require.Equal(t, "#<cons 0x100000010>", makeRef(0x100000010, TagCons).String())
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "cons", KindCons.String())
	require.Equal(t, "user-ptr", KindUserPtr.String())
	require.Equal(t, "invalid", KindInvalid.String())
	require.Equal(t, "vectorlike", TagVector.String())
}

func TestKindOf(t *testing.T) {
	h := newTestHeap(t)

	c := mustCons(t, h, Fixnum(1), Fixnum(2))
	f, err := h.MakeFloat(1.5)
	require.NoError(t, err)
	s := mustString(t, h, "abc")
	sym, err := h.MakeSymbol("sym")
	require.NoError(t, err)
	vec, err := h.MakeVector(2, h.Nil())
	require.NoError(t, err)
	rec, err := h.Record(sym, Fixnum(1))
	require.NoError(t, err)
	up, err := h.MakeUserPtr("x", nil)
	require.NoError(t, err)
	fn, _ := counter()
	subr, err := h.MakeSubr("f", fn)
	require.NoError(t, err)
	fin, err := h.MakeFinalizer(c, subr)
	require.NoError(t, err)

	require.Equal(t, KindFixnum, h.KindOf(Fixnum(3)))
	require.Equal(t, KindCons, h.KindOf(c))
	require.Equal(t, KindFloat, h.KindOf(f))
	require.Equal(t, KindString, h.KindOf(s))
	require.Equal(t, KindSymbol, h.KindOf(sym))
	require.Equal(t, KindSymbol, h.KindOf(h.Nil()))
	require.Equal(t, KindVector, h.KindOf(vec))
	require.Equal(t, KindRecord, h.KindOf(rec))
	require.Equal(t, KindUserPtr, h.KindOf(up))
	require.Equal(t, KindSubr, h.KindOf(subr))
	require.Equal(t, KindFinalizer, h.KindOf(fin))

	require.Equal(t, KindInvalid, h.KindOf(makeRef(0x7700000000, TagCons)))
	require.Equal(t, KindInvalid, h.KindOf(h.deadV))
}
