package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPurecopy_List(t *testing.T) {
	h := newTestHeap(t)

	s := mustString(t, h, "label")
	l, err := h.List(Fixnum(1), s, Fixnum(3))
	require.NoError(t, err)

	p, err := h.Purecopy(l)
	require.NoError(t, err)
	require.True(t, h.IsPure(p))
	require.NotEqual(t, l, p)

	items, err := h.ListSlice(p)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, Fixnum(1), items[0])
	require.True(t, h.IsPure(items[1]))
	text, err := h.StringText(items[1])
	require.NoError(t, err)
	require.Equal(t, "label", text)

	// Already pure values come back unchanged.
	again, err := h.Purecopy(p)
	require.NoError(t, err)
	require.Equal(t, p, again)
}

func TestPurecopy_Scalars(t *testing.T) {
	h := newTestHeap(t)

	f, err := h.MakeFloat(2.5)
	require.NoError(t, err)
	pf, err := h.Purecopy(f)
	require.NoError(t, err)
	require.True(t, h.IsPure(pf))
	got, err := h.FloatValue(pf)
	require.NoError(t, err)
	require.Equal(t, 2.5, got)

	fx, err := h.Purecopy(Fixnum(9))
	require.NoError(t, err)
	require.Equal(t, Fixnum(9), fx)
	require.False(t, h.IsPure(Fixnum(9)))

	mb := mustString(t, h, "héllo")
	pmb, err := h.Purecopy(mb)
	require.NoError(t, err)
	multi, err := h.StringMultibyte(pmb)
	require.NoError(t, err)
	require.True(t, multi)
	n, err := h.StringLen(pmb)
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestPurecopy_Dedup(t *testing.T) {
	h := newTestHeap(t)

	a, err := h.Purecopy(mustString(t, h, "shared"))
	require.NoError(t, err)
	b, err := h.Purecopy(mustString(t, h, "shared"))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Positive(t, h.Stats().PureDedupHits)

	l1, err := h.List(Fixnum(1), Fixnum(2))
	require.NoError(t, err)
	p1, err := h.Purecopy(l1)
	require.NoError(t, err)
	l2, err := h.List(Fixnum(1), Fixnum(2))
	require.NoError(t, err)
	p2, err := h.Purecopy(l2)
	require.NoError(t, err)
	require.Equal(t, p1, p2)

	h.SetPureDedup(false)
	c, err := h.Purecopy(mustString(t, h, "shared"))
	require.NoError(t, err)
	require.NotEqual(t, a, c)
	require.True(t, h.IsPure(c))
}

func TestPurecopy_Immutable(t *testing.T) {
	h := newTestHeap(t)

	p, err := h.Purecopy(mustCons(t, h, Fixnum(1), Fixnum(2)))
	require.NoError(t, err)
	require.ErrorIs(t, h.SetCar(p, Fixnum(3)), ErrPureMutation)
	require.ErrorIs(t, h.SetCdr(p, Fixnum(3)), ErrPureMutation)

	require.ErrorIs(t, h.SetSymbolValue(h.T(), h.Nil()), ErrPureMutation)

	vec, err := h.Vector(Fixnum(1), Fixnum(2))
	require.NoError(t, err)
	pv, err := h.Purecopy(vec)
	require.NoError(t, err)
	require.ErrorIs(t, h.Aset(pv, 0, Fixnum(5)), ErrPureMutation)
	x, err := h.Aref(pv, 0)
	require.NoError(t, err)
	require.Equal(t, Fixnum(1), x)
}

func TestPurecopy_Symbols(t *testing.T) {
	h := newTestHeap(t)

	interned, err := h.Intern("foo")
	require.NoError(t, err)
	got, err := h.Purecopy(interned)
	require.NoError(t, err)
	require.Equal(t, interned, got)

	loose, err := h.MakeSymbol("loose")
	require.NoError(t, err)
	_, err = h.Purecopy(loose)
	require.ErrorIs(t, err, ErrNotPurifiable)

	fn, _ := counter()
	subr, err := h.MakeSubr("f", fn)
	require.NoError(t, err)
	_, err = h.Purecopy(subr)
	require.ErrorIs(t, err, ErrNotPurifiable)

	// A bad element anywhere in the list fails the whole copy.
	l, err := h.List(Fixnum(1), loose)
	require.NoError(t, err)
	_, err = h.Purecopy(l)
	require.ErrorIs(t, err, ErrNotPurifiable)
}

func TestPurecopy_VectorAndRecord(t *testing.T) {
	h := newTestHeap(t)

	typ, err := h.Intern("pair")
	require.NoError(t, err)
	r, err := h.Record(typ, mustString(t, h, "left"), Fixnum(2))
	require.NoError(t, err)
	pr, err := h.Purecopy(r)
	require.NoError(t, err)
	require.True(t, h.IsPure(pr))
	require.Equal(t, KindRecord, h.KindOf(pr))
	rt, err := h.RecordType(pr)
	require.NoError(t, err)
	require.Equal(t, typ, rt)

	left, err := h.Aref(pr, 1)
	require.NoError(t, err)
	require.True(t, h.IsPure(left))
}

func TestPurecopy_CircularList(t *testing.T) {
	h := newTestHeap(t)

	var a, b Value
	f := h.Protect(&a, &b)
	defer h.Unprotect(f)
	a = mustCons(t, h, Fixnum(1), h.Nil())
	b = mustCons(t, h, Fixnum(2), a)
	require.NoError(t, h.SetCdr(a, b))

	_, err := h.Purecopy(a)
	require.ErrorIs(t, err, ErrCircular)
}

func TestPurecopy_SurvivesCollection(t *testing.T) {
	h := newTestHeap(t)

	p, err := h.Purecopy(mustString(t, h, "constant"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		mustCollect(t, h)
	}
	text, err := h.StringText(p)
	require.NoError(t, err)
	require.Equal(t, "constant", text)
	require.True(t, h.IsLive(p))
	require.NoError(t, h.Verify())
}

func TestPurecopy_OverflowFallsBackToHeap(t *testing.T) {
	h := newTestHeap(t, func(o *Options) { o.PureSize = 512 })

	big := make([]byte, 400)
	for i := range big {
		big[i] = 'x'
	}
	s, err := h.Purecopy(mustString(t, h, string(big)))
	require.NoError(t, err)
	require.False(t, h.IsPure(s))
	text, err := h.StringText(s)
	require.NoError(t, err)
	require.Equal(t, string(big), text)

	st := h.Stats()
	require.True(t, st.PureOverflow)
	require.Positive(t, st.PureOverflowBytes)

	// Overflow is sticky even for copies that would still fit.
	f, err := h.MakeFloat(1)
	require.NoError(t, err)
	pf, err := h.Purecopy(f)
	require.NoError(t, err)
	require.False(t, h.IsPure(pf))
}
