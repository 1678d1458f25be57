package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmap_SetClearTest(t *testing.T) {
	b := New(130)
	require.Len(t, b, 3)

	for _, i := range []int{0, 63, 64, 129} {
		require.False(t, b.Test(i))
		b.Set(i)
		require.True(t, b.Test(i))
	}
	require.Equal(t, 4, b.Count())

	b.Clear(63)
	require.False(t, b.Test(63))
	require.True(t, b.Test(64))
	require.Equal(t, 3, b.Count())

	b.ClearAll()
	require.Zero(t, b.Count())
}

func TestBitmap_SetIsIdempotent(t *testing.T) {
	b := New(8)
	b.Set(3)
	b.Set(3)
	require.Equal(t, 1, b.Count())
}
