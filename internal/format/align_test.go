package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignWord(t *testing.T) {
	cases := map[int]int{0: 0, 1: 8, 7: 8, 8: 8, 9: 16, 16: 16, 17: 24}
	for in, want := range cases {
		require.Equal(t, want, AlignWord(in), "AlignWord(%d)", in)
	}
}

func TestAlignTo(t *testing.T) {
	require.Equal(t, 4096, AlignTo(1, 4096))
	require.Equal(t, 4096, AlignTo(4096, 4096))
	require.Equal(t, 8192, AlignTo(4097, 4096))
}

func TestVectorBytes(t *testing.T) {
	require.Equal(t, MinVectorBytes, VectorBytes(0))
	require.Equal(t, 16, VectorBytes(1))
	require.Equal(t, 24, VectorBytes(2))
}

func TestSdataBytes(t *testing.T) {
	require.Equal(t, 16, SdataBytes(0))
	require.Equal(t, 24, SdataBytes(1))
	require.Equal(t, 24, SdataBytes(8))
	require.Equal(t, 32, SdataBytes(9))
}

func TestAddrRoundTrip(t *testing.T) {
	a := Addr(7, 0x1238)
	require.Equal(t, uint32(7), ChunkOf(a))
	require.Equal(t, 0x1238, OffsetOf(a))
	require.True(t, IsWordAligned(a))
	require.False(t, IsWordAligned(a+4))
}

func TestWordEncoding(t *testing.T) {
	b := make([]byte, 32)
	PutWord(b, 8, 0x0102030405060708)
	require.Equal(t, byte(0x08), b[8])
	require.Equal(t, uint64(0x0102030405060708), ReadWord(b, 8))

	PutI64(b, 16, -1)
	require.Equal(t, int64(-1), ReadI64(b, 16))
}
