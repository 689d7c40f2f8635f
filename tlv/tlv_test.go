package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigSizeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xfe, 0xffff, 0x10000, 0xffffffff,
		0x100000000, MaxBigSize}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteBigSize(&buf, v))
		require.Equal(t, SizeOfBigSize(v), buf.Len())

		got, err := ReadBigSize(&buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestBigSizeRejectsNonMinimal(t *testing.T) {
	// 0xfd followed by 0x00fc (=252) should have been a single byte.
	buf := bytes.NewReader([]byte{0xfd, 0x00, 0xfc})
	_, err := ReadBigSize(buf)
	require.Error(t, err)
}

func TestStreamRoundTrip(t *testing.T) {
	s := &Stream{}
	s.Set(1, []byte("hello"))
	s.Set(4, []byte{0x01, 0x02})
	s.Set(2, []byte{})

	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))

	decoded, err := DecodeStream(&buf)
	require.NoError(t, err)
	require.Len(t, decoded.Records, 3)

	v, ok := decoded.Get(1)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)

	v, ok = decoded.Get(4)
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x02}, v)
}

func TestStreamRejectsOutOfOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBigSize(&buf, 5))
	require.NoError(t, WriteBigSize(&buf, 0))
	require.NoError(t, WriteBigSize(&buf, 2))
	require.NoError(t, WriteBigSize(&buf, 0))

	_, err := DecodeStream(&buf)
	require.Error(t, err)
}
