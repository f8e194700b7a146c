package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"daqcore/backend"
)

func TestAlignedReadWriteRoundTrip(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	el := New(be, 0, 4, 4)
	require.False(t, el.unaligned)
	copy(el.Bytes(), []byte{1, 2, 3, 4})
	require.NoError(t, el.Write(context.Background()))
	require.Equal(t, uint64(1), el.Version())

	out := New(be, 0, 4, 4)
	require.NoError(t, out.Read(context.Background()))
	require.Equal(t, []byte{1, 2, 3, 4}, out.Bytes())
	require.Equal(t, uint64(1), out.Version())
}

func TestUnalignedWritePreservesSurroundingBytes(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 8, true)
	require.NoError(t, be.Open(context.Background()))

	seed := New(be, 0, 0, 8)
	copy(seed.Bytes(), []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	require.NoError(t, seed.Write(context.Background()))

	el := New(be, 0, 2, 2)
	require.True(t, el.unaligned)
	off := el.RequestedOffset()
	el.Bytes()[off] = 0x01
	el.Bytes()[off+1] = 0x02
	require.NoError(t, el.Write(context.Background()))

	check := New(be, 0, 0, 8)
	require.NoError(t, check.Read(context.Background()))
	require.Equal(t, []byte{0xAA, 0xAA, 0x01, 0x02, 0xAA, 0xAA, 0xAA, 0xAA}, check.Bytes())
}

func TestReadFailureSetsActiveError(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 4}, 1, true)
	el := New(be, 0, 0, 4) // backend never opened: Read fails
	err := el.Read(context.Background())
	require.Error(t, err)
	require.Equal(t, err, el.ActiveError())
}

func TestMergeCoversUnion(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	a := New(be, 0, 0, 4)
	b := New(be, 0, 4, 4)
	require.True(t, a.IsMergeable(b))

	merged := a.Merge(b)
	require.Equal(t, 8, len(merged.Bytes()))
	require.Equal(t, 0, merged.Begin(0))
	require.Equal(t, 4, merged.Begin(4))
}
