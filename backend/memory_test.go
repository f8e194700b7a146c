package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	m := NewMemory(map[int]int{0: 16}, 4, true)
	require.NoError(t, m.Open(context.Background()))
	require.True(t, m.IsOpen())

	require.NoError(t, m.Write(context.Background(), 0, 4, []byte{1, 2, 3, 4}))
	out := make([]byte, 4)
	require.NoError(t, m.Read(context.Background(), 0, 4, out))
	require.Equal(t, []byte{1, 2, 3, 4}, out)
}

func TestMemoryRejectsUnknownBarAndClosed(t *testing.T) {
	m := NewMemory(map[int]int{0: 8}, 1, false)
	require.ErrorIs(t, m.Read(context.Background(), 0, 0, make([]byte, 1)), ErrBackendClosed)

	require.NoError(t, m.Open(context.Background()))
	require.Error(t, m.Read(context.Background(), 1, 0, make([]byte, 1)))
	require.Error(t, m.Read(context.Background(), 0, 4, make([]byte, 8)))
}

func TestDefaultBarIndexValid(t *testing.T) {
	require.True(t, DefaultBarIndexValid(0))
	require.True(t, DefaultBarIndexValid(5))
	require.True(t, DefaultBarIndexValid(DMABar))
	require.False(t, DefaultBarIndexValid(6))
}
