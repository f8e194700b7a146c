package accessor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"daqcore/backend"
	"daqcore/rawconv"
	"daqcore/regcatalog"
)

func scalarRegister(path string, width, nFrac int, signed bool, access regcatalog.Access) regcatalog.RegisterInfo {
	return regcatalog.RegisterInfo{
		Path: path, NElements: 1, ElementPitchBits: 32, Bar: 0, Address: 0,
		Access: access,
		Channels: []regcatalog.ChannelInfo{{
			BitOffset: 0, DataType: rawconv.FixedPoint, Width: width,
			NFractionalBits: nFrac, Signed: signed, RawType: 32,
		}},
	}
}

func TestScalarWriteThenRead(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	info := scalarRegister("/a", 16, 3, true, regcatalog.ReadWrite)
	w, err := NewScalar[float64](be, info, 0, 1, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), []float64{1.125}))

	r, err := NewScalar[float64](be, info, 0, 1, false)
	require.NoError(t, err)
	out := make([]float64, 1)
	require.NoError(t, r.Read(context.Background(), out))
	require.InDelta(t, 1.125, out[0], 1e-9)
	require.Equal(t, Ok, r.Validity())
}

func TestScalarWriteRejectsReadOnly(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	info := scalarRegister("/a", 16, 0, true, regcatalog.ReadOnly)
	a, err := NewScalar[int32](be, info, 0, 1, false)
	require.NoError(t, err)
	require.Error(t, a.Write(context.Background(), []int32{1}))
}

func TestScalarRejectsMultiplexed(t *testing.T) {
	info := scalarRegister("/a", 16, 0, true, regcatalog.ReadWrite)
	info.Channels = append(info.Channels, info.Channels[0])
	_, err := NewScalar[int32](nil, info, 0, 1, false)
	require.Error(t, err)
}

func TestScalarRawModeGetSetAsCooked(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	info := scalarRegister("/a", 32, 0, true, regcatalog.ReadWrite)
	info.Channels[0].RawType = 32
	a, err := NewScalar[int32](be, info, 0, 1, true)
	require.NoError(t, err)

	require.NoError(t, a.SetAsCooked(0, 42))
	got, err := a.GetAsCooked(0)
	require.NoError(t, err)
	require.Equal(t, int32(42), got)
}

func TestScalarRawModeRejectsNonRawType(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	info := scalarRegister("/a", 16, 0, true, regcatalog.ReadWrite)
	info.Channels[0].RawType = 16
	_, err := NewScalar[int32](be, info, 0, 1, true)
	require.Error(t, err)
}

// doubleBufferRegister builds a 1-element int32 register at bar 0 address
// 0, double-buffered against a second physical copy at address 4, with a
// swap-enable register at address 8 and a one-byte inactive-buffer
// indicator at address 9, bit 0.
func doubleBufferRegister() regcatalog.RegisterInfo {
	info := scalarRegister("readout", 32, 0, true, regcatalog.ReadWrite)
	info.Channels[0].RawType = 32
	info.DoubleBuffer = &regcatalog.DoubleBufferInfo{
		Enabled:           true,
		EnableRegister:    "/BAR/0/8",
		IndicatorRegister: "/BAR/0/9",
		Index:             0,
	}
	return info
}

func TestScalarDoubleBufferSelectsInactiveBuffer(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	// buffer 0 (address 0) holds 7, buffer 1 (address 4) holds 9.
	require.NoError(t, be.Write(context.Background(), 0, 0, []byte{7, 0, 0, 0}))
	require.NoError(t, be.Write(context.Background(), 0, 4, []byte{9, 0, 0, 0}))

	info := doubleBufferRegister()
	info.Path = "readout-a"
	info.DoubleBuffer.EnableRegister = "/BAR/0/8*1"
	info.DoubleBuffer.IndicatorRegister = "/BAR/0/10*1"

	// indicator bit 0 clear: buffer 0 is inactive.
	require.NoError(t, be.Write(context.Background(), 0, 10, []byte{0}))
	a, err := NewScalar[int32](be, info, 0, 1, false)
	require.NoError(t, err)
	out := make([]int32, 1)
	require.NoError(t, a.Read(context.Background(), out))
	require.Equal(t, int32(7), out[0])

	// indicator bit 0 set: buffer 1 is inactive.
	require.NoError(t, be.Write(context.Background(), 0, 10, []byte{1}))
	require.NoError(t, a.Read(context.Background(), out))
	require.Equal(t, int32(9), out[0])
}

func TestScalarDoubleBufferTogglesSwapEnable(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))
	require.NoError(t, be.Write(context.Background(), 0, 12, []byte{1})) // swap-enable starts set

	info := doubleBufferRegister()
	info.Path = "readout-b"
	info.DoubleBuffer.EnableRegister = "/BAR/0/12*1"
	info.DoubleBuffer.IndicatorRegister = "/BAR/0/13*1"

	a, err := NewScalar[int32](be, info, 0, 1, false)
	require.NoError(t, err)
	b, err := NewScalar[int32](be, info, 0, 1, false)
	require.NoError(t, err)

	require.NoError(t, a.preRead(context.Background()))

	enable := make([]byte, 1)
	require.NoError(t, be.Read(context.Background(), 0, 12, enable))
	require.Equal(t, byte(0), enable[0], "swap-enable must clear once the first reference locks")

	require.NoError(t, b.preRead(context.Background()))
	a.postRead(context.Background())

	require.NoError(t, be.Read(context.Background(), 0, 12, enable))
	require.Equal(t, byte(0), enable[0], "swap-enable stays clear while a second reference holds the lock")

	b.postRead(context.Background())
	require.NoError(t, be.Read(context.Background(), 0, 12, enable))
	require.Equal(t, byte(1), enable[0], "swap-enable re-sets once the last reference drops")
}

func TestScalarDoubleBufferWriteIsForbidden(t *testing.T) {
	be := backend.NewMemory(map[int]int{0: 16}, 1, true)
	require.NoError(t, be.Open(context.Background()))

	info := doubleBufferRegister()
	info.Path = "readout-c"
	info.DoubleBuffer.EnableRegister = "/BAR/0/14*1"
	info.DoubleBuffer.IndicatorRegister = "/BAR/0/15*1"
	a, err := NewScalar[int32](be, info, 0, 1, false)
	require.NoError(t, err)
	require.Error(t, a.Write(context.Background(), []int32{1}))
}
