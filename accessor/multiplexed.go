package accessor

import (
	"context"

	"daqcore/backend"
	"daqcore/internal/errs"
	"daqcore/rawconv"
	"daqcore/regcatalog"
	"daqcore/transfer"
)

// Multiplexed is the 2-D, channel-interleaved accessor of spec.md §4.F: a
// strided view over nElements x elementPitchBits bits, one converter per
// channel, each stepping through its own pitched byte range. Merging is
// not supported for Multiplexed accessors (spec.md §4.F).
type Multiplexed struct {
	el        *transfer.Element
	channels  []regcatalog.ChannelInfo
	convs     []*rawconv.Converter
	pitchBytes int
	nElements int
	access    regcatalog.Access
	validity  Validity
}

// NewMultiplexed constructs a Multiplexed accessor over the window
// [offset, offset+nElements) of info, which must be 2-D (more than one
// channel). Construction validates byte-aligned channel offsets and
// element pitch, and that the window fits in info.NElements. The raw
// buffer is rounded up to a multiple of 4 bytes to satisfy
// word-addressable backends.
func NewMultiplexed(be backend.Backend, info regcatalog.RegisterInfo, offset, nElements int) (*Multiplexed, error) {
	if !info.IsMultiplexed() {
		return nil, errs.Logicf("accessor.NewMultiplexed", errs.CodeTypeMismatch, "register %q is not 2-D multiplexed", info.Path)
	}
	if info.ElementPitchBits%8 != 0 {
		return nil, errs.Logicf("accessor.NewMultiplexed", errs.CodeMisalignedOffset, "register %q: elementPitchBits not byte-aligned", info.Path)
	}
	for _, ch := range info.Channels {
		if ch.BitOffset%8 != 0 {
			return nil, errs.Logicf("accessor.NewMultiplexed", errs.CodeMisalignedOffset, "register %q: channel bitOffset not byte-aligned", info.Path)
		}
	}
	if offset < 0 || nElements < 0 || offset+nElements > info.NElements {
		return nil, errs.Logicf("accessor.NewMultiplexed", errs.CodeTypeMismatch, "register %q: window [%d,%d) exceeds %d elements", info.Path, offset, offset+nElements, info.NElements)
	}

	pitchBytes := info.ElementPitchBits / 8
	rawLen := nElements * pitchBytes
	if rawLen%4 != 0 {
		rawLen += 4 - rawLen%4
	}
	start := info.Address + uint64(offset*pitchBytes)
	el := transfer.New(be, info.Bar, start, rawLen)

	convs := make([]*rawconv.Converter, len(info.Channels))
	for i, ch := range info.Channels {
		convs[i] = ch.NewConverter()
	}

	return &Multiplexed{
		el: el, channels: info.Channels, convs: convs,
		pitchBytes: pitchBytes, nElements: nElements, access: info.Access,
	}, nil
}

// Validity reports the last read/write's data-validity flag.
func (m *Multiplexed) Validity() Validity { return m.validity }

// Version returns the underlying element's version number.
func (m *Multiplexed) Version() uint64 { return m.el.Version() }

// NumChannels returns the channel count.
func (m *Multiplexed) NumChannels() int { return len(m.channels) }

// NumElements returns the number of samples per channel in this window.
func (m *Multiplexed) NumElements() int { return m.nElements }

// Read fetches the full byte region in one transfer, then decodes channel
// ch into dst (len(dst) must equal NumElements) via ToCookedFloat, the
// lowest-common-denominator numeric type every supported channel encoding
// can widen into without loss for the scenarios spec.md §8 describes.
func (m *Multiplexed) Read(ctx context.Context, ch int, dst []float64) error {
	if err := m.el.Read(ctx); err != nil {
		m.validity = Faulty
		return err
	}
	m.validity = Ok
	m.decodeChannel(ch, dst)
	return nil
}

// Write encodes src into channel ch's pitched range of the raw buffer and
// flushes the full region.
func (m *Multiplexed) Write(ctx context.Context, ch int, src []float64) error {
	if !m.access.Writable() {
		return errs.Logicf("Multiplexed.Write", errs.CodeReadOnlyRegister, "register is not writable")
	}
	m.encodeChannel(ch, src)
	if err := m.el.Write(ctx); err != nil {
		m.validity = Faulty
		return err
	}
	m.validity = Ok
	return nil
}

func (m *Multiplexed) decodeChannel(ch int, dst []float64) {
	byteOff := m.channels[ch].BitOffset / 8
	wordBytes := m.channels[ch].RawType / 8
	base := m.el.RequestedOffset()
	buf := m.el.Bytes()
	for i := 0; i < m.nElements && i < len(dst); i++ {
		off := base + i*m.pitchBytes + byteOff
		raw := loadLE(buf[off : off+wordBytes])
		dst[i] = rawconv.ToCookedFloat[float64](m.convs[ch], raw)
	}
}

func (m *Multiplexed) encodeChannel(ch int, src []float64) {
	byteOff := m.channels[ch].BitOffset / 8
	wordBytes := m.channels[ch].RawType / 8
	base := m.el.RequestedOffset()
	buf := m.el.Bytes()
	for i := 0; i < m.nElements && i < len(src); i++ {
		off := base + i*m.pitchBytes + byteOff
		raw := rawconv.ToRawFloat(m.convs[ch], src[i])
		storeLE(buf[off:off+wordBytes], raw)
	}
}

// ReadInt decodes channel ch as an integer user type, for callers that
// need bit-exact integer results (e.g. the -32768 edge case of spec.md §8
// scenario 2) rather than a float64 widen.
func ReadInt[T rawconv.Integer](m *Multiplexed, ctx context.Context, ch int, dst []T) error {
	if err := m.el.Read(ctx); err != nil {
		m.validity = Faulty
		return err
	}
	m.validity = Ok
	byteOff := m.channels[ch].BitOffset / 8
	wordBytes := m.channels[ch].RawType / 8
	base := m.el.RequestedOffset()
	buf := m.el.Bytes()
	for i := 0; i < m.nElements && i < len(dst); i++ {
		off := base + i*m.pitchBytes + byteOff
		raw := loadLE(buf[off : off+wordBytes])
		dst[i] = rawconv.ToCookedInt[T](m.convs[ch], raw)
	}
	return nil
}
