// Package accessor implements the scalar/1-D (spec.md §4.E) and 2-D
// multiplexed (§4.F) register accessors: typed views over a
// transfer.Element, with optional raw mode, per-sample converter access,
// and the double-buffer handshake state machine.
package accessor

import (
	"context"
	"sync"
	"unsafe"

	"daqcore/backend"
	"daqcore/internal/errs"
	"daqcore/rawconv"
	"daqcore/regcatalog"
	"daqcore/transfer"
)

// Validity is the data-validity flag an accessor carries, orthogonal to
// exceptions (spec.md §7): a failed read or write transfer sets Faulty and
// the next successful one sets Ok again. The flag stays on the accessor;
// it is not passed on to network consumers.
type Validity uint8

const (
	Ok Validity = iota
	Faulty
)

// Scalar is a typed, optionally-raw view over one register's single
// channel (spec.md §4.E). T is the cooked user type; when Raw is true, T
// must equal the channel's raw word type and conversion is bypassed.
type Scalar[T rawconv.Numeric] struct {
	el        *transfer.Element
	channel   regcatalog.ChannelInfo
	conv      *rawconv.Converter
	raw       bool
	wordBytes int // bytes per raw word (channel.RawType/8)
	nElements int
	access    regcatalog.Access

	db     *doubleBuffer    // nil unless the register opts into double-buffer mode
	elAlt  *transfer.Element // second physical buffer, double-buffer mode only
	active *transfer.Element // buffer selected by the most recent preRead

	validity Validity
}

// NewScalar constructs a Scalar accessor over info (spec.md §4.E
// construction checks): info must have exactly one channel, a
// byte-aligned bitOffset of 0, and a bar/address consistent with be.
// wordOffset/numberOfWords select a sub-range of info.NElements (both 0
// and info.NElements for a Void register, which has exactly one element).
func NewScalar[T rawconv.Numeric](be backend.Backend, info regcatalog.RegisterInfo, wordOffset, numberOfWords int, raw bool) (*Scalar[T], error) {
	if info.IsMultiplexed() {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeTypeMismatch, "register %q is 2-D multiplexed; use NewMultiplexed", info.Path)
	}
	ch := info.Channels[0]
	if ch.BitOffset != 0 {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeMisalignedOffset, "register %q: scalar accessor requires bitOffset 0, got %d", info.Path, ch.BitOffset)
	}
	if info.ElementPitchBits%8 != 0 {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeMisalignedOffset, "register %q: elementPitchBits not byte-aligned", info.Path)
	}

	nElements := info.NElements
	if ch.DataType == rawconv.Void {
		wordOffset, numberOfWords, nElements = 0, 1, 1
	}
	if wordOffset < 0 || numberOfWords < 0 || wordOffset+numberOfWords > nElements {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeTypeMismatch, "register %q: word range [%d,%d) exceeds %d elements", info.Path, wordOffset, wordOffset+numberOfWords, nElements)
	}

	wordBytes := info.ElementPitchBits / 8
	if raw {
		var zero T
		if wordBytes*8 != ch.RawType || int(unsafe.Sizeof(zero))*8 != ch.RawType {
			return nil, errs.Logicf("accessor.NewScalar", errs.CodeTypeMismatch, "register %q: raw mode requires user type to match the declared raw word size", info.Path)
		}
	}

	start := info.Address + uint64(wordOffset*wordBytes)
	el := transfer.New(be, info.Bar, start, numberOfWords*wordBytes)

	s := &Scalar[T]{
		el: el, channel: ch, conv: ch.NewConverter(), raw: raw,
		wordBytes: wordBytes, nElements: numberOfWords, access: info.Access,
	}
	if info.DoubleBuffer != nil && info.DoubleBuffer.Enabled {
		db, err := sharedDoubleBuffer(*info.DoubleBuffer, be)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.elAlt = transfer.New(be, info.Bar, start+uint64(numberOfWords*wordBytes), numberOfWords*wordBytes)
	}
	return s, nil
}

// Validity reports the last read/write's data-validity flag.
func (s *Scalar[T]) Validity() Validity { return s.validity }

// Version returns the underlying element's version number.
func (s *Scalar[T]) Version() uint64 { return s.el.Version() }

// Read performs a full read transfer and converts every word into dst
// (len(dst) must equal the accessor's word count). In double-buffer mode
// the physical buffer read is whichever the indicator register names as
// inactive at lock time (spec.md §4.E).
func (s *Scalar[T]) Read(ctx context.Context, dst []T) error {
	if err := s.preRead(ctx); err != nil {
		return err
	}
	defer s.postRead(ctx)
	if err := s.active.Read(ctx); err != nil {
		s.validity = Faulty
		return err
	}
	s.validity = Ok
	s.decodeInto(dst)
	return nil
}

// Write converts src and performs a full write transfer. Fails with
// logic_error in preWrite (before any I/O) if the register is read-only or
// double-buffered: spec.md §4.E forbids writes while the handshake is
// active, since the accessor never knows which physical buffer a write
// would land in.
func (s *Scalar[T]) Write(ctx context.Context, src []T) error {
	if !s.access.Writable() {
		return errs.Logicf("Scalar.Write", errs.CodeReadOnlyRegister, "register is not writable")
	}
	if s.db != nil {
		return errs.Logicf("Scalar.Write", errs.CodeIllegalConnection, "register is double-buffered and read-only to this accessor")
	}
	s.encodeFrom(src)
	if err := s.el.Write(ctx); err != nil {
		s.validity = Faulty
		return err
	}
	s.validity = Ok
	return nil
}

// GetAsCooked applies the converter to word i of the accessor's raw buffer
// without performing any I/O. Valid only when the accessor was constructed
// with raw=true.
func (s *Scalar[T]) GetAsCooked(i int) (T, error) {
	if !s.raw {
		return *new(T), errs.Logicf("Scalar.GetAsCooked", errs.CodeTypeMismatch, "GetAsCooked is only available on raw-mode accessors")
	}
	return s.decodeWord(i), nil
}

// SetAsCooked reverses the converter into word i of the accessor's raw
// buffer without performing any I/O. Valid only in raw mode.
func (s *Scalar[T]) SetAsCooked(i int, v T) error {
	if !s.raw {
		return errs.Logicf("Scalar.SetAsCooked", errs.CodeTypeMismatch, "SetAsCooked is only available on raw-mode accessors")
	}
	s.encodeWord(i, v)
	return nil
}

func (s *Scalar[T]) decodeInto(dst []T) {
	for i := range dst {
		if s.raw {
			el := s.readElement()
			off := el.RequestedOffset() + i*s.wordBytes
			dst[i] = T(loadLE(el.Bytes()[off : off+s.wordBytes]))
			continue
		}
		dst[i] = s.decodeWord(i)
	}
}

func (s *Scalar[T]) encodeFrom(src []T) {
	for i, v := range src {
		if s.raw {
			off := s.el.RequestedOffset() + i*s.wordBytes
			storeLE(s.el.Bytes()[off:off+s.wordBytes], uint64(v))
			continue
		}
		s.encodeWord(i, v)
	}
}

func (s *Scalar[T]) decodeWord(i int) T {
	el := s.readElement()
	off := el.RequestedOffset() + i*s.wordBytes
	raw := loadLE(el.Bytes()[off : off+s.wordBytes])
	return numericFromRaw[T](s.conv, raw)
}

func (s *Scalar[T]) encodeWord(i int, v T) {
	off := s.el.RequestedOffset() + i*s.wordBytes
	raw := rawFromNumeric(s.conv, v)
	storeLE(s.el.Bytes()[off:off+s.wordBytes], raw)
}

// readElement returns the element the next decode should draw from: the
// buffer the double-buffer handshake most recently selected as inactive,
// or the accessor's sole element outside double-buffer mode.
func (s *Scalar[T]) readElement() *transfer.Element {
	if s.active != nil {
		return s.active
	}
	return s.el
}

func (s *Scalar[T]) preRead(ctx context.Context) error {
	s.active = s.el
	if s.db == nil {
		return nil
	}
	inactive, err := s.db.lock(ctx)
	if err != nil {
		return err
	}
	if inactive == 1 {
		s.active = s.elAlt
	}
	return nil
}

func (s *Scalar[T]) postRead(ctx context.Context) {
	if s.db != nil {
		s.db.unlock(ctx)
	}
}

// doubleBuffer implements the handshake state machine of spec.md §4.E:
// idle -> locked on first-reference preRead (clears swap-enable), locked
// -> reading after reading the indicator, reading -> idle on last-reference
// postRead (re-enables swap). The mutex is recursive in spirit: repeated
// lock calls from distinct accessors sharing one register nest via refCount.
type doubleBuffer struct {
	mu            sync.Mutex
	refCount      int
	be            backend.Backend
	enableBar     int
	enableAddr    uint64
	indicatorBar  int
	indicatorAddr uint64
	bit           uint
}

var (
	dbRegistryMu sync.Mutex
	dbRegistry   = map[string]*doubleBuffer{}
)

// sharedDoubleBuffer returns the one doubleBuffer instance for info's
// enable register, so that every Scalar accessor sharing a double-buffered
// register observes the same reference count. The enable/indicator
// addresses are resolved once, here, from the numeric-address paths in
// info (regcatalog.DoubleBufferInfo).
func sharedDoubleBuffer(info regcatalog.DoubleBufferInfo, be backend.Backend) (*doubleBuffer, error) {
	dbRegistryMu.Lock()
	defer dbRegistryMu.Unlock()
	if d, ok := dbRegistry[info.EnableRegister]; ok {
		return d, nil
	}
	enableBar, enableAddr, err := regcatalog.ResolveNumericAddress(info.EnableRegister)
	if err != nil {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeMalformedMapFile, "double-buffer enable register: %v", err)
	}
	indicatorBar, indicatorAddr, err := regcatalog.ResolveNumericAddress(info.IndicatorRegister)
	if err != nil {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeMalformedMapFile, "double-buffer indicator register: %v", err)
	}
	if info.Index < 0 || info.Index > 7 {
		return nil, errs.Logicf("accessor.NewScalar", errs.CodeMalformedMapFile, "double-buffer indicator bit index %d out of range", info.Index)
	}
	d := &doubleBuffer{
		be: be,
		enableBar: enableBar, enableAddr: enableAddr,
		indicatorBar: indicatorBar, indicatorAddr: indicatorAddr,
		bit: uint(info.Index),
	}
	dbRegistry[info.EnableRegister] = d
	return d, nil
}

// lock transitions idle->locked on the first reference (clearing
// swap-enable), then always performs the locked->reading step: it reads
// the indicator register and reports which physical buffer (0 or 1) is
// currently inactive and therefore safe to read from.
func (d *doubleBuffer) lock(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refCount == 0 {
		if err := d.setSwapEnable(ctx, false); err != nil {
			return 0, err
		}
	}
	d.refCount++
	return d.readIndicator(ctx)
}

func (d *doubleBuffer) unlock(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refCount--
	if d.refCount == 0 {
		d.setSwapEnable(ctx, true)
	}
}

func (d *doubleBuffer) setSwapEnable(ctx context.Context, enabled bool) error {
	b := byte(0)
	if enabled {
		b = 1
	}
	return d.be.Write(ctx, d.enableBar, d.enableAddr, []byte{b})
}

// readIndicator reads the one-byte indicator register and returns which of
// the two physical buffers (0 or 1) is currently inactive: bit d.bit set
// means buffer 1 is inactive, clear means buffer 0 is.
func (d *doubleBuffer) readIndicator(ctx context.Context) (int, error) {
	buf := make([]byte, 1)
	if err := d.be.Read(ctx, d.indicatorBar, d.indicatorAddr, buf); err != nil {
		return 0, errs.Runtime("doubleBuffer.readIndicator", errs.CodeTransferFailed, err)
	}
	if buf[0]&(1<<d.bit) != 0 {
		return 1, nil
	}
	return 0, nil
}

func loadLE(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return v
}

func storeLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}
