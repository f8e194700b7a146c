// Package regcatalog models a device's register catalogue: the in-memory
// register set produced by parsing a map file (package mapparser), keyed
// by hierarchical path, plus the metadata and interrupt-id bookkeeping
// spec.md §3–§4.B describe.
package regcatalog

import (
	"strconv"
	"strings"

	"daqcore/rawconv"
)

// Access describes how a register may be transferred.
type Access uint8

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
	Interrupt
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case WriteOnly:
		return "WO"
	case ReadWrite:
		return "RW"
	case Interrupt:
		return "INTERRUPT"
	default:
		return "?"
	}
}

// Readable reports whether the register may be read; Interrupt implies
// readable per spec.md §3.
func (a Access) Readable() bool { return a == ReadOnly || a == ReadWrite || a == Interrupt }

// Writable reports whether the register may be written.
func (a Access) Writable() bool { return a == WriteOnly || a == ReadWrite }

// ChannelInfo describes one channel of a register: the bit-level encoding
// rules rawconv needs to build a Converter, plus its byte offset within
// the element.
type ChannelInfo struct {
	BitOffset       int // must be a multiple of 8
	DataType        rawconv.DataType
	Width           int // significant bits, 0..64
	NFractionalBits int // may be negative or exceed Width, within ±64
	Signed          bool
	RawType         int // width in bits of the containing slot
}

// Validate enforces the channel invariant from spec.md §3: bit offset
// byte-aligned, and fixed-point conversion well defined only if
// width<=64 and -(64-width)<=nFractionalBits<=width.
func (c ChannelInfo) Validate() error {
	if c.BitOffset%8 != 0 {
		return errMisaligned("channel bitOffset")
	}
	if c.Width < 0 || c.Width > 64 {
		return errBadWidth(c.Width)
	}
	lo := -(64 - c.Width)
	if c.NFractionalBits < lo || c.NFractionalBits > c.Width {
		return errBadFractionalBits(c.NFractionalBits, lo, c.Width)
	}
	return nil
}

// NewConverter builds the rawconv.Converter this channel describes.
func (c ChannelInfo) NewConverter() *rawconv.Converter {
	return rawconv.New(c.Width, c.NFractionalBits, c.Signed, c.DataType)
}

// DoubleBufferInfo optionally describes a register pair forming a
// double-buffered hardware handshake (spec.md §3, §4.E). EnableRegister
// and IndicatorRegister are numeric-address paths (see
// ResolveNumericAddress) rather than catalogue paths, so an accessor can
// resolve them without holding a reference to the surrounding catalogue.
// Index is the bit position within the indicator byte that names this
// particular register's inactive buffer (0 or 1); several double-buffered
// registers may share one indicator register, one bit each.
type DoubleBufferInfo struct {
	Enabled           bool
	EnableRegister    string // numeric-address path, toggles swap-enable
	IndicatorRegister string // numeric-address path, bit Index names the inactive buffer
	Index             int
}

// RegisterInfo is the immutable, by-value description of one register,
// produced by a map-file parser and stored in a Catalogue.
type RegisterInfo struct {
	Path            string
	NElements       int
	ElementPitchBits int // must be a multiple of 8
	Bar             int
	Address         uint64
	Access          Access
	InterruptID     []int // ordered sequence, empty unless Access==Interrupt
	Channels        []ChannelInfo
	DoubleBuffer    *DoubleBufferInfo
}

// Validate enforces the register-level invariants from spec.md §3.
func (r RegisterInfo) Validate() error {
	if r.ElementPitchBits%8 != 0 {
		return errMisaligned("register elementPitchBits")
	}
	if r.Access == Interrupt && len(r.InterruptID) == 0 {
		return errLogicf("register %q: Interrupt access requires a non-empty interruptId", r.Path)
	}
	if r.Access != Interrupt && len(r.InterruptID) != 0 {
		return errLogicf("register %q: interruptId is only valid with Interrupt access", r.Path)
	}
	for i := range r.Channels {
		if err := r.Channels[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsMultiplexed reports whether this register describes a 2-D,
// channel-interleaved memory region (more than one channel).
func (r RegisterInfo) IsMultiplexed() bool { return len(r.Channels) > 1 }

// InterruptPath renders the interrupt id vector as the canonical
// "!a:b:c" hierarchical form used by spec.md §6.
func InterruptPath(id []int) string {
	var b strings.Builder
	b.WriteByte('!')
	for i, v := range id {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// prefixes returns every non-empty prefix of id, including id itself.
func prefixes(id []int) [][]int {
	out := make([][]int, 0, len(id))
	for i := 1; i <= len(id); i++ {
		p := make([]int, i)
		copy(p, id[:i])
		out = append(out, p)
	}
	return out
}
