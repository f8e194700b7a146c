// Package transfer implements the low-level transfer element (spec.md
// §4.D): byte-accurate, alignment-extended I/O against a device backend,
// merge-aware for transfer groups, carrying the version-number and
// active-exception bookkeeping every accessor builds on.
package transfer

import (
	"context"
	"sync"
	"sync/atomic"

	"daqcore/backend"
	"daqcore/internal/errs"
)

// Element transfers a contiguous byte region [Start, Start+len(buf)) within
// one BAR against a Backend. Construction extends the requested region
// outward to the backend's reported alignment; an Element so extended
// records itself as unaligned and serialises writes with a read-modify-
// write under the per-backend mutex.
type Element struct {
	be  backend.Backend
	mus *backendMutexes

	bar            int
	requestedStart uint64
	requestedLen   int
	start          uint64 // aligned start, <= requestedStart
	buf            []byte // aligned-length buffer
	unaligned      bool

	version   atomic.Uint64
	activeErr atomic.Value // always holds an errHolder; err is nil when clear

	mu sync.Mutex // guards buf during read/write
}

// backendMutexes hands out one *sync.Mutex per backend instance so unaligned
// read-modify-write windows against the same backend serialise, per
// spec.md §4.D/§5.
type backendMutexes struct {
	mu      sync.Mutex
	mutexes map[backend.Backend]*sync.Mutex
}

var sharedBackendMutexes = &backendMutexes{mutexes: map[backend.Backend]*sync.Mutex{}}

func (b *backendMutexes) For(be backend.Backend) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mutexes[be]
	if !ok {
		m = &sync.Mutex{}
		b.mutexes[be] = m
	}
	return m
}

// New builds an Element covering [start, start+numberOfBytes) in bar
// against be, extending outward to be's reported minimum alignment.
func New(be backend.Backend, bar int, start uint64, numberOfBytes int) *Element {
	align := be.MinimumTransferAlignment(bar)
	if align < 1 {
		align = 1
	}
	alignedStart := alignDown(start, uint64(align))
	end := start + uint64(numberOfBytes)
	alignedEnd := alignUp(end, uint64(align))

	e := &Element{
		be: be, mus: sharedBackendMutexes,
		bar: bar, requestedStart: start, requestedLen: numberOfBytes,
		start:     alignedStart,
		buf:       make([]byte, alignedEnd-alignedStart),
		unaligned: alignedStart != start || alignedEnd != end,
	}
	e.activeErr.Store(errHolder{})
	return e
}

func alignDown(v, align uint64) uint64 { return v - v%align }
func alignUp(v, align uint64) uint64 {
	if v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

// Version returns the monotonically increasing tag set by the last
// successful Read (or Write commit).
func (e *Element) Version() uint64 { return e.version.Load() }

// Begin back-translates addressInBar (an address within the original,
// pre-merge region) into a byte offset within the current — possibly
// merged — buffer.
func (e *Element) Begin(addressInBar uint64) int {
	return int(addressInBar - e.start)
}

// IsMergeable reports whether other targets the same backend and BAR and
// its region is adjacent to or overlaps this one, and the backend permits
// merging.
func (e *Element) IsMergeable(other *Element) bool {
	if e.be != other.be || e.bar != other.bar {
		return false
	}
	if !e.be.CanMergeRequests() {
		return false
	}
	aStart, aEnd := e.start, e.start+uint64(len(e.buf))
	bStart, bEnd := other.start, other.start+uint64(len(other.buf))
	return aStart <= bEnd && bStart <= aEnd
}

// Merge returns a new Element covering the union of e and other's regions.
// Both inputs must satisfy IsMergeable. Callers holding offsets into the
// pre-merge buffers must re-derive them via Begin on the returned Element.
func (e *Element) Merge(other *Element) *Element {
	start := e.start
	if other.start < start {
		start = other.start
	}
	end := e.start + uint64(len(e.buf))
	if oe := other.start + uint64(len(other.buf)); oe > end {
		end = oe
	}
	merged := &Element{
		be: e.be, mus: e.mus, bar: e.bar,
		requestedStart: start, requestedLen: int(end - start),
		start: start, buf: make([]byte, end-start),
		unaligned: true,
	}
	merged.activeErr.Store(errHolder{})
	return merged
}

// Read performs the aligned read against the backend and, on success,
// mints a fresh version number. On failure the error is stored as the
// active exception and also returned directly (so a solo, non-grouped
// caller sees it immediately); a transfer-group coordinator instead
// inspects ActiveError at its own post-step boundary.
func (e *Element) Read(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.be.Read(ctx, e.bar, e.start, e.buf); err != nil {
		wrapped := errs.Runtime("Element.Read", errs.CodeTransferFailed, err)
		e.activeErr.Store(errHolder{wrapped})
		return wrapped
	}
	e.activeErr.Store(errHolder{})
	e.version.Add(1)
	return nil
}

// Write flushes buf (already filled by the caller at the requested
// region's offset within e.buf) to the backend. For an unaligned element
// it first re-reads the full aligned window under the backend mutex (the
// "preWrite" fetch spec.md §4.D describes), then writes the merged
// window, releasing the mutex in all cases ("postWrite" commit/revert).
func (e *Element) Write(ctx context.Context) error {
	if !e.unaligned {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.be.Write(ctx, e.bar, e.start, e.buf); err != nil {
			wrapped := errs.Runtime("Element.Write", errs.CodeTransferFailed, err)
			e.activeErr.Store(errHolder{wrapped})
			return wrapped
		}
		e.activeErr.Store(errHolder{})
		e.version.Add(1)
		return nil
	}

	bmu := e.mus.For(e.be)
	bmu.Lock()
	defer bmu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	window := make([]byte, len(e.buf))
	if err := e.be.Read(ctx, e.bar, e.start, window); err != nil {
		wrapped := errs.Runtime("Element.Write", errs.CodeTransferFailed, err)
		e.activeErr.Store(errHolder{wrapped})
		return wrapped
	}
	lo := int(e.requestedStart - e.start)
	hi := lo + e.requestedLen
	copy(window[lo:hi], e.buf[lo:hi])

	if err := e.be.Write(ctx, e.bar, e.start, window); err != nil {
		wrapped := errs.Runtime("Element.Write", errs.CodeTransferFailed, err)
		e.activeErr.Store(errHolder{wrapped})
		return wrapped
	}
	copy(e.buf, window)
	e.activeErr.Store(errHolder{})
	e.version.Add(1)
	return nil
}

// Bytes exposes the element's raw buffer for accessors to convert
// in-place. The slice returned is only valid while holding no concurrent
// Read/Write call against the same Element.
func (e *Element) Bytes() []byte { return e.buf }

// RequestedOffset returns the offset of the originally requested region
// within Bytes(), accounting for alignment extension.
func (e *Element) RequestedOffset() int { return int(e.requestedStart - e.start) }

// RequestedLen returns the length in bytes of the originally requested
// region (before alignment extension).
func (e *Element) RequestedLen() int { return e.requestedLen }

// ActiveError returns the error stored by the last failed Read/Write, or
// nil. A transfer-group coordinator re-raises it at post-step boundaries
// so merged transfers fail atomically, per spec.md §7.
func (e *Element) ActiveError() error {
	if v, ok := e.activeErr.Load().(errHolder); ok {
		return v.err
	}
	return nil
}

type errHolder struct{ err error }
