// Package backend declares the device-backend contract the core consumes
// (spec.md §6): a synchronous read/write pair against a numbered BAR, plus
// the alignment/merge/lifecycle queries the low-level transfer element
// needs. The dynamic-library loader and per-bus transport (PCIe, Rebot,
// …) that would implement this contract in a full deployment are outside
// this repository's scope; only the interface the core drives is defined
// here, in the style of the adaptor contract a capability-collecting
// service expects from its concrete drivers.
package backend

import (
	"context"
	"fmt"
)

// DMABar is the reserved pseudo-BAR index traditional map files may use
// for DMA-backed regions (spec.md §9 open question: accepted by the
// traditional parser and by the default barIndexValid below; whether
// every backend must accept it is left to the backend).
const DMABar = 13

// Backend is the synchronous device contract the core drives. All methods
// must be safe for concurrent use by multiple goroutines except where
// noted; the core serialises unaligned read-modify-write windows itself
// (transfer.Element), so Backend implementations need not.
type Backend interface {
	// Open prepares the backend for transfers. Must be idempotent.
	Open(ctx context.Context) error
	// Close releases backend resources. Must be idempotent.
	Close() error
	// IsOpen reports whether Open has succeeded and Close has not yet run.
	IsOpen() bool

	// Read performs a synchronous blocking read of len(out) bytes from bar
	// at addr into out.
	Read(ctx context.Context, bar int, addr uint64, out []byte) error
	// Write performs a synchronous blocking write of in into bar at addr.
	Write(ctx context.Context, bar int, addr uint64, in []byte) error

	// BarIndexValid reports whether bar is one this backend exposes.
	BarIndexValid(bar int) bool
	// MinimumTransferAlignment returns the required alignment in bytes
	// for transfers against bar; always ≥ 1.
	MinimumTransferAlignment(bar int) int
	// CanMergeRequests reports whether the transfer-group coordinator may
	// ask this backend to merge adjacent low-level elements.
	CanMergeRequests() bool

	// ActivateAsyncRead arms interrupt-driven delivery for the register at
	// (bar, addr); events are delivered out of band through whatever
	// mechanism the concrete backend wires into the catalogue's interrupt
	// dispatch (outside core scope; see spec.md §1).
	ActivateAsyncRead(ctx context.Context, bar int, addr uint64) error
}

// DefaultBarIndexValid implements the contract's stated default:
// BAR 0..5 or the DMA alias (13).
func DefaultBarIndexValid(bar int) bool {
	return (bar >= 0 && bar <= 5) || bar == DMABar
}

// ErrBackendClosed is returned by Read/Write when IsOpen is false.
var ErrBackendClosed = fmt.Errorf("backend: not open")
