package backend

import (
	"context"
	"fmt"
	"sync"

	"daqcore/internal/errs"
)

// Memory is an in-process Backend over a flat byte slice per BAR, used by
// the core's own tests and by simulation-mode device servers that have no
// real transport. It is not part of the external contract; it is one
// concrete implementation of it.
type Memory struct {
	mu    sync.Mutex
	open  bool
	bars  map[int][]byte
	align int
	merge bool
}

// NewMemory creates a Memory backend. size is the byte length reserved
// for each bar in bars; align is the value returned from
// MinimumTransferAlignment for every bar.
func NewMemory(bars map[int]int, align int, canMerge bool) *Memory {
	m := &Memory{bars: map[int][]byte{}, align: align, merge: canMerge}
	for bar, size := range bars {
		m.bars[bar] = make([]byte, size)
	}
	if m.align < 1 {
		m.align = 1
	}
	return m
}

func (m *Memory) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *Memory) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Memory) Read(ctx context.Context, bar int, addr uint64, out []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrBackendClosed
	}
	buf, ok := m.bars[bar]
	if !ok {
		return errs.Runtime("Memory.Read", errs.CodeBackendUnreachable, errNoSuchBar(bar))
	}
	if int(addr)+len(out) > len(buf) {
		return errs.Runtime("Memory.Read", errs.CodeTransferFailed, errOutOfRange(bar, addr, len(out)))
	}
	copy(out, buf[addr:])
	return nil
}

func (m *Memory) Write(ctx context.Context, bar int, addr uint64, in []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrBackendClosed
	}
	buf, ok := m.bars[bar]
	if !ok {
		return errs.Runtime("Memory.Write", errs.CodeBackendUnreachable, errNoSuchBar(bar))
	}
	if int(addr)+len(in) > len(buf) {
		return errs.Runtime("Memory.Write", errs.CodeTransferFailed, errOutOfRange(bar, addr, len(in)))
	}
	copy(buf[addr:], in)
	return nil
}

func (m *Memory) BarIndexValid(bar int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bars[bar]
	return ok
}

func (m *Memory) MinimumTransferAlignment(bar int) int { return m.align }
func (m *Memory) CanMergeRequests() bool               { return m.merge }

func (m *Memory) ActivateAsyncRead(ctx context.Context, bar int, addr uint64) error {
	return nil
}

func errNoSuchBar(bar int) error {
	return fmt.Errorf("no such BAR %d", bar)
}

func errOutOfRange(bar int, addr uint64, n int) error {
	return fmt.Errorf("transfer of %d bytes at BAR %d offset %#x out of range", n, bar, addr)
}
