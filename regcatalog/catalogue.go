package regcatalog

import (
	"strconv"
	"strings"
	"sync"

	"daqcore/internal/errs"
)

// numericAddressPrefix is the reserved path prefix that synthesises a
// register on the fly instead of going through a lookup, per spec.md
// §4.B: "/BAR/0/0x1000*16".
const numericAddressPrefix = "/BAR/"

// Catalogue is the in-memory model of a device's registers (spec.md §3,
// §4.B): an ordered set of RegisterInfo plus string metadata, the set of
// distinct interrupt-id vectors present, and the canonical-interrupt-path
// map (every prefix of every interrupt id).
//
// A Catalogue is immutable after Freeze. Reads take a shared read lock
// (sync.RWMutex), so concurrent readers do not block one another; they are
// not lock-free.
type Catalogue struct {
	mu       sync.RWMutex
	frozen   bool
	byPath   map[string]RegisterInfo
	order    []string
	metadata map[string]string

	interrupts     map[string][]int // full interrupt path -> id vector
	canonicalPaths map[string][]int // every prefix path -> id vector
}

// New creates an empty, mutable Catalogue.
func New() *Catalogue {
	return &Catalogue{
		byPath:         map[string]RegisterInfo{},
		metadata:       map[string]string{},
		interrupts:     map[string][]int{},
		canonicalPaths: map[string][]int{},
	}
}

// AddRegister inserts info, canonicalising its interrupt id (if any) as
// described in spec.md §4.B. It returns a logic_error on duplicate paths
// or on a post-freeze mutation.
func (c *Catalogue) AddRegister(info RegisterInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return errs.Logic("Catalogue.AddRegister", errs.CodeMalformedMapFile, "catalogue is frozen")
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if _, exists := c.byPath[info.Path]; exists {
		return errs.Logicf("Catalogue.AddRegister", errs.CodeDuplicateRegister, "duplicate register path %q", info.Path)
	}
	c.byPath[info.Path] = info
	c.order = append(c.order, info.Path)

	if info.Access == Interrupt {
		full := InterruptPath(info.InterruptID)
		c.interrupts[full] = info.InterruptID
		for _, p := range prefixes(info.InterruptID) {
			c.canonicalPaths[InterruptPath(p)] = p
		}
	}
	return nil
}

// SetMetadata records a string->string metadata entry (e.g. from a
// traditional map file's "@NAME VALUE" lines, or the JSON dialect's
// top-level "metadata" key).
func (c *Catalogue) SetMetadata(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return
	}
	c.metadata[key] = value
}

// Metadata returns the value for key and whether it was present.
func (c *Catalogue) Metadata(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// Freeze marks the catalogue immutable. Subsequent AddRegister calls fail;
// subsequent SetMetadata calls are ignored.
func (c *Catalogue) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// HasRegister reports whether path resolves, either through the stored
// catalogue or as a numeric-address synthetic path.
func (c *Catalogue) HasRegister(path string) bool {
	if strings.HasPrefix(path, numericAddressPrefix) {
		_, err := parseNumericAddress(path)
		return err == nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byPath[path]
	return ok
}

// GetBackendRegister returns info for path by value. A numeric-address
// path (e.g. "/BAR/0/0x1000*16") is parsed on the fly into a synthetic
// register without a catalogue lookup, per spec.md §4.B.
func (c *Catalogue) GetBackendRegister(path string) (RegisterInfo, error) {
	if strings.HasPrefix(path, numericAddressPrefix) {
		return parseNumericAddress(path)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byPath[path]
	if !ok {
		return RegisterInfo{}, errs.Logicf("Catalogue.GetBackendRegister", errs.CodeUnknownRegister, "unknown register %q", path)
	}
	return info, nil
}

// ListOfInterrupts returns every hierarchical interrupt-id vector present
// in the catalogue.
func (c *Catalogue) ListOfInterrupts() [][]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]int, 0, len(c.interrupts))
	for _, id := range c.interrupts {
		out = append(out, id)
	}
	return out
}

// CanonicalInterruptPath resolves path (e.g. "!1:2") to the integer id
// vector, if path is a prefix of some registered interrupt id.
func (c *Catalogue) CanonicalInterruptPath(path string) ([]int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.canonicalPaths[path]
	return id, ok
}

// RegisterPaths returns every register path in insertion order.
func (c *Catalogue) RegisterPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Clone performs a deep copy, used when a backend exposes its catalogue
// to callers (spec.md §4.B).
func (c *Catalogue) Clone() *Catalogue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := New()
	clone.frozen = c.frozen
	for _, p := range c.order {
		info := c.byPath[p]
		info.Channels = append([]ChannelInfo(nil), info.Channels...)
		info.InterruptID = append([]int(nil), info.InterruptID...)
		if info.DoubleBuffer != nil {
			db := *info.DoubleBuffer
			info.DoubleBuffer = &db
		}
		clone.byPath[p] = info
		clone.order = append(clone.order, p)
	}
	for k, v := range c.metadata {
		clone.metadata[k] = v
	}
	for k, v := range c.interrupts {
		clone.interrupts[k] = append([]int(nil), v...)
	}
	for k, v := range c.canonicalPaths {
		clone.canonicalPaths[k] = append([]int(nil), v...)
	}
	return clone
}

// ResolveNumericAddress parses the reserved "/BAR/<bar>/<addr>[*<n>]" path
// form into a (bar, address) pair, without building a full RegisterInfo.
// Used by accessors that need to wire a bare address (e.g. a double-buffer
// enable or indicator register) without a catalogue lookup.
func ResolveNumericAddress(path string) (bar int, address uint64, err error) {
	if !strings.HasPrefix(path, numericAddressPrefix) {
		return 0, 0, errLogicf("%q is not a numeric-address path", path)
	}
	rest := strings.TrimPrefix(path, numericAddressPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return 0, 0, errLogicf("malformed numeric-address path %q", path)
	}
	bar, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errLogicf("malformed numeric-address BAR in %q", path)
	}
	addrStr := parts[1]
	if idx := strings.IndexByte(addrStr, '*'); idx >= 0 {
		addrStr = addrStr[:idx]
	}
	address, err = parseUintAny(addrStr)
	if err != nil {
		return 0, 0, errLogicf("malformed numeric-address offset in %q", path)
	}
	return bar, address, nil
}

// parseNumericAddress parses the reserved "/BAR/<bar>/<addr>*<nElements>"
// form into a synthetic scalar RegisterInfo with one raw-typed channel.
// <addr> accepts decimal or 0x-hex.
func parseNumericAddress(path string) (RegisterInfo, error) {
	bar, addr, err := ResolveNumericAddress(path)
	if err != nil {
		return RegisterInfo{}, err
	}
	rest := strings.TrimPrefix(path, numericAddressPrefix)
	parts := strings.SplitN(rest, "/", 2)
	addrAndCount := parts[1]
	nElements := 1
	if idx := strings.IndexByte(addrAndCount, '*'); idx >= 0 {
		n, err := strconv.Atoi(addrAndCount[idx+1:])
		if err != nil || n <= 0 {
			return RegisterInfo{}, errLogicf("malformed numeric-address element count in %q", path)
		}
		nElements = n
	}
	return RegisterInfo{
		Path:             path,
		NElements:        nElements,
		ElementPitchBits: 32,
		Bar:              bar,
		Address:          addr,
		Access:           ReadWrite,
		Channels: []ChannelInfo{{
			BitOffset: 0, DataType: 0 /* Void data type is reinterpreted by caller's raw mode */, Width: 32, NFractionalBits: 0, Signed: true, RawType: 32,
		}},
	}, nil
}

func parseUintAny(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
