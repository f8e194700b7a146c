// Package netgraph implements the variable/network node model (spec.md
// §4.G/§4.H): handle-shared dataflow endpoints connected into networks,
// validated at freeze time. Nodes are held in an arena of stable-index
// descriptors (spec.md §9 design notes) so that a Node "handle" is a small
// value type — copying it shares the same underlying descriptor — and the
// arena stays independent of both Network and the module hierarchy,
// breaking the cyclic-ownership graph those three would otherwise form.
package netgraph

import (
	"daqcore/internal/errs"
)

// Kind is the endpoint kind a Node describes (spec.md §4.G).
type Kind uint8

const (
	Application Kind = iota
	ControlSystem
	Device
	Constant
	TriggerReceiver
	TriggerProvider
)

// Direction is the dataflow role a Node plays once connected.
type Direction uint8

const (
	DirectionUnset Direction = iota
	Feeding
	Consuming
)

// UpdateMode describes how a Device node's value arrives.
type UpdateMode uint8

const (
	Poll UpdateMode = iota
	Push
)

// descriptor is the arena-held state behind every Node handle.
type descriptor struct {
	kind      Kind
	direction Direction

	// Application
	accessorRef any // opaque handle to the owning module's accessor

	// ControlSystem
	publicName string

	// Device
	deviceAlias  string
	registerName string
	updateMode   UpdateMode

	// shared
	valueType string // closed user-type tag; empty means AnyType (pre-resolution)
	nElements int
	unit      string
	desc      string
	tags      map[string]struct{}

	network *Network // network this node currently belongs to, if any

	// trigger memoization, kept on the feeder's descriptor: trigger node's
	// arena index -> arena index of the copy triggered by it.
	triggered map[int]int
}

// arena is the process-wide descriptor store. Index 0 is never issued so
// the zero Node value is recognisably invalid.
type arena struct {
	descs []descriptor
}

var globalArena = &arena{descs: make([]descriptor, 1)}

func (a *arena) alloc(d descriptor) int {
	a.descs = append(a.descs, d)
	return len(a.descs) - 1
}

func (a *arena) get(i int) *descriptor { return &a.descs[i] }

// Node is a handle-shared reference to an arena descriptor: copying a Node
// shares the same underlying state, matching the source's
// pointer-to-shared-data idiom (spec.md §9).
type Node struct {
	idx int
}

func newNode(d descriptor) Node {
	return Node{idx: globalArena.alloc(d)}
}

func (n Node) desc() *descriptor { return globalArena.get(n.idx) }

// Valid reports whether n refers to an allocated descriptor.
func (n Node) Valid() bool { return n.idx != 0 }

// Kind returns the node's endpoint kind.
func (n Node) Kind() Kind { return n.desc().kind }

// NewApplication creates an Application node wrapping accessorRef, the
// owning module's own accessor handle (opaque to netgraph).
func NewApplication(accessorRef any, valueType string, nElements int) Node {
	return newNode(descriptor{kind: Application, accessorRef: accessorRef, valueType: valueType, nElements: nElements, tags: map[string]struct{}{}})
}

// NewControlSystem creates a ControlSystem node exported under name.
func NewControlSystem(name, valueType string, nElements int) Node {
	return newNode(descriptor{kind: ControlSystem, publicName: name, valueType: valueType, nElements: nElements})
}

// NewDevice creates a Device node resolved through the register catalogue
// at materialisation time.
func NewDevice(deviceAlias, registerName string, mode UpdateMode, valueType string, nElements int) Node {
	return newNode(descriptor{kind: Device, deviceAlias: deviceAlias, registerName: registerName, updateMode: mode, valueType: valueType, nElements: nElements})
}

// NewConstant creates a Constant node producing a fixed value; accessorRef
// is a zero-arg accessor supplying it.
func NewConstant(accessorRef any, valueType string, nElements int) Node {
	return newNode(descriptor{kind: Constant, accessorRef: accessorRef, valueType: valueType, nElements: nElements})
}

// NewTriggerReceiver creates a consumer-side placeholder whose sole effect
// is to wake the feeder network it is connected into.
func NewTriggerReceiver() Node {
	return newNode(descriptor{kind: TriggerReceiver})
}

// NewTriggerProvider creates the feeder-side mirror of a TriggerReceiver.
func NewTriggerProvider() Node {
	return newNode(descriptor{kind: TriggerProvider})
}

// SetMetaData, AddTag and SetValueType may only be called on Application
// nodes before network freeze (spec.md §4.G).
func (n Node) SetMetaData(unit, description string) error {
	d := n.desc()
	if d.kind != Application {
		return errs.Logicf("Node.SetMetaData", errs.CodeIllegalConnection, "setMetaData is only valid on Application nodes")
	}
	d.unit, d.desc = unit, description
	return nil
}

func (n Node) AddTag(tag string) error {
	d := n.desc()
	if d.kind != Application {
		return errs.Logicf("Node.AddTag", errs.CodeIllegalConnection, "addTag is only valid on Application nodes")
	}
	if d.tags == nil {
		d.tags = map[string]struct{}{}
	}
	d.tags[tag] = struct{}{}
	return nil
}

func (n Node) Tags() map[string]struct{} { return n.desc().tags }

func (n Node) SetValueType(valueType string) error {
	d := n.desc()
	if d.kind != Application {
		return errs.Logicf("Node.SetValueType", errs.CodeIllegalConnection, "setValueType is only valid on Application nodes")
	}
	d.valueType = valueType
	return nil
}

func (n Node) ValueType() string  { return n.desc().valueType }
func (n Node) NElements() int     { return n.desc().nElements }
func (n Node) Direction() Direction { return n.desc().direction }
func (n Node) Network() *Network  { return n.desc().network }

// SetDirection forces n's direction directly, bypassing the inference
// Connect performs. Used at freeze time to materialise a still-unset
// node (e.g. a constant manufactured to feed an otherwise feederless
// network) and by tests constructing networks without going through >>.
func (n Node) SetDirection(d Direction) { n.desc().direction = d }

// WithTrigger returns a copy of n in which the trigger relationship with
// t is recorded. Repeated calls with the same (n, t) pair return the same
// underlying node (memoised by t's arena index), so "a[t] >> x" and
// "a[t] >> y" share one triggered feed (spec.md §4.G).
func (n Node) WithTrigger(t Node) Node {
	d := n.desc()
	if d.triggered == nil {
		d.triggered = map[int]int{}
	}
	if existing, ok := d.triggered[t.idx]; ok {
		return Node{idx: existing}
	}
	clone := *d
	clone.triggered = nil // the triggered copy does not itself carry memoised triggers
	copyNode := newNode(clone)
	d.triggered[t.idx] = copyNode.idx
	return copyNode
}
