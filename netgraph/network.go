package netgraph

import (
	"fmt"
	"io"
	"strings"

	"daqcore/internal/errs"
	"daqcore/internal/logx"
)

var netLog = logx.For("netgraph")

// TriggerKind is the result of Network.GetTriggerType (spec.md §4.H).
type TriggerKind uint8

const (
	SelfDriven TriggerKind = iota // feeder itself drives updates (push)
	PollDriven                    // a single poll consumer provides the trigger
	ExternallyTriggered            // an attached TriggerProvider/Receiver pair drives it
)

// Network owns a connected set of Nodes (spec.md §4.H). The first feeder
// added locks the network's value type, element count, unit and
// description for every later node.
type Network struct {
	nodes []Node

	valueType string
	nElements int
	unit      string
	desc      string
	locked    bool

	externalTrigger bool
}

// NewNetwork creates an empty network.
func NewNetwork() *Network { return &Network{} }

// AddNode registers ownership of n with net. The first Feeding node seen
// locks the network's value type/unit/description/length.
func (net *Network) AddNode(n Node) error {
	d := n.desc()
	if d.network != nil && d.network != net {
		return errs.Logicf("Network.AddNode", errs.CodeIllegalConnection, "node already belongs to another network")
	}
	if !net.locked && d.direction == Feeding && d.kind != TriggerProvider && d.kind != TriggerReceiver {
		net.valueType, net.nElements, net.unit, net.desc = d.valueType, d.nElements, d.unit, d.desc
		net.locked = true
	}
	d.network = net
	net.nodes = append(net.nodes, n)
	return nil
}

// merge absorbs other's nodes into net and repoints their descriptors.
func (net *Network) merge(other *Network) {
	if net == other {
		return
	}
	for _, n := range other.nodes {
		n.desc().network = net
		net.nodes = append(net.nodes, n)
	}
	if !net.locked && other.locked {
		net.valueType, net.nElements, net.unit, net.desc, net.locked = other.valueType, other.nElements, other.unit, other.desc, true
	}
	if other.externalTrigger {
		net.externalTrigger = true
	}
	other.nodes = nil
}

// Connect implements the "a >> b" operator (spec.md §4.G): a feeds b. Empty
// directions are inferred (feeding on the left, consuming on the right);
// networks are merged or created as needed. Illegal combinations — two
// feeders, incompatible value types, mismatched element counts — fail with
// a logic error rather than silently connecting.
func Connect(a, b Node) error {
	const op = "netgraph.Connect"
	ad, bd := a.desc(), b.desc()

	if ad.direction == DirectionUnset {
		ad.direction = Feeding
	}
	if bd.direction == DirectionUnset {
		bd.direction = Consuming
	}
	if ad.direction != Feeding {
		return errs.Logicf(op, errs.CodeIllegalConnection, "left side of >> must be a feeder")
	}
	if bd.direction != Consuming {
		return errs.Logicf(op, errs.CodeIllegalConnection, "right side of >> must be a consumer")
	}

	if (a.Kind() == TriggerProvider) != (b.Kind() == TriggerReceiver) && (a.Kind() == TriggerProvider || b.Kind() == TriggerReceiver) {
		return errs.Logicf(op, errs.CodeIllegalConnection, "trigger endpoints must be connected to their mirror kind")
	}

	if ad.valueType != "" && bd.valueType != "" && ad.valueType != bd.valueType {
		return errs.Logicf(op, errs.CodeTypeMismatch, "cannot connect %s to %s", ad.valueType, bd.valueType)
	}
	if ad.nElements != 0 && bd.nElements != 0 && ad.nElements != bd.nElements {
		return errs.Logicf(op, errs.CodeTypeMismatch, "length mismatch: %d vs %d", ad.nElements, bd.nElements)
	}

	an, bn := ad.network, bd.network
	if ad.kind != TriggerProvider {
		for _, nw := range []*Network{an, bn} {
			if nw == nil {
				continue
			}
			for _, n := range nw.nodes {
				if d := n.desc(); d != ad && d.direction == Feeding && d.kind != TriggerProvider {
					return errs.Logicf(op, errs.CodeIllegalConnection, "network already has feeder %s; cannot also connect %s", descriptorPath(d), descriptorPath(ad))
				}
			}
		}
	}
	switch {
	case an == nil && bn == nil:
		n := NewNetwork()
		if err := n.AddNode(a); err != nil {
			return err
		}
		return n.AddNode(b)
	case an != nil && bn == nil:
		return an.AddNode(b)
	case an == nil && bn != nil:
		return bn.AddNode(a)
	default:
		an.merge(bn)
		return nil
	}
}

// Check validates the network against spec.md §3's invariants: exactly
// one feeder once constants have been materialised is the caller's
// responsibility (freeze time, package runner); Check only validates what
// is already attached — at most one non-trigger feeder, and a consistent
// value type/length across all nodes.
func (net *Network) Check() error {
	const op = "Network.Check"
	var feederPaths []string
	for _, n := range net.nodes {
		d := n.desc()
		if d.direction == Feeding && d.kind != TriggerProvider {
			feederPaths = append(feederPaths, descriptorPath(d))
		}
		if d.valueType != "" && net.valueType != "" && d.valueType != net.valueType {
			return errs.Logicf(op, errs.CodeTypeMismatch, "node value type %s does not match network type %s", d.valueType, net.valueType)
		}
		if d.nElements != 0 && net.nElements != 0 && d.nElements != net.nElements {
			return errs.Logicf(op, errs.CodeTypeMismatch, "node length %d does not match network length %d", d.nElements, net.nElements)
		}
	}
	if len(feederPaths) > 1 {
		return errs.Logicf(op, errs.CodeIllegalConnection, "network has %d feeders, at most one is allowed: %s", len(feederPaths), strings.Join(feederPaths, ", "))
	}
	return nil
}

// GetTriggerType determines how consumers of this network learn of new
// data (spec.md §4.H). Reports an illegal-combination error for an
// external trigger attached to a push feeder.
func (net *Network) GetTriggerType(verbose bool) (TriggerKind, error) {
	var feeder *descriptor
	pollConsumers := 0
	for _, n := range net.nodes {
		d := n.desc()
		if d.direction == Feeding && d.kind != TriggerProvider {
			feeder = d
		}
		if d.direction == Consuming && d.kind == Device && d.updateMode == Poll {
			pollConsumers++
		}
	}
	if feeder == nil {
		return SelfDriven, errs.Logicf("Network.GetTriggerType", errs.CodeIllegalConnection, "network has no feeder")
	}
	if feeder.kind == Device && feeder.updateMode == Push {
		if net.externalTrigger {
			return SelfDriven, errs.Logicf("Network.GetTriggerType", errs.CodeIllegalConnection, "external trigger attached to a push feeder")
		}
		if verbose {
			netLog.Debug().Str("feeder", descriptorPath(feeder)).Msg("push feeder drives directly")
		}
		return SelfDriven, nil
	}
	if net.externalTrigger {
		if verbose {
			netLog.Debug().Str("feeder", descriptorPath(feeder)).Msg("externally triggered")
		}
		return ExternallyTriggered, nil
	}
	if pollConsumers != 1 {
		return PollDriven, errs.Logicf("Network.GetTriggerType", errs.CodeIllegalConnection, "poll-driven network requires exactly one poll consumer, found %d", pollConsumers)
	}
	if verbose {
		netLog.Debug().Str("feeder", descriptorPath(feeder)).Msg("poll consumer drives the network")
	}
	return PollDriven, nil
}

// descriptorPath returns a human-readable identifier for d, used in
// diagnostics and validation errors that need to name a specific node.
func descriptorPath(d *descriptor) string {
	switch d.kind {
	case Device:
		return fmt.Sprintf("%s/%s", d.deviceAlias, d.registerName)
	case ControlSystem:
		return d.publicName
	case Application, Constant:
		if d.valueType != "" {
			return fmt.Sprintf("%s(%s)", kindName(d.kind), d.valueType)
		}
		return kindName(d.kind)
	default:
		return kindName(d.kind)
	}
}

// SetExternalTrigger records that an external TriggerProvider/Receiver
// pair has been wired into this network.
func (net *Network) SetExternalTrigger() { net.externalTrigger = true }

// Dump writes a diagnostic listing of the network's nodes to w, each
// line prefixed by prefix; used for text dumps and as the seed for a
// Graphviz visitor (out of scope here).
func (net *Network) Dump(prefix string, w io.Writer) {
	for _, n := range net.nodes {
		d := n.desc()
		fmt.Fprintf(w, "%s%s dir=%d type=%s len=%d\n", prefix, kindName(d.kind), d.direction, d.valueType, d.nElements)
	}
}

func kindName(k Kind) string {
	switch k {
	case Application:
		return "Application"
	case ControlSystem:
		return "ControlSystem"
	case Device:
		return "Device"
	case Constant:
		return "Constant"
	case TriggerReceiver:
		return "TriggerReceiver"
	case TriggerProvider:
		return "TriggerProvider"
	default:
		return "?"
	}
}
