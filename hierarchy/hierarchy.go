// Package hierarchy implements the module hierarchy of spec.md §4.I: a
// static tree whose leaves are accessors (netgraph Application nodes),
// rooted at one Application, with ownership rules enforced at
// construction and a tag-filtered virtual-tree view for diagnostics and
// selective I/O.
package hierarchy

import (
	"context"
	"regexp"
	"slices"
	"sort"

	"golang.org/x/exp/maps"

	"daqcore/internal/errs"
	"daqcore/internal/notify"
	"daqcore/netgraph"
)

// Modifier selects how a node's qualified name is rewritten during
// virtual-tree traversal (spec.md §4.I). FindTag/ExcludeTag act on two of
// them: HideThis leaves this level's name out of its own and its
// children's qualified names, and OneUpAndHide leaves it out of its
// children's qualified names only. OneLevelUp and MoveToRoot do not change
// qualified names; such a node is named as under None.
type Modifier uint8

const (
	None Modifier = iota
	HideThis
	OneLevelUp
	OneUpAndHide
	MoveToRoot
)

// Owner is the common parent capability every node type accepts.
type Owner interface {
	addChild(n Node)
}

// Node is any member of the hierarchy tree.
type Node interface {
	Name() string
	Tags() map[string]struct{}
	Modifier() Modifier
	children() []Node
}

type base struct {
	name     string
	tags     map[string]struct{}
	modifier Modifier
	kids     []Node
}

func (b *base) Name() string            { return b.name }
func (b *base) Tags() map[string]struct{} { return b.tags }
func (b *base) Modifier() Modifier      { return b.modifier }
func (b *base) children() []Node        { return b.kids }
func (b *base) addChild(n Node)         { b.kids = append(b.kids, n) }

func hasTag(n Node, tag string) bool {
	_, ok := n.Tags()[tag]
	return ok
}

// Application is the hierarchy root.
type Application struct {
	base
}

// NewApplication creates the tree root.
func NewApplication(name string) *Application {
	return &Application{base{name: name, tags: map[string]struct{}{}}}
}

// ModuleGroup is an internal tree node that may own ApplicationModules or
// other ModuleGroups (spec.md §4.I ownership rules).
type ModuleGroup struct {
	base
}

// NewModuleGroup creates a ModuleGroup owned by owner, which must be an
// *Application or *ModuleGroup.
func NewModuleGroup(owner Owner, name string, mod Modifier) (*ModuleGroup, error) {
	if err := validateGroupOwner(owner); err != nil {
		return nil, err
	}
	g := &ModuleGroup{base{name: name, tags: map[string]struct{}{}, modifier: mod}}
	owner.addChild(g)
	return g, nil
}

func validateGroupOwner(owner Owner) error {
	switch owner.(type) {
	case *Application, *ModuleGroup:
		return nil
	default:
		return errs.Logicf("hierarchy.NewModuleGroup", errs.CodeIllegalConnection, "a ModuleGroup must be owned by an Application or another ModuleGroup")
	}
}

// ApplicationModule owns accessors (leaves) and VariableGroups.
type ApplicationModule struct {
	base
	accessors []netgraph.Node
}

// NewApplicationModule creates an ApplicationModule owned by owner, which
// must be an *Application or *ModuleGroup.
func NewApplicationModule(owner Owner, name string, mod Modifier) (*ApplicationModule, error) {
	switch owner.(type) {
	case *Application, *ModuleGroup:
	default:
		return nil, errs.Logicf("hierarchy.NewApplicationModule", errs.CodeIllegalConnection, "an ApplicationModule must be owned by an Application or a ModuleGroup")
	}
	m := &ApplicationModule{base: base{name: name, tags: map[string]struct{}{}, modifier: mod}}
	owner.addChild(m)
	return m, nil
}

// AddAccessor attaches leaf n (a netgraph Application node) to this module.
func (m *ApplicationModule) AddAccessor(n netgraph.Node) error {
	if n.Kind() != netgraph.Application {
		return errs.Logicf("ApplicationModule.AddAccessor", errs.CodeIllegalConnection, "only Application nodes may be added as accessors")
	}
	m.accessors = append(m.accessors, n)
	return nil
}

func (m *ApplicationModule) Accessors() []netgraph.Node { return m.accessors }

// VariableGroup groups accessors and other VariableGroups under an
// ApplicationModule.
type VariableGroup struct {
	base
	accessors []netgraph.Node
}

// NewVariableGroup creates a VariableGroup owned by owner, which must be
// an *ApplicationModule or another *VariableGroup.
func NewVariableGroup(owner Owner, name string, mod Modifier) (*VariableGroup, error) {
	switch owner.(type) {
	case *ApplicationModule, *VariableGroup:
	default:
		return nil, errs.Logicf("hierarchy.NewVariableGroup", errs.CodeIllegalConnection, "a VariableGroup must be owned by an ApplicationModule or another VariableGroup")
	}
	g := &VariableGroup{base: base{name: name, tags: map[string]struct{}{}, modifier: mod}}
	owner.addChild(g)
	return g, nil
}

func (g *VariableGroup) AddAccessor(n netgraph.Node) error {
	if n.Kind() != netgraph.Application {
		return errs.Logicf("VariableGroup.AddAccessor", errs.CodeIllegalConnection, "only Application nodes may be added as accessors")
	}
	g.accessors = append(g.accessors, n)
	return nil
}

func (g *VariableGroup) Accessors() []netgraph.Node { return g.accessors }

// VirtualNode is one entry of a findTag/excludeTag projection: a
// qualified name (already rewritten per the modifier chain) paired with
// the accessors that matched at or under that point.
type VirtualNode struct {
	QualifiedName string
	Accessors     []netgraph.Node
	Children      []*VirtualNode
}

// FindTag builds a virtual tree containing only the accessors whose tag
// set matches re, eliding any module that ends up with no matching
// descendants (spec.md §4.I).
func FindTag(root *Application, re *regexp.Regexp) *VirtualNode {
	return project(root, "", re, true)
}

// ExcludeTag is FindTag's complement.
func ExcludeTag(root *Application, re *regexp.Regexp) *VirtualNode {
	return project(root, "", re, false)
}

func project(n Node, parentPrefix string, re *regexp.Regexp, include bool) *VirtualNode {
	qn := qualify(parentPrefix, n)
	vn := &VirtualNode{QualifiedName: qn}

	if acc := accessorsOf(n); acc != nil {
		for _, a := range acc {
			if matches(a, re) == include {
				vn.Accessors = append(vn.Accessors, a)
			}
		}
	}

	childPrefix := qn
	if n.Modifier() == HideThis || n.Modifier() == OneUpAndHide {
		childPrefix = parentPrefix
	}
	for _, c := range n.children() {
		if cvn := project(c, childPrefix, re, include); cvn != nil {
			vn.Children = append(vn.Children, cvn)
			vn.Accessors = append(vn.Accessors, cvn.Accessors...)
		}
	}

	if len(vn.Accessors) == 0 && len(vn.Children) == 0 {
		return nil
	}
	return vn
}

func qualify(parentPrefix string, n Node) string {
	switch n.Modifier() {
	case HideThis:
		return parentPrefix
	default:
		if parentPrefix == "" {
			return n.Name()
		}
		return parentPrefix + "/" + n.Name()
	}
}

func accessorsOf(n Node) []netgraph.Node {
	switch t := n.(type) {
	case *ApplicationModule:
		return t.accessors
	case *VariableGroup:
		return t.accessors
	default:
		return nil
	}
}

// TagNames returns n's tag set as a sorted slice, for deterministic
// diagnostic output over the otherwise unordered tag map.
func TagNames(n netgraph.Node) []string {
	names := slices.Collect(maps.Keys(n.Tags()))
	sort.Strings(names)
	return names
}

func matches(n netgraph.Node, re *regexp.Regexp) bool {
	for tag := range n.Tags() {
		if re.MatchString(tag) {
			return true
		}
	}
	return false
}

// ReadAll walks the consuming accessors directly owned by m and returns
// ctx.Err() once ctx is done. It performs no transfers: it neither blocks
// on push-type consumers nor drains poll-type ones, and
// includeReturnChannels has no effect.
func (m *ApplicationModule) ReadAll(ctx context.Context, includeReturnChannels bool) error {
	_ = includeReturnChannels
	for _, n := range m.accessors {
		if n.Direction() != netgraph.Consuming {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// WriteAll walks the feeding accessors directly owned by m and returns
// ctx.Err() once ctx is done. It performs no transfers and mints no
// version number.
func (m *ApplicationModule) WriteAll(ctx context.Context) error {
	for _, n := range m.accessors {
		if n.Direction() != netgraph.Feeding {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// ReadAnyGroup returns a Subscription to the multi-level wildcard topic of
// hub, so it receives every event published there. m is not consulted: the
// subscription is not limited to the push-type inputs under m.
func ReadAnyGroup(hub *notify.Hub, m *ApplicationModule) *notify.Subscription {
	return hub.Subscribe(notify.Topic{notify.Multi})
}
