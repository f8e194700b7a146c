package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"daqcore/internal/errs"
	"daqcore/internal/logx"
	"daqcore/netgraph"
)

// Phase tracks where an Application is in the lifecycle of spec.md §4.J.
type Phase uint8

const (
	Defining Phase = iota
	Frozen
	Running
)

// Application is the runner-facing application: a set of Modules plus
// the networks connecting their accessors, carried through
// define -> freeze -> run (spec.md §4.J).
type Application struct {
	phase   Phase
	modules []Module
	nets    []*netgraph.Network

	log logx.Logger
}

// New creates an empty Application in the Define phase.
func New() *Application {
	return &Application{log: logx.For("runner")}
}

// AddModule registers m to be run as its own goroutine once frozen.
// Must be called during the Define phase.
func (a *Application) AddModule(m Module) error {
	if a.phase != Defining {
		return errs.Logicf("Application.AddModule", errs.CodeIllegalConnection, "modules can only be added while defining")
	}
	a.modules = append(a.modules, m)
	return nil
}

// AddNetwork registers a network built during the Define phase so
// Freeze can validate and materialise it.
func (a *Application) AddNetwork(n *netgraph.Network) error {
	if a.phase != Defining {
		return errs.Logicf("Application.AddNetwork", errs.CodeIllegalConnection, "networks can only be added while defining")
	}
	a.nets = append(a.nets, n)
	return nil
}

// Freeze validates every registered network (spec.md §4.J step 2:
// materialise missing feeders with constants is the caller's
// responsibility during Define — Freeze only validates and locks).
// No further AddModule/AddNetwork calls are permitted after Freeze.
func (a *Application) Freeze() error {
	if a.phase != Defining {
		return errs.Logicf("Application.Freeze", errs.CodeIllegalConnection, "Freeze called outside the define phase")
	}
	for _, n := range a.nets {
		if err := n.Check(); err != nil {
			return err
		}
		if _, err := n.GetTriggerType(false); err != nil {
			return err
		}
	}
	a.phase = Frozen
	return nil
}

// Run spawns one goroutine per module (spec.md §4.J step 3) and blocks
// until ctx is cancelled or a module returns a fatal error, returning
// the first such error (nil on clean shutdown). Exit conditions per
// spec.md §6: callers map a nil error to exit code 0, non-nil to
// non-zero.
func (a *Application) Run(ctx context.Context) error {
	if a.phase != Frozen {
		return errs.Logicf("Application.Run", errs.CodeIllegalConnection, "Run called before Freeze")
	}
	a.phase = Running

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range a.modules {
		m := m
		g.Go(func() error {
			log := a.log.WithNetwork(m.Name())
			log.Info().Msg("module starting")
			err := m.MainLoop(gctx)
			if err != nil && gctx.Err() == nil {
				log.Error().Err(err).Msg("module exited with error")
				return err
			}
			log.Info().Msg("module stopped")
			return nil
		})
	}
	return g.Wait()
}

// Modules returns the registered modules, in the order they were added.
func (a *Application) Modules() []Module { return a.modules }
