package runner

import (
	"context"

	"daqcore/internal/logx"
)

// Module is anything the runner spawns one goroutine for (spec.md §4.J
// step 3, §5 "one thread per ApplicationModule's mainLoop"). Real
// application modules implement MainLoop around accessor read/write
// calls; the loop is cooperative and only suspends at those calls.
type Module interface {
	Name() string
	MainLoop(ctx context.Context) error
}

// ConvertingAdapter is the typed adapter thread spec.md §4.J spawns when
// a feeder and consumer in the same network do not share an exact type:
// it reads the feeder's native type, converts, and pushes the converted
// value into the consumer-facing queue. One instance per mismatched
// network.
type ConvertingAdapter[From, To any] struct {
	name    string
	convert func(From) To
	in      *BoundedQueue[From]
	out     *BoundedQueue[To]
}

// NewConvertingAdapter builds an adapter thread named name that pulls
// from in, applies convert, and pushes into out.
func NewConvertingAdapter[From, To any](name string, in *BoundedQueue[From], out *BoundedQueue[To], convert func(From) To) *ConvertingAdapter[From, To] {
	return &ConvertingAdapter[From, To]{name: name, convert: convert, in: in, out: out}
}

func (a *ConvertingAdapter[From, To]) Name() string { return a.name }

// MainLoop pulls values until ctx is cancelled, converting and
// forwarding each one; a dropped push (full consumer queue) is a
// data-loss event, already accounted for by BoundedQueue.TryPush.
func (a *ConvertingAdapter[From, To]) MainLoop(ctx context.Context) error {
	log := logx.For("runner.convertingAdapter")
	for {
		v, ok := a.in.Pop(ctx.Done())
		if !ok {
			log.Debug().Str("adapter", a.name).Msg("stopping on shutdown")
			return ctx.Err()
		}
		a.out.TryPush(a.convert(v))
	}
}
