package runner

import (
	"context"

	"daqcore/internal/logx"
)

// DataLossCounterModule samples and resets the process-wide data-loss
// counter once per external trigger, publishing the two outputs the
// original's DataLossCounter module exposes (SPEC_FULL §4): the count
// lost on the most recent trigger, and the running count of triggers
// that lost at least one value.
type DataLossCounterModule struct {
	name    string
	trigger *BoundedQueue[struct{}]

	LostInLastTrigger func(uint64)
	TriggersWithLoss  func(uint64)

	triggersWithLoss uint64
}

// NewDataLossCounterModule creates the module; trigger is the queue its
// own network wiring pushes an empty struct{} into on each external
// trigger firing.
func NewDataLossCounterModule(name string, trigger *BoundedQueue[struct{}]) *DataLossCounterModule {
	return &DataLossCounterModule{name: name, trigger: trigger}
}

func (m *DataLossCounterModule) Name() string { return m.name }

// MainLoop blocks on the trigger queue, samples-and-resets the counter
// on each firing, and publishes both outputs if wired.
func (m *DataLossCounterModule) MainLoop(ctx context.Context) error {
	log := logx.For("runner.dataLossCounter")
	for {
		_, ok := m.trigger.Pop(ctx.Done())
		if !ok {
			return ctx.Err()
		}
		lost := SampleAndResetDataLoss()
		if lost > 0 {
			m.triggersWithLoss++
			log.Warn().Uint64("lost", lost).Msg("data loss since last trigger")
		}
		if m.LostInLastTrigger != nil {
			m.LostInLastTrigger(lost)
		}
		if m.TriggersWithLoss != nil {
			m.TriggersWithLoss(m.triggersWithLoss)
		}
	}
}
