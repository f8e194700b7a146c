package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDataLossCounterModuleSamplesOnTrigger(t *testing.T) {
	SampleAndResetDataLoss() // clear any residue from other tests in this package

	q := NewBoundedQueue[int](3)
	for i := 0; i < 10; i++ {
		q.TryPush(i)
	}
	require.Equal(t, uint64(7), DataLoss())

	trigger := NewBoundedQueue[struct{}](1)
	var lastLost uint64
	var triggersWithLoss uint64
	m := NewDataLossCounterModule("dataLossCounter", trigger)
	m.LostInLastTrigger = func(n uint64) { lastLost = n }
	m.TriggersWithLoss = func(n uint64) { triggersWithLoss = n }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.MainLoop(ctx)

	trigger.TryPush(struct{}{})
	require.Eventually(t, func() bool { return lastLost == 7 }, time.Second, time.Millisecond)
	require.Equal(t, uint64(1), triggersWithLoss)
	require.Equal(t, uint64(0), DataLoss())
}
