package netgraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectCreatesSharedNetwork(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Poll, "float64", 4)
	consumer := NewApplication("acc-ref", "float64", 4)

	require.NoError(t, Connect(feeder, consumer))
	require.NotNil(t, feeder.Network())
	require.Same(t, feeder.Network(), consumer.Network())
}

func TestConnectInfersDirections(t *testing.T) {
	a := NewConstant("zero", "float64", 1)
	b := NewApplication("acc-ref", "float64", 1)
	require.NoError(t, Connect(a, b))
	require.Equal(t, Feeding, a.Direction())
	require.Equal(t, Consuming, b.Direction())
}

func TestConnectRejectsTwoFeeders(t *testing.T) {
	a := NewDevice("adc0", "readout", Poll, "float64", 1)
	b := NewDevice("adc1", "readout", Poll, "float64", 1)
	require.NoError(t, Connect(a, b)) // a feeds b: legal on its own

	// b's direction is already fixed as Consuming from the first Connect,
	// so using it as a feeder here must fail.
	c := NewApplication("acc-ref", "float64", 1)
	require.Error(t, Connect(b, c))
}

func TestConnectRejectsTypeMismatch(t *testing.T) {
	a := NewDevice("adc0", "readout", Poll, "int32", 1)
	b := NewApplication("acc-ref", "float64", 1)
	require.Error(t, Connect(a, b))
}

func TestConnectRejectsLengthMismatch(t *testing.T) {
	a := NewDevice("adc0", "readout", Poll, "float64", 4)
	b := NewApplication("acc-ref", "float64", 2)
	require.Error(t, Connect(a, b))
}

func TestMergeAbsorbsNodesAndLockedType(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Poll, "float64", 2)
	consumer := NewApplication("acc-ref", "float64", 2)
	require.NoError(t, Connect(feeder, consumer))
	net1 := feeder.Network()

	tp := NewTriggerProvider()
	tr := NewTriggerReceiver()
	tp.desc().direction, tr.desc().direction = Feeding, Consuming
	net2 := NewNetwork()
	require.NoError(t, net2.AddNode(tp))
	require.NoError(t, net2.AddNode(tr))

	net1.merge(net2)

	require.Same(t, net1, tp.Network())
	require.Same(t, net1, tr.Network())
	require.Empty(t, net2.nodes)
}

func TestNetworkCheckRejectsMultipleFeeders(t *testing.T) {
	net := NewNetwork()
	a := NewDevice("adc0", "readout", Poll, "float64", 1)
	b := NewDevice("adc1", "readout", Poll, "float64", 1)
	a.desc().direction = Feeding
	b.desc().direction = Feeding
	require.NoError(t, net.AddNode(a))
	require.NoError(t, net.AddNode(b))

	err := net.Check()
	require.Error(t, err)
	require.Contains(t, err.Error(), "adc0/readout")
	require.Contains(t, err.Error(), "adc1/readout")
}

func TestGetTriggerTypePushFeeder(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Push, "float64", 1)
	consumer := NewApplication("acc-ref", "float64", 1)
	require.NoError(t, Connect(feeder, consumer))

	kind, err := feeder.Network().GetTriggerType(false)
	require.NoError(t, err)
	require.Equal(t, SelfDriven, kind)
}

func TestGetTriggerTypeExternalOnPushFeederIsIllegal(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Push, "float64", 1)
	consumer := NewApplication("acc-ref", "float64", 1)
	require.NoError(t, Connect(feeder, consumer))
	feeder.Network().SetExternalTrigger()

	_, err := feeder.Network().GetTriggerType(false)
	require.Error(t, err)
}

func TestGetTriggerTypePollDrivenWithOneConsumer(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Poll, "float64", 1)
	feeder.desc().direction = Feeding
	consumer := NewDevice("dac0", "output", Poll, "float64", 1)
	consumer.desc().direction = Consuming
	net := NewNetwork()
	require.NoError(t, net.AddNode(feeder))
	require.NoError(t, net.AddNode(consumer))

	kind, err := net.GetTriggerType(true)
	require.NoError(t, err)
	require.Equal(t, PollDriven, kind)
}

func TestGetTriggerTypePollDrivenRejectsWrongConsumerCount(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Poll, "float64", 1)
	app := NewApplication("acc-ref", "float64", 1)
	require.NoError(t, Connect(feeder, app))
	_, err := feeder.Network().GetTriggerType(false)
	require.Error(t, err)

	feeder2 := NewDevice("adc1", "readout", Poll, "float64", 1)
	feeder2.desc().direction = Feeding
	c1 := NewDevice("dac0", "out0", Poll, "float64", 1)
	c1.desc().direction = Consuming
	c2 := NewDevice("dac1", "out1", Poll, "float64", 1)
	c2.desc().direction = Consuming
	net2 := NewNetwork()
	require.NoError(t, net2.AddNode(feeder2))
	require.NoError(t, net2.AddNode(c1))
	require.NoError(t, net2.AddNode(c2))
	_, err = net2.GetTriggerType(false)
	require.Error(t, err)
}

func TestWithTriggerMemoisesCopy(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Poll, "float64", 1)
	trigger := NewTriggerProvider()

	first := feeder.WithTrigger(trigger)
	second := feeder.WithTrigger(trigger)
	require.Equal(t, first, second)
}

func TestDumpWritesOneLinePerNode(t *testing.T) {
	feeder := NewDevice("adc0", "readout", Poll, "float64", 1)
	consumer := NewApplication("acc-ref", "float64", 1)
	require.NoError(t, Connect(feeder, consumer))

	var buf bytes.Buffer
	feeder.Network().Dump("  ", &buf)
	require.Contains(t, buf.String(), "Device")
	require.Contains(t, buf.String(), "Application")
}

func TestSetMetaDataOnlyOnApplication(t *testing.T) {
	dev := NewDevice("adc0", "readout", Poll, "float64", 1)
	require.Error(t, dev.SetMetaData("V", "voltage"))

	app := NewApplication("acc-ref", "float64", 1)
	require.NoError(t, app.SetMetaData("V", "voltage"))
	require.NoError(t, app.AddTag("diagnostic"))
	require.Contains(t, app.Tags(), "diagnostic")
}
