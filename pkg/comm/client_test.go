package comm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

type pipeConn struct {
	io.Reader
	io.Writer
}

func expectEvent(t *testing.T, c *Client, expected Packet) {
	select {
	case p := <-c.EventChan():
		require.Equal(t, expected, p)
	case <-time.After(time.Second):
		t.Fatalf("expect event %T", expected)
	}
}

func TestClientWithLink(t *testing.T) {
	hostR, linkW := io.Pipe()
	linkR, hostW := io.Pipe()
	defer hostW.Close()
	defer linkW.Close()

	queue := telemetry.NewQueue(4)
	queue.Push(testSnapshot(1))
	pump := NewPump(linkR, 64)
	link := NewLink(linkW, pump, queue, sensor.DefaultInventory())
	calibrator := &testCalibrator{}
	link.Calibrator = calibrator
	client := NewClient(pipeConn{Reader: hostR, Writer: hostW})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)
	go link.Run(ctx)
	go client.Run(ctx)

	expectEvent(t, client, ControllerReady{})

	require.NoError(t, client.Ready(ctx))

	data, err := client.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, data, 5)
	require.Equal(t, "Feed Level Sensor L1", data[0].Name)
	require.Equal(t, sensor.IntValue(1200), data[0].Readings[0].Value)
	require.Equal(t, sensor.StatusDisconnected, data[1].Status)

	one, err := client.Get(ctx, sensor.PodL)
	require.NoError(t, err)
	require.Equal(t, sensor.IntValue(900), one.Readings[3].Value)

	_, err = client.Get(ctx, 9)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, ResponseSensorNotFound, cmdErr.Code)

	descs, err := client.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, descs, 5)

	require.NoError(t, client.Calibrate(ctx, sensor.SonarR1, sensor.FloatValue(20)))
	require.Equal(t, []calibration{{id: sensor.SonarR1, value: sensor.FloatValue(20)}}, calibrator.calls)
}

func TestClientNoReply(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	client := NewClient(pipeConn{Reader: r, Writer: io.Discard})
	client.Timeout = 20 * time.Millisecond
	_, err := client.Do(context.Background(), NewFrame(GetSensorsReady))
	require.ErrorIs(t, err, ErrNoReply)
}

func TestClientResynchronizes(t *testing.T) {
	client := NewClient(pipeConn{})
	heartbeat := encodePacket(t, Heartbeat{})
	stream := append([]byte{0x00, 0x93}, heartbeat[:7]...)

	rest := client.process(stream)
	require.Equal(t, heartbeat[:7], rest)
	require.Empty(t, client.EventChan())

	rest = client.process(append(rest, heartbeat[7:]...))
	require.Empty(t, rest)
	expectEvent(t, client, Heartbeat{})
}

func TestClientSkipsOversizedHeaders(t *testing.T) {
	client := NewClient(pipeConn{})
	heartbeat := encodePacket(t, Heartbeat{})

	// A map whose key claims ~4GB, then three valid packets.
	stream := []byte{0x81, 0xdb, 0xff, 0xff, 0xff, 0xf0}
	for n := 0; n < 3; n++ {
		stream = append(stream, heartbeat...)
	}
	rest := client.process(stream)
	require.Empty(t, rest)
	for n := 0; n < 3; n++ {
		expectEvent(t, client, Heartbeat{})
	}
}

func TestClientBoundsIncompletePacket(t *testing.T) {
	client := NewClient(pipeConn{})
	// 500 fields declared, only 400 present: it can't be a packet.
	stream := append([]byte{0xde, 0x01, 0xf4}, fixstr("packet_id")...)
	stream = append(stream, byte(SensorDataPacket))
	for n := 0; n < 400; n++ {
		stream = append(stream, 0xa1, 'a', 0x00)
	}
	require.GreaterOrEqual(t, len(stream), OutputBufferSize)

	_, _, err := DecodePacket(stream)
	require.ErrorIs(t, err, ErrMalformedPacket)
	require.False(t, IsShort(err))
	_, _, err = DecodePacket(stream[:100])
	require.True(t, IsShort(err))

	heartbeat := encodePacket(t, Heartbeat{})
	rest := client.process(append(stream, heartbeat...))
	require.Less(t, len(rest), OutputBufferSize)
	expectEvent(t, client, Heartbeat{})
}

func TestClientIgnoresOtherCommands(t *testing.T) {
	client := NewClient(pipeConn{})
	cmd := &pendingCommand{command: GetSensorValue, resultCh: make(chan Result, 1)}
	client.pending = cmd

	var stream []byte
	for _, p := range []Packet{
		TerminatorFor(GetSensorValue),
		Header{Command: GetAllSensorValues},
		TerminatorFor(GetAllSensorValues),
		Header{Command: GetSensorValue},
		Heartbeat{},
		Terminator{Code: byte(HeartbeatPacket)},
		TerminatorFor(GetSensorValue),
	} {
		stream = append(stream, encodePacket(t, p)...)
	}
	client.process(stream)

	result := <-cmd.resultCh
	require.NoError(t, result.Err)
	require.Equal(t, &Response{
		Header:     Header{Command: GetSensorValue},
		Terminator: TerminatorFor(GetSensorValue),
	}, result.Response)
	expectEvent(t, client, Heartbeat{})
}
