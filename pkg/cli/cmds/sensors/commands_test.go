package sensors

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/calibration"
	"github.com/autobloomer/sensorcore/pkg/cli/sh"
	"github.com/autobloomer/sensorcore/pkg/comm"
	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

type pipeConn struct {
	io.Reader
	io.Writer
}

type calibrationTarget struct {
	applied []sensor.Value
}

func (c *calibrationTarget) ApplyCalibration(v sensor.Value) {
	c.applied = append(c.applied, v)
}

func startController(t *testing.T) (*comm.Client, *calibrationTarget) {
	hostR, linkW := io.Pipe()
	linkR, hostW := io.Pipe()
	t.Cleanup(func() {
		hostW.Close()
		linkW.Close()
	})

	defs := sensor.DefaultInventory()
	s := sensor.EmptySnapshot(defs)
	s.Entries[sensor.SonarL1].Status = sensor.StatusValidData
	s.Entries[sensor.SonarL1].Reading = sensor.SonarReading{DistanceMM: 850}
	queue := telemetry.NewQueue(2)
	queue.Push(s)

	manager, err := calibration.NewManager(defs, &calibration.MemStore{})
	require.NoError(t, err)
	target := &calibrationTarget{}
	manager.Attach(sensor.SonarL1, target)

	pump := comm.NewPump(linkR, 64)
	link := comm.NewLink(linkW, pump, queue, defs)
	link.Calibrator = manager
	client := comm.NewClient(pipeConn{Reader: hostR, Writer: hostW})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go pump.Run(ctx)
	go link.Run(ctx)
	go client.Run(ctx)
	return client, target
}

func TestCommands(t *testing.T) {
	client, target := startController(t)
	ctx := context.Background()

	res, err := Ready(ctx, client)
	require.NoError(t, err)
	require.Equal(t, "ready\n", res.Text())

	res, err = All(ctx, client)
	require.NoError(t, err)
	list := res.(SensorList)
	require.Len(t, list, 5)
	require.Equal(t, "Connected, data ready", list[0].Status)
	require.True(t, list[0].Calibratable)
	require.Equal(t, ReadingView{Name: "Distance (mm)", Type: "int", Value: uint16(850)}, list[0].Readings[0])
	require.Contains(t, res.Text(), "[0] Feed Level Sensor L1: Connected, data ready\n    Distance (mm) = 850\n")

	out, err := json.Marshal(list[:1])
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":0,"name":"Feed Level Sensor L1","status":"Connected, data ready",
		"has_data":true,"calibratable":true,
		"readings":[{"name":"Distance (mm)","type":"int","value":850}]}]`, string(out))

	get, err := Get([]string{"2", "0x4"})
	require.NoError(t, err)
	res, err = get(ctx, client)
	require.NoError(t, err)
	list = res.(SensorList)
	require.Len(t, list, 2)
	require.Equal(t, "Sensor Pod L", list[0].Name)
	require.Equal(t, "Disconnected", list[1].Status)

	get, err = Get([]string{"9"})
	require.NoError(t, err)
	_, err = get(ctx, client)
	var cmdErr *comm.CommandError
	require.ErrorAs(t, err, &cmdErr)

	res, err = Describe(ctx, client)
	require.NoError(t, err)
	require.Len(t, res.(DescriptionList), 5)
	require.Contains(t, res.Text(), "calibration: float")

	cal, err := Calibrate([]string{"0", "float", "12.5"})
	require.NoError(t, err)
	res, err = cal(ctx, client)
	require.NoError(t, err)
	require.Nil(t, res)
	require.Equal(t, []sensor.Value{sensor.FloatValue(12.5)}, target.applied)

	cal, err = Calibrate([]string{"2", "float", "1"})
	require.NoError(t, err)
	_, err = cal(ctx, client)
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, comm.ResponseCalibrationRejected, cmdErr.Code)
}

func TestCommandArgs(t *testing.T) {
	testCases := []struct {
		name  string
		build func([]string) (sh.CommandFunc, error)
		args  []string
	}{
		{"get without id", Get, nil},
		{"get bad id", Get, []string{"x"}},
		{"calibrate missing value", Calibrate, []string{"0", "float"}},
		{"calibrate bad type", Calibrate, []string{"0", "string", "1"}},
		{"calibrate bad value", Calibrate, []string{"0", "int", "-1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build(tc.args)
			require.Error(t, err)
		})
	}
}
