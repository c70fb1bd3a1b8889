// Package sensors adds the sensor controller commands to the shell.
package sensors

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/autobloomer/sensorcore/pkg/cli/sh"
	"github.com/autobloomer/sensorcore/pkg/comm"
	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// ReadingView is a reading for display.
type ReadingView struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// SensorView is a sensor's data for display.
type SensorView struct {
	ID           uint8         `json:"id"`
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	HasData      bool          `json:"has_data"`
	Calibratable bool          `json:"calibratable,omitempty"`
	Readings     []ReadingView `json:"readings"`
}

// SensorList is the result of reading several sensors.
type SensorList []SensorView

// Text implements sh.Printable.
func (l SensorList) Text() string {
	var sb strings.Builder
	for _, v := range l {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", v.ID, v.Name, v.Status)
		for _, r := range v.Readings {
			fmt.Fprintf(&sb, "    %s = %v\n", r.Name, r.Value)
		}
	}
	return sb.String()
}

// DescriptionList is the result of GetSensorDescriptions.
type DescriptionList []comm.SensorDescription

// Text implements sh.Printable.
func (l DescriptionList) Text() string {
	var sb strings.Builder
	for _, d := range l {
		fmt.Fprintf(&sb, "[%d] %s (%s, %s)\n", d.SensorID, d.Name, d.Kind, d.Location)
		for _, r := range d.Readings {
			fmt.Fprintf(&sb, "    %s: %s [%v, %v]\n", r.Name, r.Type, r.Min, r.Max)
		}
		if c := d.Calibration; c != nil && c.Calibratable {
			fmt.Fprintf(&sb, "    calibration: %s [%v, %v]\n", c.Type, c.Min, c.Max)
		}
	}
	return sb.String()
}

// ReadyResult is the result of GetSensorsReady.
type ReadyResult struct {
	Ready bool `json:"ready"`
}

// Text implements sh.Printable.
func (r ReadyResult) Text() string {
	if r.Ready {
		return "ready\n"
	}
	return "not ready\n"
}

func valueOf(v sensor.Value) interface{} {
	switch v.Type {
	case sensor.TypeInt:
		return v.Int
	case sensor.TypeFloat:
		return v.Float
	case sensor.TypeBool:
		return v.Bool
	}
	return nil
}

// ViewOf converts a SensorData packet for display.
func ViewOf(d comm.SensorData) SensorView {
	v := SensorView{
		ID:           uint8(d.SensorID),
		Name:         d.Name,
		Status:       d.Status.String(),
		HasData:      d.Status.HasData(),
		Calibratable: d.Calibration != nil && d.Calibration.Calibratable,
		Readings:     make([]ReadingView, len(d.Readings)),
	}
	for n, r := range d.Readings {
		v.Readings[n] = ReadingView{
			Name:  r.Description.Name,
			Type:  r.Value.Type.String(),
			Value: valueOf(r.Value),
		}
	}
	return v
}

func listOf(data []comm.SensorData) SensorList {
	l := make(SensorList, len(data))
	for n, d := range data {
		l[n] = ViewOf(d)
	}
	return l
}

func parseID(s string) (sensor.ID, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return sensor.ID(n), nil
}

// Ready reports whether the controller answers GetSensorsReady.
func Ready(ctx context.Context, client *comm.Client) (sh.Printable, error) {
	if err := client.Ready(ctx); err != nil {
		return nil, err
	}
	return ReadyResult{Ready: true}, nil
}

// All reads all sensors.
func All(ctx context.Context, client *comm.Client) (sh.Printable, error) {
	data, err := client.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return listOf(data), nil
}

// Describe reads the sensor descriptions.
func Describe(ctx context.Context, client *comm.Client) (sh.Printable, error) {
	descs, err := client.Describe(ctx)
	if err != nil {
		return nil, err
	}
	return DescriptionList(descs), nil
}

// Get returns a command reading the sensors in args.
func Get(args []string) (sh.CommandFunc, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("ID required")
	}
	ids := make([]sensor.ID, len(args))
	for n, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids[n] = id
	}
	return func(ctx context.Context, client *comm.Client) (sh.Printable, error) {
		var l SensorList
		for _, id := range ids {
			d, err := client.Get(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("sensor %d: %w", id, err)
			}
			l = append(l, ViewOf(d))
		}
		return l, nil
	}, nil
}

// Calibrate returns a command sending ID TYPE VALUE.
func Calibrate(args []string) (sh.CommandFunc, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("ID TYPE VALUE required")
	}
	id, err := parseID(args[0])
	if err != nil {
		return nil, err
	}
	typ, err := sensor.ParseValueType(args[1])
	if err != nil {
		return nil, err
	}
	v, err := sensor.ParseValue(typ, args[2])
	if err != nil {
		return nil, fmt.Errorf("invalid VALUE: %w", err)
	}
	return func(ctx context.Context, client *comm.Client) (sh.Printable, error) {
		return nil, client.Calibrate(ctx, id, v)
	}, nil
}

func withArgs(build func([]string) (sh.CommandFunc, error)) func(c *ishell.Context) {
	return sh.MustBeConnected(func(c *ishell.Context) {
		run, err := build(c.Args)
		if err != nil {
			c.Err(err)
			return
		}
		sh.DoCommand(c, run)
	})
}

var (
	// AllCmd exposes GetAllSensorValues.
	AllCmd = ishell.Cmd{
		Name:    "all",
		Aliases: []string{"a"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, All)
		}),
	}

	// GetCmd exposes GetSensorValue.
	GetCmd = ishell.Cmd{
		Name:    "get",
		Aliases: []string{"g"},
		Help:    "ID...",
		Func:    withArgs(Get),
	}

	// ReadyCmd exposes GetSensorsReady.
	ReadyCmd = ishell.Cmd{
		Name: "ready",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, Ready)
		}),
	}

	// DescribeCmd exposes GetSensorDescriptions.
	DescribeCmd = ishell.Cmd{
		Name:    "describe",
		Aliases: []string{"desc"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, Describe)
		}),
	}

	// CalibrateCmd exposes CalibrateSensor.
	CalibrateCmd = ishell.Cmd{
		Name:    "calibrate",
		Aliases: []string{"cal"},
		Help:    "ID TYPE(int|float|bool) VALUE",
		Func:    withArgs(Calibrate),
	}
)

func init() {
	sh.AddCmds(
		&AllCmd,
		&GetCmd,
		&ReadyCmd,
		&DescribeCmd,
		&CalibrateCmd,
	)
}
