package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/acquisition"
	"github.com/autobloomer/sensorcore/pkg/calibration"
	"github.com/autobloomer/sensorcore/pkg/comm"
	"github.com/autobloomer/sensorcore/pkg/config"
	fx "github.com/autobloomer/sensorcore/pkg/framework"
	"github.com/autobloomer/sensorcore/pkg/publish/mqtt"
	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/serial"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

var flags *config.Flags

func init() {
	flags = config.SetupFlags(nil)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := flags.Load()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	if err = run(conf); err != nil {
		glog.Exit(err)
	}
}

func run(conf *config.Config) error {
	defs := sensor.DefaultInventory()
	b, err := newBoard(conf, defs)
	if err != nil {
		return err
	}
	defer b.Close()

	registry, err := sensor.NewRegistry(defs, b.drivers, b.monitor)
	if err != nil {
		return err
	}
	manager, err := calibration.NewManager(defs, &calibration.FileStore{Path: conf.CalibrationFile})
	if err != nil {
		return err
	}
	for id, target := range b.calibratables {
		manager.Attach(id, target)
	}

	runner := fx.NewRunner().HandleSignals()
	var sinks telemetry.Fanout

	if conf.Link.Device != "" {
		port, err := serial.Open(conf.Link.Config)
		if err != nil {
			return err
		}
		defer port.Close()
		queue := telemetry.NewQueue(conf.QueueCapacity(len(defs)))
		sinks = append(sinks, queue)
		pump := comm.NewPump(port, comm.OutputBufferSize/8)
		link := comm.NewLink(port, pump, queue, defs)
		link.Calibrator = manager
		link.HeartbeatInterval = conf.Link.HeartbeatInterval
		runner.Go(fx.NamedRun("link pump", pump), fx.NamedRun("link", link))
	}

	if conf.MQTT.URL != "" {
		mq, err := mqtt.NewQueueFromURL(conf.MQTT.URL, conf.DeviceID)
		if err != nil {
			return err
		}
		queue := telemetry.NewQueue(conf.QueueCapacity(len(defs)))
		sinks = append(sinks, queue)
		pub := mqtt.NewPublisher(queue, mq)
		pub.Interval = conf.MQTT.Interval
		pub.TopicRoot = conf.MQTT.TopicRoot
		pub.Watch(mq)
		mq.Connect()
		defer mq.Close()
		runner.Go(fx.NamedRun("mqtt", pub))
	}

	acq := &acquisition.Acquisition{
		Monitor:    b.monitor,
		Bus:        b.session,
		Registry:   registry,
		Indicators: b.indicators,
		Sink:       sinks,
	}
	loop := fx.NewLoop(conf.Acquisition.Interval).Add(acq)
	loop.AddRunnable(b.runnables...)
	runner.Go(fx.NamedRun("acquisition", loop))

	glog.Infof("sensord %s: %d sensors, link %q, mqtt %q", conf.DeviceID, len(defs), conf.Link.Device, conf.MQTT.URL)
	return runner.Wait()
}
