package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

// DefaultHeartbeatInterval is the idle time before a Heartbeat is sent.
const DefaultHeartbeatInterval = 5 * time.Second

// ByteSource provides received bytes without blocking.
type ByteSource interface {
	// TryReadByte returns the next byte if one is buffered.
	TryReadByte() (byte, bool)
	// Buffered returns the number of bytes available.
	Buffered() int
	// Ready is signaled when new bytes arrive.
	Ready() <-chan struct{}
}

// Calibrator applies a calibration value to a sensor.
// It returns an error wrapping sensor.ErrNotFound for unknown sensors.
type Calibrator interface {
	Calibrate(id sensor.ID, v sensor.Value) error
}

// Link serves host commands on the controller side.
// All methods must be called from the same goroutine.
type Link struct {
	Writer            io.Writer
	Input             ByteSource
	Source            telemetry.Source
	Calibrator        Calibrator
	HeartbeatInterval time.Duration
	Now               func() time.Time

	defs          []sensor.Definition
	decoder       Decoder
	buf           []byte
	latest        sensor.Snapshot
	nextHeartbeat time.Time
}

// NewLink creates a Link for the sensors in defs. Until the first
// snapshot is drained every sensor reports Disconnected.
func NewLink(w io.Writer, in ByteSource, src telemetry.Source, defs []sensor.Definition) *Link {
	return &Link{
		Writer:            w,
		Input:             in,
		Source:            src,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Now:               time.Now,
		defs:              defs,
		buf:               make([]byte, OutputBufferSize),
		latest:            sensor.EmptySnapshot(defs),
	}
}

// Latest returns the snapshot used for the last response.
func (l *Link) Latest() sensor.Snapshot {
	return l.latest
}

// SendControllerReady announces the link and schedules the first heartbeat.
func (l *Link) SendControllerReady() error {
	l.nextHeartbeat = l.Now().Add(l.HeartbeatInterval)
	return l.sendAll(ControllerReady{}, Terminator{Code: byte(ControllerReadyPacket)})
}

// Step performs one bounded iteration: an overdue heartbeat, then
// bytes from Input until a frame is handled or Input is empty.
func (l *Link) Step() error {
	if now := l.Now(); !now.Before(l.nextHeartbeat) {
		glog.V(5).Info("link: heartbeat")
		if err := l.sendAll(Heartbeat{}, Terminator{Code: byte(HeartbeatPacket)}); err != nil {
			return err
		}
		l.nextHeartbeat = now.Add(l.HeartbeatInterval)
	}
	for {
		b, ok := l.Input.TryReadByte()
		if !ok {
			return nil
		}
		switch l.decoder.Feed(b) {
		case StateCompleteFrame:
			f := l.decoder.Frame()
			l.decoder.Reset()
			l.refresh()
			err := l.serve(f)
			l.nextHeartbeat = l.Now().Add(l.HeartbeatInterval)
			return err
		case StateInvalidFrame:
			glog.V(5).Infof("link: %v, frame dropped", ErrChecksumMismatch)
			l.decoder.Reset()
			return nil
		}
	}
}

// Run sends ControllerReady and serves commands until ctx is done
// or writing fails.
func (l *Link) Run(ctx context.Context) error {
	if err := l.SendControllerReady(); err != nil {
		return err
	}
	timer := time.NewTimer(l.HeartbeatInterval)
	defer timer.Stop()
	for {
		if err := l.Step(); err != nil {
			return err
		}
		if l.Input.Buffered() > 0 {
			continue
		}
		wait := l.nextHeartbeat.Sub(l.Now())
		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.Input.Ready():
		case <-timer.C:
		}
	}
}

func (l *Link) refresh() {
	if l.Source == nil {
		return
	}
	if s, ok := l.Source.DrainToLatest(); ok {
		l.latest = s
	}
}

func (l *Link) serve(f Frame) error {
	glog.V(2).Infof("link: serving %v", f.Command)
	switch f.Command {
	case GetAllSensorValues:
		return l.respond(f.Command, ResponseOK, l.sensorData(l.latest.Entries...)...)
	case GetSensorValue:
		entry, ok := l.latest.Entry(sensor.ID(f.Args[0]))
		if !ok || int(entry.ID) >= len(l.defs) {
			return l.respond(f.Command, ResponseSensorNotFound)
		}
		return l.respond(f.Command, ResponseOK, l.sensorData(entry)...)
	case GetSensorsReady:
		return l.respond(f.Command, ResponseControllerReady)
	case GetSensorDescriptions:
		packets := make([]Packet, len(l.defs))
		for n := range l.defs {
			packets[n] = NewSensorDescription(&l.defs[n])
		}
		return l.respond(f.Command, ResponseOK, packets...)
	case CalibrateSensor:
		return l.respond(f.Command, l.calibrate(f.Args))
	}
	glog.Warningf("link: unknown command 0x%02x", byte(f.Command))
	return l.respond(f.Command, ResponseUnknownCommand)
}

func (l *Link) sensorData(entries ...sensor.Entry) []Packet {
	packets := make([]Packet, 0, len(entries))
	for n := range entries {
		entry := &entries[n]
		var calibration *sensor.CalibrationParams
		if id := int(entry.ID); id < len(l.defs) && l.defs[id].Calibration.Calibratable {
			c := l.defs[id].Calibration
			calibration = &c
		}
		packets = append(packets, NewSensorData(entry, calibration))
	}
	return packets
}

func (l *Link) calibrate(args [ArgumentLength]byte) ResponseCode {
	id := sensor.ID(args[0])
	if int(id) >= len(l.defs) {
		return ResponseSensorNotFound
	}
	if l.Calibrator == nil {
		return ResponseCalibrationRejected
	}
	v, _, err := DecodeValue(args[2:], sensor.ValueType(args[1]))
	if err != nil {
		glog.Warningf("link: calibrate %d: %v", id, err)
		return ResponseCalibrationRejected
	}
	if err = l.Calibrator.Calibrate(id, v); err != nil {
		glog.Warningf("link: calibrate %d: %v", id, err)
		if errors.Is(err, sensor.ErrNotFound) {
			return ResponseSensorNotFound
		}
		return ResponseCalibrationRejected
	}
	glog.V(1).Infof("link: sensor %d calibrated to %v", id, v)
	return ResponseOK
}

// respond sends Header, body and Terminator. Packets that fail to
// encode are skipped; the response stays terminated.
func (l *Link) respond(cmd CommandID, code ResponseCode, body ...Packet) error {
	if err := l.send(Header{Command: cmd, Response: code}); err != nil {
		return err
	}
	if err := l.sendAll(body...); err != nil {
		return err
	}
	return l.send(TerminatorFor(cmd))
}

func (l *Link) sendAll(packets ...Packet) error {
	for _, p := range packets {
		if err := l.send(p); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) send(p Packet) error {
	n, err := Encode(l.buf, p)
	if err != nil {
		glog.Warningf("link: packet 0x%02x not sent: %v", byte(p.PacketID()), err)
		return nil
	}
	if _, err = l.Writer.Write(l.buf[:n]); err != nil {
		return fmt.Errorf("link write: %w", err)
	}
	return nil
}
