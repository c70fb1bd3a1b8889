package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// DefaultReplyTimeout is how long Do waits for a Terminator.
const DefaultReplyTimeout = 2 * time.Second

// Response collects the packets answering one command.
type Response struct {
	Header       Header
	Data         []SensorData
	Descriptions []SensorDescription
	Terminator   Terminator
}

// Result is the result of a command using Do.
type Result struct {
	Response *Response
	Err      error
}

// Client provides host side operations over a controller link.
type Client struct {
	Conn    io.ReadWriter
	Timeout time.Duration

	eventCh     chan Packet
	cmdLock     sync.Mutex
	pendingLock sync.Mutex
	pending     *pendingCommand
}

type pendingCommand struct {
	command  CommandID
	response *Response
	resultCh chan Result
}

// NewClient creates a client on conn.
func NewClient(conn io.ReadWriter) *Client {
	return &Client{
		Conn:    conn,
		Timeout: DefaultReplyTimeout,
		eventCh: make(chan Packet, 16),
	}
}

// EventChan retrieves unsolicited Heartbeat and ControllerReady packets.
func (c *Client) EventChan() <-chan Packet {
	return c.eventCh
}

// Run decodes packets from Conn until ctx is done or reading fails.
func (c *Client) Run(ctx context.Context) error {
	var stream []byte
	buf := make([]byte, OutputBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := c.Conn.Read(buf)
		if n > 0 {
			stream = c.process(append(stream, buf[:n]...))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// process handles all complete packets in stream and returns what remains.
func (c *Client) process(stream []byte) []byte {
	for len(stream) > 0 {
		p, rest, err := DecodePacket(stream)
		if IsShort(err) {
			break
		}
		if err != nil {
			glog.V(2).Infof("client: %v, skipping byte 0x%02x", err, stream[0])
			stream = stream[1:]
			continue
		}
		c.handle(p)
		stream = rest
	}
	if len(stream) == 0 {
		return stream[:0]
	}
	return append([]byte(nil), stream...)
}

func (c *Client) handle(p Packet) {
	switch p := p.(type) {
	case Heartbeat, ControllerReady:
		select {
		case c.eventCh <- p:
		default:
			glog.V(2).Infof("client: event 0x%02x dropped", byte(p.PacketID()))
		}
		return
	case Terminator:
		if p.Code == byte(HeartbeatPacket) || p.Code == byte(ControllerReadyPacket) {
			return
		}
	}

	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()
	cmd := c.pending
	if cmd == nil {
		glog.V(2).Infof("client: unexpected packet 0x%02x", byte(p.PacketID()))
		return
	}
	switch p := p.(type) {
	case Header:
		if p.Command == cmd.command {
			cmd.response = &Response{Header: p}
		}
	case SensorData:
		if cmd.response != nil {
			cmd.response.Data = append(cmd.response.Data, p)
		}
	case SensorDescription:
		if cmd.response != nil {
			cmd.response.Descriptions = append(cmd.response.Descriptions, p)
		}
	case Terminator:
		if cmd.response == nil || p.Code != byte(cmd.command) {
			return
		}
		cmd.response.Terminator = p
		result := Result{Response: cmd.response}
		if code := cmd.response.Header.Response; code != ResponseOK && code != ResponseControllerReady {
			result.Err = &CommandError{Command: cmd.command, Code: code}
		}
		c.pending = nil
		cmd.resultCh <- result
	}
}

// Do sends a command frame and waits for the complete response.
// Commands are served one at a time.
func (c *Client) Do(ctx context.Context, f Frame) (*Response, error) {
	encoded, err := f.Encode()
	if err != nil {
		return nil, err
	}

	c.cmdLock.Lock()
	defer c.cmdLock.Unlock()

	cmd := &pendingCommand{command: f.Command, resultCh: make(chan Result, 1)}
	c.pendingLock.Lock()
	c.pending = cmd
	c.pendingLock.Unlock()
	defer func() {
		c.pendingLock.Lock()
		if c.pending == cmd {
			c.pending = nil
		}
		c.pendingLock.Unlock()
	}()

	glog.V(2).Infof("client: send %v % x", f.Command, encoded)
	if _, err = c.Conn.Write(encoded); err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	select {
	case result := <-cmd.resultCh:
		return result.Response, result.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%v: %w", f.Command, ErrNoReply)
	}
}

// GetAll reads all sensors.
func (c *Client) GetAll(ctx context.Context) ([]SensorData, error) {
	resp, err := c.Do(ctx, NewFrame(GetAllSensorValues))
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Get reads a single sensor.
func (c *Client) Get(ctx context.Context, id sensor.ID) (SensorData, error) {
	resp, err := c.Do(ctx, NewFrame(GetSensorValue, byte(id)))
	if err != nil {
		return SensorData{}, err
	}
	if len(resp.Data) != 1 {
		return SensorData{}, fmt.Errorf("%w: expect 1 sensor, got %d", ErrMalformedPacket, len(resp.Data))
	}
	return resp.Data[0], nil
}

// Ready checks the controller is serving commands.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.Do(ctx, NewFrame(GetSensorsReady))
	return err
}

// Describe reads the sensor descriptions.
func (c *Client) Describe(ctx context.Context) ([]SensorDescription, error) {
	resp, err := c.Do(ctx, NewFrame(GetSensorDescriptions))
	if err != nil {
		return nil, err
	}
	return resp.Descriptions, nil
}

// Calibrate sends a calibration value to a sensor.
func (c *Client) Calibrate(ctx context.Context, id sensor.ID, v sensor.Value) error {
	args, err := AppendValue([]byte{byte(id), byte(v.Type)}, v)
	if err != nil {
		return err
	}
	if len(args) > ArgumentLength {
		return ErrUnsupported
	}
	_, err = c.Do(ctx, NewFrame(CalibrateSensor, args...))
	return err
}
