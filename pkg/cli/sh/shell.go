package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/comm"
	fx "github.com/autobloomer/sensorcore/pkg/framework"
	"github.com/autobloomer/sensorcore/pkg/serial"
)

// PortEnv overrides the default serial device.
const PortEnv = "SENSORCORE_PORT"

// Config is the connection settings of the shell.
type Config struct {
	Port    serial.Config
	Timeout time.Duration
}

// Opener opens the link to a controller.
type Opener func(serial.Config) (io.ReadWriteCloser, error)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *Config
	Open   Opener
	Conn   *Conn
}

// Conn is an open controller link with its client running.
type Conn struct {
	Ctx    context.Context
	Cancel func()
	Device string
	Port   io.ReadWriteCloser
	Client *comm.Client

	lock          sync.Mutex
	lastHeartbeat time.Time
	ready         bool
}

// LastHeartbeat returns when the controller was last heard from
// unsolicited, and whether it announced itself ready.
func (c *Conn) LastHeartbeat() (time.Time, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastHeartbeat, c.ready
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	defaultConfig = Config{
		Port:    serial.Config{Device: "/dev/ttyUSB0", BaudRate: serial.DefaultBaudRate},
		Timeout: comm.DefaultReplyTimeout,
	}

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
	}
)

func init() {
	if val := os.Getenv(PortEnv); val != "" {
		defaultConfig.Port.Device = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&defaultConfig.Port.Device, "port", defaultConfig.Port.Device, "Controller serial device")
	flag.IntVar(&defaultConfig.Port.BaudRate, "baud", defaultConfig.Port.BaudRate, "Controller baud rate")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command reply timeout")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// OpenSerial is the default Opener.
func OpenSerial(conf serial.Config) (io.ReadWriteCloser, error) {
	p, err := serial.Open(conf)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
		Open:   OpenSerial,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Printable is a command result with a text rendition. It's
// printed as JSON in JSON mode.
type Printable interface {
	Text() string
}

// CommandFunc runs one request on the client.
type CommandFunc func(ctx context.Context, client *comm.Client) (Printable, error)

// DoCommand runs a command and prints the result. A nil result
// prints OK.
func DoCommand(c *ishell.Context, run CommandFunc) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ctx := s.Conn.Ctx
	if s.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.Timeout)
		defer cancel()
	}
	res, err := run(ctx, s.Conn.Client)
	if err != nil {
		c.Err(err)
		return err
	}
	if s.OutputJSON {
		var out []byte
		if res == nil {
			out = []byte(`{"ok":true}`)
		} else if out, err = json.Marshal(res); err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	if res == nil {
		c.Println("OK")
		return nil
	}
	c.Print(res.Text())
	return nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens a serial device and starts a client on it.
func (s *Shell) Connect(port serial.Config) error {
	rw, err := s.Open(port)
	if err != nil {
		return err
	}
	conn := &Conn{Device: port.Device, Port: rw, Client: comm.NewClient(rw)}
	conn.Client.Timeout = s.Config.Timeout
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	if s.Conn != nil {
		s.Disconnect()
	}
	s.Conn = conn
	go func() {
		err := fx.RunWithContextCloser(conn.Ctx, rw, func() error {
			return conn.Client.Run(conn.Ctx)
		})
		if err != nil && conn.Ctx.Err() == nil {
			glog.Errorf("%s: %v", conn.Device, err)
		}
	}()
	go s.watchEvents(conn)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", port.Device))
	return nil
}

func (s *Shell) watchEvents(conn *Conn) {
	for {
		select {
		case <-conn.Ctx.Done():
			return
		case p := <-conn.Client.EventChan():
			conn.lock.Lock()
			conn.lastHeartbeat = time.Now()
			_, isReady := p.(comm.ControllerReady)
			if isReady {
				conn.ready = true
			}
			conn.lock.Unlock()
			if isReady && s.Interactive {
				s.Shell.Printf("%s: controller ready\n", conn.Device)
			}
		}
	}
}

// Disconnect disconnects current controller.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Cancel()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Port.Device != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Port.Device)
		}
		if err := s.Connect(s.Config.Port); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Port.Device, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects a controller.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "DEVICE [BAUD]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			port := s.Config.Port
			if len(c.Args) > 0 {
				port.Device = c.Args[0]
			}
			if len(c.Args) > 1 {
				baud, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("invalid BAUD: %v", err))
					return
				}
				port.BaudRate = baud
			}
			if err := s.Connect(port); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current controller.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StatusCmd shows the link state.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			conn := ShellFrom(c).Conn
			at, ready := conn.LastHeartbeat()
			if at.IsZero() {
				c.Printf("%s: nothing received\n", conn.Device)
				return
			}
			c.Printf("%s: ready=%v, last heard %s ago\n", conn.Device, ready,
				time.Since(at).Truncate(time.Millisecond))
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
