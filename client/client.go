// Package client implements the tool-side command client.
//
// A Client issues named commands to a dcclink server either over a loopback
// socket or, in in-process mode, by calling a co-located server directly.
// Both paths run the exact same dispatch and serialization code on the
// server, so tests can run against either interchangeably.
//
// Every known remote operation is a named method that funnels through the
// single generic Invoke entry point; arbitrary host-defined commands go
// through Invoke directly. Command failures come back as error values plus a
// status record; a command call never panics.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"

	"dcclink/dcc"
	"dcclink/loadbalance"
	"dcclink/message"
	"dcclink/registry"
	"dcclink/server"
	"dcclink/transport"
)

// State is the client connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed // terminal until the next Connect
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// FailReason distinguishes why a connect attempt failed.
type FailReason string

const (
	ReasonNone    FailReason = ""
	ReasonRefused FailReason = "refused"
	ReasonError   FailReason = "error"
	ReasonTimeout FailReason = "timeout"
)

// Errors reported by the client.
var (
	// ErrRefused reports that the target port had no listener.
	ErrRefused = errors.New("connection refused")

	// ErrNotConnected reports a command issued with no connection, no
	// co-located server, and no local executor.
	ErrNotConnected = errors.New("not connected to any host application")

	// ErrCommandFailed wraps an application-level failure response.
	ErrCommandFailed = errors.New("command failed")
)

const defaultTimeout = 20 * time.Second

// Client issues commands to one host-application server. Not safe for
// concurrent use: the protocol has one in-flight request per connection.
type Client struct {
	logger   *slog.Logger
	timeout  time.Duration
	basePort int
	toolID   string

	conn  *transport.Conn
	srv   *server.Server // in-process mode: bypasses the network entirely
	local *server.Server // fallback dispatch while disconnected

	state     State
	reason    FailReason
	port      int
	status    message.Status
	callbacks *CallbackServer
	wantCb    bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the per-command receive timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBasePort overrides the default base port.
func WithBasePort(base int) Option {
	return func(c *Client) {
		if base > 0 {
			c.basePort = base
		}
	}
}

// WithToolID names the tool owning this client; used for session affinity
// when several instances of the same host application are registered.
func WithToolID(id string) Option {
	return func(c *Client) {
		c.toolID = id
	}
}

// WithServer puts the client in in-process mode: commands are handed to srv
// directly and the network is never touched.
func WithServer(srv *server.Server) Option {
	return func(c *Client) {
		c.srv = srv
	}
}

// WithLocalExecutor installs a fallback executor consulted while the client
// is disconnected, so tool code keeps working without a running host.
func WithLocalExecutor(exec any) Option {
	return func(c *Client) {
		c.local = server.New(dcc.Detect(), server.WithExecutor(exec))
	}
}

// WithCallbackServer makes Connect start the callback side-channel receiver
// alongside the main connection.
func WithCallbackServer() Option {
	return func(c *Client) {
		c.wantCb = true
	}
}

// New creates a disconnected client.
func New(opts ...Option) *Client {
	c := &Client{
		logger:   slog.Default(),
		timeout:  defaultTimeout,
		basePort: dcc.BasePort,
		state:    Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a connection to the given host application's port. A refused
// connection and any other transport failure both come back as error values
// with the state moved to Failed; Connect never panics.
func (c *Client) Connect(app dcc.App) error {
	return c.connect(dcc.Port(c.basePort, app))
}

// ConnectPort opens a connection to an explicit local port.
func (c *Client) ConnectPort(port int) error {
	return c.connect(port)
}

// ConnectAddrless tries every supported app port in order and keeps the first
// that accepts; with none accepting it falls back to the base port. This is
// the no-configuration path for "attach to whatever host is running".
func (c *Client) ConnectAddrless(apps ...dcc.App) error {
	if len(apps) == 0 {
		apps = dcc.All
	}
	for _, app := range apps {
		if err := c.connect(dcc.Port(c.basePort, app)); err == nil {
			return nil
		}
	}
	return c.connect(c.basePort)
}

// ConnectDiscovered asks the registry for live sessions of app and connects
// to one picked by bal (nil bal takes the first). With a tool id set and a
// ConsistentHash balancer the same tool reattaches to the same session.
func (c *Client) ConnectDiscovered(reg registry.Registry, bal loadbalance.Balancer, app dcc.App) error {
	instances, err := reg.Discover(app)
	if err != nil {
		c.fail(ReasonError, "Error while discovering sessions", message.LevelError)
		return err
	}
	if len(instances) == 0 {
		c.fail(ReasonRefused, "No live sessions found", message.LevelWarning)
		return ErrRefused
	}

	var inst *registry.Instance
	if hash, ok := bal.(*loadbalance.ConsistentHash); ok && c.toolID != "" {
		for i := range instances {
			hash.Add(&instances[i])
		}
		inst, err = hash.PickKey(c.toolID)
	} else if bal != nil {
		inst, err = bal.Pick(instances)
	} else {
		inst = &instances[0]
	}
	if err != nil {
		c.fail(ReasonError, "Error while selecting a session", message.LevelError)
		return err
	}
	return c.connectAddr(inst.Addr)
}

func (c *Client) connect(port int) error {
	return c.connectAddr(fmt.Sprintf("127.0.0.1:%d", port))
}

func (c *Client) connectAddr(addr string) error {
	// In-process mode needs no socket at all.
	if c.srv != nil {
		c.state = Connected
		c.setStatus("Client connected successfully!", message.LevelSuccess)
		return nil
	}

	c.state = Connecting

	if c.wantCb && c.callbacks == nil {
		port := portOf(addr, c.basePort)
		cb, err := NewCallbackServer(port, c.logger)
		if err != nil {
			c.logger.Warn("callback server failed to start", "error", err)
		} else {
			c.callbacks = cb
		}
	}

	conn, err := transport.Dial(addr, c.timeout, transport.WithLogger(c.logger))
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			c.fail(ReasonRefused, "Client connection was refused.", message.LevelWarning)
			return ErrRefused
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			c.fail(ReasonTimeout, "Timeout while connecting client", message.LevelWarning)
			return err
		}
		c.logger.Error("error while connecting client", "addr", addr, "error", err)
		c.fail(ReasonError, "Error while connecting client", message.LevelError)
		return err
	}

	c.conn = conn
	c.port = portOf(addr, c.basePort)
	c.state = Connected
	return nil
}

func (c *Client) fail(reason FailReason, msg string, level message.Level) {
	c.state = Failed
	c.reason = reason
	c.setStatus(msg, level)
}

// Disconnect closes the connection. Close-time errors are swallowed into a
// status record of kind error rather than propagated as a hard failure.
func (c *Client) Disconnect() error {
	c.state = Disconnected
	c.reason = ReasonNone
	if c.callbacks != nil {
		c.callbacks.Close()
		c.callbacks = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		c.setStatus("Error while disconnecting client", message.LevelError)
		return err
	}
	return nil
}

// Connected reports whether commands currently reach a server.
func (c *Client) Connected() bool {
	return c.state == Connected
}

// State returns the connection state.
func (c *Client) State() State { return c.state }

// Reason returns why the last connect failed, if it did.
func (c *Client) Reason() FailReason { return c.reason }

// Port returns the connected main-channel port, or 0.
func (c *Client) Port() int { return c.port }

// Status returns the most recent status record. Overwritten on every
// request/response cycle; no history is kept.
func (c *Client) Status() message.Status { return c.status }

// SetStatus overwrites the status record.
func (c *Client) SetStatus(msg string, level message.Level) {
	c.setStatus(msg, level)
}

func (c *Client) setStatus(msg string, level message.Level) {
	c.status = message.Status{Msg: msg, Level: level}
}

// Callbacks returns the callback side-channel receiver, or nil when not
// started.
func (c *Client) Callbacks() *CallbackServer {
	return c.callbacks
}

// Invoke issues a named command with positional and keyword arguments and
// returns its result. This is the whole open-ended command surface: any name
// the server's executor exposes is callable without this package knowing it.
func (c *Client) Invoke(name string, args []any, kwargs map[string]any) (any, error) {
	resp, err := c.send(message.NewRequest(name, args, kwargs))
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		c.setStatus(fmt.Sprintf("%s failed: %s", resp.Cmd, resp.Msg), message.LevelError)
		return nil, fmt.Errorf("%w: %s: %s", ErrCommandFailed, resp.Cmd, resp.Msg)
	}

	// Last write wins on every cycle: a reply without a status record
	// clears whatever the previous cycle left behind.
	if resp.Status != nil {
		c.status = *resp.Status
	} else {
		c.status = message.Status{}
	}
	return resp.Result, nil
}

// send routes one request: in-process server first, then the socket, then
// the local fallback executor.
func (c *Client) send(req *message.Request) (*message.Response, error) {
	if c.srv != nil {
		return c.parseReply(c.srv.ProcessRequest(req))
	}

	if c.state != Connected || !c.conn.Connected() {
		if c.local != nil {
			return c.parseReply(c.local.ProcessRequest(req))
		}
		c.setStatus("Not connected to any host application", message.LevelWarning)
		return nil, ErrNotConnected
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.setStatus("Error while serializing command", message.LevelError)
		return nil, err
	}

	if err := c.conn.Send(body); err != nil {
		c.logger.Debug("send failed", "cmd", req.Cmd, "error", err)
		c.setStatus("Error while sending command", message.LevelError)
		return nil, err
	}

	raw, err := c.conn.Receive(c.timeout)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrTimeout):
			// A timeout is fatal for this call only; the connection
			// stays open and the discard counter absorbs the late
			// reply.
			c.setStatus("Timeout waiting for response", message.LevelUnknown)
		default:
			c.setStatus("Error while receiving reply", message.LevelError)
		}
		return nil, err
	}

	return c.parseReply(raw)
}

func (c *Client) parseReply(raw []byte) (*message.Response, error) {
	if len(raw) == 0 {
		c.setStatus("Empty reply from server", message.LevelError)
		return nil, fmt.Errorf("empty reply")
	}
	var resp message.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.setStatus("Malformed reply from server", message.LevelError)
		return nil, fmt.Errorf("malformed reply: %w", err)
	}
	return &resp, nil
}

// portOf recovers the numeric port from host:port, defaulting to base.
func portOf(addr string, base int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return base
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return base
	}
	return port
}
