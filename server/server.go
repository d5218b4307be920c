// Package server implements the dcclink command server that runs inside a
// host application (or standalone) and executes remote commands for tools.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → read one frame → decode Request → middleware chain → dispatch
//	  → encode Response → write frame → read next frame
//
// Requests on one connection are handled strictly in order: the protocol is
// single-request single-reply with no pipelining, and a slow handler blocks
// that connection for its duration. That is a documented property of the
// protocol, not an accident; clients own timeout handling.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"dcclink/dcc"
	"dcclink/events"
	"dcclink/message"
	"dcclink/middleware"
	"dcclink/protocol"
	"dcclink/registry"
)

// registrationTTL is the etcd lease TTL in seconds for session registration.
const registrationTTL = 10

// Server accepts tool connections and dispatches their commands.
//
// The handler table is built once at construction and is read-only afterwards,
// so any number of connections may dispatch concurrently. The attached
// Executor is assumed single-owner: the server will call it from multiple
// connection goroutines, and executors with mutable state must provide their
// own synchronization. That contract is documented here at the boundary, not
// enforced.
type Server struct {
	host         dcc.Context
	logger       *slog.Logger
	basePort     int
	portOverride int
	port         int

	handlers map[string]Handler // command name → handler, immutable after New
	executor *executorBinding   // generic fallback, may be nil

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	buildOnce   sync.Once

	listener net.Listener
	wg       sync.WaitGroup // in-flight requests, for graceful shutdown
	reqMu    sync.Mutex     // orders wg.Add against the shutdown flag flip
	shutdown atomic.Bool

	reg           registry.Registry
	advertiseAddr string

	bus       *events.Bus
	callbacks *CallbackSender
}

// Handler executes one named command. It mutates resp in place: set Success,
// Result and/or Msg.
type Handler func(req *message.Request, resp *message.Response)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBasePort overrides the default base port. The serving port is still
// derived from the host application's position in dcc.All.
func WithBasePort(base int) Option {
	return func(s *Server) {
		if base > 0 {
			s.basePort = base
		}
	}
}

// WithPort pins the serving port, bypassing the host-application port
// derivation. The callback side-channel receiver uses this to sit on the
// reserved port below the base.
func WithPort(port int) Option {
	return func(s *Server) {
		if port > 0 {
			s.portOverride = port
		}
	}
}

// WithHandlers registers every suitable exported method of rcvr as a named
// handler; see RegisterHandlers in dispatch.go for the scan rules. May be
// given several times.
func WithHandlers(rcvr any) Option {
	return func(s *Server) {
		s.registerHandlers(rcvr)
	}
}

// WithExecutor attaches the generic command executor consulted for command
// names absent from the handler table.
func WithExecutor(exec any) Option {
	return func(s *Server) {
		if exec != nil {
			s.executor = newExecutorBinding(exec)
		}
	}
}

// WithRegistry enables session registration on Serve and deregistration on
// Shutdown.
func WithRegistry(reg registry.Registry) Option {
	return func(s *Server) {
		s.reg = reg
	}
}

// WithBus attaches the host event bus. Serve starts a callback sender that
// forwards every published record over the side channel.
func WithBus(bus *events.Bus) Option {
	return func(s *Server) {
		s.bus = bus
	}
}

// New creates a server for the given host context. The handler table,
// including the built-in ping liveness handler, is completed here and never
// mutated again.
func New(host dcc.Context, opts ...Option) *Server {
	s := &Server{
		host:     host,
		logger:   slog.Default(),
		basePort: dcc.BasePort,
		handlers: make(map[string]Handler),
	}
	s.registerBuiltins()
	for _, opt := range opts {
		opt(s)
	}
	s.port = dcc.Port(s.basePort, host.App)
	if s.portOverride > 0 {
		s.port = s.portOverride
	}
	return s
}

// Use appends a middleware to the dispatch chain. Must be called before the
// first request is processed; the chain is frozen on first use.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Port returns the main-channel port this server serves on.
func (s *Server) Port() int {
	return s.port
}

// Host returns the host context the server was constructed with.
func (s *Server) Host() dcc.Context {
	return s.host
}

// Serve listens on the loopback port derived from the host application and
// accepts connections until Shutdown. It registers the session with the
// registry, if one is attached, and starts the callback sender, if an event
// bus is attached.
func (s *Server) Serve() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	// Freeze the middleware chain once at startup, not per request.
	s.buildChain()

	s.advertiseAddr = addr
	if s.reg != nil {
		err := s.reg.Register(s.host.App, registry.Instance{
			Addr:    addr,
			App:     s.host.App,
			Version: s.host.Version,
			PID:     s.host.PID,
		}, registrationTTL)
		if err != nil {
			s.logger.Warn("session registration failed", "error", err)
		}
	}

	if s.bus != nil {
		s.callbacks = NewCallbackSender(s.port, s.logger)
		s.callbacks.Forward(s.bus)
	}

	s.logger.Info("server listening", "app", s.host.App, "addr", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown listener.Close makes Accept fail; the
			// flag tells intentional close from a real error.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// buildChain wraps dispatch in the registered middlewares (onion order).
func (s *Server) buildChain() {
	s.buildOnce.Do(func() {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	})
}

// handleConn services a single connection. Reads are sequential, since frame
// boundaries only parse from a single reader, and each request is fully
// handled and answered before the next frame is read.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	connID := ulid.Make().String()
	s.logger.Info("connection established", "conn", connID, "remote", conn.RemoteAddr())

	for {
		body, err := protocol.ReadFrame(conn)
		if err != nil {
			var ferr *protocol.FramingError
			if errors.As(err, &ferr) {
				// Protocol violation: answer with an explicit error,
				// purge the buffer, and keep the connection open.
				s.logger.Warn("invalid frame header", "conn", connID, "header", ferr.Header)
				s.writeResponse(conn, message.Failure("unknown", "Invalid header"))
				purgeConn(conn)
				continue
			}
			s.logger.Info("connection closed", "conn", connID)
			return
		}

		resp := s.handleRequest(body)
		if err := s.writeResponse(conn, resp); err != nil {
			s.logger.Error("failed to write reply", "conn", connID, "error", err)
			return
		}
	}
}

// handleRequest decodes one framed request body and runs it through the
// middleware chain into dispatch.
func (s *Server) handleRequest(body []byte) *message.Response {
	// Add must not race Shutdown's Wait: under the lock, either the flag
	// is not set yet and this request is counted, or it is set and the
	// request is refused.
	s.reqMu.Lock()
	if s.shutdown.Load() {
		s.reqMu.Unlock()
		return message.Failure("unknown", "server is shutting down")
	}
	s.wg.Add(1)
	s.reqMu.Unlock()
	defer s.wg.Done()

	var req message.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return message.Failure("unknown", fmt.Sprintf("invalid request: %v", err))
	}

	s.buildChain()
	return s.handler(context.Background(), &req)
}

// ProcessRequest is the in-process entry point: a co-located client calls it
// directly instead of going through a socket. It returns the encoded reply
// bytes so the in-process path exercises exactly the serialization the
// networked path puts on the wire.
func (s *Server) ProcessRequest(req *message.Request) []byte {
	s.buildChain()
	resp := s.handler(context.Background(), req)
	return s.encodeResponse(req.Cmd, resp)
}

// writeResponse serializes and frames resp onto conn.
func (s *Server) writeResponse(conn net.Conn, resp *message.Response) error {
	cmd := resp.Cmd
	if cmd == "" {
		cmd = "unknown"
	}
	return protocol.WriteFrame(conn, s.encodeResponse(cmd, resp))
}

// encodeResponse marshals resp, substituting a synthetic failure if the
// result is not serializable. The wire never carries an unserializable body.
func (s *Server) encodeResponse(cmd string, resp *message.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		msg := fmt.Sprintf("error while serializing response: %v", err)
		s.logger.Error(msg, "cmd", cmd)
		synthetic := message.Failure(cmd, msg)
		data, _ = json.Marshal(synthetic) // Failure responses always marshal
	}
	return data
}

// Publish emits a host event onto the attached bus, if any. Host integration
// code calls this from the application's callback hooks.
func (s *Server) Publish(t dcc.CallbackType, value any) {
	if s.bus != nil {
		s.bus.Publish(t, value)
	}
}

// Shutdown performs graceful shutdown:
//  1. deregister the session, so tools stop connecting here
//  2. set the shutdown flag, then close the listener
//  3. stop the callback sender
//  4. wait for in-flight requests, bounded by timeout
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.reg != nil {
		s.reg.Deregister(s.host.App, s.advertiseAddr)
	}

	// Flag before close: otherwise Accept errors before the flag is set
	// and Serve returns a spurious error. The lock pairs with
	// handleRequest so no wg.Add lands once the flag is visible.
	s.reqMu.Lock()
	s.shutdown.Store(true)
	s.reqMu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}

	if s.callbacks != nil {
		s.callbacks.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}

// purgeConn eats whatever is currently readable. After a framing violation
// the remaining buffered bytes frame nothing meaningful.
func purgeConn(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := conn.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	conn.SetReadDeadline(time.Time{})
}
