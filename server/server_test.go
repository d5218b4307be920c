package server

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"dcclink/dcc"
	"dcclink/message"
	"dcclink/middleware"
	"dcclink/protocol"
)

// freePort grabs an ephemeral port and releases it for the server to bind.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// startServer runs a server with the echo executor on an ephemeral port and
// returns it with a connected raw socket.
func startServer(t *testing.T, opts ...Option) (*Server, net.Conn) {
	t.Helper()

	port := freePort(t)
	opts = append(opts, WithPort(port), WithExecutor(&EchoExecutor{}))
	srv := New(dcc.Context{App: dcc.Standalone, Version: "1.0", PID: 100}, opts...)

	go srv.Serve()
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(func() { srv.Shutdown(time.Second) })

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func roundTrip(t *testing.T, conn net.Conn, req *message.Request) *message.Response {
	t.Helper()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := protocol.WriteFrame(conn, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	body, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var resp message.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return &resp
}

func TestServerEcho(t *testing.T) {
	_, conn := startServer(t)

	resp := roundTrip(t, conn, message.NewRequest("echo", nil, map[string]any{
		"text": "Hello World!",
	}))
	if !resp.Success {
		t.Fatalf("echo failed: %s", resp.Msg)
	}
	if resp.Result != "Hello World!" {
		t.Errorf("result = %v", resp.Result)
	}
}

func TestServerSequentialRequests(t *testing.T) {
	_, conn := startServer(t)

	// Several requests on one connection, answered strictly in order
	if resp := roundTrip(t, conn, message.NewRequest("set_title", nil, map[string]any{"title": "shot010"})); !resp.Success {
		t.Fatalf("set_title failed: %s", resp.Msg)
	}
	resp := roundTrip(t, conn, message.NewRequest("title", nil, nil))
	if !resp.Success {
		t.Fatalf("title failed: %s", resp.Msg)
	}
	if resp.Result != "shot010" {
		t.Errorf("title = %v", resp.Result)
	}
}

func TestServerInvalidHeaderKeepsConnection(t *testing.T) {
	_, conn := startServer(t)

	// Garbage instead of a frame: the server answers with an explicit
	// failure and the connection stays usable
	conn.Write([]byte("XXXXXXXXXXgarbage"))

	body, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var resp message.Response
	json.Unmarshal(body, &resp)
	if resp.Success {
		t.Fatal("garbage must produce a failure")
	}
	if resp.Msg != "Invalid header" {
		t.Errorf("msg = %q", resp.Msg)
	}

	// Give the purge window a moment, then talk normally again
	time.Sleep(50 * time.Millisecond)
	if resp := roundTrip(t, conn, message.NewRequest("ping", nil, nil)); !resp.Success {
		t.Fatal("connection unusable after framing violation")
	}
}

func TestServerMalformedRequestBody(t *testing.T) {
	_, conn := startServer(t)

	protocol.WriteFrame(conn, []byte("this is not json"))

	body, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var resp message.Response
	json.Unmarshal(body, &resp)
	if resp.Success {
		t.Fatal("malformed body must produce a failure")
	}
	if !strings.Contains(resp.Msg, "invalid request") {
		t.Errorf("msg = %q", resp.Msg)
	}
}

func TestServerConcurrentConnections(t *testing.T) {
	srv, conn := startServer(t)

	conn2, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn2.Close()

	done := make(chan bool, 2)
	go func() {
		resp := roundTrip(t, conn, message.NewRequest("ping", nil, nil))
		done <- resp.Success
	}()
	go func() {
		resp := roundTrip(t, conn2, message.NewRequest("ping", nil, nil))
		done <- resp.Success
	}()
	for i := 0; i < 2; i++ {
		if !<-done {
			t.Fatal("concurrent ping failed")
		}
	}
}

func TestServerMiddleware(t *testing.T) {
	port := freePort(t)
	srv := New(dcc.Context{App: dcc.Standalone}, WithPort(port), WithExecutor(&EchoExecutor{}))
	srv.Use(middleware.RateLimit(1000, 1000))
	go srv.Serve()
	time.Sleep(100 * time.Millisecond)
	defer srv.Shutdown(time.Second)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if resp := roundTrip(t, conn, message.NewRequest("ping", nil, nil)); !resp.Success {
		t.Fatal("ping through middleware chain failed")
	}
}

func TestProcessRequestMatchesWire(t *testing.T) {
	srv, conn := startServer(t)

	req := message.NewRequest("echo", nil, map[string]any{"text": "same bytes"})

	// In-process and networked paths produce the same reply
	direct := srv.ProcessRequest(req)

	data, _ := json.Marshal(req)
	protocol.WriteFrame(conn, data)
	wire, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatal(err)
	}

	var a, b message.Response
	json.Unmarshal(direct, &a)
	json.Unmarshal(wire, &b)
	if a.Success != b.Success || a.Result != b.Result {
		t.Errorf("in-process reply %+v differs from wire reply %+v", a, b)
	}
}

func TestRequestAfterShutdownRefused(t *testing.T) {
	srv, _ := startServer(t)

	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// A request body arriving after shutdown must be refused, not counted
	// as in-flight work
	resp := srv.handleRequest([]byte(`{"cmd": "ping"}`))
	if resp.Success {
		t.Fatal("request after shutdown must fail")
	}
	if !strings.Contains(resp.Msg, "shutting down") {
		t.Errorf("msg = %q", resp.Msg)
	}
}

func TestServerShutdownWaitsForInflight(t *testing.T) {
	srv, conn := startServer(t)

	// A sleep command is in flight when shutdown starts
	req := message.NewRequest("sleep", nil, map[string]any{"seconds": 0.2})
	data, _ := json.Marshal(req)
	protocol.WriteFrame(conn, data)
	time.Sleep(50 * time.Millisecond)

	if err := srv.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("graceful shutdown failed: %v", err)
	}
}
