// Callback side-channel receiver.
//
// The client owns a small server listening on the callback port paired with
// its main port. The host-side sender pushes send_callback notifications to
// it; each one is re-published on an event bus the tool subscribes to. The
// side channel never participates in the main request/response flow and
// carries no ordering guarantee relative to it.
package client

import (
	"log/slog"
	"time"

	"dcclink/dcc"
	"dcclink/events"
	"dcclink/message"
	"dcclink/server"
)

// CallbackServer receives host event notifications for a client.
type CallbackServer struct {
	srv *server.Server
	bus *events.Bus
}

// callbackReceiver is the handler set for the side channel: exactly one
// command, send_callback.
type callbackReceiver struct {
	bus *events.Bus
}

func (r *callbackReceiver) SendCallback(req *message.Request, resp *message.Response) {
	r.bus.Publish(dcc.CallbackType(req.String("callback_type")), req.Kwarg("value"))
	resp.Succeed(true)
}

// NewCallbackServer starts a receiver for the callback port paired with
// mainPort. The listener runs until Close.
func NewCallbackServer(mainPort int, logger *slog.Logger) (*CallbackServer, error) {
	bus := events.NewBus(64)
	srv := server.New(dcc.Detect(),
		server.WithLogger(logger),
		server.WithPort(dcc.CallbackPort(mainPort)),
		server.WithHandlers(&callbackReceiver{bus: bus}),
	)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve()
	}()

	// Serve fails fast when the port is taken; give it a moment to bind.
	select {
	case err := <-errc:
		if err != nil {
			bus.Shutdown()
			return nil, err
		}
	case <-time.After(50 * time.Millisecond):
	}

	return &CallbackServer{srv: srv, bus: bus}, nil
}

// Records returns a channel of incoming host events, optionally filtered by
// type. The channel closes on Close.
func (s *CallbackServer) Records(types ...dcc.CallbackType) <-chan events.Record {
	return s.bus.Subscribe(types...)
}

// Port returns the side-channel port.
func (s *CallbackServer) Port() int {
	return s.srv.Port()
}

// Close stops the listener and closes every subscriber channel.
func (s *CallbackServer) Close() {
	s.srv.Shutdown(time.Second)
	s.bus.Shutdown()
}
