// Callback side-channel sender.
//
// The server owns a client connection to the tool's callback port and pushes
// host events through it. Sends run on a dedicated worker pool, never on the
// goroutine servicing requests, so a slow or unresponsive peer cannot stall
// the host application's event loop. Delivery is at-most-once and unordered
// relative to the main channel; no acknowledgement is awaited beyond the
// transport write succeeding.
package server

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"dcclink/dcc"
	"dcclink/events"
	"dcclink/message"
	"dcclink/transport"
)

// CallbackSender pushes host events to the peer's callback server.
type CallbackSender struct {
	addr     string
	logger   *slog.Logger
	pool     pond.Pool
	conns    *transport.Pool
	stopOnce sync.Once
	stop     chan struct{}
}

// NewCallbackSender creates a sender for the callback port paired with
// mainPort. Connections are dialed lazily on first send.
func NewCallbackSender(mainPort int, logger *slog.Logger) *CallbackSender {
	if logger == nil {
		logger = slog.Default()
	}
	addr := fmt.Sprintf("127.0.0.1:%d", dcc.CallbackPort(mainPort))
	return &CallbackSender{
		addr:   addr,
		logger: logger,
		pool:   pond.NewPool(1), // one worker keeps pushes off the host thread without reordering
		conns: transport.NewPool(1, func() (*transport.Conn, error) {
			return transport.Dial(addr, 3*time.Second)
		}),
		stop: make(chan struct{}),
	}
}

// Send queues one notification. It returns immediately; the write happens on
// the worker pool. A failed send is logged and dropped, at-most-once.
func (c *CallbackSender) Send(t dcc.CallbackType, value any) {
	c.pool.Submit(func() {
		req := message.NewRequest("send_callback", nil, map[string]any{
			"value":         value,
			"callback_type": string(t),
		})
		body, err := req.MarshalJSON()
		if err != nil {
			c.logger.Error("callback not serializable", "type", t, "error", err)
			return
		}

		conn, err := c.conns.Get()
		if err != nil {
			c.logger.Debug("callback peer unreachable", "addr", c.addr, "error", err)
			return
		}
		if err := conn.Send(body); err != nil {
			conn.MarkUnusable()
			c.logger.Debug("callback send failed", "type", t, "error", err)
		} else {
			// The peer's ack is drained so it cannot pile up in the
			// socket buffer; its content is ignored.
			conn.Receive(200 * time.Millisecond)
		}
		c.conns.Put(conn)
	})
}

// Forward subscribes to the bus and sends every published record until Close.
func (c *CallbackSender) Forward(bus *events.Bus, types ...dcc.CallbackType) {
	records := bus.Subscribe(types...)
	go func() {
		for {
			select {
			case rec, ok := <-records:
				if !ok {
					return
				}
				c.Send(rec.Type, rec.Value)
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops forwarding, drains queued sends, and closes the connections.
func (c *CallbackSender) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.pool.StopAndWait()
		c.conns.Close()
	})
}
