// Package transport implements the client-side connection: reliable framed
// message exchange over a loopback TCP stream, tolerant of partial reads.
//
// Receive deliberately polls with short read deadlines instead of blocking on
// a single long read. The host environments this protocol originated in hand
// out non-blocking sockets by default, so the receive loop is written as
// bounded polling with a small sleep between attempts, up to a caller-supplied
// timeout.
//
// The discard counter guarantees a late reply is never mis-delivered: when a
// Receive times out but the peer's reply eventually arrives, the next Receive
// silently drops exactly one stale message per prior timeout before returning
// a genuine reply.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"dcclink/protocol"
)

// Errors reported by Conn. Callers distinguish these from framing violations
// (*protocol.FramingError) with errors.Is / errors.As.
var (
	// ErrTimeout reports that no complete message arrived within the
	// caller-supplied timeout, after the final drain attempt.
	ErrTimeout = errors.New("timeout waiting for response")

	// ErrNotConnected reports an operation on a closed or never-opened
	// connection.
	ErrNotConnected = errors.New("not connected")
)

const (
	// pollInterval is the read deadline for a single poll attempt.
	pollInterval = 10 * time.Millisecond

	// drainInterval is the deadline for the single post-timeout drain read.
	drainInterval = 20 * time.Millisecond

	// defaultWriteTimeout bounds a Send so a dead peer cannot stall callers.
	defaultWriteTimeout = 10 * time.Second

	// defaultMaxDiscard caps the discard counter. The original design
	// re-entered the receive loop once per pending discard with a fresh
	// timeout each time, which never terminates against a silent peer;
	// capping the counter bounds the worst case.
	defaultMaxDiscard = 16
)

// Conn is a single duplex framed stream. It is not safe for concurrent use:
// the protocol is single-request single-reply, so one goroutine owns a Conn.
type Conn struct {
	sock         net.Conn
	logger       *slog.Logger
	writeTimeout time.Duration
	maxDiscard   int
	discard      int
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for poll-level debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWriteTimeout bounds how long a Send may block.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithMaxDiscard caps how many stale replies can be pending discard at once.
func WithMaxDiscard(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxDiscard = n
		}
	}
}

// New wraps an established stream in a Conn. Tests use this with synthetic
// connections; production code goes through Dial.
func New(sock net.Conn, opts ...Option) *Conn {
	c := &Conn{
		sock:         sock,
		logger:       slog.Default(),
		writeTimeout: defaultWriteTimeout,
		maxDiscard:   defaultMaxDiscard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens a loopback TCP connection to addr.
func Dial(addr string, timeout time.Duration, opts ...Option) (*Conn, error) {
	sock, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return New(sock, opts...), nil
}

// Connected reports whether the connection is open.
func (c *Conn) Connected() bool {
	return c != nil && c.sock != nil
}

// DiscardCount returns the number of stale replies pending discard.
func (c *Conn) DiscardCount() int {
	return c.discard
}

// Close tears the connection down. Further Sends and Receives report
// ErrNotConnected.
func (c *Conn) Close() error {
	if c.sock == nil {
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	return err
}

// Send frames and writes body. It returns an error value on transport
// failure, never a panic past this boundary, and callers can tell
// "not connected" (ErrNotConnected) from a failed write.
func (c *Conn) Send(body []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := protocol.WriteFrame(c.sock, body); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Receive accumulates bytes until one complete framed message is read, then
// returns the decoded body. Data may arrive in arbitrary chunk sizes,
// including chunks smaller than the header.
//
// On timeout it makes exactly one more short drain attempt before giving up,
// so a reply arriving a few milliseconds late is returned rather than lost.
// A timeout that does give up increments the discard counter; a later
// Receive drops that many stale messages before delivering a fresh one.
func (c *Conn) Receive(timeout time.Duration) ([]byte, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}

	var (
		accum   []byte
		want    = protocol.HeaderSize
		bodyLen = -1 // -1 while the header is still being read
		buf     = make([]byte, 4096)
	)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		body, done, err := c.step(buf, &accum, &want, &bodyLen)
		if err != nil {
			return nil, err
		}
		if done {
			if c.discard > 0 {
				// Stale reply from an earlier timed-out request:
				// drop it and keep reading.
				c.discard--
				c.logger.Debug("discarded stale reply", "pending", c.discard)
				accum, want, bodyLen = nil, protocol.HeaderSize, -1
				continue
			}
			return body, nil
		}
	}

	if c.discard < c.maxDiscard {
		c.discard++
	}

	// Timeout is about to be reported, but first drain whatever already
	// arrived: a reply that is sitting complete in the buffer is returned
	// rather than lost. The drain window is short and fixed.
	drainDeadline := time.Now().Add(drainInterval)
	for time.Now().Before(drainDeadline) {
		body, done, err := c.drain(buf, &accum, &want, &bodyLen)
		if err != nil {
			break
		}
		if done {
			c.discard--
			return body, nil
		}
	}

	return nil, ErrTimeout
}

// step performs one poll attempt: a short-deadline read of at most the bytes
// the current state still needs, followed by header or body completion.
func (c *Conn) step(buf []byte, accum *[]byte, want *int, bodyLen *int) ([]byte, bool, error) {
	c.sock.SetReadDeadline(time.Now().Add(pollInterval))
	return c.advance(buf, accum, want, bodyLen, true)
}

// drain is one post-timeout read attempt. Unlike step it does not tolerate
// a read deadline: whatever is not already buffered stays unread.
func (c *Conn) drain(buf []byte, accum *[]byte, want *int, bodyLen *int) ([]byte, bool, error) {
	c.sock.SetReadDeadline(time.Now().Add(drainInterval))
	return c.advance(buf, accum, want, bodyLen, false)
}

func (c *Conn) advance(buf []byte, accum *[]byte, want *int, bodyLen *int, tolerate bool) ([]byte, bool, error) {
	limit := *want
	if limit > len(buf) {
		limit = len(buf)
	}
	n, err := c.sock.Read(buf[:limit])
	if n > 0 {
		*accum = append(*accum, buf[:n]...)
		*want -= n
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			if !tolerate {
				return nil, false, ErrTimeout
			}
			// Poll deadline expired with nothing (or a partial chunk)
			// delivered; fall through and try to complete anyway.
		} else {
			return nil, false, fmt.Errorf("read failed: %w", err)
		}
	}

	// Header complete: learn the body length and restart accumulation.
	if *bodyLen < 0 && *want == 0 {
		declared, perr := protocol.ParseHeader(*accum)
		if perr != nil {
			// Protocol violation, not a timeout or disconnect. The
			// buffer no longer frames anything meaningful: purge it
			// before any further read.
			c.purge()
			return nil, false, perr
		}
		*bodyLen = declared
		*want = declared
		*accum = (*accum)[:0]
	}

	// Body complete.
	if *bodyLen >= 0 && *want == 0 {
		return *accum, true, nil
	}
	return nil, false, nil
}

// purge resets the accumulated state and eats whatever the peer already sent.
// After a framing violation frame boundaries are unknown, so everything
// readable right now is garbage.
func (c *Conn) purge() {
	buf := make([]byte, 4096)
	for {
		c.sock.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := c.sock.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}
