// Connection pool used by the callback side-channel sender.
//
// Callback pushes are fire-and-forget and run on worker goroutines, so
// connections are used exclusively (one notification at a time per
// connection) and a borrow/return pool fits better than sharing one stream.
//
// Pool design: a buffered channel as a natural FIFO queue. Buffered channels
// are concurrency-safe, and blocking on empty is built-in.
package transport

import (
	"fmt"
	"sync"
)

// Pool manages reusable connections to a single address.
type Pool struct {
	mu       sync.Mutex
	conns    chan *PoolConn
	maxConns int
	curConns int
	factory  func() (*Conn, error)
}

// PoolConn wraps a Conn with pool bookkeeping.
type PoolConn struct {
	*Conn
	unusable bool // set when the connection encountered an error
}

// MarkUnusable flags the connection so Put closes it instead of recycling.
func (pc *PoolConn) MarkUnusable() {
	pc.unusable = true
}

// NewPool creates a pool with the given max size. Connections are created
// lazily: the pool starts empty and grows on demand.
func NewPool(maxConns int, factory func() (*Conn, error)) *Pool {
	return &Pool{
		conns:    make(chan *PoolConn, maxConns),
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get retrieves a connection:
//  1. an idle connection from the channel, if any
//  2. a freshly dialed one while under the limit
//  3. otherwise block until a connection is returned
func (p *Pool) Get() (*PoolConn, error) {
	select {
	case conn := <-p.conns:
		if conn.unusable {
			return p.createNew()
		}
		return conn, nil
	default:
		p.mu.Lock()
		under := p.curConns < p.maxConns
		p.mu.Unlock()
		if under {
			return p.createNew()
		}
		return <-p.conns, nil
	}
}

// Put returns a connection to the pool. Unusable connections are closed and
// their slot freed so Get can dial a replacement.
func (p *Pool) Put(conn *PoolConn) {
	if conn.unusable {
		conn.Close()
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return
	}
	p.conns <- conn
}

// Close shuts the pool down and closes all idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.conns)
	for conn := range p.conns {
		conn.Close()
		p.curConns--
	}
	return nil
}

func (p *Pool) createNew() (*PoolConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.curConns >= p.maxConns {
		return nil, fmt.Errorf("connection pool exhausted")
	}

	conn, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.curConns++
	return &PoolConn{Conn: conn}, nil
}
