package transport

import (
	"net"
	"testing"
	"time"
)

func TestPoolRecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	dialed := 0
	pool := NewPool(2, func() (*Conn, error) {
		dialed++
		return Dial(ln.Addr().String(), time.Second)
	})
	defer pool.Close()

	// A returned connection is handed out again instead of redialing
	c1, err := pool.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	pool.Put(c1)
	c2, err := pool.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if dialed != 1 {
		t.Errorf("dialed %d times, want 1", dialed)
	}

	// An unusable connection is dropped and replaced on the next Get
	c2.MarkUnusable()
	pool.Put(c2)
	c3, err := pool.Get()
	if err != nil {
		t.Fatalf("Get after unusable failed: %v", err)
	}
	if dialed != 2 {
		t.Errorf("dialed %d times after replacement, want 2", dialed)
	}
	pool.Put(c3)
}
