// Package events provides the in-process fan-out for host-application
// callbacks. Host integration code publishes records onto the Bus; the
// callback side-channel sender and any interested tool code subscribe.
package events

import (
	"sync"

	"github.com/cskr/pubsub"

	"dcclink/dcc"
)

// Record is a single host event: fire-and-forget, at-most-once, with no
// acknowledgement beyond transport-level success.
type Record struct {
	Type  dcc.CallbackType
	Value any
}

// Bus is a topic-per-callback-type publish/subscribe hub.
type Bus struct {
	ps       *pubsub.PubSub
	stop     chan struct{}
	stopOnce sync.Once
}

// NewBus creates a bus whose subscriber channels buffer up to capacity
// records. A full subscriber drops the publisher into its channel send, so
// capacity should cover the expected event burst.
func NewBus(capacity int) *Bus {
	return &Bus{ps: pubsub.New(capacity), stop: make(chan struct{})}
}

// Publish emits a record to every subscriber of its callback type.
func (b *Bus) Publish(t dcc.CallbackType, value any) {
	b.ps.Pub(Record{Type: t, Value: value}, string(t))
}

// Subscribe returns a channel receiving records of the given types. With no
// types it subscribes to every known callback type. The channel closes after
// Unsubscribe or Shutdown.
func (b *Bus) Subscribe(types ...dcc.CallbackType) <-chan Record {
	if len(types) == 0 {
		types = dcc.Callbacks
	}
	raw := b.ps.Sub(topics(types)...)

	out := make(chan Record)
	go func() {
		defer close(out)
		for msg := range raw {
			// A subscriber that stopped reading must not pin this
			// goroutine past Shutdown; the pending record is dropped.
			select {
			case out <- msg.(Record):
			case <-b.stop:
				return
			}
		}
	}()
	return out
}

// SubscribeChan is the untyped variant used when the subscriber needs to
// unsubscribe selectively; pair it with Unsubscribe.
func (b *Bus) SubscribeChan(types ...dcc.CallbackType) chan interface{} {
	if len(types) == 0 {
		types = dcc.Callbacks
	}
	return b.ps.Sub(topics(types)...)
}

// Unsubscribe removes a channel obtained from SubscribeChan.
func (b *Bus) Unsubscribe(ch chan interface{}, types ...dcc.CallbackType) {
	if len(types) == 0 {
		types = dcc.Callbacks
	}
	b.ps.Unsub(ch, topics(types)...)
}

// Shutdown closes the bus and every subscriber channel, releasing forwarding
// goroutines stuck on subscribers that stopped reading.
func (b *Bus) Shutdown() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.ps.Shutdown()
	})
}

func topics(types []dcc.CallbackType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
