package server

import (
	"sync"
	"time"
)

// EchoExecutor is a small standalone executor used by the demo server and the
// end-to-end tests. It exposes echo, set_title, title and sleep.
type EchoExecutor struct {
	mu    sync.Mutex
	title string
}

// Echo returns its text argument unchanged.
func (e *EchoExecutor) Echo(kwargs map[string]any) (any, error) {
	return kwargs["text"], nil
}

// SetTitle stores a window title and reports success.
func (e *EchoExecutor) SetTitle(kwargs map[string]any) (any, error) {
	title, _ := kwargs["title"].(string)
	e.mu.Lock()
	e.title = title
	e.mu.Unlock()
	return true, nil
}

// Title returns the stored window title.
func (e *EchoExecutor) Title() (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title, nil
}

// Sleep blocks for the requested number of seconds (default 6). It exists to
// exercise the slow-handler path: while it runs, its connection is blocked
// and the client side times out and recovers through the discard counter.
func (e *EchoExecutor) Sleep(kwargs map[string]any) (any, error) {
	seconds := 6.0
	if v, ok := kwargs["seconds"].(float64); ok {
		seconds = v
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return true, nil
}
