// Package registry tracks which host-application sessions are currently
// serving on this machine (or a workstation fleet), so tools can discover a
// live session instead of blind-probing the port range.
package registry

import "dcclink/dcc"

// Instance describes one running dcclink server.
type Instance struct {
	Addr    string  // "127.0.0.1:17345"
	App     dcc.App // host application the server runs inside
	Version string  // host application version, if known
	PID     int     // host process id
}

// Registry is the session discovery interface. A nil Registry everywhere
// means discovery is disabled and clients fall back to port scanning.
type Registry interface {
	// Register announces an instance with a TTL in seconds; the entry
	// auto-expires if the server dies without deregistering.
	Register(app dcc.App, instance Instance, ttl int64) error

	// Deregister removes an instance, normally during graceful shutdown.
	Deregister(app dcc.App, addr string) error

	// Discover returns the live instances for a host application.
	Discover(app dcc.App) ([]Instance, error)

	// Watch emits updated instance lists as sessions come and go.
	Watch(app dcc.App) <-chan []Instance
}
