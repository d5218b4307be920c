// Package dcc models the supported host applications (DCCs) and the
// deterministic port layout that keeps several of them coexisting on one
// machine.
package dcc

import (
	"os"
	"path/filepath"
	"strings"
)

// App identifies a supported host application.
type App string

const (
	// Standalone is the zero host: a plain process with no DCC runtime.
	Standalone App = "standalone"

	Maya          App = "maya"
	Max           App = "max"
	MotionBuilder App = "mobu"
	Houdini       App = "houdini"
	Nuke          App = "nuke"
	Unreal        App = "unreal"
)

// All lists the supported host applications in their fixed port order.
// The order is part of the wire contract: each app's server port is derived
// from its position here, so entries must never be reordered or removed.
var All = []App{Maya, Max, MotionBuilder, Houdini, Nuke, Unreal}

// NiceNames maps apps to their display names.
var NiceNames = map[App]string{
	Maya:          "Maya",
	Max:           "3ds Max",
	MotionBuilder: "MotionBuilder",
	Houdini:       "Houdini",
	Nuke:          "Nuke",
	Unreal:        "Unreal",
}

// Executables maps apps to their process executable names per platform.
// TODO: fill in the macOS and Linux executables for Max and MotionBuilder.
var Executables = map[App]map[string]string{
	Maya:          {"windows": "maya.exe", "linux": "maya", "darwin": "Maya"},
	Max:           {"windows": "3dsmax.exe"},
	MotionBuilder: {"windows": "motionbuilder.exe"},
	Houdini:       {"windows": "houdinifx.exe", "linux": "houdini"},
	Nuke:          {},
	Unreal:        {"windows": "UE4Editor.exe", "linux": "UE4Editor"},
}

// BasePort is the default base port. The final port depends on the host app.
const BasePort = 17344

// Port returns the main-channel port for app: the base port plus one per
// preceding entry in All. Standalone and unknown apps use the base port
// unchanged.
func Port(base int, app App) int {
	port := base
	for _, name := range All {
		port++
		if name == app {
			return port
		}
	}
	return base
}

// CallbackPort returns the callback side-channel port paired with a main
// port. One port per supported app is reserved below the base port, so the
// offset is the number of supported apps.
func CallbackPort(mainPort int) int {
	return mainPort - len(All)
}

// Ports returns the main-channel port of every supported app for a base port.
func Ports(base int) map[App]int {
	all := make(map[App]int, len(All))
	for _, app := range All {
		all[app] = Port(base, app)
	}
	return all
}

// Valid reports whether app names a supported host application.
func Valid(app App) bool {
	if app == Standalone {
		return true
	}
	for _, name := range All {
		if name == app {
			return true
		}
	}
	return false
}

// Context is the immutable identity of the host application a server runs
// inside. It is established once at startup and passed explicitly into
// constructors; there is no mutable process-global current-host state.
type Context struct {
	App     App
	Version string
	PID     int
}

// Detect resolves the host context for the current process, keying off the
// executable name. Outside a known DCC runtime the result is Standalone.
func Detect() Context {
	return Context{
		App: appFromExecutable(filepath.Base(os.Args[0])),
		PID: os.Getpid(),
	}
}

// appFromExecutable matches a process executable name to a supported app.
func appFromExecutable(exe string) App {
	exe = strings.ToLower(strings.TrimSuffix(exe, ".exe"))
	switch {
	case strings.Contains(exe, "maya"):
		return Maya
	case strings.Contains(exe, "3dsmax"):
		return Max
	case strings.Contains(exe, "motionbuilder"):
		return MotionBuilder
	case strings.Contains(exe, "houdini"):
		return Houdini
	case strings.Contains(exe, "nuke"):
		return Nuke
	case strings.Contains(exe, "unreal"), strings.HasPrefix(exe, "ue"):
		return Unreal
	}
	return Standalone
}
