// Package message defines the command envelope exchanged between client and server.
//
// A Request names a remote command plus its positional and keyword data; a
// Response reports success or failure plus an optional status record. Both
// are serialized as JSON and wrapped in a protocol frame for transmission.
package message

import (
	"encoding/json"
	"fmt"
)

// Level classifies a status record.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelSuccess Level = "success"
	LevelUnknown Level = "unknown"
)

// Status is the human-facing state attached to a response or tracked by a
// client between calls. Last write wins; no history is retained.
type Status struct {
	Msg   string `json:"msg"`
	Level Level  `json:"level"`
}

// Request is a single remote command invocation.
//
// On the wire it is a flat JSON object: the required "cmd" key, an optional
// "args" list with positional data, and every keyword argument as its own
// top-level key. Handlers receive unknown keys as keyword data unchanged.
type Request struct {
	Cmd    string
	Args   []any
	Kwargs map[string]any
}

// NewRequest builds a request for cmd with the given positional and keyword
// arguments. kwargs may be nil.
func NewRequest(cmd string, args []any, kwargs map[string]any) *Request {
	return &Request{Cmd: cmd, Args: args, Kwargs: kwargs}
}

// Kwarg returns the named keyword argument, or nil if absent.
func (r *Request) Kwarg(name string) any {
	if r.Kwargs == nil {
		return nil
	}
	return r.Kwargs[name]
}

// String returns a string-typed keyword argument; non-string and absent
// values come back as the empty string.
func (r *Request) String(name string) string {
	s, _ := r.Kwarg(name).(string)
	return s
}

// Bool returns a bool-typed keyword argument, or def when absent or mistyped.
func (r *Request) Bool(name string, def bool) bool {
	if v, ok := r.Kwarg(name).(bool); ok {
		return v
	}
	return def
}

// MarshalJSON flattens keyword arguments to top-level keys next to "cmd" and
// "args", matching the wire format expected by existing peers.
func (r *Request) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Kwargs)+2)
	for k, v := range r.Kwargs {
		if k == "cmd" || k == "args" {
			continue // reserved keys never come from kwargs
		}
		obj[k] = v
	}
	obj["cmd"] = r.Cmd
	if r.Args != nil {
		obj["args"] = r.Args
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits the flat wire object back into cmd, args and kwargs.
func (r *Request) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	cmd, ok := obj["cmd"].(string)
	if !ok || cmd == "" {
		return fmt.Errorf("request is missing the cmd key")
	}
	r.Cmd = cmd
	delete(obj, "cmd")

	if rawArgs, found := obj["args"]; found {
		args, ok := rawArgs.([]any)
		if !ok {
			return fmt.Errorf("request args must be a list, got %T", rawArgs)
		}
		r.Args = args
		delete(obj, "args")
	} else {
		r.Args = nil
	}

	r.Kwargs = obj
	return nil
}

// Response is the reply to a single request.
//
// Success=false implies Msg is non-empty and Cmd names the failing command.
// A decoded response with Success=false is a normal application-level failure,
// not a transport error; callers must treat the two differently.
type Response struct {
	Success bool    `json:"success"`
	Result  any     `json:"result"`
	Msg     string  `json:"msg,omitempty"`
	Cmd     string  `json:"cmd,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Failure builds a failed response for cmd. An empty msg is replaced so the
// Success=false ⇒ non-empty Msg invariant always holds.
func Failure(cmd, msg string) *Response {
	if msg == "" {
		msg = "Unknown Error"
	}
	return &Response{Success: false, Msg: msg, Cmd: cmd}
}

// Succeed marks the response successful with the given result.
func (r *Response) Succeed(result any) {
	r.Success = true
	r.Result = result
}

// Fail marks the response failed with the given message.
func (r *Response) Fail(msg string) {
	r.Success = false
	r.Msg = msg
}
