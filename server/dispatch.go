// Command dispatch: the registration table, the generic executor fallback,
// and the recovery boundary that keeps handler failures from crashing the
// server.
//
// Dispatch order for a command name:
//  1. the handler table (a name present here is never routed to the executor,
//     even if the executor exposes the same name)
//  2. the generic executor, if attached and exposing a matching method
//  3. a failure response: "Invalid command (<name>)"
package server

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"unicode"

	"dcclink/message"
)

var (
	requestType  = reflect.TypeOf((*message.Request)(nil))
	responseType = reflect.TypeOf((*message.Response)(nil))
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	argsType     = reflect.TypeOf([]any(nil))
	kwargsType   = reflect.TypeOf(map[string]any(nil))
)

// registerBuiltins installs the handlers every server carries.
func (s *Server) registerBuiltins() {
	// Liveness probe: always succeeds while the server is reachable,
	// regardless of prior request history.
	s.handlers["ping"] = func(req *message.Request, resp *message.Response) {
		resp.Success = true
	}

	// Host identity: name, version and process id of the embedding host.
	s.handlers["get_host_info"] = func(req *message.Request, resp *message.Response) {
		resp.Succeed(map[string]any{
			"name":    string(s.host.App),
			"version": s.host.Version,
			"pid":     s.host.PID,
		})
	}
}

// registerHandlers scans rcvr's exported methods and registers every method
// with the signature
//
//	func (T) Name(req *message.Request, resp *message.Response)
//
// under the snake_case form of its name (SelectNode → select_node). Methods
// with any other signature are skipped. Called only during construction; the
// table is immutable afterwards.
func (s *Server) registerHandlers(rcvr any) {
	val := reflect.ValueOf(rcvr)
	typ := val.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 0 ||
			mt.In(1) != requestType || mt.In(2) != responseType {
			continue
		}
		fn := val.Method(i)
		s.handlers[snakeCase(method.Name)] = func(req *message.Request, resp *message.Response) {
			fn.Call([]reflect.Value{reflect.ValueOf(req), reflect.ValueOf(resp)})
		}
	}
}

// dispatch routes one request. Any panic below this point is converted into
// an application-level failure carrying the trace text; handlers never crash
// the server process.
func (s *Server) dispatch(ctx context.Context, req *message.Request) (resp *message.Response) {
	resp = &message.Response{Success: false, Msg: "", Result: nil}

	defer func() {
		if r := recover(); r != nil {
			resp = message.Failure(req.Cmd, fmt.Sprintf("%v\n%s", r, debug.Stack()))
		}
	}()

	if handler, ok := s.handlers[req.Cmd]; ok {
		handler(req, resp)
	} else if s.executor != nil && s.executor.exposes(req.Cmd) {
		result, err := s.executor.call(req.Cmd, req.Args, req.Kwargs)
		if err != nil {
			resp.Fail(err.Error())
		} else {
			resp.Succeed(result)
		}
	} else {
		resp.Fail(fmt.Sprintf("Invalid command (%s)", req.Cmd))
	}

	// A failed response always identifies the failing command and carries
	// a non-empty message.
	if !resp.Success {
		resp.Cmd = req.Cmd
		if resp.Msg == "" {
			resp.Msg = "Unknown Error"
		}
	}
	return resp
}

// executorBinding adapts an arbitrary executor value (the host application's
// native API surface) so its exported methods are callable by command name.
type executorBinding struct {
	methods map[string]reflect.Value
}

// newExecutorBinding indexes every exported method of exec under the
// snake_case form of its name. Handlers-style methods are indexed too; the
// dispatch order above keeps the table authoritative for shared names.
func newExecutorBinding(exec any) *executorBinding {
	b := &executorBinding{methods: make(map[string]reflect.Value)}
	val := reflect.ValueOf(exec)
	typ := val.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		b.methods[snakeCase(typ.Method(i).Name)] = val.Method(i)
	}
	return b
}

func (b *executorBinding) exposes(name string) bool {
	_, ok := b.methods[name]
	return ok
}

// call invokes the named method with the most specific binding its signature
// allows:
//
//   - a []any parameter receives the remaining positional arguments
//   - a map[string]any parameter receives the keyword arguments
//   - any other parameter consumes the next positional argument, converted
//     to the parameter type; with positional arguments exhausted it gets the
//     zero value (the "call with fewer arguments" fallback)
//
// A value that cannot be converted is a binding failure, reported as an
// error and turned into a normal failure response by dispatch.
func (b *executorBinding) call(name string, args []any, kwargs map[string]any) (any, error) {
	fn := b.methods[name]
	ft := fn.Type()

	if kwargs == nil {
		kwargs = map[string]any{}
	}

	in := make([]reflect.Value, 0, ft.NumIn())
	remaining := args
	for i := 0; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		switch pt {
		case argsType:
			if remaining == nil {
				remaining = []any{}
			}
			in = append(in, reflect.ValueOf(remaining))
			remaining = nil
		case kwargsType:
			in = append(in, reflect.ValueOf(kwargs))
		default:
			if len(remaining) == 0 {
				in = append(in, reflect.Zero(pt))
				continue
			}
			bound, err := bindValue(pt, remaining[0])
			if err != nil {
				return nil, fmt.Errorf("cannot bind argument %d of %s: %v", i, name, err)
			}
			in = append(in, bound)
			remaining = remaining[1:]
		}
	}

	out := fn.Call(in)
	return splitResults(out)
}

// bindValue converts a decoded JSON value to the parameter type. JSON numbers
// decode as float64, so numeric conversions are routine here.
func bindValue(pt reflect.Type, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(pt), nil
	}
	vv := reflect.ValueOf(v)
	if vv.Type().AssignableTo(pt) {
		return vv, nil
	}
	if vv.Type().ConvertibleTo(pt) {
		return vv.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not assignable to %s", v, pt)
}

// splitResults maps an arbitrary return list onto (result, error): a trailing
// error return is split off, the first remaining value is the result.
func splitResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type().Implements(errorType) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// snakeCase converts an exported Go method name to its wire command form:
// Echo → echo, SelectNode → select_node, GetHostInfo → get_host_info.
func snakeCase(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
