package middleware

import (
	"context"
	"time"

	"dcclink/message"
)

// Timeout bounds a single handler invocation.
//
// Not installed by default: the protocol deliberately lets a slow handler
// block its connection, and clients own timeout handling through the
// transport's discard counter. The handler goroutine keeps running after the
// deadline fires; its response is thrown away.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Failure(req.Cmd, "request timed out")
			}
		}
	}
}
