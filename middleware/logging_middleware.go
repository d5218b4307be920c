package middleware

import (
	"context"
	"log/slog"
	"time"

	"dcclink/message"
)

// Logging records every dispatched command with its duration, and failures
// with their message.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			logger.Debug("command dispatched", "cmd", req.Cmd, "duration", time.Since(start))
			if !resp.Success {
				logger.Error("command failed", "cmd", req.Cmd, "msg", resp.Msg)
			}
			return resp
		}
	}
}
