package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"dcclink/message"
)

// RateLimit rejects commands beyond r per second (token bucket with the given
// burst). A rejected command gets a normal application-level failure response,
// not a dropped connection, so a chatty tool degrades instead of breaking.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.Failure(req.Cmd, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
