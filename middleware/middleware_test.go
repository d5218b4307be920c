package middleware

import (
	"context"
	"testing"
	"time"

	"dcclink/message"
)

func okHandler(ctx context.Context, req *message.Request) *message.Response {
	resp := &message.Response{}
	resp.Succeed("ok")
	return resp
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}

	handler := Chain(tag("A"), tag("B"))(okHandler)
	handler(context.Background(), message.NewRequest("ping", nil, nil))

	want := []string{"A.before", "B.before", "B.after", "A.after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChainEmpty(t *testing.T) {
	handler := Chain()(okHandler)
	resp := handler(context.Background(), message.NewRequest("ping", nil, nil))
	if !resp.Success {
		t.Error("empty chain should pass through to the handler")
	}
}

func TestRateLimit(t *testing.T) {
	// 1 per second with burst 2: third immediate call is rejected
	handler := Chain(RateLimit(1, 2))(okHandler)
	req := message.NewRequest("echo", nil, nil)

	for i := 0; i < 2; i++ {
		if resp := handler(context.Background(), req); !resp.Success {
			t.Fatalf("call %d within burst was rejected: %s", i, resp.Msg)
		}
	}
	resp := handler(context.Background(), req)
	if resp.Success {
		t.Fatal("call beyond burst should be rejected")
	}
	if resp.Cmd != "echo" {
		t.Errorf("rejection must name the command: got %q", resp.Cmd)
	}
}

func TestTimeout(t *testing.T) {
	slow := func(ctx context.Context, req *message.Request) *message.Response {
		time.Sleep(200 * time.Millisecond)
		resp := &message.Response{}
		resp.Succeed("late")
		return resp
	}

	handler := Chain(Timeout(50 * time.Millisecond))(slow)
	resp := handler(context.Background(), message.NewRequest("sleep", nil, nil))
	if resp.Success {
		t.Fatal("slow handler should have timed out")
	}

	handler = Chain(Timeout(time.Second))(okHandler)
	if resp := handler(context.Background(), message.NewRequest("ping", nil, nil)); !resp.Success {
		t.Fatal("fast handler should pass")
	}
}
