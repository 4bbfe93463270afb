package session

import (
	"context"

	slogctx "github.com/veqryn/slog-context"
)

// Dispatch runs a user-supplied callback on its own goroutine so a slow or
// panicking callback can never stall the request path or the eviction loop.
// The callback keeps the logging attributes of ctx but outlives its
// cancellation.
func Dispatch(ctx context.Context, op string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slogctx.Error(ctx, "Session callback panicked", "op", op, "panic", r)
			}
		}()
		fn(ctx)
	}()
}
