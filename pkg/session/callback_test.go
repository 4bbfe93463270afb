package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openhoyo/hoyoauth/pkg/session"
)

func TestDispatch(t *testing.T) {
	t.Run("the callback outlives the caller's context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		errs := make(chan error, 1)
		session.Dispatch(ctx, "on_success", func(ctx context.Context) {
			errs <- ctx.Err()
		})

		select {
		case err := <-errs:
			assert.NoError(t, err, "the dispatched context must not inherit cancellation")
		case <-time.After(2 * time.Second):
			t.Fatal("the callback never ran")
		}
	})

	t.Run("nil callback is a no-op", func(t *testing.T) {
		session.Dispatch(t.Context(), "on_expire", nil)
	})

	t.Run("a panicking callback is contained", func(t *testing.T) {
		ran := make(chan struct{})
		session.Dispatch(t.Context(), "on_error", func(context.Context) {
			close(ran)
			panic("kaput")
		})

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("the callback never ran")
		}

		// A later dispatch still runs; the panic died with its goroutine.
		done := make(chan struct{})
		session.Dispatch(t.Context(), "on_error", func(context.Context) {
			close(done)
		})

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("dispatching stopped working after a panic")
		}
	})
}

func TestDispatch_Sequential(t *testing.T) {
	// Each dispatch gets its own goroutine, so a stalled callback cannot
	// delay the ones after it.
	slow := make(chan struct{})
	defer close(slow)

	session.Dispatch(t.Context(), "on_expire", func(context.Context) {
		<-slow
	})

	fast := make(chan struct{})
	session.Dispatch(t.Context(), "on_expire", func(context.Context) {
		close(fast)
	})

	select {
	case <-fast:
	case <-time.After(2 * time.Second):
		t.Fatal("a slow callback stalled a later one")
	}
}
