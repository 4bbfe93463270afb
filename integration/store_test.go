//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhoyo/hoyoauth/internal/dbtest/postgrestest"
	"github.com/openhoyo/hoyoauth/internal/dbtest/valkeytest"
	"github.com/openhoyo/hoyoauth/internal/serviceerr"
	"github.com/openhoyo/hoyoauth/pkg/session"
	sessionpostgres "github.com/openhoyo/hoyoauth/pkg/session/postgres"
	sessionvalkey "github.com/openhoyo/hoyoauth/pkg/session/valkey"
)

func TestPostgresStore(t *testing.T) {
	pool, port, terminate := postgrestest.Start(t.Context())
	t.Cleanup(func() {
		pool.Close()
		terminate(context.Background())
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, sessionpostgres.Migrate(t.Context(), postgrestest.ConnStr(port)))
	})

	runStoreSuite(t, func(opts session.Options) session.Store {
		return sessionpostgres.New(pool, opts)
	})
}

func TestValkeyStore(t *testing.T) {
	client, _, terminate := valkeytest.Start(t.Context())
	t.Cleanup(func() {
		client.Close()
		terminate(context.Background())
	})

	runStoreSuite(t, func(opts session.Options) session.Store {
		// A unique prefix isolates each subtest's keyspace, so one
		// subtest's sweep cannot evict another's sessions.
		return sessionvalkey.New(client, "test-"+uuid.NewString(), opts)
	})
}

// runStoreSuite checks the store contract against a live backend.
func runStoreSuite(t *testing.T, newStore func(opts session.Options) session.Store) {
	t.Helper()

	t.Run("create and get roundtrip", func(t *testing.T) {
		store := newStore(session.Options{TTL: time.Minute})

		sess, err := store.Create(t.Context(), session.CreateParams{
			UserData: json.RawMessage(`{"k":"v"}`),
			Language: "ru",
			Account:  "user@example.com",
			Password: "hunter2",
		})
		require.NoError(t, err)
		assert.Len(t, sess.ID, session.DefaultIDLength)
		assert.Equal(t, session.StageUndefined, sess.Stage)

		got, err := store.Get(t.Context(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.Equal(t, "ru", got.Language)
		assert.Equal(t, "user@example.com", got.Account)
		assert.JSONEq(t, `{"k":"v"}`, string(got.UserData))
		require.NotNil(t, got.ExpiresAt)
		assert.WithinDuration(t, *sess.ExpiresAt, *got.ExpiresAt, time.Second)
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(session.Options{})

		_, err := store.Get(t.Context(), "missing")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("get filters expired sessions without a sweep", func(t *testing.T) {
		store := newStore(session.Options{TTL: 50 * time.Millisecond, SweepInterval: time.Hour})

		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		_, err = store.Get(t.Context(), sess.ID)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("update is last-write-wins", func(t *testing.T) {
		store := newStore(session.Options{TTL: time.Minute})

		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		sess.Stage = session.StageLoginRequired
		require.NoError(t, store.Update(t.Context(), sess.ID, sess))

		sess.Stage = session.StageVerificationTriggered
		sess.Ticket = json.RawMessage(`{"id":"t1"}`)
		require.NoError(t, store.Update(t.Context(), sess.ID, sess))

		got, err := store.Get(t.Context(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StageVerificationTriggered, got.Stage)
		assert.JSONEq(t, `{"id":"t1"}`, string(got.Ticket))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(session.Options{TTL: time.Minute})

		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		require.NoError(t, store.Delete(t.Context(), sess.ID))
		require.NoError(t, store.Delete(t.Context(), sess.ID))

		_, err = store.Get(t.Context(), sess.ID)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("concurrent creates mint distinct ids", func(t *testing.T) {
		const n = 20

		store := newStore(session.Options{TTL: time.Minute})

		var (
			mu  sync.Mutex
			ids = make(map[string]struct{}, n)
			wg  sync.WaitGroup
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()

				sess, err := store.Create(context.Background(), session.CreateParams{})
				assert.NoError(t, err)

				mu.Lock()
				ids[sess.ID] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, ids, n)
	})

	t.Run("sweep evicts and fires on_expire once", func(t *testing.T) {
		expired := make(chan session.Session, 16)
		store := newStore(session.Options{
			TTL:           50 * time.Millisecond,
			SweepInterval: time.Hour,
			OnExpire:      func(_ context.Context, s session.Session) { expired <- s },
		})

		sess, err := store.Create(t.Context(), session.CreateParams{})
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		require.NoError(t, store.SweepExpired(t.Context()))
		require.NoError(t, store.SweepExpired(t.Context()))

		var seen int
		deadline := time.After(5 * time.Second)
		for seen == 0 {
			select {
			case got := <-expired:
				if got.ID == sess.ID {
					seen++
				}
			case <-deadline:
				t.Fatal("on_expire was not fired")
			}
		}

		select {
		case got := <-expired:
			assert.NotEqual(t, sess.ID, got.ID, "on_expire fired twice for the same session")
		case <-time.After(200 * time.Millisecond):
		}

		_, err = store.Get(t.Context(), sess.ID)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("eviction loop runs in the background", func(t *testing.T) {
		expired := make(chan session.Session, 16)
		store := newStore(session.Options{
			TTL:           50 * time.Millisecond,
			SweepInterval: 50 * time.Millisecond,
			OnExpire:      func(_ context.Context, s session.Session) { expired <- s },
		})

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		require.NoError(t, store.Initialize(ctx))

		sess, err := store.Create(ctx, session.CreateParams{})
		require.NoError(t, err)

		deadline := time.After(10 * time.Second)
		for {
			select {
			case got := <-expired:
				if got.ID == sess.ID {
					return
				}
			case <-deadline:
				t.Fatal("the eviction loop never fired on_expire")
			}
		}
	})
}
