// Package sessionvalkey is the Valkey-backed session store. Sessions are
// JSON values under prefix:session:<id>. A server-side TTL slightly past the
// session expiry acts as a backstop, while the sweep pass (SCAN + expiry
// check) normally evicts first so the expiry callback can fire. Get filters
// expired sessions itself either way.
package sessionvalkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openhoyo/hoyoauth/internal/serviceerr"
	"github.com/openhoyo/hoyoauth/pkg/session"
)

const (
	keyspace          = "session"
	maxCreateAttempts = 64
)

type Store struct {
	valkey valkey.Client
	prefix string
	opts   session.Options
}

var _ session.Store = (*Store)(nil)

func New(valkeyClient valkey.Client, prefix string, opts session.Options) *Store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Store{
		valkey: valkeyClient,
		prefix: prefix,
		opts:   opts.WithDefaults(),
	}
}

// Initialize starts the eviction loop. The loop stops when ctx is cancelled.
func (s *Store) Initialize(ctx context.Context) error {
	go s.sweepLoop(ctx)
	return nil
}

func (s *Store) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepExpired(ctx); err != nil {
				slogctx.Error(ctx, "Session eviction pass failed", "error", err)
			}
		}
	}
}

func (s *Store) Create(ctx context.Context, p session.CreateParams) (session.Session, error) {
	language := p.Language
	if language == "" {
		language = "en"
	}

	sess := session.Session{
		Stage:     session.StageUndefined,
		Language:  language,
		Account:   p.Account,
		Password:  p.Password,
		UserData:  p.UserData,
		ExpiresAt: s.opts.ExpiresAt(time.Now()),
	}

	// SET NX turns an id collision into a nil reply, so concurrent Create
	// calls can safely retry with a fresh id.
	for range maxCreateAttempts {
		id, err := session.NewID(s.opts.IDLength)
		if err != nil {
			return session.Session{}, fmt.Errorf("generating session id: %w", err)
		}
		sess.ID = id

		data, err := json.Marshal(sess)
		if err != nil {
			return session.Session{}, fmt.Errorf("encoding session: %w", err)
		}

		key := s.key(sess.ID)
		err = s.valkey.Do(ctx, s.valkey.B().Set().Key(key).Value(valkey.BinaryString(data)).Nx().Build()).Error()
		if err != nil {
			if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
				continue
			}

			return session.Session{}, fmt.Errorf("executing set command: %w", err)
		}

		if err := s.refreshBackstopTTL(ctx, key, sess); err != nil {
			return session.Session{}, err
		}

		return sess, nil
	}

	return session.Session{}, errors.New("exhausted session id generation attempts")
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	sess, err := s.load(ctx, s.key(id))
	if err != nil {
		return session.Session{}, err
	}

	if sess.Expired(time.Now()) {
		return session.Session{}, serviceerr.ErrNotFound
	}

	return sess, nil
}

func (s *Store) Update(ctx context.Context, id string, sess session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	key := s.key(id)
	if err := s.valkey.Do(ctx, s.valkey.B().Set().Key(key).Value(valkey.BinaryString(data)).Build()).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return s.refreshBackstopTTL(ctx, key, sess)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(id)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *Store) SweepExpired(ctx context.Context) error {
	sessions, err := s.scanSessions(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, sess := range sessions {
		if !sess.Expired(now) {
			continue
		}

		if err := s.Delete(ctx, sess.ID); err != nil {
			slogctx.Warn(ctx, "Could not evict expired session", "session_id", sess.ID, "error", err)
			continue
		}

		if s.opts.OnExpire != nil {
			sess := sess
			session.Dispatch(ctx, "on_expire", func(ctx context.Context) {
				s.opts.OnExpire(ctx, sess)
			})
		}
	}

	return nil
}

func (s *Store) load(ctx context.Context, key string) (session.Session, error) {
	data, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
			return session.Session{}, serviceerr.ErrNotFound
		}

		return session.Session{}, fmt.Errorf("executing get command: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return session.Session{}, fmt.Errorf("decoding session: %w", err)
	}

	return sess, nil
}

func (s *Store) scanSessions(ctx context.Context) ([]session.Session, error) {
	match := s.key("*")

	var (
		sessions []session.Session
		cursor   uint64
	)
	for {
		scan, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(match).Count(100).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("executing scan command: %w", err)
		}

		cursor = scan.Cursor
		sessions = slices.Grow(sessions, len(scan.Elements))
		for _, key := range scan.Elements {
			sess, err := s.load(ctx, key)
			if err != nil {
				if errors.Is(err, serviceerr.ErrNotFound) {
					// The backstop TTL removed the key mid-scan.
					continue
				}

				return nil, fmt.Errorf("loading a scanned session: %w", err)
			}

			sessions = append(sessions, sess)
		}

		if cursor == 0 {
			return sessions, nil
		}
	}
}

// refreshBackstopTTL sets the server-side expiry a few sweep intervals past
// the session expiry, leaving the sweep enough headroom to evict first and
// fire the callback.
func (s *Store) refreshBackstopTTL(ctx context.Context, key string, sess session.Session) error {
	if sess.ExpiresAt == nil {
		return nil
	}

	grace := 4 * s.opts.SweepInterval
	seconds := int64((time.Until(*sess.ExpiresAt) + grace).Seconds())
	if seconds < 1 {
		seconds = 1
	}

	if err := s.valkey.Do(ctx, s.valkey.B().Expire().Key(key).Seconds(seconds).Build()).Error(); err != nil {
		return fmt.Errorf("executing expire command: %w", err)
	}

	return nil
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, keyspace, id)
}
