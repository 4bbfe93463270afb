// Package memory is the in-memory session store: a mutex-guarded map plus a
// background eviction loop.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openhoyo/hoyoauth/internal/serviceerr"
	"github.com/openhoyo/hoyoauth/pkg/session"
)

type Store struct {
	opts session.Options

	mu       sync.Mutex
	sessions map[string]session.Session
}

var _ session.Store = (*Store)(nil)

func New(opts session.Options) *Store {
	return &Store{
		opts:     opts.WithDefaults(),
		sessions: make(map[string]session.Session),
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

func (s *Store) Create(_ context.Context, p session.CreateParams) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Generation and the uniqueness check happen under the same lock, so
	// interleaved Create calls cannot mint the same id.
	var id string
	for {
		newID, err := session.NewID(s.opts.IDLength)
		if err != nil {
			return session.Session{}, fmt.Errorf("generating session id: %w", err)
		}
		if _, exists := s.sessions[newID]; !exists {
			id = newID
			break
		}
	}

	language := p.Language
	if language == "" {
		language = "en"
	}

	sess := session.Session{
		ID:        id,
		Stage:     session.StageUndefined,
		Language:  language,
		Account:   p.Account,
		Password:  p.Password,
		UserData:  p.UserData,
		ExpiresAt: s.opts.ExpiresAt(time.Now()),
	}
	s.sessions[id] = sess

	return sess, nil
}

func (s *Store) Get(_ context.Context, id string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(time.Now()) {
		return session.Session{}, serviceerr.ErrNotFound
	}
	return sess, nil
}

func (s *Store) Update(_ context.Context, id string, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = sess
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// SweepExpired removes every expired session and fires OnExpire once per
// removed session, after removal, so a concurrent Get can never observe an
// evicted session that has not had its callback dispatched.
func (s *Store) SweepExpired(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	var evicted []session.Session
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			evicted = append(evicted, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	if s.opts.OnExpire != nil {
		for _, sess := range evicted {
			sess := sess
			session.Dispatch(ctx, "on_expire", func(ctx context.Context) {
				s.opts.OnExpire(ctx, sess)
			})
		}
	}

	return nil
}
