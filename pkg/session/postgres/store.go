// Package postgres is the relational session store, backed by pgx. Opaque
// challenge/ticket/result payloads are stored as JSONB blobs; eviction runs
// as DELETE … RETURNING inside a transaction so the expiry callback fires
// only for sessions this pass actually removed.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	// Register the pgx database/sql driver for goose.
	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openhoyo/hoyoauth/internal/serviceerr"
	"github.com/openhoyo/hoyoauth/pkg/session"
	"github.com/openhoyo/hoyoauth/pkg/session/postgres/migrations"
)

// maxCreateAttempts bounds the id-collision retry loop. The id space is
// vastly larger than any realistic session count, so hitting the bound
// indicates a broken random source rather than bad luck.
const maxCreateAttempts = 64

type Store struct {
	db   *pgxpool.Pool
	opts session.Options
}

var _ session.Store = (*Store)(nil)

func New(db *pgxpool.Pool, opts session.Options) *Store {
	return &Store{
		db:   db,
		opts: opts.WithDefaults(),
	}
}

// Migrate applies the embedded schema migrations to the database at connStr.
func Migrate(ctx context.Context, connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening DB connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}

// Initialize verifies connectivity and starts the eviction loop. The loop
// stops when ctx is cancelled.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

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

	// ON CONFLICT DO NOTHING turns an id collision into zero affected rows,
	// so concurrent Create calls can safely retry with a fresh id.
	for range maxCreateAttempts {
		id, err := session.NewID(s.opts.IDLength)
		if err != nil {
			return session.Session{}, fmt.Errorf("generating session id: %w", err)
		}
		sess.ID = id

		tag, err := s.db.Exec(
			ctx, `INSERT INTO sessions (id, stage, user_data, language, account, password, challenge, ticket, login_result, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING;`,
			sess.ID, string(sess.Stage), sess.UserData, sess.Language, sess.Account, sess.Password,
			sess.Challenge, sess.Ticket, sess.Result, sess.ExpiresAt,
		)
		if err != nil {
			return session.Session{}, fmt.Errorf("inserting into sessions: %w", err)
		}

		if tag.RowsAffected() == 1 {
			return sess, nil
		}
	}

	return session.Session{}, errors.New("exhausted session id generation attempts")
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRow(
		ctx, `SELECT id, stage, user_data, language, account, password, challenge, ticket, login_result, expires_at
FROM sessions
WHERE id = $1
	AND (expires_at IS NULL OR expires_at > now());`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, serviceerr.ErrNotFound
		}

		return session.Session{}, fmt.Errorf("selecting from sessions: %w", err)
	}

	return sess, nil
}

func (s *Store) Update(ctx context.Context, id string, sess session.Session) error {
	if _, err := s.db.Exec(
		ctx, `UPDATE sessions SET
	stage = $1,
	user_data = $2,
	language = $3,
	account = $4,
	password = $5,
	challenge = $6,
	ticket = $7,
	login_result = $8,
	expires_at = $9
WHERE id = $10;`,
		string(sess.Stage), sess.UserData, sess.Language, sess.Account, sess.Password,
		sess.Challenge, sess.Ticket, sess.Result, sess.ExpiresAt, id,
	); err != nil {
		return fmt.Errorf("updating sessions: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("deleting from sessions: %w", err)
	}

	return nil
}

func (s *Store) SweepExpired(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(
		ctx, `DELETE FROM sessions
WHERE expires_at IS NOT NULL AND expires_at <= now()
RETURNING id, stage, user_data, language, account, password, challenge, ticket, login_result, expires_at;`,
	)
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}

	var evicted []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scanning evicted session: %w", err)
		}
		evicted = append(evicted, sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading evicted sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

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

func scanSession(row pgx.Row) (session.Session, error) {
	var (
		sess  session.Session
		stage string
	)
	if err := row.Scan(
		&sess.ID, &stage, &sess.UserData, &sess.Language, &sess.Account, &sess.Password,
		&sess.Challenge, &sess.Ticket, &sess.Result, &sess.ExpiresAt,
	); err != nil {
		return session.Session{}, err
	}

	sess.Stage = session.Stage(stage)
	return sess, nil
}
