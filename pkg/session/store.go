package session

import (
	"context"
	"encoding/json"
	"time"
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultIDLength      = 10
	DefaultSweepInterval = 500 * time.Millisecond
)

// ExpireCallback is invoked once per session evicted by the sweep, after the
// session was removed from the store. It runs on its own goroutine.
type ExpireCallback func(ctx context.Context, s Session)

// Options configure a Store implementation.
type Options struct {
	// TTL is how long a session lives from creation. Zero selects
	// DefaultTTL; a negative value disables expiry entirely.
	TTL time.Duration
	// IDLength is the length of generated session ids. Zero selects
	// DefaultIDLength.
	IDLength int
	// SweepInterval is the pause between eviction passes. Zero selects
	// DefaultSweepInterval.
	SweepInterval time.Duration
	// OnExpire, if set, is fired for every evicted session.
	OnExpire ExpireCallback
}

// WithDefaults returns o with zero values replaced by the defaults.
func (o Options) WithDefaults() Options {
	if o.TTL == 0 {
		o.TTL = DefaultTTL
	}
	if o.IDLength <= 0 {
		o.IDLength = DefaultIDLength
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	return o
}

// ExpiresAt computes the expiry for a session created now, nil when expiry
// is disabled.
func (o Options) ExpiresAt(now time.Time) *time.Time {
	if o.TTL < 0 {
		return nil
	}
	t := now.Add(o.TTL)
	return &t
}

// CreateParams are the caller-supplied fields of a new session.
type CreateParams struct {
	// UserData is an opaque bag handed back unchanged through callbacks.
	UserData json.RawMessage
	// Language selects user-facing text; empty defaults to "en".
	Language string
	// Account and Password may pre-supply credentials so the first request
	// attempts a login immediately.
	Account  string
	Password string
}

// Store owns the full set of sessions for a process.
//
// Get must filter out sessions past their expiry itself, never relying on
// the background sweep. Delete is idempotent. Update is last-write-wins.
type Store interface {
	// Initialize prepares the backend and starts the background eviction
	// loop. The loop stops when ctx is cancelled.
	Initialize(ctx context.Context) error
	Create(ctx context.Context, p CreateParams) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, s Session) error
	Delete(ctx context.Context, id string) error
	// SweepExpired runs a single eviction pass, firing the OnExpire
	// callback once per removed session.
	SweepExpired(ctx context.Context) error
}
