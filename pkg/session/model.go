package session

import (
	"encoding/json"
	"time"
)

// Stage of a login attempt. A session advances through these stages as the
// user responds to what the remote account API demands.
type Stage string

const (
	// StageUndefined is the initial stage; it is resolved synchronously on
	// the first request that touches the session.
	StageUndefined Stage = "undefined"
	// StageLoginRequired means the user still has to submit credentials,
	// or the previous attempt was rejected.
	StageLoginRequired Stage = "login_required"
	// StageLoginChallengeTriggered means a bot-challenge was demanded on
	// the login attempt.
	StageLoginChallengeTriggered Stage = "login_challenge_triggered"
	// StageVerificationTriggered means secondary verification was demanded.
	StageVerificationTriggered Stage = "verification_triggered"
	// StageVerificationChallengeTriggered means a bot-challenge was demanded
	// during secondary verification.
	StageVerificationChallengeTriggered Stage = "verification_challenge_triggered"
	// StageSuccess is terminal.
	StageSuccess Stage = "success"
)

// Session is one login attempt. The Challenge, Ticket, Result and UserData
// blobs are opaque; the broker only tracks their presence.
type Session struct {
	ID        string          `json:"id"`
	Stage     Stage           `json:"stage"`
	Language  string          `json:"language,omitempty"`
	Account   string          `json:"account,omitempty"`
	Password  string          `json:"password,omitempty"`
	Challenge json.RawMessage `json:"challenge_payload,omitempty"`
	Ticket    json.RawMessage `json:"verification_ticket,omitempty"`
	Result    json.RawMessage `json:"login_result,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	UserData  json.RawMessage `json:"user_data,omitempty"`
}

// Partial is the safe projection of a session, exposed to the login page.
// It never carries credentials, the login result or the user data bag.
type Partial struct {
	ID        string          `json:"id"`
	Stage     Stage           `json:"stage"`
	Language  string          `json:"language,omitempty"`
	Challenge json.RawMessage `json:"challenge_payload,omitempty"`
	Ticket    json.RawMessage `json:"verification_ticket,omitempty"`
}

// Partial returns the safe projection of s.
func (s Session) Partial() Partial {
	return Partial{
		ID:        s.ID,
		Stage:     s.Stage,
		Language:  s.Language,
		Challenge: s.Challenge,
		Ticket:    s.Ticket,
	}
}

// Expired reports whether s is expired at the given instant. The boundary is
// inclusive: a session is expired from its expiry instant onward, matching
// the relational store's expires_at > now() filter. A nil ExpiresAt means the
// session never expires.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
