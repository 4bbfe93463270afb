// Package gateway defines the boundary to the remote account API that
// performs the actual credential checks. The broker never interprets the
// challenge, ticket and result payloads it carries around; they are opaque
// blobs owned by this boundary.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrRejected marks an attempt the remote API refused: wrong credentials,
// a failed bot-challenge or a bad verification code. It is an expected
// outcome, not a transport failure.
var ErrRejected = errors.New("gateway rejected the attempt")

// Credentials submitted by the user.
type Credentials struct {
	Account  string
	Password string
}

// LoginExtras carries optional artifacts from earlier stages of the same
// login attempt.
type LoginExtras struct {
	// ChallengeResult is the solved bot-challenge, if one was demanded.
	ChallengeResult json.RawMessage
	// Ticket is the secondary-verification ticket, once verified.
	Ticket json.RawMessage
}

// Outcome of a login call. Exactly one field is set.
type Outcome struct {
	// Challenge is set when the remote API demands a bot-challenge.
	Challenge json.RawMessage
	// Ticket is set when the remote API demands secondary verification.
	Ticket json.RawMessage
	// Result is set when the login succeeded.
	Result json.RawMessage
}

// Gateway performs login and verification calls against the remote account
// API. Implementations must honor ctx cancellation and deadlines.
type Gateway interface {
	// Login attempts a credential login. A nil extras is equivalent to a
	// plain first attempt. Rejections are reported as errors wrapping
	// ErrRejected; any other error is a transport or server failure.
	Login(ctx context.Context, creds Credentials, extras *LoginExtras) (Outcome, error)

	// VerifyCode checks a secondary-verification code against a ticket.
	// challengeResult is non-nil when retrying after a bot-challenge was
	// demanded during verification. A non-nil challenge return means the
	// remote API demanded (another) bot-challenge instead of accepting the
	// code. A bad code is reported as an error wrapping ErrRejected.
	VerifyCode(ctx context.Context, code string, ticket, challengeResult json.RawMessage) (challenge json.RawMessage, err error)
}
