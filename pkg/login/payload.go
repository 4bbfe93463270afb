package login

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload marks a request body that is not exactly one of the
// recognized payload shapes. Transports map it to a 422.
var ErrMalformedPayload = errors.New("malformed request payload")

// Payload is the tagged union of client-submitted bodies. The shape is
// decided once, at the transport boundary; ambiguous or unrecognized bodies
// never reach the orchestrator.
type Payload interface {
	payloadKind() string
}

// CredentialsPayload submits account credentials.
type CredentialsPayload struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// ChallengeResultPayload submits a solved bot-challenge.
type ChallengeResultPayload struct {
	Result json.RawMessage `json:"mmt_result"`
}

// VerificationCodePayload submits a secondary-verification code.
type VerificationCodePayload struct {
	Code string `json:"code"`
}

func (*CredentialsPayload) payloadKind() string      { return "credentials" }
func (*ChallengeResultPayload) payloadKind() string  { return "challenge_result" }
func (*VerificationCodePayload) payloadKind() string { return "verification_code" }

type payloadEnvelope struct {
	Account   *string         `json:"account"`
	Password  *string         `json:"password"`
	MMTResult json.RawMessage `json:"mmt_result"`
	Code      *string         `json:"code"`
}

// ParsePayload decodes a request body into exactly one payload kind. An
// empty body yields (nil, nil) and means "poll the current stage". A body
// carrying none of the discriminating fields, or more than one, is
// malformed.
func ParsePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	hasCredentials := env.Account != nil
	hasChallenge := len(env.MMTResult) > 0 && !bytes.Equal(env.MMTResult, []byte("null"))
	hasCode := env.Code != nil

	switch {
	case hasCredentials && !hasChallenge && !hasCode:
		if env.Password == nil {
			return nil, fmt.Errorf("%w: account without password", ErrMalformedPayload)
		}
		return &CredentialsPayload{Account: *env.Account, Password: *env.Password}, nil

	case hasChallenge && !hasCredentials && !hasCode:
		return &ChallengeResultPayload{Result: env.MMTResult}, nil

	case hasCode && !hasCredentials && !hasChallenge:
		return &VerificationCodePayload{Code: *env.Code}, nil

	default:
		return nil, fmt.Errorf("%w: no recognizable shape", ErrMalformedPayload)
	}
}
