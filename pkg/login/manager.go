// Package login drives the login-attempt state machine. Given a session and
// an optional client payload it validates the payload against the current
// stage, calls the account gateway, computes the next stage and produces a
// transport-agnostic response.
package login

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openhoyo/hoyoauth/pkg/gateway"
	"github.com/openhoyo/hoyoauth/pkg/localization"
	"github.com/openhoyo/hoyoauth/pkg/session"
)

// SuccessCallback fires when a session reaches the terminal success stage.
// It receives the pre-deletion snapshot and fires at most once per session.
type SuccessCallback func(ctx context.Context, s session.Session)

// ErrorCallback fires when handling a request fails unexpectedly. It may
// fire more than once for a single session across retries.
type ErrorCallback func(ctx context.Context, s session.Session, err error)

// Options configure a Manager.
type Options struct {
	// Localization overrides; merged over the built-in table.
	Localization localization.Table
	// OnSuccess and OnError are fire-and-forget; they run on their own
	// goroutines and cannot stall the request path.
	OnSuccess SuccessCallback
	OnError   ErrorCallback
	// GatewayTimeout bounds each gateway call on top of whatever timeout
	// the gateway implementation enforces itself. Zero disables it.
	GatewayTimeout time.Duration
}

// Response is the normalized result of handling a request. Body is either a
// session.Partial or an ErrorBody.
type Response struct {
	Status int
	Body   any
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Manager struct {
	store   session.Store
	gateway gateway.Gateway
	loc     localization.Table

	onSuccess SuccessCallback
	onError   ErrorCallback

	gatewayTimeout time.Duration
}

func NewManager(store session.Store, gw gateway.Gateway, opts Options) *Manager {
	loc := localization.Default()
	if opts.Localization != nil {
		loc = loc.Merge(opts.Localization)
	}

	return &Manager{
		store:          store,
		gateway:        gw,
		loc:            loc,
		onSuccess:      opts.OnSuccess,
		onError:        opts.OnError,
		gatewayTimeout: opts.GatewayTimeout,
	}
}

// Store returns the session store the manager operates on.
func (m *Manager) Store() session.Store { return m.store }

// Localization returns the manager's merged localization table.
func (m *Manager) Localization() localization.Table { return m.loc }

// Handle advances the session's state machine by one request. Unexpected
// failures dispatch the error callback and propagate to the transport; the
// manager never swallows them.
func (m *Manager) Handle(ctx context.Context, sess session.Session, payload Payload) (Response, error) {
	resp, err := m.handle(ctx, sess, payload)
	if err != nil {
		snapshot := sess
		if m.onError != nil {
			session.Dispatch(ctx, "on_error", func(ctx context.Context) {
				m.onError(ctx, snapshot, err)
			})
		}
		return Response{}, err
	}

	return resp, nil
}

func (m *Manager) handle(ctx context.Context, sess session.Session, payload Payload) (Response, error) {
	if sess.Stage == session.StageUndefined {
		if err := m.resolveUndefined(ctx, &sess); err != nil {
			return Response{}, err
		}
		if sess.Stage == session.StageSuccess {
			return m.complete(ctx, sess)
		}
	}

	// Without a payload the client is polling for the current stage.
	if payload == nil {
		if err := m.store.Update(ctx, sess.ID, sess); err != nil {
			return Response{}, err
		}
		return Response{Status: http.StatusOK, Body: sess.Partial()}, nil
	}

	switch sess.Stage {
	case session.StageLoginRequired:
		creds, ok := payload.(*CredentialsPayload)
		if !ok {
			return m.invalidBody(ctx, sess)
		}

		sess.Account = creds.Account
		sess.Password = creds.Password

		if err := m.attemptLogin(ctx, &sess, nil); err != nil {
			return Response{}, err
		}
		if sess.Stage == session.StageLoginRequired {
			return m.domainError(ctx, sess, localization.KeyLoginFailedTitle, localization.KeyLoginFailedMessage)
		}

	case session.StageLoginChallengeTriggered:
		result, ok := payload.(*ChallengeResultPayload)
		if !ok {
			return m.invalidBody(ctx, sess)
		}

		if err := m.attemptLogin(ctx, &sess, &gateway.LoginExtras{ChallengeResult: result.Result}); err != nil {
			return Response{}, err
		}
		if sess.Stage == session.StageLoginRequired {
			return m.domainError(ctx, sess, localization.KeyLoginFailedTitle, localization.KeyLoginFailedMessage)
		}

	case session.StageVerificationTriggered:
		code, ok := payload.(*VerificationCodePayload)
		if !ok {
			return m.invalidBody(ctx, sess)
		}

		verified, challenged, err := m.verifyCode(ctx, &sess, code.Code, nil)
		if err != nil {
			return Response{}, err
		}
		if challenged {
			break
		}
		if !verified {
			return m.domainError(ctx, sess, localization.KeyVerificationFailedTitle, localization.KeyVerificationFailedMessage)
		}

		if err := m.attemptLogin(ctx, &sess, &gateway.LoginExtras{Ticket: sess.Ticket}); err != nil {
			return Response{}, err
		}

	case session.StageVerificationChallengeTriggered:
		result, ok := payload.(*ChallengeResultPayload)
		if !ok {
			return m.invalidBody(ctx, sess)
		}

		verified, challenged, err := m.verifyCode(ctx, &sess, "", result.Result)
		if err != nil {
			return Response{}, err
		}
		if challenged {
			break
		}
		if !verified {
			return m.domainError(ctx, sess, localization.KeyVerificationFailedTitle, localization.KeyVerificationFailedMessage)
		}

		if err := m.attemptLogin(ctx, &sess, &gateway.LoginExtras{Ticket: sess.Ticket}); err != nil {
			return Response{}, err
		}

	default:
		return m.invalidBody(ctx, sess)
	}

	if sess.Stage == session.StageSuccess {
		return m.complete(ctx, sess)
	}

	if err := m.store.Update(ctx, sess.ID, sess); err != nil {
		return Response{}, err
	}
	return Response{Status: http.StatusOK, Body: sess.Partial()}, nil
}

// resolveUndefined decides the first real stage of a fresh session: attempt
// a login right away when credentials were pre-supplied at creation,
// otherwise wait for the user.
func (m *Manager) resolveUndefined(ctx context.Context, sess *session.Session) error {
	if sess.Account != "" && sess.Password != "" {
		return m.attemptLogin(ctx, sess, nil)
	}

	sess.Stage = session.StageLoginRequired
	return nil
}

// attemptLogin calls the gateway and applies the three-way branch to the
// session. A rejection regresses the session to the login stage; it is not
// an error.
func (m *Manager) attemptLogin(ctx context.Context, sess *session.Session, extras *gateway.LoginExtras) error {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	outcome, err := m.gateway.Login(callCtx, gateway.Credentials{Account: sess.Account, Password: sess.Password}, extras)
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			sess.Stage = session.StageLoginRequired
			sess.Challenge = nil
			sess.Ticket = nil
			return nil
		}
		return err
	}

	switch {
	case len(outcome.Challenge) > 0:
		sess.Stage = session.StageLoginChallengeTriggered
		sess.Challenge = outcome.Challenge
		sess.Ticket = nil

	case len(outcome.Ticket) > 0:
		sess.Stage = session.StageVerificationTriggered
		sess.Ticket = outcome.Ticket
		sess.Challenge = nil

	default:
		sess.Stage = session.StageSuccess
		sess.Result = outcome.Result
		sess.Challenge = nil
		sess.Ticket = nil
		// Credentials are held only as long as retries may need them.
		sess.Account = ""
		sess.Password = ""
	}

	return nil
}

// verifyCode checks a secondary-verification code. challenged is true when
// the gateway demanded a bot-challenge instead of accepting the code; the
// new challenge is stored on the session. verified is false on rejection,
// leaving the stage unchanged for a retry.
func (m *Manager) verifyCode(ctx context.Context, sess *session.Session, code string, challengeResult []byte) (verified, challenged bool, _ error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	challenge, err := m.gateway.VerifyCode(callCtx, code, sess.Ticket, challengeResult)
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			return false, false, nil
		}
		return false, false, err
	}

	if len(challenge) > 0 {
		sess.Stage = session.StageVerificationChallengeTriggered
		sess.Challenge = challenge
		return false, true, nil
	}

	sess.Challenge = nil
	return true, false, nil
}

// complete fires the success callback with the pre-deletion snapshot, then
// removes the session so no second success path can reach it.
func (m *Manager) complete(ctx context.Context, sess session.Session) (Response, error) {
	snapshot := sess
	if m.onSuccess != nil {
		session.Dispatch(ctx, "on_success", func(ctx context.Context) {
			m.onSuccess(ctx, snapshot)
		})
	}

	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return Response{}, err
	}

	return Response{Status: http.StatusOK, Body: sess.Partial()}, nil
}

// invalidBody persists the unchanged session and reports a payload whose
// shape does not match the current stage. The gateway is never consulted.
func (m *Manager) invalidBody(ctx context.Context, sess session.Session) (Response, error) {
	if err := m.store.Update(ctx, sess.ID, sess); err != nil {
		return Response{}, err
	}

	return Response{
		Status: http.StatusUnprocessableEntity,
		Body:   m.errorBody(sess.Language, localization.KeyInvalidBodyTitle, localization.KeyInvalidBodyMessage),
	}, nil
}

// domainError persists the session and reports an attempt the remote API
// rejected. This is an expected outcome, so the transport status is 200
// with a structured error body.
func (m *Manager) domainError(ctx context.Context, sess session.Session, titleKey, messageKey string) (Response, error) {
	if err := m.store.Update(ctx, sess.ID, sess); err != nil {
		return Response{}, err
	}

	return Response{
		Status: http.StatusOK,
		Body:   m.errorBody(sess.Language, titleKey, messageKey),
	}, nil
}

func (m *Manager) errorBody(lang, titleKey, messageKey string) ErrorBody {
	return ErrorBody{Error: ErrorDetail{
		Title:   m.loc.Resolve(titleKey, lang),
		Message: m.loc.Resolve(messageKey, lang),
	}}
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.gatewayTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.gatewayTimeout)
}
