package gatewaymock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openhoyo/hoyoauth/pkg/gateway"
)

type GatewayOption func(*Gateway)

// Gateway is a scripted gateway.Gateway for tests. Login outcomes are
// consumed in the order they were queued; once the queue is drained the
// last outcome repeats.
type Gateway struct {
	mu sync.Mutex

	loginOutcomes []gateway.Outcome
	loginErr      error

	verifyChallenge json.RawMessage
	verifyErr       error

	loginCalls  int
	verifyCalls int

	lastCredentials gateway.Credentials
	lastExtras      *gateway.LoginExtras
	lastCode        string
}

var _ = gateway.Gateway(&Gateway{})

func WithLoginOutcome(o gateway.Outcome) GatewayOption {
	return func(g *Gateway) { g.loginOutcomes = append(g.loginOutcomes, o) }
}
func WithLoginError(err error) GatewayOption {
	return func(g *Gateway) { g.loginErr = err }
}
func WithVerifyChallenge(challenge json.RawMessage) GatewayOption {
	return func(g *Gateway) { g.verifyChallenge = challenge }
}
func WithVerifyError(err error) GatewayOption {
	return func(g *Gateway) { g.verifyErr = err }
}

func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *Gateway) Login(_ context.Context, creds gateway.Credentials, extras *gateway.LoginExtras) (gateway.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.loginCalls++
	g.lastCredentials = creds
	g.lastExtras = extras

	if g.loginErr != nil {
		return gateway.Outcome{}, g.loginErr
	}
	if len(g.loginOutcomes) == 0 {
		return gateway.Outcome{}, nil
	}

	o := g.loginOutcomes[0]
	if len(g.loginOutcomes) > 1 {
		g.loginOutcomes = g.loginOutcomes[1:]
	}
	return o, nil
}

func (g *Gateway) VerifyCode(_ context.Context, code string, _, _ json.RawMessage) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.verifyCalls++
	g.lastCode = code

	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyChallenge, nil
}

func (g *Gateway) LoginCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loginCalls
}

func (g *Gateway) VerifyCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}

func (g *Gateway) LastCredentials() gateway.Credentials {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastCredentials
}

func (g *Gateway) LastCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastCode
}
