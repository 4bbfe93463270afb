// Package hoyolab is an HTTP-backed Gateway implementation. It forwards
// login and verification calls to an account-API endpoint and maps the
// responses onto gateway.Outcome, treating every payload as opaque JSON.
package hoyolab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/openhoyo/hoyoauth/pkg/gateway"
)

const defaultCallTimeout = 15 * time.Second

type Client struct {
	baseURL     string
	httpc       *http.Client
	callTimeout time.Duration
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a Client talking to the account API at baseURL.
// httpc may be nil, in which case http.DefaultClient is used. callTimeout
// bounds every single remote call; zero selects a default of 15s.
func NewClient(baseURL string, httpc *http.Client, callTimeout time.Duration) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{
		baseURL:     baseURL,
		httpc:       httpc,
		callTimeout: callTimeout,
	}
}

type loginRequest struct {
	Account         string          `json:"account"`
	Password        string          `json:"password"`
	ChallengeResult json.RawMessage `json:"mmt_result,omitempty"`
	Ticket          json.RawMessage `json:"ticket,omitempty"`
}

type verifyRequest struct {
	Code            string          `json:"code"`
	Ticket          json.RawMessage `json:"ticket"`
	ChallengeResult json.RawMessage `json:"mmt_result,omitempty"`
}

type apiResponse struct {
	Challenge json.RawMessage `json:"challenge,omitempty"`
	Ticket    json.RawMessage `json:"ticket,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func (c *Client) Login(ctx context.Context, creds gateway.Credentials, extras *gateway.LoginExtras) (gateway.Outcome, error) {
	req := loginRequest{
		Account:  creds.Account,
		Password: creds.Password,
	}
	if extras != nil {
		req.ChallengeResult = extras.ChallengeResult
		req.Ticket = extras.Ticket
	}

	var resp apiResponse
	if err := c.post(ctx, "/login", req, &resp); err != nil {
		return gateway.Outcome{}, err
	}

	return gateway.Outcome{
		Challenge: resp.Challenge,
		Ticket:    resp.Ticket,
		Result:    resp.Result,
	}, nil
}

func (c *Client) VerifyCode(ctx context.Context, code string, ticket, challengeResult json.RawMessage) (json.RawMessage, error) {
	req := verifyRequest{
		Code:            code,
		Ticket:          ticket,
		ChallengeResult: challengeResult,
	}

	var resp apiResponse
	if err := c.post(ctx, "/verify", req, &resp); err != nil {
		return nil, err
	}

	return resp.Challenge, nil
}

func (c *Client) post(ctx context.Context, path string, body, into any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("making endpoint path: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling account API: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return gateway.ErrRejected
	default:
		return fmt.Errorf("account API returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if err := json.Unmarshal(data, into); err != nil {
		return errors.Join(errors.New("decoding account API response"), err)
	}

	return nil
}
