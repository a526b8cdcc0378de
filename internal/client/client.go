// Package client talks to the rankdir HTTP API and mirrors the
// authentication flow on the client side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/rankdir/internal/api/apierr"
	"github.com/mcoot/rankdir/internal/api/middleware"
	"github.com/mcoot/rankdir/internal/api/request"
	"github.com/mcoot/rankdir/internal/api/response"
	"github.com/mcoot/rankdir/internal/model"
)

// DefaultTimeout bounds every request
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read
const maxBody = 4 << 20

// Client is an HTTP client for the API. Every failure it returns wraps a
// model error; anything it cannot interpret is ErrServiceUnavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the API mounted at baseURL (including the base path)
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient creates a client using an existing http.Client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// reqAuth selects which token a request carries
type reqAuth struct {
	flowHandle string
	credential string
}

func (c *Client) do(ctx context.Context, method, path string, a reqAuth, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if a.flowHandle != "" {
		req.Header.Set(middleware.FlowHandleHeader, a.flowHandle)
	}
	if a.credential != "" {
		req.Header.Set("Authorization", "Bearer "+a.credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", model.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", model.ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: unexpected response: %v", model.ErrServiceUnavailable, err)
		}
	}
	return nil
}

// decodeError maps an error body back onto the model errors
func decodeError(status int, body []byte) error {
	var errResp apierr.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
		return fmt.Errorf("%w: HTTP %d", model.ErrServiceUnavailable, status)
	}

	sentinel, ok := apierr.Sentinel(errResp.Error.Code)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrServiceUnavailable, errResp.Error.Message)
	}

	if errResp.Error.State != "" {
		state := model.FlowState(errResp.Error.State)
		if !knownState(state) {
			return fmt.Errorf("%w: unknown flow state %q", model.ErrServiceUnavailable, errResp.Error.State)
		}
		remaining := 0
		if errResp.Error.RemainingAttempts != nil {
			remaining = *errResp.Error.RemainingAttempts
		}
		return model.NewFlowError(sentinel, state, remaining)
	}
	if errors.Is(sentinel, model.ErrInvalidRequest) {
		return fmt.Errorf("%w: %s", sentinel, errResp.Error.Message)
	}
	return sentinel
}

// Health checks the server
func (c *Client) Health(ctx context.Context) (*response.Health, error) {
	var out response.Health
	if err := c.do(ctx, http.MethodGet, "/health", reqAuth{}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account
func (c *Client) Register(ctx context.Context, req request.RegisterRequest) (*response.RegisterResponse, error) {
	var out response.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", reqAuth{}, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login submits credentials and starts a flow
func (c *Client) Login(ctx context.Context, username, password string) (*response.FlowStatus, error) {
	return c.flow(ctx, http.MethodPost, "/auth/login", "", request.LoginRequest{Username: username, Password: password})
}

// SubmitSecondFactor sends a TOTP code for a pending flow
func (c *Client) SubmitSecondFactor(ctx context.Context, handle, code string) (*response.FlowStatus, error) {
	return c.flow(ctx, http.MethodPost, "/auth/second-factor", handle, request.SecondFactorRequest{Code: code})
}

// VerifyEmail sends a verification token for a pending flow
func (c *Client) VerifyEmail(ctx context.Context, handle, token string) (*response.FlowStatus, error) {
	return c.flow(ctx, http.MethodPost, "/auth/verify-email", handle, request.VerifyEmailRequest{Token: token})
}

// ResendVerification asks for a fresh verification token
func (c *Client) ResendVerification(ctx context.Context, handle string) (*response.FlowStatus, error) {
	return c.flow(ctx, http.MethodPost, "/auth/resend-verification", handle, struct{}{})
}

// Status fetches the current state of a flow
func (c *Client) Status(ctx context.Context, handle string) (*response.FlowStatus, error) {
	return c.flow(ctx, http.MethodGet, "/auth/status", handle, nil)
}

// Logout discards a session by flow handle and credential
func (c *Client) Logout(ctx context.Context, handle, credential string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", reqAuth{flowHandle: handle, credential: credential}, nil, nil)
}

// QueryAccounts fetches one page of the directory
func (c *Client) QueryAccounts(ctx context.Context, credential string, q model.QueryRequest) (*model.QueryResult, error) {
	path := "/accounts"
	if params := request.Values(q).Encode(); params != "" {
		path += "?" + params
	}
	var out response.AccountsResponse
	if err := c.do(ctx, http.MethodGet, path, reqAuth{credential: credential}, nil, &out); err != nil {
		return nil, err
	}
	return out.ToModel(), nil
}

func (c *Client) flow(ctx context.Context, method, path, handle string, body any) (*response.FlowStatus, error) {
	var out response.FlowStatus
	if err := c.do(ctx, method, path, reqAuth{flowHandle: handle}, body, &out); err != nil {
		return nil, err
	}
	if !knownState(model.FlowState(out.State)) {
		return nil, fmt.Errorf("%w: unknown flow state %q", model.ErrServiceUnavailable, out.State)
	}
	return &out, nil
}

func knownState(s model.FlowState) bool {
	switch s {
	case model.StateAnonymous, model.StateCredentialsSubmitted, model.StateAwaitingSecondFactor,
		model.StateAwaitingEmailVerification, model.StateAuthorized, model.StateRejected, model.StateExpired:
		return true
	}
	return false
}
