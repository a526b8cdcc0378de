package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcoot/rankdir/internal/api/request"
	"github.com/mcoot/rankdir/internal/api/response"
	"github.com/mcoot/rankdir/internal/dependencies/clock"
	"github.com/mcoot/rankdir/internal/model"
)

// Snapshot is the controller's view of the flow. It is what the CLI persists
// between invocations.
type Snapshot struct {
	State             model.FlowState `json:"state"`
	Handle            string          `json:"handle,omitempty"`
	Username          string          `json:"username,omitempty"`
	PendingGates      []model.Gate    `json:"pending_gates,omitempty"`
	RemainingAttempts int             `json:"remaining_attempts,omitempty"`
	ExpiresAt         time.Time       `json:"expires_at,omitzero"`
	Credential        string          `json:"credential,omitempty"`
}

// Controller mirrors the server's authentication flow for one user and
// serializes the operations that drive it
type Controller struct {
	mu     sync.Mutex
	client *Client
	clock  clock.Clock
	snap   Snapshot
}

// NewController creates a controller in the anonymous state
func NewController(c *Client, clk clock.Clock) *Controller {
	return RestoreController(c, clk, Snapshot{})
}

// RestoreController creates a controller resuming from a saved snapshot
func RestoreController(c *Client, clk clock.Clock, snap Snapshot) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	if snap.State == "" {
		snap.State = model.StateAnonymous
	}
	return &Controller{client: c, clock: clk, snap: snap}
}

// Snapshot returns a copy of the current flow view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	snap := c.snap
	snap.PendingGates = append([]model.Gate(nil), c.snap.PendingGates...)
	return snap
}

// State returns the current flow state
func (c *Controller) State() model.FlowState {
	return c.Snapshot().State
}

// Credential returns the bearer credential; it is only available once authorized
func (c *Controller) Credential() (string, bool) {
	snap := c.Snapshot()
	if snap.State != model.StateAuthorized || snap.Credential == "" {
		return "", false
	}
	return snap.Credential, true
}

// Register creates an account. It does not affect the flow state.
func (c *Controller) Register(ctx context.Context, req request.RegisterRequest) (*response.RegisterResponse, error) {
	return c.client.Register(ctx, req)
}

// Login starts a new flow. A flow that is pending or authorized must be
// logged out first.
func (c *Controller) Login(ctx context.Context, username, password string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()

	if c.snap.State.Pending() || c.snap.State == model.StateAuthorized {
		return c.snap, model.NewFlowError(model.ErrFlowInProgress, c.snap.State, c.snap.RemainingAttempts)
	}

	previous := c.snap
	c.snap = Snapshot{State: model.StateCredentialsSubmitted, Username: username}

	status, err := c.client.Login(ctx, username, password)
	if err != nil {
		var flowErr *model.FlowError
		if errors.As(err, &flowErr) {
			c.snap = Snapshot{State: flowErr.State, Username: username}
		} else {
			c.snap = previous
		}
		return c.snap, err
	}
	c.applyLocked(status)
	c.snap.Username = username
	return c.snap, nil
}

// SubmitSecondFactor sends a TOTP code
func (c *Controller) SubmitSecondFactor(ctx context.Context, code string) (Snapshot, error) {
	return c.step(ctx, func(handle string) (*response.FlowStatus, error) {
		return c.client.SubmitSecondFactor(ctx, handle, code)
	})
}

// VerifyEmail sends the emailed verification token
func (c *Controller) VerifyEmail(ctx context.Context, token string) (Snapshot, error) {
	return c.step(ctx, func(handle string) (*response.FlowStatus, error) {
		return c.client.VerifyEmail(ctx, handle, token)
	})
}

// ResendVerification asks the server to email a fresh token
func (c *Controller) ResendVerification(ctx context.Context) (Snapshot, error) {
	return c.step(ctx, func(handle string) (*response.FlowStatus, error) {
		return c.client.ResendVerification(ctx, handle)
	})
}

// Refresh re-reads the flow state from the server
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.Handle == "" {
		return c.snap, nil
	}
	status, err := c.client.Status(ctx, c.snap.Handle)
	if err != nil {
		c.failLocked(err)
		return c.snap, err
	}
	c.applyLocked(status)
	return c.snap, nil
}

// Logout discards the session on the server and resets to anonymous.
// It always succeeds locally; a server failure is returned for reporting only.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	handle, credential := c.snap.Handle, c.snap.Credential
	c.snap = Snapshot{State: model.StateAnonymous}
	if handle == "" && credential == "" {
		return nil
	}
	return c.client.Logout(ctx, handle, credential)
}

// QueryAccounts fetches a page of the directory. It requires an authorized flow.
func (c *Controller) QueryAccounts(ctx context.Context, q model.QueryRequest) (*model.QueryResult, error) {
	c.mu.Lock()
	c.expireLocked()
	if c.snap.State != model.StateAuthorized || c.snap.Credential == "" {
		c.mu.Unlock()
		return nil, model.ErrUnauthorized
	}
	credential := c.snap.Credential
	c.mu.Unlock()

	result, err := c.client.QueryAccounts(ctx, credential, q)
	if errors.Is(err, model.ErrUnauthorized) {
		c.mu.Lock()
		if c.snap.Credential == credential {
			c.snap.State = model.StateExpired
			c.snap.Credential = ""
		}
		c.mu.Unlock()
	}
	return result, err
}

// step runs a flow operation that requires a pending session
func (c *Controller) step(ctx context.Context, call func(handle string) (*response.FlowStatus, error)) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()

	if !c.snap.State.Pending() || c.snap.Handle == "" {
		return c.snap, model.NewFlowError(model.ErrWrongFlowState, c.snap.State, c.snap.RemainingAttempts)
	}

	status, err := call(c.snap.Handle)
	if err != nil {
		c.failLocked(err)
		return c.snap, err
	}
	c.applyLocked(status)
	return c.snap, nil
}

// applyLocked mirrors a successful server response
func (c *Controller) applyLocked(status *response.FlowStatus) {
	gates := make([]model.Gate, len(status.PendingGates))
	for i, g := range status.PendingGates {
		gates[i] = model.Gate(g)
	}
	state := model.FlowState(status.State)
	c.snap.State = state
	c.snap.Handle = status.Handle
	c.snap.PendingGates = gates
	c.snap.RemainingAttempts = status.RemainingAttempts
	c.snap.ExpiresAt = status.ExpiresAt
	c.snap.Credential = ""
	if state == model.StateAuthorized {
		c.snap.Credential = status.Credential
	}
}

// failLocked mirrors the state carried by a flow error. Errors without a
// state leave the view untouched.
func (c *Controller) failLocked(err error) {
	var flowErr *model.FlowError
	if !errors.As(err, &flowErr) || flowErr.State == "" {
		return
	}
	c.snap.State = flowErr.State
	c.snap.RemainingAttempts = flowErr.RemainingAttempts
	if flowErr.State.Terminal() {
		c.snap.PendingGates = nil
		c.snap.Credential = ""
	}
}

// expireLocked moves a flow past its deadline to expired
func (c *Controller) expireLocked() {
	if c.snap.ExpiresAt.IsZero() || c.snap.State.Terminal() || c.snap.State == model.StateAnonymous {
		return
	}
	if !c.clock.Now().Before(c.snap.ExpiresAt) {
		c.snap.State = model.StateExpired
		c.snap.PendingGates = nil
		c.snap.Credential = ""
	}
}
