package model

import "errors"

// Common errors used across the application
var (
	// Directory errors
	ErrInvalidRequest     = errors.New("invalid request")
	ErrAccountNotFound    = errors.New("account not found")
	ErrServiceUnavailable = errors.New("service unavailable")

	// Identity errors
	ErrIdentityNotFound = errors.New("identity not found")
	ErrUsernameExists   = errors.New("username already exists")

	// Authentication flow errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid second factor code")
	ErrInvalidToken       = errors.New("invalid verification token")
	ErrChallengeExpired   = errors.New("second factor challenge expired")
	ErrTokenExpired       = errors.New("verification token expired")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRejected    = errors.New("session rejected")
	ErrSessionNotFound    = errors.New("session not found")
	ErrWrongFlowState     = errors.New("operation not valid in current flow state")
	ErrRateLimited        = errors.New("rate limited")
	ErrFlowInProgress     = errors.New("authentication flow already in progress")
)

// FlowError reports a failed flow operation together with the state the
// session is in after the failure.
type FlowError struct {
	Err               error
	State             FlowState
	RemainingAttempts int
}

func (e *FlowError) Error() string {
	return e.Err.Error()
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError wraps err with the resulting flow state
func NewFlowError(err error, state FlowState, remaining int) error {
	return &FlowError{Err: err, State: state, RemainingAttempts: remaining}
}
