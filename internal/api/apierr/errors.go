package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/rankdir/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// State is the flow state after a failed flow operation
	State             string `json:"state,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidCode        = "INVALID_CODE"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeChallengeExpired   = "CHALLENGE_EXPIRED"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeSessionRejected    = "SESSION_REJECTED"
	CodeWrongFlowState     = "WRONG_FLOW_STATE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeUsernameExists     = "USERNAME_EXISTS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// mappings is the single table between model errors and HTTP responses.
// An empty message means the error's own text is sent.
var mappings = []mapping{
	{model.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest, ""},
	{model.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized, "Authorized session required"},
	{model.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid username or password"},
	{model.ErrInvalidCode, http.StatusUnauthorized, CodeInvalidCode, "Invalid second factor code"},
	{model.ErrInvalidToken, http.StatusBadRequest, CodeInvalidToken, "Invalid verification token"},
	{model.ErrChallengeExpired, http.StatusGone, CodeChallengeExpired, "Second factor challenge expired"},
	{model.ErrTokenExpired, http.StatusGone, CodeTokenExpired, "Verification token expired"},
	{model.ErrSessionExpired, http.StatusGone, CodeSessionExpired, "Session expired"},
	{model.ErrSessionRejected, http.StatusForbidden, CodeSessionRejected, "Session rejected"},
	{model.ErrWrongFlowState, http.StatusConflict, CodeWrongFlowState, "Operation not valid in the current flow state"},
	{model.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited, "Too many requests"},
	{model.ErrUsernameExists, http.StatusConflict, CodeUsernameExists, "Username already exists"},
	{model.ErrServiceUnavailable, http.StatusServiceUnavailable, CodeServiceUnavailable, "Service unavailable"},
}

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	if he.status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status err is written with
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	for _, m := range mappings {
		if !errors.Is(err, m.err) {
			continue
		}
		apiError := APIError{Code: m.code, Message: m.message}
		if apiError.Message == "" {
			apiError.Message = err.Error()
		}
		var fe *model.FlowError
		if errors.As(err, &fe) {
			apiError.State = string(fe.State)
			if fe.State == model.StateAwaitingSecondFactor || errors.Is(err, model.ErrInvalidCode) {
				remaining := fe.RemainingAttempts
				apiError.RemainingAttempts = &remaining
			}
		}
		return &httpError{m.status, apiError}
	}

	return &httpError{http.StatusInternalServerError, APIError{Code: CodeInternalError, Message: "Internal server error"}}
}

// Sentinel returns the model error a response code stands for
func Sentinel(code string) (error, bool) {
	for _, m := range mappings {
		if m.code == code {
			return m.err, true
		}
	}
	return nil, false
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{Code: CodeInternalError, Message: "Internal server error"}}
}
