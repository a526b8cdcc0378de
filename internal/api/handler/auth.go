package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/rankdir/internal/api/middleware"
	"github.com/mcoot/rankdir/internal/api/request"
	"github.com/mcoot/rankdir/internal/api/response"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/services/auth"
)

// AuthHandler handles registration and the authentication flow
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	reg, err := h.authService.Register(r.Context(), auth.RegisterRequest{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		Class:           model.Class(req.Class),
		EnableTwoFactor: req.EnableTwoFactor,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.RegisterFromService(reg))
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	status, err := h.authService.Login(r.Context(), req.Username, req.Password)
	h.writeStatus(w, status, err)
}

// SubmitSecondFactor handles POST /auth/second-factor
func (h *AuthHandler) SubmitSecondFactor(w http.ResponseWriter, r *http.Request) {
	var req request.SecondFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	status, err := h.authService.SubmitSecondFactor(r.Context(), middleware.FlowHandle(r), req.Code)
	h.writeStatus(w, status, err)
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req request.VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	status, err := h.authService.VerifyEmail(r.Context(), middleware.FlowHandle(r), req.Token)
	h.writeStatus(w, status, err)
}

// ResendVerification handles POST /auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	status, err := h.authService.ResendVerification(r.Context(), middleware.FlowHandle(r))
	h.writeStatus(w, status, err)
}

// Status handles GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.authService.Status(r.Context(), middleware.FlowHandle(r))
	h.writeStatus(w, status, err)
}

// Logout handles POST /auth/logout. The flow handle wins over a credential.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	target := middleware.FlowHandle(r)
	if target == "" {
		target = middleware.BearerToken(r)
	}
	_ = h.authService.Logout(r.Context(), target)
	response.NoContent(w)
}

func (h *AuthHandler) writeStatus(w http.ResponseWriter, status *auth.Status, err error) {
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.FlowStatusFromService(status))
}
