package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/rankdir/internal/api/apierr"
	"github.com/mcoot/rankdir/internal/api/middleware"
	"github.com/mcoot/rankdir/internal/api/request"
	"github.com/mcoot/rankdir/internal/api/response"
	"github.com/mcoot/rankdir/internal/services/directory"
)

// AccountsHandler serves the account directory
type AccountsHandler struct {
	directory *directory.Service
	logger    *slog.Logger
}

// NewAccountsHandler creates a new accounts handler
func NewAccountsHandler(directoryService *directory.Service, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{
		directory: directoryService,
		logger:    logger.With(slog.String("component", "accounts")),
	}
}

// List handles GET /accounts
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := request.ParseQuery(r.URL.Query())
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.directory.QueryAccounts(r.Context(), q)
	if err != nil {
		if apierr.Status(err) >= http.StatusInternalServerError {
			attrs := []any{slog.String("error", err.Error())}
			if principal := middleware.GetPrincipal(r.Context()); principal != nil {
				attrs = append(attrs, slog.Int64("account_id", int64(principal.AccountID)))
			}
			h.logger.ErrorContext(r.Context(), "directory query failed", attrs...)
		}
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AccountsFromResult(result))
}
