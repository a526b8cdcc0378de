package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/mcoot/rankdir/internal/api/handler"
	"github.com/mcoot/rankdir/internal/api/middleware"
	"github.com/mcoot/rankdir/internal/metrics"
	"github.com/mcoot/rankdir/internal/services/auth"
	"github.com/mcoot/rankdir/internal/services/directory"
)

// DefaultBasePath is where the API is mounted when none is configured
const DefaultBasePath = "/api/v1"

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger           *slog.Logger
	AuthService      *auth.Service
	DirectoryService *directory.Service
	// Metrics is optional; /metrics is only served when set
	Metrics  *metrics.Metrics
	BasePath string
	// LoginRate limits login and register per client address. Zero disables it.
	LoginRate  rate.Limit
	LoginBurst int
	// HealthChecks are pinged by the health endpoint
	HealthChecks []handler.Pinger
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := mux.NewRouter()

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService)
	accountsHandler := handler.NewAccountsHandler(cfg.DirectoryService, cfg.Logger)
	healthHandler := handler.NewHealthHandler(cfg.Logger, cfg.HealthChecks...)

	// API subrouter with common middleware
	api := r.PathPrefix(cfg.BasePath).Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		api.Use(middleware.Metrics(cfg.Metrics))
	}

	api.HandleFunc("/health", healthHandler.Check).Methods(http.MethodGet)

	// Entry points to the flow, optionally rate limited per address
	entry := api.PathPrefix("/auth").Subrouter()
	if cfg.LoginRate > 0 {
		burst := cfg.LoginBurst
		if burst < 1 {
			burst = 1
		}
		entry.Use(middleware.RateLimit(middleware.NewIPRateLimiter(cfg.LoginRate, burst)))
	}
	entry.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	entry.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	// Flow routes identify the session by the X-Flow-Token header
	flow := api.PathPrefix("/auth").Subrouter()
	flow.HandleFunc("/second-factor", authHandler.SubmitSecondFactor).Methods(http.MethodPost)
	flow.HandleFunc("/verify-email", authHandler.VerifyEmail).Methods(http.MethodPost)
	flow.HandleFunc("/resend-verification", authHandler.ResendVerification).Methods(http.MethodPost)
	flow.HandleFunc("/status", authHandler.Status).Methods(http.MethodGet)
	flow.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)

	// Directory routes require an authorized credential
	accounts := api.PathPrefix("/accounts").Subrouter()
	accounts.Use(middleware.RequireCredential(cfg.AuthService))
	accounts.HandleFunc("", accountsHandler.List).Methods(http.MethodGet)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}
