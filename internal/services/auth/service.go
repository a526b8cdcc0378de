package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/rankdir/internal/dependencies/clock"
	"github.com/mcoot/rankdir/internal/dependencies/random"
	"github.com/mcoot/rankdir/internal/mail"
	"github.com/mcoot/rankdir/internal/metrics"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
)

// Dependencies are the collaborators the auth service needs
type Dependencies struct {
	Storage  storage.Storage
	Sessions storage.SessionStore
	Clock    clock.Clock
	Random   random.Random
	Mailer   mail.Mailer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Service runs the multi-step authentication flow and owns its sessions
type Service struct {
	storage  storage.Storage
	sessions storage.SessionStore
	clock    clock.Clock
	random   random.Random
	mailer   mail.Mailer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	tokens  *tokenIssuer
	limiter *resendLimiter
	locks   *keyedMutex

	// dummyHash is compared against for unknown identifiers
	dummyHash []byte

	cfg Config
}

// Status describes a session after a flow operation
type Status struct {
	Handle            string
	State             model.FlowState
	PendingGates      []model.Gate
	RemainingAttempts int
	ExpiresAt         time.Time
	// Credential is only set when State is authorized
	Credential string
}

// Principal identifies the owner of a valid credential
type Principal struct {
	AccountID model.AccountID
	Username  string
	SessionID string
}

// New creates a new auth Service
func New(deps Dependencies, cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()
	if deps.Random == nil {
		deps.Random = random.New()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.NewLogMailer(deps.Logger)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = deps.Random.Token(32)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("rankdir-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &Service{
		storage:   deps.Storage,
		sessions:  deps.Sessions,
		clock:     deps.Clock,
		random:    deps.Random,
		mailer:    deps.Mailer,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		tokens:    newTokenIssuer(cfg.JWTSecret, cfg.Issuer, deps.Clock),
		limiter:   newResendLimiter(cfg.ResendInterval, 1),
		locks:     newKeyedMutex(),
		dummyHash: dummy,
		cfg:       cfg,
	}, nil
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// Login checks credentials and starts a flow. Unknown identifiers and wrong
// secrets are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, identifier, secret string) (status *Status, err error) {
	defer func() { s.observe("login", err) }()

	identity, err := s.storage.GetIdentityByUsername(ctx, identifier)
	if err != nil {
		if !errors.Is(err, model.ErrIdentityNotFound) {
			return nil, unavailable(err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
		return nil, model.NewFlowError(model.ErrInvalidCredentials, model.StateAnonymous, 0)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(secret)); err != nil {
		return nil, model.NewFlowError(model.ErrInvalidCredentials, model.StateAnonymous, 0)
	}

	now := s.clock.Now()
	session := &model.AuthSession{
		ID:         s.random.UUID(),
		AccountID:  identity.AccountID,
		Identifier: identity.Username,
		Gates: model.Gates{
			CredentialsOK:  true,
			SecondFactorOK: !s.secondFactorApplies(identity),
			EmailOK:        !s.emailVerificationApplies(identity),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.FlowTimeout),
	}

	if !session.Gates.SecondFactorOK {
		session.Challenge = &model.AuthChallenge{
			ExpiresAt:         now.Add(s.cfg.ChallengeTTL),
			RemainingAttempts: s.cfg.MaxCodeAttempts,
		}
	}

	var token string
	if !session.Gates.EmailOK {
		s.limiter.allow(session.ID, now)
		token = s.issueVerification(session, now)
	}

	if session.State(now, s.cfg.GateOrder) == model.StateAuthorized {
		s.authorize(session, now)
	}

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, unavailable(err)
	}

	if token != "" {
		s.deliver(ctx, identity, token)
	}

	s.logger.InfoContext(ctx, "login accepted",
		slog.Int64("account_id", int64(identity.AccountID)),
		slog.String("state", string(session.State(now, s.cfg.GateOrder))),
	)
	return s.status(session, now)
}

// Status reports the current state of a flow
func (s *Service) Status(ctx context.Context, handle string) (*Status, error) {
	session, err := s.loadSession(ctx, handle)
	if err != nil {
		return nil, err
	}
	return s.status(session, s.clock.Now())
}

// Logout discards the session named by a flow handle or credential.
// It always succeeds.
func (s *Service) Logout(ctx context.Context, handleOrCredential string) error {
	if handleOrCredential == "" {
		return nil
	}
	id := handleOrCredential
	if claims, err := s.tokens.parse(handleOrCredential); err == nil {
		id = claims.SessionID
	}

	release := s.locks.lock(id)
	defer release()

	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session on logout", slog.String("error", err.Error()))
	}
	s.limiter.forget(id)
	s.observe("logout", nil)
	return nil
}

// Authorize validates a credential and checks its session is still authorized
func (s *Service) Authorize(ctx context.Context, credential string) (*Principal, error) {
	claims, err := s.tokens.parse(credential)
	if err != nil {
		return nil, model.ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, unavailable(err)
	}

	if session.CredentialID != claims.ID || session.State(s.clock.Now(), s.cfg.GateOrder) != model.StateAuthorized {
		return nil, model.ErrUnauthorized
	}

	return &Principal{
		AccountID: session.AccountID,
		Username:  session.Identifier,
		SessionID: session.ID,
	}, nil
}

// loadSession fetches a session; a missing session is reported as expired
func (s *Service) loadSession(ctx context.Context, handle string) (*model.AuthSession, error) {
	if handle == "" {
		return nil, model.NewFlowError(model.ErrSessionExpired, model.StateExpired, 0)
	}
	session, err := s.sessions.GetSession(ctx, handle)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.NewFlowError(model.ErrSessionExpired, model.StateExpired, 0)
		}
		return nil, unavailable(err)
	}
	return session, nil
}

func (s *Service) status(session *model.AuthSession, now time.Time) (*Status, error) {
	state := session.State(now, s.cfg.GateOrder)
	st := &Status{
		Handle:    session.ID,
		State:     state,
		ExpiresAt: session.ExpiresAt,
	}
	if state.Pending() {
		st.PendingGates = session.Gates.Pending(s.cfg.GateOrder)
		if session.Challenge != nil {
			st.RemainingAttempts = session.Challenge.RemainingAttempts
		}
	}
	if state == model.StateAuthorized {
		credential, err := s.tokens.issue(session)
		if err != nil {
			return nil, err
		}
		st.Credential = credential
	}
	return st, nil
}

// authorize moves a session whose gates are all satisfied to its session lifetime
func (s *Service) authorize(session *model.AuthSession, now time.Time) {
	session.ExpiresAt = now.Add(s.cfg.SessionDuration)
	session.CredentialID = s.random.UUID()
	session.Challenge = nil
	session.Verification = nil
}

// terminate marks a session terminal and drops pending challenges and tokens
func (s *Service) terminate(session *model.AuthSession, mark model.TerminalMark) {
	session.Terminal = mark
	session.Challenge = nil
	session.Verification = nil
}

func (s *Service) secondFactorApplies(identity *model.Identity) bool {
	return s.cfg.SecondFactor == PolicyAccount && identity.TwoFactorEnabled && identity.TOTPSecret != ""
}

func (s *Service) emailVerificationApplies(identity *model.Identity) bool {
	return s.cfg.EmailVerification == PolicyAccount && !identity.EmailVerified
}

// issueVerification replaces any pending verification token and returns the plaintext
func (s *Service) issueVerification(session *model.AuthSession, now time.Time) string {
	token := s.random.UUID()
	session.Verification = &model.EmailVerification{
		TokenHash:  hashToken(token),
		ExpiresAt:  now.Add(s.cfg.VerificationTTL),
		LastSentAt: now,
	}
	return token
}

// deliver sends a verification token; failures are logged and the user may resend
func (s *Service) deliver(ctx context.Context, identity *model.Identity, token string) {
	msg := mail.Message{To: identity.Email, Username: identity.Username, Token: token}
	if err := s.mailer.SendVerification(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification mail",
			slog.Int64("account_id", int64(identity.AccountID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = outcomeLabel(err)
	}
	s.metrics.FlowOutcome(operation, outcome)
}

func outcomeLabel(err error) string {
	for _, candidate := range []struct {
		err   error
		label string
	}{
		{model.ErrInvalidCredentials, "invalid_credentials"},
		{model.ErrInvalidCode, "invalid_code"},
		{model.ErrInvalidToken, "invalid_token"},
		{model.ErrChallengeExpired, "challenge_expired"},
		{model.ErrTokenExpired, "token_expired"},
		{model.ErrSessionExpired, "session_expired"},
		{model.ErrSessionRejected, "session_rejected"},
		{model.ErrWrongFlowState, "wrong_state"},
		{model.ErrRateLimited, "rate_limited"},
		{model.ErrInvalidRequest, "invalid_request"},
		{model.ErrUsernameExists, "username_exists"},
		{model.ErrServiceUnavailable, "unavailable"},
	} {
		if errors.Is(err, candidate.err) {
			return candidate.label
		}
	}
	return "error"
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", model.ErrServiceUnavailable, err)
}
