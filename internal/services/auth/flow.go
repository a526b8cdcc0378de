package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/mcoot/rankdir/internal/model"
)

// SubmitSecondFactor checks a TOTP code against the pending challenge
func (s *Service) SubmitSecondFactor(ctx context.Context, handle, code string) (status *Status, err error) {
	defer func() { s.observe("second_factor", err) }()

	release := s.locks.lock(handle)
	defer release()

	session, now, err := s.openFlow(ctx, handle)
	if err != nil {
		return nil, err
	}

	if session.Gates.SecondFactorOK || session.Challenge == nil {
		return nil, model.NewFlowError(model.ErrWrongFlowState, session.State(now, s.cfg.GateOrder), 0)
	}

	if !now.Before(session.Challenge.ExpiresAt) {
		s.terminate(session, model.TerminalExpired)
		if err := s.sessions.SaveSession(ctx, session); err != nil {
			return nil, unavailable(err)
		}
		return nil, model.NewFlowError(model.ErrChallengeExpired, model.StateExpired, 0)
	}

	identity, err := s.storage.GetIdentity(ctx, session.AccountID)
	if err != nil {
		return nil, unavailable(err)
	}

	if !validateCode(code, identity.TOTPSecret, now) {
		session.Challenge.RemainingAttempts--
		remaining := session.Challenge.RemainingAttempts
		if remaining <= 0 {
			s.terminate(session, model.TerminalRejected)
			remaining = 0
		}
		if err := s.sessions.SaveSession(ctx, session); err != nil {
			return nil, unavailable(err)
		}
		state := session.State(now, s.cfg.GateOrder)
		if state == model.StateRejected {
			s.logger.WarnContext(ctx, "second factor attempts exhausted",
				slog.Int64("account_id", int64(session.AccountID)))
		}
		return nil, model.NewFlowError(model.ErrInvalidCode, state, remaining)
	}

	session.Gates.SecondFactorOK = true
	session.Challenge = nil
	return s.advance(ctx, session, now)
}

// VerifyEmail consumes a verification token. Gates may be satisfied in any order.
func (s *Service) VerifyEmail(ctx context.Context, handle, token string) (status *Status, err error) {
	defer func() { s.observe("verify_email", err) }()

	release := s.locks.lock(handle)
	defer release()

	session, now, err := s.openFlow(ctx, handle)
	if err != nil {
		return nil, err
	}

	state := session.State(now, s.cfg.GateOrder)
	if session.Gates.EmailOK || session.Verification == nil {
		return nil, model.NewFlowError(model.ErrWrongFlowState, state, 0)
	}

	pending := session.Verification
	if token == "" || subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(pending.TokenHash)) != 1 {
		return nil, model.NewFlowError(model.ErrInvalidToken, state, remainingAttempts(session))
	}
	if !now.Before(pending.ExpiresAt) {
		return nil, model.NewFlowError(model.ErrTokenExpired, state, remainingAttempts(session))
	}

	// The identity is written before the session. If the session write fails
	// the token stays pending and a retry with it succeeds; the reverse order
	// could authorize a session whose identity is still unverified.
	identity, err := s.storage.GetIdentity(ctx, session.AccountID)
	if err != nil {
		return nil, unavailable(err)
	}
	identity.EmailVerified = true
	identity.UpdatedAt = now
	if err := s.storage.SaveIdentity(ctx, identity); err != nil {
		return nil, unavailable(err)
	}

	session.Gates.EmailOK = true
	session.Verification = nil
	s.limiter.forget(session.ID)
	return s.advance(ctx, session, now)
}

// ResendVerification issues a fresh token, invalidating the previous one
func (s *Service) ResendVerification(ctx context.Context, handle string) (status *Status, err error) {
	defer func() { s.observe("resend_verification", err) }()

	release := s.locks.lock(handle)
	defer release()

	session, now, err := s.openFlow(ctx, handle)
	if err != nil {
		return nil, err
	}

	state := session.State(now, s.cfg.GateOrder)
	if session.Gates.EmailOK {
		return nil, model.NewFlowError(model.ErrWrongFlowState, state, 0)
	}
	if !s.limiter.allow(session.ID, now) {
		return nil, model.NewFlowError(model.ErrRateLimited, state, remainingAttempts(session))
	}

	identity, err := s.storage.GetIdentity(ctx, session.AccountID)
	if err != nil {
		return nil, unavailable(err)
	}

	token := s.issueVerification(session, now)
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, unavailable(err)
	}
	s.deliver(ctx, identity, token)
	return s.status(session, now)
}

// openFlow loads a session for a flow operation and rejects terminal ones.
// A session found past its deadline is marked expired.
func (s *Service) openFlow(ctx context.Context, handle string) (*model.AuthSession, time.Time, error) {
	session, err := s.loadSession(ctx, handle)
	if err != nil {
		return nil, time.Time{}, err
	}
	now := s.clock.Now()

	switch session.State(now, s.cfg.GateOrder) {
	case model.StateRejected:
		return nil, time.Time{}, model.NewFlowError(model.ErrSessionRejected, model.StateRejected, 0)
	case model.StateExpired:
		if session.Terminal == model.TerminalNone {
			s.terminate(session, model.TerminalExpired)
			if err := s.sessions.SaveSession(ctx, session); err != nil {
				return nil, time.Time{}, unavailable(err)
			}
		}
		return nil, time.Time{}, model.NewFlowError(model.ErrSessionExpired, model.StateExpired, 0)
	case model.StateAuthorized:
		return nil, time.Time{}, model.NewFlowError(model.ErrWrongFlowState, model.StateAuthorized, 0)
	}
	return session, now, nil
}

// advance authorizes the session if no gate is left, then persists it
func (s *Service) advance(ctx context.Context, session *model.AuthSession, now time.Time) (*Status, error) {
	if session.State(now, s.cfg.GateOrder) == model.StateAuthorized {
		s.authorize(session, now)
		s.logger.InfoContext(ctx, "session authorized", slog.Int64("account_id", int64(session.AccountID)))
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, unavailable(err)
	}
	return s.status(session, now)
}

func remainingAttempts(session *model.AuthSession) int {
	if session.Challenge == nil {
		return 0
	}
	return session.Challenge.RemainingAttempts
}
