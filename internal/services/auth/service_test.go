package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/rankdir/internal/dependencies/mocks"
	"github.com/mcoot/rankdir/internal/mail"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage/memory"
	"github.com/mcoot/rankdir/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	mailer  *mail.Recorder
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.mailer = mail.NewRecorder()
	s.ctx = context.Background()
	s.service = s.newService(testConfig())
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.JWTSecret = "test-secret"
	return cfg
}

func (s *ServiceSuite) newService(cfg Config) *Service {
	svc, err := New(Dependencies{
		Storage:  s.storage,
		Sessions: s.storage,
		Clock:    s.clock,
		Random:   mocks.NewMockRandom(),
		Mailer:   s.mailer,
		Logger:   testutil.NopLogger(),
	}, cfg)
	s.Require().NoError(err)
	return svc
}

// register creates an account and optionally marks its email verified
func (s *ServiceSuite) register(username string, twoFactor, verified bool) *model.Identity {
	_, err := s.service.Register(s.ctx, RegisterRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "password123",
		Class:           model.ClassMage,
		EnableTwoFactor: twoFactor,
	})
	s.Require().NoError(err)

	identity, err := s.storage.GetIdentityByUsername(s.ctx, username)
	s.Require().NoError(err)
	if verified {
		identity.EmailVerified = true
		s.Require().NoError(s.storage.SaveIdentity(s.ctx, identity))
	}
	return identity
}

func (s *ServiceSuite) code(identity *model.Identity) string {
	code, err := GenerateCode(identity.TOTPSecret, s.clock.Now())
	s.Require().NoError(err)
	return code
}

// wrongCode returns a code that differs from the current valid one
func (s *ServiceSuite) wrongCode(identity *model.Identity) string {
	valid := []byte(s.code(identity))
	valid[0] = '0' + (valid[0]-'0'+5)%10
	return string(valid)
}

func (s *ServiceSuite) token(username string) string {
	token, ok := s.mailer.LastToken(username)
	s.Require().True(ok, "no verification token sent to %s", username)
	return token
}

func (s *ServiceSuite) flowError(err error) *model.FlowError {
	var fe *model.FlowError
	s.Require().ErrorAs(err, &fe)
	return fe
}

// Register tests

func (s *ServiceSuite) TestRegisterPersistsHashedPassword() {
	reg, err := s.service.Register(s.ctx, RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "password123", Class: model.ClassRogue,
	})
	s.Require().NoError(err)
	s.Empty(reg.ProvisioningURI)

	identity, err := s.storage.GetIdentity(s.ctx, reg.AccountID)
	s.Require().NoError(err)
	s.NotEqual("password123", identity.PasswordHash)
	s.False(identity.EmailVerified)
	s.False(identity.TwoFactorEnabled)

	account, err := s.storage.GetAccount(s.ctx, reg.AccountID)
	s.Require().NoError(err)
	s.Equal(model.ClassRogue, account.Class)
	s.Equal(int64(0), account.Score)
}

func (s *ServiceSuite) TestRegisterWithTwoFactorReturnsProvisioningURI() {
	reg, err := s.service.Register(s.ctx, RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "password123", EnableTwoFactor: true,
	})
	s.Require().NoError(err)
	s.True(strings.HasPrefix(reg.ProvisioningURI, "otpauth://totp/"))

	identity, err := s.storage.GetIdentity(s.ctx, reg.AccountID)
	s.Require().NoError(err)
	s.True(identity.TwoFactorEnabled)
	s.NotEmpty(identity.TOTPSecret)
}

func (s *ServiceSuite) TestRegisterDuplicateUsername() {
	s.register("alice", false, false)

	_, err := s.service.Register(s.ctx, RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "password123",
	})
	s.ErrorIs(err, model.ErrUsernameExists)
}

func (s *ServiceSuite) TestRegisterValidation() {
	cases := []RegisterRequest{
		{Username: "al", Email: "a@example.com", Password: "password123"},
		{Username: "alice", Email: "a@example.com", Password: "short"},
		{Username: "alice", Email: "a@example.com", Password: strings.Repeat("x", 80)},
		{Username: "alice", Email: "not-an-email", Password: "password123"},
		{Username: "alice", Email: "a@example.com", Password: "password123", Class: "necromancer"},
	}
	for _, req := range cases {
		_, err := s.service.Register(s.ctx, req)
		s.ErrorIs(err, model.ErrInvalidRequest, "%+v", req)
	}

	_, err := s.service.Register(s.ctx, RegisterRequest{
		Username: "alice", Email: "a@example.com", Password: strings.Repeat("x", MaxPasswordLength),
	})
	s.NoError(err)
}

// Login tests

func (s *ServiceSuite) TestLoginUnknownAndWrongPasswordLookTheSame() {
	s.register("alice", false, true)

	_, errUnknown := s.service.Login(s.ctx, "nobody", "password123")
	_, errWrong := s.service.Login(s.ctx, "alice", "wrong-password")

	s.ErrorIs(errUnknown, model.ErrInvalidCredentials)
	s.ErrorIs(errWrong, model.ErrInvalidCredentials)
	s.Equal(errUnknown.Error(), errWrong.Error())
	s.Equal(model.StateAnonymous, s.flowError(errWrong).State)
}

func (s *ServiceSuite) TestLoginGoesStraightToAuthorized() {
	s.register("alice", false, true)

	status, err := s.service.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	s.Equal(model.StateAuthorized, status.State)
	s.NotEmpty(status.Credential)
	s.Empty(status.PendingGates)
	s.Equal(s.clock.Now().Add(24*time.Hour), status.ExpiresAt)
	s.Empty(s.mailer.Messages())
}

func (s *ServiceSuite) TestLoginWithTwoFactorAwaitsCode() {
	s.register("alice", true, true)

	status, err := s.service.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	s.Equal(model.StateAwaitingSecondFactor, status.State)
	s.Empty(status.Credential)
	s.Equal(3, status.RemainingAttempts)
	s.Equal([]model.Gate{model.GateSecondFactor}, status.PendingGates)
}

func (s *ServiceSuite) TestLoginUnverifiedSendsToken() {
	s.register("alice", false, false)

	status, err := s.service.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	s.Equal(model.StateAwaitingEmailVerification, status.State)
	s.Empty(status.Credential)
	msgs := s.mailer.Messages()
	s.Require().Len(msgs, 1)
	s.Equal("alice@example.com", msgs[0].To)
}

func (s *ServiceSuite) TestLoginBothGatesUsesGateOrder() {
	s.register("alice", true, false)

	status, err := s.service.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingSecondFactor, status.State)
	s.Equal([]model.Gate{model.GateSecondFactor, model.GateEmail}, status.PendingGates)

	cfg := testConfig()
	cfg.GateOrder = []model.Gate{model.GateEmail, model.GateSecondFactor}
	emailFirst := s.newService(cfg)

	status, err = emailFirst.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, status.State)
}

func (s *ServiceSuite) TestLoginPolicyOffSkipsGates() {
	s.register("alice", true, false)

	cfg := testConfig()
	cfg.SecondFactor = PolicyOff
	cfg.EmailVerification = PolicyOff
	svc := s.newService(cfg)

	status, err := svc.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)
}

// Second factor tests

func (s *ServiceSuite) TestSubmitSecondFactorAuthorizes() {
	identity := s.register("alice", true, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	status, err := s.service.SubmitSecondFactor(s.ctx, status.Handle, s.code(identity))
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)
	s.NotEmpty(status.Credential)
}

func (s *ServiceSuite) TestWrongCodesBeforeLimitKeepChallenge() {
	identity := s.register("alice", true, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	for want := 2; want >= 1; want-- {
		_, err := s.service.SubmitSecondFactor(s.ctx, status.Handle, s.wrongCode(identity))
		s.ErrorIs(err, model.ErrInvalidCode)
		fe := s.flowError(err)
		s.Equal(model.StateAwaitingSecondFactor, fe.State)
		s.Equal(want, fe.RemainingAttempts)
	}

	// a correct code still works after N-1 failures
	status, err := s.service.SubmitSecondFactor(s.ctx, status.Handle, s.code(identity))
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)
}

func (s *ServiceSuite) TestWrongCodeAtLimitRejects() {
	identity := s.register("alice", true, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	var err error
	for i := 0; i < 3; i++ {
		_, err = s.service.SubmitSecondFactor(s.ctx, status.Handle, s.wrongCode(identity))
	}
	s.ErrorIs(err, model.ErrInvalidCode)
	s.Equal(model.StateRejected, s.flowError(err).State)

	_, err = s.service.SubmitSecondFactor(s.ctx, status.Handle, s.code(identity))
	s.ErrorIs(err, model.ErrSessionRejected)

	current, err := s.service.Status(s.ctx, status.Handle)
	s.Require().NoError(err)
	s.Equal(model.StateRejected, current.State)
	s.Empty(current.Credential)
}

func (s *ServiceSuite) TestExpiredChallengeExpiresSession() {
	identity := s.register("alice", true, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	s.clock.Advance(5 * time.Minute)
	_, err := s.service.SubmitSecondFactor(s.ctx, status.Handle, s.code(identity))
	s.ErrorIs(err, model.ErrChallengeExpired)
	s.Equal(model.StateExpired, s.flowError(err).State)

	current, err := s.service.Status(s.ctx, status.Handle)
	s.Require().NoError(err)
	s.Equal(model.StateExpired, current.State)
}

func (s *ServiceSuite) TestSubmitSecondFactorWithoutChallenge() {
	s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	_, err := s.service.SubmitSecondFactor(s.ctx, status.Handle, "123456")
	s.ErrorIs(err, model.ErrWrongFlowState)
	s.Equal(model.StateAwaitingEmailVerification, s.flowError(err).State)
}

// Email verification tests

func (s *ServiceSuite) TestVerifyEmailAuthorizesAndMarksIdentity() {
	identity := s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	status, err := s.service.VerifyEmail(s.ctx, status.Handle, s.token("alice"))
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)

	stored, err := s.storage.GetIdentity(s.ctx, identity.AccountID)
	s.Require().NoError(err)
	s.True(stored.EmailVerified)
}

// failingSessions fails the next SaveSession when armed
type failingSessions struct {
	*memory.Storage
	failNext bool
}

func (f *failingSessions) SaveSession(ctx context.Context, session *model.AuthSession) error {
	if f.failNext {
		f.failNext = false
		return errors.New("connection reset")
	}
	return f.Storage.SaveSession(ctx, session)
}

func (s *ServiceSuite) TestVerifyEmailRetryAfterSessionSaveFailure() {
	sessions := &failingSessions{Storage: s.storage}
	svc, err := New(Dependencies{
		Storage:  s.storage,
		Sessions: sessions,
		Clock:    s.clock,
		Random:   mocks.NewMockRandom(),
		Mailer:   s.mailer,
		Logger:   testutil.NopLogger(),
	}, testConfig())
	s.Require().NoError(err)

	identity := s.register("alice", false, false)
	status, err := svc.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	token := s.token("alice")

	sessions.failNext = true
	_, err = svc.VerifyEmail(s.ctx, status.Handle, token)
	s.ErrorIs(err, model.ErrServiceUnavailable)

	current, err := svc.Status(s.ctx, status.Handle)
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, current.State)

	retried, err := svc.VerifyEmail(s.ctx, status.Handle, token)
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, retried.State)

	stored, err := s.storage.GetIdentity(s.ctx, identity.AccountID)
	s.Require().NoError(err)
	s.True(stored.EmailVerified)
}

func (s *ServiceSuite) TestVerifyEmailInvalidToken() {
	s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	_, err := s.service.VerifyEmail(s.ctx, status.Handle, "not-the-token")
	s.ErrorIs(err, model.ErrInvalidToken)
	s.Equal(model.StateAwaitingEmailVerification, s.flowError(err).State)
}

func (s *ServiceSuite) TestVerifyEmailExpiredTokenKeepsState() {
	// a long flow timeout so the token expires before the session does
	cfg := testConfig()
	cfg.FlowTimeout = time.Hour
	s.service = s.newService(cfg)

	s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")
	token := s.token("alice")

	s.clock.Advance(16 * time.Minute)
	_, err := s.service.VerifyEmail(s.ctx, status.Handle, token)
	s.ErrorIs(err, model.ErrTokenExpired)
	s.Equal(model.StateAwaitingEmailVerification, s.flowError(err).State)

	current, err := s.service.Status(s.ctx, status.Handle)
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, current.State)
}

func (s *ServiceSuite) TestGatesSatisfiedInEitherOrder() {
	identity := s.register("alice", true, false)

	// second factor first
	first, _ := s.service.Login(s.ctx, "alice", "password123")
	status, err := s.service.SubmitSecondFactor(s.ctx, first.Handle, s.code(identity))
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, status.State)
	s.Empty(status.Credential)
	status, err = s.service.VerifyEmail(s.ctx, first.Handle, s.token("alice"))
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)

	// email first; reset verification so the gate applies again
	identity.EmailVerified = false
	s.Require().NoError(s.storage.SaveIdentity(s.ctx, identity))
	second, _ := s.service.Login(s.ctx, "alice", "password123")
	s.Equal(model.StateAwaitingSecondFactor, second.State)
	status, err = s.service.VerifyEmail(s.ctx, second.Handle, s.token("alice"))
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingSecondFactor, status.State)
	status, err = s.service.SubmitSecondFactor(s.ctx, second.Handle, s.code(identity))
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)
}

func (s *ServiceSuite) TestVerifyEmailWhenAlreadyVerified() {
	s.register("alice", true, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	_, err := s.service.VerifyEmail(s.ctx, status.Handle, "anything")
	s.ErrorIs(err, model.ErrWrongFlowState)
}

// Resend tests

func (s *ServiceSuite) TestResendIsRateLimited() {
	s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	_, err := s.service.ResendVerification(s.ctx, status.Handle)
	s.ErrorIs(err, model.ErrRateLimited)
	s.Equal(model.StateAwaitingEmailVerification, s.flowError(err).State)

	s.clock.Advance(time.Minute)
	_, err = s.service.ResendVerification(s.ctx, status.Handle)
	s.Require().NoError(err)
	s.Len(s.mailer.Messages(), 2)
}

func (s *ServiceSuite) TestResendInvalidatesPreviousToken() {
	s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")
	oldToken := s.token("alice")

	s.clock.Advance(time.Minute)
	_, err := s.service.ResendVerification(s.ctx, status.Handle)
	s.Require().NoError(err)
	newToken := s.token("alice")
	s.NotEqual(oldToken, newToken)

	_, err = s.service.VerifyEmail(s.ctx, status.Handle, oldToken)
	s.ErrorIs(err, model.ErrInvalidToken)

	status, err = s.service.VerifyEmail(s.ctx, status.Handle, newToken)
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, status.State)
}

// Expiry tests

func (s *ServiceSuite) TestPendingFlowTimesOut() {
	s.register("alice", false, false)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	s.clock.Advance(15 * time.Minute)
	_, err := s.service.VerifyEmail(s.ctx, status.Handle, s.token("alice"))
	s.ErrorIs(err, model.ErrSessionExpired)

	current, err := s.service.Status(s.ctx, status.Handle)
	s.Require().NoError(err)
	s.Equal(model.StateExpired, current.State)
}

func (s *ServiceSuite) TestUnknownHandleIsExpired() {
	_, err := s.service.Status(s.ctx, "missing")
	s.ErrorIs(err, model.ErrSessionExpired)
	s.Equal(model.StateExpired, s.flowError(err).State)
}

// Authorize and logout tests

func (s *ServiceSuite) TestAuthorizeCredential() {
	identity := s.register("alice", false, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	principal, err := s.service.Authorize(s.ctx, status.Credential)
	s.Require().NoError(err)
	s.Equal(identity.AccountID, principal.AccountID)
	s.Equal("alice", principal.Username)
	s.Equal(status.Handle, principal.SessionID)
}

func (s *ServiceSuite) TestAuthorizeRejectsGarbageAndForeignTokens() {
	_, err := s.service.Authorize(s.ctx, "not-a-jwt")
	s.ErrorIs(err, model.ErrUnauthorized)

	cfg := testConfig()
	cfg.JWTSecret = "other-secret"
	other := s.newService(cfg)
	s.register("alice", false, true)
	status, _ := other.Login(s.ctx, "alice", "password123")

	_, err = s.service.Authorize(s.ctx, status.Credential)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestCredentialExpiresWithSession() {
	s.register("alice", false, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	s.clock.Advance(24 * time.Hour)
	_, err := s.service.Authorize(s.ctx, status.Credential)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestLogoutInvalidatesCredential() {
	s.register("alice", false, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	s.NoError(s.service.Logout(s.ctx, status.Credential))

	_, err := s.service.Authorize(s.ctx, status.Credential)
	s.ErrorIs(err, model.ErrUnauthorized)
	_, err = s.service.Status(s.ctx, status.Handle)
	s.ErrorIs(err, model.ErrSessionExpired)
}

func (s *ServiceSuite) TestLogoutAlwaysSucceeds() {
	s.register("alice", true, true)
	status, _ := s.service.Login(s.ctx, "alice", "password123")

	s.NoError(s.service.Logout(s.ctx, status.Handle))
	s.NoError(s.service.Logout(s.ctx, status.Handle))
	s.NoError(s.service.Logout(s.ctx, "never-existed"))
	s.NoError(s.service.Logout(s.ctx, ""))
}

// Sweeper tests

func (s *ServiceSuite) TestSweepExpiredRemovesOnlyExpired() {
	s.register("alice", false, false)
	s.register("bob", false, true)
	pending, _ := s.service.Login(s.ctx, "alice", "password123")
	authorized, _ := s.service.Login(s.ctx, "bob", "password123")

	s.clock.Advance(time.Hour)
	removed, err := s.service.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)

	_, err = s.storage.GetSession(s.ctx, pending.Handle)
	s.ErrorIs(err, model.ErrSessionNotFound)
	_, err = s.storage.GetSession(s.ctx, authorized.Handle)
	s.NoError(err)
}

func (s *ServiceSuite) TestRunSweeperUsesClock() {
	s.register("alice", false, false)
	pending, _ := s.service.Login(s.ctx, "alice", "password123")

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.service.RunSweeper(ctx, time.Minute)
		close(done)
	}()

	s.Eventually(func() bool { return s.clock.Waiters() == 1 }, time.Second, 5*time.Millisecond)
	s.clock.Advance(20 * time.Minute)

	s.Eventually(func() bool {
		_, err := s.storage.GetSession(s.ctx, pending.Handle)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
