package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/rankdir/internal/api/request"
	"github.com/mcoot/rankdir/internal/factory"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/seed"
	"github.com/mcoot/rankdir/internal/services/auth"
	"github.com/mcoot/rankdir/internal/services/directory"
	"github.com/mcoot/rankdir/internal/testutil"
)

type ControllerSuite struct {
	suite.Suite
	app    *factory.TestApp
	server *httptest.Server
	ctrl   *Controller
	ctx    context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.start(factory.TestAuthConfig())
}

func (s *ControllerSuite) TearDownTest() {
	s.server.Close()
}

func (s *ControllerSuite) start(cfg auth.Config) {
	if s.server != nil {
		s.server.Close()
	}
	s.ctx = context.Background()
	s.app = factory.NewTestAppWithConfig(cfg, directory.DefaultConfig())
	s.server = httptest.NewServer(s.app.Router(factory.RouterOptions{}))
	s.ctrl = NewController(New(s.server.URL+"/api/v1", time.Second), s.app.MockClock)
}

func (s *ControllerSuite) register(username string, twoFactor bool) {
	_, err := s.ctrl.Register(s.ctx, request.RegisterRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "password123",
		Class:           "mage",
		EnableTwoFactor: twoFactor,
	})
	s.Require().NoError(err)
}

func (s *ControllerSuite) code(username string) string {
	identity, err := s.app.Storage.GetIdentityByUsername(s.ctx, username)
	s.Require().NoError(err)
	code, err := auth.GenerateCode(identity.TOTPSecret, s.app.MockClock.Now())
	s.Require().NoError(err)
	return code
}

func (s *ControllerSuite) noGates() {
	cfg := factory.TestAuthConfig()
	cfg.SecondFactor = auth.PolicyOff
	cfg.EmailVerification = auth.PolicyOff
	s.start(cfg)
}

func (s *ControllerSuite) TestStartsAnonymous() {
	s.Equal(model.StateAnonymous, s.ctrl.State())
	_, ok := s.ctrl.Credential()
	s.False(ok)
}

func (s *ControllerSuite) TestLoginWithoutGatesIsAuthorized() {
	s.noGates()
	s.register("alice", false)

	snap, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, snap.State)

	credential, ok := s.ctrl.Credential()
	s.True(ok)
	s.NotEmpty(credential)
}

func (s *ControllerSuite) TestFullFlowThenQuery() {
	_, err := seed.IfEmpty(s.ctx, s.app.Storage, 12, 9, testutil.NopLogger())
	s.Require().NoError(err)
	s.register("alice", true)

	snap, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingSecondFactor, snap.State)
	s.Equal([]model.Gate{model.GateSecondFactor, model.GateEmail}, snap.PendingGates)
	s.Equal(3, snap.RemainingAttempts)

	_, err = s.ctrl.QueryAccounts(s.ctx, model.QueryRequest{})
	s.ErrorIs(err, model.ErrUnauthorized)

	snap, err = s.ctrl.SubmitSecondFactor(s.ctx, s.code("alice"))
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, snap.State)

	token, ok := s.app.Mail.LastToken("alice")
	s.Require().True(ok)
	snap, err = s.ctrl.VerifyEmail(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(model.StateAuthorized, snap.State)
	s.Empty(snap.PendingGates)

	result, err := s.ctrl.QueryAccounts(s.ctx, model.QueryRequest{Page: 1, Limit: 5})
	s.Require().NoError(err)
	s.Equal(13, result.Total)
	s.Len(result.Data, 5)
	s.Equal(1, result.Data[0].Rank)
	s.True(result.HasNextPage)
}

func (s *ControllerSuite) TestLoginWhilePendingIsFlowInProgress() {
	s.register("alice", true)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	snap, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.ErrorIs(err, model.ErrFlowInProgress)
	s.Equal(model.StateAwaitingSecondFactor, snap.State)
}

func (s *ControllerSuite) TestLoginWhileAuthorizedIsFlowInProgress() {
	s.noGates()
	s.register("alice", false)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	_, err = s.ctrl.Login(s.ctx, "alice", "password123")
	s.ErrorIs(err, model.ErrFlowInProgress)
	s.Equal(model.StateAuthorized, s.ctrl.State())
}

func (s *ControllerSuite) TestInvalidCredentialsStayAnonymous() {
	s.register("alice", false)

	snap, err := s.ctrl.Login(s.ctx, "alice", "wrong-password")
	s.ErrorIs(err, model.ErrInvalidCredentials)
	s.Equal(model.StateAnonymous, snap.State)

	_, err = s.ctrl.Login(s.ctx, "nobody", "wrong-password")
	s.ErrorIs(err, model.ErrInvalidCredentials)
}

func (s *ControllerSuite) TestWrongCodesRejectTheFlow() {
	s.register("alice", true)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	snap, err := s.ctrl.SubmitSecondFactor(s.ctx, "000000x")
	s.ErrorIs(err, model.ErrInvalidCode)
	s.Equal(model.StateAwaitingSecondFactor, snap.State)
	s.Equal(2, snap.RemainingAttempts)

	_, _ = s.ctrl.SubmitSecondFactor(s.ctx, "000000x")
	snap, err = s.ctrl.SubmitSecondFactor(s.ctx, "000000x")
	s.ErrorIs(err, model.ErrInvalidCode)
	s.Equal(model.StateRejected, snap.State)

	_, err = s.ctrl.SubmitSecondFactor(s.ctx, s.code("alice"))
	s.ErrorIs(err, model.ErrWrongFlowState)

	// rejected flows may start over
	snap, err = s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingSecondFactor, snap.State)
}

func (s *ControllerSuite) TestStepWithoutFlowIsWrongFlowState() {
	_, err := s.ctrl.SubmitSecondFactor(s.ctx, "123456")
	s.ErrorIs(err, model.ErrWrongFlowState)

	_, err = s.ctrl.VerifyEmail(s.ctx, "token")
	s.ErrorIs(err, model.ErrWrongFlowState)

	_, err = s.ctrl.ResendVerification(s.ctx)
	s.ErrorIs(err, model.ErrWrongFlowState)
}

func (s *ControllerSuite) TestResendIsRateLimited() {
	s.register("alice", false)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	snap, err := s.ctrl.ResendVerification(s.ctx)
	s.ErrorIs(err, model.ErrRateLimited)
	s.Equal(model.StateAwaitingEmailVerification, snap.State)

	s.app.MockClock.Advance(time.Minute)
	snap, err = s.ctrl.ResendVerification(s.ctx)
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, snap.State)
}

func (s *ControllerSuite) TestFlowTimeoutExpiresLocally() {
	s.register("alice", true)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	s.app.MockClock.Advance(auth.DefaultConfig().FlowTimeout)
	s.Equal(model.StateExpired, s.ctrl.State())

	_, err = s.ctrl.SubmitSecondFactor(s.ctx, s.code("alice"))
	s.ErrorIs(err, model.ErrWrongFlowState)
}

func (s *ControllerSuite) TestRefreshMirrorsServerExpiry() {
	s.register("alice", true)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	s.Require().NoError(s.app.Sessions.DeleteSession(s.ctx, s.ctrl.Snapshot().Handle))

	snap, err := s.ctrl.Refresh(s.ctx)
	s.ErrorIs(err, model.ErrSessionExpired)
	s.Equal(model.StateExpired, snap.State)
}

func (s *ControllerSuite) TestRevokedCredentialMarksExpired() {
	s.noGates()
	s.register("alice", false)
	snap, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	s.Require().NoError(s.app.AuthService.Logout(s.ctx, snap.Handle))

	_, err = s.ctrl.QueryAccounts(s.ctx, model.QueryRequest{})
	s.ErrorIs(err, model.ErrUnauthorized)
	s.Equal(model.StateExpired, s.ctrl.State())
	_, ok := s.ctrl.Credential()
	s.False(ok)
}

func (s *ControllerSuite) TestLogoutResetsAndRevokes() {
	s.noGates()
	s.register("alice", false)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)
	credential, _ := s.ctrl.Credential()

	s.Require().NoError(s.ctrl.Logout(s.ctx))
	s.Equal(model.StateAnonymous, s.ctrl.State())

	_, err = s.app.AuthService.Authorize(s.ctx, credential)
	s.ErrorIs(err, model.ErrUnauthorized)

	// anonymous logout is a no-op
	s.NoError(s.ctrl.Logout(s.ctx))
}

func (s *ControllerSuite) TestInvalidQueryIsInvalidRequest() {
	s.noGates()
	s.register("alice", false)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	_, err = s.ctrl.QueryAccounts(s.ctx, model.QueryRequest{Page: 1, Limit: 1000})
	s.ErrorIs(err, model.ErrInvalidRequest)
	s.Equal(model.StateAuthorized, s.ctrl.State())
}

func (s *ControllerSuite) TestRestoreResumesFlow() {
	s.register("alice", true)
	_, err := s.ctrl.Login(s.ctx, "alice", "password123")
	s.Require().NoError(err)

	restored := RestoreController(New(s.server.URL+"/api/v1", time.Second), s.app.MockClock, s.ctrl.Snapshot())
	snap, err := restored.SubmitSecondFactor(s.ctx, s.code("alice"))
	s.Require().NoError(err)
	s.Equal(model.StateAwaitingEmailVerification, snap.State)
}

// Unrecognized responses and transport failures

func TestUnrecognizedResponseLeavesStateUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	snap := Snapshot{State: model.StateAwaitingSecondFactor, Handle: "h", RemainingAttempts: 3}
	ctrl := RestoreController(New(srv.URL, time.Second), nil, snap)

	got, err := ctrl.SubmitSecondFactor(context.Background(), "123456")
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
	assert.Equal(t, snap.State, got.State)
	assert.Equal(t, 3, got.RemainingAttempts)
}

func TestUnknownStateInBodyIsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"handle":"h","state":"teleported"}`))
	}))
	defer srv.Close()

	ctrl := NewController(New(srv.URL, time.Second), nil)
	got, err := ctrl.Login(context.Background(), "alice", "password123")
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
	assert.Equal(t, model.StateAnonymous, got.State)
}

func TestUnknownStateInErrorBodyLeavesStateUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_CODE","message":"x","state":"bogus_state"}}`))
	}))
	defer srv.Close()

	ctrl := RestoreController(New(srv.URL, time.Second), nil, Snapshot{
		State:             model.StateAwaitingSecondFactor,
		Handle:            "h",
		PendingGates:      []model.Gate{model.GateSecondFactor},
		RemainingAttempts: 3,
		ExpiresAt:         time.Now().Add(time.Hour),
	})
	got, err := ctrl.SubmitSecondFactor(context.Background(), "000000")
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
	assert.Equal(t, model.StateAwaitingSecondFactor, got.State)
	assert.Equal(t, 3, got.RemainingAttempts)
}

func TestTransportErrorIsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ctrl := NewController(New(url, time.Second), nil)
	_, err := ctrl.Login(context.Background(), "alice", "password123")
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
	assert.Equal(t, model.StateAnonymous, ctrl.State())
}

func TestTimeoutIsServiceUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctrl := NewController(New(srv.URL, 50*time.Millisecond), nil)
	_, err := ctrl.Login(context.Background(), "alice", "password123")
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
}
