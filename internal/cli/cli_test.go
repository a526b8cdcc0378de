package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/rankdir/internal/api/response"
	"github.com/mcoot/rankdir/internal/client"
	"github.com/mcoot/rankdir/internal/factory"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/seed"
	"github.com/mcoot/rankdir/internal/services/auth"
	"github.com/mcoot/rankdir/internal/testutil"
)

type CLISuite struct {
	suite.Suite
	app       *factory.TestApp
	server    *httptest.Server
	stateFile string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.app = factory.NewTestApp()
	// the CLI runs on the wall clock
	s.app.MockClock.Set(time.Now().UTC())
	s.server = httptest.NewServer(s.app.Router(factory.RouterOptions{}))
	s.stateFile = filepath.Join(s.T().TempDir(), "state.json")
}

func (s *CLISuite) TearDownTest() {
	s.server.Close()
}

// run executes one CLI invocation with JSON output
func (s *CLISuite) run(args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--server", s.server.URL,
		"--state-file", s.stateFile,
		"--output", "json",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (s *CLISuite) snapshot(output string) client.Snapshot {
	var snap client.Snapshot
	s.Require().NoError(json.Unmarshal([]byte(output), &snap), output)
	return snap
}

func (s *CLISuite) TestHealth() {
	output, err := s.run("health")
	s.Require().NoError(err)

	var health response.Health
	s.Require().NoError(json.Unmarshal([]byte(output), &health))
	s.Equal("ok", health.Status)
}

func (s *CLISuite) TestFullFlowAcrossInvocations() {
	_, err := seed.IfEmpty(context.Background(), s.app.Storage, 5, 1, testutil.NopLogger())
	s.Require().NoError(err)

	output, err := s.run("register", "--user", "alice", "--email", "alice@example.com", "--pass", "password123", "--two-factor")
	s.Require().NoError(err, output)
	var reg response.RegisterResponse
	s.Require().NoError(json.Unmarshal([]byte(output), &reg))
	s.Require().NotEmpty(reg.ProvisioningURI)

	output, err = s.run("login", "--user", "alice", "--pass", "password123")
	s.Require().NoError(err, output)
	s.Equal(model.StateAwaitingSecondFactor, s.snapshot(output).State)

	// queries are refused until authorized
	_, err = s.run("accounts", "list")
	s.ErrorIs(err, model.ErrUnauthorized)

	output, err = s.run("totp", reg.ProvisioningURI)
	s.Require().NoError(err, output)
	var code TOTPCode
	s.Require().NoError(json.Unmarshal([]byte(output), &code))

	output, err = s.run("2fa", code.Code)
	s.Require().NoError(err, output)
	s.Equal(model.StateAwaitingEmailVerification, s.snapshot(output).State)

	token, ok := s.app.Mail.LastToken("alice")
	s.Require().True(ok)
	output, err = s.run("verify", token)
	s.Require().NoError(err, output)
	s.Equal(model.StateAuthorized, s.snapshot(output).State)

	output, err = s.run("accounts", "list", "--limit", "2", "--sort", "score", "--order", "desc")
	s.Require().NoError(err, output)
	var page response.AccountsResponse
	s.Require().NoError(json.Unmarshal([]byte(output), &page))
	s.Equal(6, page.Total)
	s.Len(page.Data, 2)
	s.GreaterOrEqual(page.Data[0].Score, page.Data[1].Score)

	output, err = s.run("logout")
	s.Require().NoError(err, output)

	output, err = s.run("status", "--local")
	s.Require().NoError(err, output)
	s.Equal(model.StateAnonymous, s.snapshot(output).State)
}

func (s *CLISuite) TestWrongCodeKeepsRemainingAttemptsInState() {
	_, err := s.app.AuthService.Register(context.Background(), auth.RegisterRequest{
		Username:        "bob",
		Email:           "bob@example.com",
		Password:        "password123",
		EnableTwoFactor: true,
	})
	s.Require().NoError(err)

	_, err = s.run("login", "--user", "bob", "--pass", "password123")
	s.Require().NoError(err)

	_, err = s.run("2fa", "not-a-code")
	s.ErrorIs(err, model.ErrInvalidCode)

	output, err := s.run("status", "--local")
	s.Require().NoError(err)
	snap := s.snapshot(output)
	s.Equal(model.StateAwaitingSecondFactor, snap.State)
	s.Equal(2, snap.RemainingAttempts)

	// a second login is refused while the flow is pending
	_, err = s.run("login", "--user", "bob", "--pass", "password123")
	s.ErrorIs(err, model.ErrFlowInProgress)
}

func (s *CLISuite) TestLoginRequiresPassword() {
	s.T().Setenv("RANKDIR_PASSWORD", "")
	_, err := s.run("login", "--user", "alice")
	s.ErrorContains(err, "RANKDIR_PASSWORD")
}

func (s *CLISuite) TestPrintErrorIncludesFlowState() {
	var out bytes.Buffer
	NewOutput("json", &out, &out).PrintError(model.NewFlowError(model.ErrInvalidCode, model.StateRejected, 0))

	var body map[string]errorBody
	s.Require().NoError(json.Unmarshal(out.Bytes(), &body))
	s.Equal("rejected", body["error"].State)
	s.Require().NotNil(body["error"].RemainingAttempts)
	s.Equal(0, *body["error"].RemainingAttempts)
}
