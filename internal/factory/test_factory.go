package factory

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/rankdir/internal/dependencies/mocks"
	"github.com/mcoot/rankdir/internal/mail"
	"github.com/mcoot/rankdir/internal/metrics"
	"github.com/mcoot/rankdir/internal/services/auth"
	"github.com/mcoot/rankdir/internal/services/directory"
	"github.com/mcoot/rankdir/internal/storage/memory"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Mail       *mail.Recorder
	Memory     *memory.Storage
}

// TestAuthConfig is the auth configuration NewTestApp uses: defaults with a
// fixed secret and the cheapest bcrypt cost
func TestAuthConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(TestAuthConfig(), directory.DefaultConfig())
}

// NewTestAppWithConfig creates a test App with the given service configuration
func NewTestAppWithConfig(authCfg auth.Config, dirCfg directory.Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	recorder := mail.NewRecorder()

	app := &App{
		Storage:  store,
		Sessions: store,
		Cache:    memory.NewQueryCache(time.Minute),
		Metrics:  metrics.New(),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	if err := app.wire(mockClock, mockRandom, recorder, authCfg, dirCfg); err != nil {
		// only bcrypt can fail here, and not at MinCost
		panic(err)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Mail:       recorder,
		Memory:     store,
	}
}
