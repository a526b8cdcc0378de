package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/rankdir/internal/dependencies/mocks"
	"github.com/mcoot/rankdir/internal/model"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestResendLimiterAllowsOncePerInterval(t *testing.T) {
	l := newResendLimiter(time.Minute, 1)

	assert.True(t, l.allow("a", epoch))
	assert.False(t, l.allow("a", epoch.Add(30*time.Second)))
	assert.True(t, l.allow("b", epoch.Add(30*time.Second)))
	assert.True(t, l.allow("a", epoch.Add(time.Minute)))
}

func TestResendLimiterForgetAndPrune(t *testing.T) {
	l := newResendLimiter(time.Minute, 1)
	l.allow("old", epoch)
	l.allow("new", epoch.Add(time.Hour))
	l.allow("gone", epoch.Add(time.Hour))

	l.forget("gone")
	l.prune(epoch.Add(30 * time.Minute))

	assert.Equal(t, 1, l.len())
	assert.False(t, l.allow("new", epoch.Add(time.Hour)))
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := k.lock("session")
			defer release()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	releaseA := k.lock("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := k.lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	clk := mocks.NewMockClock(epoch)
	issuer := newTokenIssuer("secret", "rankdir", clk)
	session := &model.AuthSession{
		ID:           "session-1",
		AccountID:    7,
		CredentialID: "cred-1",
		ExpiresAt:    epoch.Add(time.Hour),
	}

	signed, err := issuer.issue(session)
	require.NoError(t, err)

	claims, err := issuer.parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "cred-1", claims.ID)
	assert.Equal(t, "7", claims.Subject)

	clk.Advance(time.Hour)
	_, err = issuer.parse(signed)
	assert.ErrorIs(t, err, errInvalidCredential)
}

func TestTokenIssuerRejectsOtherIssuerAndAlgorithm(t *testing.T) {
	clk := mocks.NewMockClock(epoch)
	session := &model.AuthSession{ID: "s", CredentialID: "c", ExpiresAt: epoch.Add(time.Hour)}

	foreign, err := newTokenIssuer("secret", "someone-else", clk).issue(session)
	require.NoError(t, err)
	_, err = newTokenIssuer("secret", "rankdir", clk).parse(foreign)
	assert.ErrorIs(t, err, errInvalidCredential)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "c",
			Issuer:    "rankdir",
			ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
		},
		SessionID: "s",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newTokenIssuer("secret", "rankdir", clk).parse(unsigned)
	assert.ErrorIs(t, err, errInvalidCredential)
}

func TestValidateCodeWindow(t *testing.T) {
	secret, _, err := enrollTOTP("rankdir", "alice")
	require.NoError(t, err)

	code, err := GenerateCode(secret, epoch)
	require.NoError(t, err)

	assert.True(t, validateCode(code, secret, epoch))
	assert.True(t, validateCode(code, secret, epoch.Add(30*time.Second)))
	assert.False(t, validateCode(code, secret, epoch.Add(5*time.Minute)))
	assert.False(t, validateCode("", secret, epoch))
}

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 24*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 15*time.Minute, cfg.FlowTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 3, cfg.MaxCodeAttempts)
	assert.Equal(t, 15*time.Minute, cfg.VerificationTTL)
	assert.Equal(t, time.Minute, cfg.ResendInterval)
	assert.Equal(t, []model.Gate{model.GateSecondFactor, model.GateEmail}, cfg.GateOrder)
}
