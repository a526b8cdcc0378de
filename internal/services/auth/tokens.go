package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/rankdir/internal/dependencies/clock"
	"github.com/mcoot/rankdir/internal/model"
)

var errInvalidCredential = errors.New("invalid credential")

// CredentialClaims are carried by an issued credential
type CredentialClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// tokenIssuer signs and validates HS256 credentials
type tokenIssuer struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func newTokenIssuer(secret, issuer string, clk clock.Clock) *tokenIssuer {
	return &tokenIssuer{secret: []byte(secret), issuer: issuer, clock: clk}
}

// issue signs a credential for an authorized session.
// The jti is the session's credential id.
func (t *tokenIssuer) issue(session *model.AuthSession) (string, error) {
	now := t.clock.Now()
	claims := &CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.CredentialID,
			Issuer:    t.issuer,
			Subject:   fmt.Sprintf("%d", session.AccountID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		SessionID: session.ID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}

// parse validates signature, issuer and expiry against the service clock
func (t *tokenIssuer) parse(tokenString string) (*CredentialClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CredentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.clock.Now() }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCredential, err)
	}

	claims, ok := token.Claims.(*CredentialClaims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.ID == "" {
		return nil, errInvalidCredential
	}
	return claims, nil
}
