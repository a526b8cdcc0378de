package auth

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/rankdir/internal/model"
)

// GatePolicy controls whether a verification gate applies
type GatePolicy string

const (
	// PolicyAccount applies the gate according to the account's own settings
	PolicyAccount GatePolicy = "account"
	// PolicyOff never applies the gate
	PolicyOff GatePolicy = "off"
)

// Config holds configuration for the auth service
type Config struct {
	// SessionDuration is the lifetime of an authorized session
	SessionDuration time.Duration
	// FlowTimeout bounds a pending flow, measured from credential submission
	FlowTimeout time.Duration

	ChallengeTTL    time.Duration
	MaxCodeAttempts int
	VerificationTTL time.Duration
	ResendInterval  time.Duration

	SecondFactor      GatePolicy
	EmailVerification GatePolicy
	GateOrder         []model.Gate

	// JWTSecret signs credentials. A random secret is used when empty.
	JWTSecret string
	Issuer    string

	BcryptCost int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration:   24 * time.Hour,
		FlowTimeout:       15 * time.Minute,
		ChallengeTTL:      5 * time.Minute,
		MaxCodeAttempts:   3,
		VerificationTTL:   15 * time.Minute,
		ResendInterval:    time.Minute,
		SecondFactor:      PolicyAccount,
		EmailVerification: PolicyAccount,
		GateOrder:         model.DefaultGateOrder,
		Issuer:            "rankdir",
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// withDefaults fills zero values from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SessionDuration == 0 {
		c.SessionDuration = d.SessionDuration
	}
	if c.FlowTimeout == 0 {
		c.FlowTimeout = d.FlowTimeout
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = d.ChallengeTTL
	}
	if c.MaxCodeAttempts == 0 {
		c.MaxCodeAttempts = d.MaxCodeAttempts
	}
	if c.VerificationTTL == 0 {
		c.VerificationTTL = d.VerificationTTL
	}
	if c.ResendInterval == 0 {
		c.ResendInterval = d.ResendInterval
	}
	if c.SecondFactor == "" {
		c.SecondFactor = d.SecondFactor
	}
	if c.EmailVerification == "" {
		c.EmailVerification = d.EmailVerification
	}
	if len(c.GateOrder) == 0 {
		c.GateOrder = d.GateOrder
	}
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = d.BcryptCost
	}
	return c
}
