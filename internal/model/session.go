package model

import "time"

// FlowState is the derived position of a session in the authentication flow
type FlowState string

const (
	StateAnonymous                 FlowState = "anonymous"
	StateCredentialsSubmitted      FlowState = "credentials_submitted"
	StateAwaitingSecondFactor      FlowState = "awaiting_second_factor"
	StateAwaitingEmailVerification FlowState = "awaiting_email_verification"
	StateAuthorized                FlowState = "authorized"
	StateRejected                  FlowState = "rejected"
	StateExpired                   FlowState = "expired"
)

// Terminal reports whether no further flow operation can change the state
func (s FlowState) Terminal() bool {
	return s == StateRejected || s == StateExpired
}

// Pending reports whether the flow has started but not yet finished
func (s FlowState) Pending() bool {
	return s == StateCredentialsSubmitted || s == StateAwaitingSecondFactor || s == StateAwaitingEmailVerification
}

// Gate names a post-credential verification step
type Gate string

const (
	GateSecondFactor Gate = "second_factor"
	GateEmail        Gate = "email"
)

// DefaultGateOrder is the order pending gates are reported in
var DefaultGateOrder = []Gate{GateSecondFactor, GateEmail}

// Gates records which verification steps a session has satisfied.
// A gate that does not apply to the account is satisfied at login.
type Gates struct {
	CredentialsOK  bool
	SecondFactorOK bool
	EmailOK        bool
}

// Satisfied reports whether the named gate is done
func (g Gates) Satisfied(gate Gate) bool {
	switch gate {
	case GateSecondFactor:
		return g.SecondFactorOK
	case GateEmail:
		return g.EmailOK
	}
	return true
}

// Pending lists the unsatisfied gates in the given order
func (g Gates) Pending(order []Gate) []Gate {
	var pending []Gate
	for _, gate := range order {
		if !g.Satisfied(gate) {
			pending = append(pending, gate)
		}
	}
	return pending
}

// TerminalMark is set once a session can no longer progress
type TerminalMark string

const (
	TerminalNone     TerminalMark = ""
	TerminalRejected TerminalMark = "rejected"
	TerminalExpired  TerminalMark = "expired"
)

// AuthChallenge is a pending second factor challenge
type AuthChallenge struct {
	ExpiresAt         time.Time
	RemainingAttempts int
}

// EmailVerification is a pending email verification token.
// Only the SHA-256 hash of the token is kept.
type EmailVerification struct {
	TokenHash  string
	ExpiresAt  time.Time
	LastSentAt time.Time
}

// AuthSession is the server-side record of one authentication attempt
type AuthSession struct {
	ID           string
	AccountID    AccountID
	Identifier   string
	Gates        Gates
	Terminal     TerminalMark
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Challenge    *AuthChallenge
	Verification *EmailVerification
	CredentialID string // set once authorized
}

// State derives the flow state of the session at now
func (s *AuthSession) State(now time.Time, order []Gate) FlowState {
	return DeriveState(s.Gates, s.Terminal, s.ExpiresAt, now, order)
}

// DeriveState computes the flow state from gate booleans, the terminal marker
// and the session deadline. A zero deadline never expires.
func DeriveState(gates Gates, terminal TerminalMark, deadline, now time.Time, order []Gate) FlowState {
	switch terminal {
	case TerminalRejected:
		return StateRejected
	case TerminalExpired:
		return StateExpired
	}
	if !deadline.IsZero() && !now.Before(deadline) {
		return StateExpired
	}
	if !gates.CredentialsOK {
		return StateAnonymous
	}
	// gates missing from a custom order still have to be satisfied
	for _, gate := range append(append([]Gate{}, order...), DefaultGateOrder...) {
		if gates.Satisfied(gate) {
			continue
		}
		if gate == GateSecondFactor {
			return StateAwaitingSecondFactor
		}
		return StateAwaitingEmailVerification
	}
	return StateAuthorized
}
