package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveState(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name     string
		gates    Gates
		terminal TerminalMark
		deadline time.Time
		order    []Gate
		want     FlowState
	}{
		{"no credentials", Gates{}, TerminalNone, future, nil, StateAnonymous},
		{"all satisfied", Gates{true, true, true}, TerminalNone, future, nil, StateAuthorized},
		{"second factor pending", Gates{true, false, true}, TerminalNone, future, nil, StateAwaitingSecondFactor},
		{"email pending", Gates{true, true, false}, TerminalNone, future, nil, StateAwaitingEmailVerification},
		{"both pending default order", Gates{true, false, false}, TerminalNone, future, nil, StateAwaitingSecondFactor},
		{"both pending email first", Gates{true, false, false}, TerminalNone, future, []Gate{GateEmail, GateSecondFactor}, StateAwaitingEmailVerification},
		{"partial custom order", Gates{true, false, true}, TerminalNone, future, []Gate{GateEmail}, StateAwaitingSecondFactor},
		{"rejected wins", Gates{true, true, true}, TerminalRejected, future, nil, StateRejected},
		{"expired marker", Gates{true, false, true}, TerminalExpired, future, nil, StateExpired},
		{"deadline passed", Gates{true, true, true}, TerminalNone, past, nil, StateExpired},
		{"deadline reached", Gates{true, true, true}, TerminalNone, now, nil, StateExpired},
		{"zero deadline", Gates{true, true, true}, TerminalNone, time.Time{}, nil, StateAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(tt.gates, tt.terminal, tt.deadline, now, tt.order))
		})
	}
}

func TestGatesPending(t *testing.T) {
	g := Gates{CredentialsOK: true}
	assert.Equal(t, []Gate{GateSecondFactor, GateEmail}, g.Pending(DefaultGateOrder))

	g.SecondFactorOK = true
	assert.Equal(t, []Gate{GateEmail}, g.Pending(DefaultGateOrder))

	g.EmailOK = true
	assert.Empty(t, g.Pending(DefaultGateOrder))
}

func TestFlowErrorUnwraps(t *testing.T) {
	err := NewFlowError(ErrInvalidCode, StateAwaitingSecondFactor, 2)
	assert.ErrorIs(t, err, ErrInvalidCode)

	var fe *FlowError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, StateAwaitingSecondFactor, fe.State)
	assert.Equal(t, 2, fe.RemainingAttempts)
}
