package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailerFormatsMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", Password: "pw"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		return nil
	}

	err := m.SendVerification(context.Background(), Message{To: "alice@example.com", Username: "alice", Token: "tok-123"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, string(gotBody), "tok-123")
	assert.Contains(t, string(gotBody), "To: alice@example.com\r\n")
}

func TestSMTPMailerWrapsErrors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: "25"})
	boom := errors.New("boom")
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := m.SendVerification(context.Background(), Message{To: "a@b.c"})
	assert.ErrorIs(t, err, boom)
}

func TestRecorderLastToken(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	_, ok := r.LastToken("alice")
	assert.False(t, ok)

	_ = r.SendVerification(ctx, Message{Username: "alice", Token: "first"})
	_ = r.SendVerification(ctx, Message{Username: "bob", Token: "other"})
	_ = r.SendVerification(ctx, Message{Username: "alice", Token: "second"})

	tok, ok := r.LastToken("alice")
	assert.True(t, ok)
	assert.Equal(t, "second", tok)
	assert.Len(t, r.Messages(), 3)
}
