// Package mail delivers email verification tokens out of band.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"sync"
)

// Message is a verification email
type Message struct {
	To       string
	Username string
	Token    string
}

// Mailer sends verification tokens to account owners
type Mailer interface {
	SendVerification(ctx context.Context, msg Message) error
}

// SMTPConfig holds outgoing mail server settings
type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Password string
}

// SMTPMailer sends mail through an SMTP relay with PLAIN auth
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates an SMTP mailer
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// Addr is the host:port the mailer dials
func (m *SMTPMailer) Addr() string {
	return net.JoinHostPort(m.cfg.Host, m.cfg.Port)
}

func (m *SMTPMailer) SendVerification(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := fmt.Sprintf(
		"To: %s\r\nSubject: Verify your account\r\n\r\nHello %s,\r\n\r\nYour verification token is: %s\r\n",
		msg.To, msg.Username, msg.Token,
	)
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	if err := m.send(m.Addr(), auth, m.cfg.From, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// LogMailer writes tokens to the log instead of sending them (development)
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a logging mailer
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerification(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "verification token issued",
		slog.String("to", msg.To),
		slog.String("username", msg.Username),
		slog.String("token", msg.Token),
	)
	return nil
}

// Recorder keeps every message in memory (tests and local tooling)
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SendVerification(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// LastToken returns the most recent token sent to username
func (r *Recorder) LastToken(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Username == username {
			return r.messages[i].Token, true
		}
	}
	return "", false
}
