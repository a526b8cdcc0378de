package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/rankdir/internal/model"
)

// Registration limits
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 8
	// MaxPasswordLength is the most bcrypt will hash
	MaxPasswordLength = 72
)

// RegisterRequest describes a new account
type RegisterRequest struct {
	Username        string
	Email           string
	Password        string
	Class           model.Class
	EnableTwoFactor bool
}

// Registration is the outcome of a successful registration
type Registration struct {
	AccountID model.AccountID
	Username  string
	// ProvisioningURI is the otpauth:// URI, set only when 2FA was enabled
	ProvisioningURI string
}

// Register creates an unverified identity and its directory entry
func (s *Service) Register(ctx context.Context, req RegisterRequest) (reg *Registration, err error) {
	defer func() { s.observe("register", err) }()

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Class == "" {
		req.Class = model.ClassWarrior
	}
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	identity := &model.Identity{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var uri string
	if req.EnableTwoFactor {
		secret, provisioningURI, err := enrollTOTP(s.cfg.Issuer, req.Username)
		if err != nil {
			return nil, err
		}
		identity.TOTPSecret = secret
		identity.TwoFactorEnabled = true
		uri = provisioningURI
	}

	account := &model.Account{
		Username:  req.Username,
		Class:     req.Class,
		UpdatedAt: now,
	}

	if err := s.storage.CreateAccountWithIdentity(ctx, account, identity); err != nil {
		if errors.Is(err, model.ErrUsernameExists) {
			return nil, err
		}
		return nil, unavailable(err)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.Int64("account_id", int64(account.ID)),
		slog.Bool("two_factor", identity.TwoFactorEnabled),
	)

	return &Registration{
		AccountID:       account.ID,
		Username:        account.Username,
		ProvisioningURI: uri,
	}, nil
}

func validateRegistration(req RegisterRequest) error {
	switch {
	case len(req.Username) < MinUsernameLength || len(req.Username) > MaxUsernameLength:
		return fmt.Errorf("%w: username must be %d-%d characters", model.ErrInvalidRequest, MinUsernameLength, MaxUsernameLength)
	case len(req.Password) < MinPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", model.ErrInvalidRequest, MinPasswordLength)
	case len(req.Password) > MaxPasswordLength:
		return fmt.Errorf("%w: password must be at most %d bytes", model.ErrInvalidRequest, MaxPasswordLength)
	case !strings.Contains(req.Email, "@"):
		return fmt.Errorf("%w: email address is invalid", model.ErrInvalidRequest)
	case !req.Class.Valid():
		return fmt.Errorf("%w: unknown class %q", model.ErrInvalidRequest, req.Class)
	}
	return nil
}
