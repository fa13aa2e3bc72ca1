package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"personnel/internal/apperr"
	"personnel/internal/domain/directory"
)

// resetPasswordBytes yields a 12 character hex password.
const resetPasswordBytes = 6

// Accounts is the slice of the user directory the session issuer needs.
type Accounts interface {
	FindByUsername(ctx context.Context, username string) (*directory.User, error)
	FindByID(ctx context.Context, id string) (*directory.User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type SessionUser struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      SessionUser `json:"user"`
}

type Service struct {
	accounts    Accounts
	credentials *Credentials
	tokens      *Tokens
	now         func() time.Time
}

func NewService(accounts Accounts, credentials *Credentials, tokens *Tokens) *Service {
	return &Service{
		accounts:    accounts,
		credentials: credentials,
		tokens:      tokens,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Login trades a username and password for a signed session token. Unknown
// usernames and wrong passwords fail identically. The username is looked up
// exactly as given.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	user, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, directory.ErrUserNotFound) {
			return nil, err
		}
		s.credentials.VerifyNothing(password)
		return nil, ErrInvalidCredentials
	}
	if !s.credentials.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.accounts.RecordLogin(ctx, user.ID, s.now()); err != nil {
		slog.Warn("record last login failed", "userId", user.ID, "err", err)
	}

	roles := append([]string(nil), user.Roles...)
	token, expires, err := s.tokens.Generate(user.Username, roles)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{
		Token:     token,
		ExpiresAt: expires,
		User:      SessionUser{Username: user.Username, Roles: roles},
	}, nil
}

// Delivery hands a freshly generated password to its owner.
type Delivery func(ctx context.Context, user *directory.User, password string) error

// ResetPassword replaces the user's password with a random one, passes the
// plaintext to deliver and returns it once to the caller. Without a delivery
// channel nothing changes. When delivery fails the previous hash is put back,
// so the old password keeps working.
func (s *Service) ResetPassword(ctx context.Context, id string, deliver Delivery) (string, *directory.User, error) {
	if deliver == nil {
		return "", nil, ErrResetUnavailable
	}
	user, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	plain, err := randomPassword()
	if err != nil {
		return "", nil, apperr.Internal(err)
	}
	hash, err := s.credentials.Hash(plain)
	if err != nil {
		return "", nil, apperr.Internal(err)
	}
	if err := s.accounts.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return "", nil, err
	}

	if err := deliver(ctx, user, plain); err != nil {
		if restoreErr := s.accounts.SetPasswordHash(ctx, user.ID, user.PasswordHash); restoreErr != nil {
			slog.Error("restore password after failed delivery", "userId", user.ID, "err", restoreErr)
			return "", nil, apperr.Internal(errors.Join(err, restoreErr))
		}
		return "", nil, apperr.Wrap(ErrResetDeliveryFailed, err)
	}
	return plain, user, nil
}

// ChangePassword lets a user replace their own password after proving the
// current one.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	user, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !s.credentials.Verify(current, user.PasswordHash) {
		return ErrWrongPassword
	}
	if !StrongEnough(next) {
		return ErrWeakPassword
	}
	hash, err := s.credentials.Hash(next)
	if err != nil {
		return err
	}
	return s.accounts.SetPasswordHash(ctx, user.ID, hash)
}

func randomPassword() (string, error) {
	buf := make([]byte, resetPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
