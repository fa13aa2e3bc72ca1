package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrNoRecipient = errors.New("recipient has no email address")
	ErrNoChannel   = errors.New("no mail channel configured")
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Recipient is the addressee of a directory notification.
type Recipient struct {
	Username string
	FullName string
	Email    string
}

func (r Recipient) greeting() string {
	if name := strings.TrimSpace(r.FullName); name != "" {
		return name
	}
	return r.Username
}

type Service struct {
	Mailer      Mailer
	DefaultFrom string
	// LogCredentials prints reset passwords to the log instead of mailing
	// them. Only set outside production with email disabled.
	LogCredentials bool
}

func New(mailer Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{Mailer: mailer, DefaultFrom: from}
}

// Available reports whether SendPasswordReset has anywhere to put a password.
func (s *Service) Available() bool {
	return s != nil && (s.LogCredentials || s.Mailer != nil)
}

// SendPasswordReset delivers a freshly generated password to its owner.
func (s *Service) SendPasswordReset(ctx context.Context, to Recipient, password string) error {
	if s.LogCredentials {
		slog.Info("email delivery disabled, reset password for local testing", "username", to.Username, "password", password)
		return nil
	}
	if s.Mailer == nil {
		return ErrNoChannel
	}
	if strings.TrimSpace(to.Email) == "" {
		return ErrNoRecipient
	}
	body := fmt.Sprintf(bodyPasswordReset, to.greeting(), password)
	if err := s.Mailer.Send(ctx, s.DefaultFrom, to.Email, SubjectPasswordReset, body); err != nil {
		return fmt.Errorf("send password reset to %s: %w", to.Username, err)
	}
	return nil
}
