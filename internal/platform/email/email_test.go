package email

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"
	"time"

	"personnel/internal/platform/config"
)

func TestCompose(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	from := &mail.Address{Address: "hr@example.com"}
	to := &mail.Address{Name: "Anna", Address: "anna@example.com"}
	msg := string(compose(from, to, "Ihr neues Passwort", "Hallo Anna,\n\nzurückgesetzt", at))

	for _, want := range []string{
		"From: <hr@example.com>\r\n",
		"To: \"Anna\" <anna@example.com>\r\n",
		"Subject: Ihr neues Passwort\r\n",
		"Date: Fri, 01 Mar 2024 09:30:00 +0000\r\n",
		"@example.com>\r\n",
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n",
		"\r\n\r\nHallo Anna,\r\n\r\nzurückgesetzt",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestComposeEncodesNonASCIISubject(t *testing.T) {
	msg := string(compose(&mail.Address{Address: "a@example.com"}, &mail.Address{Address: "b@example.com"}, "Passwort zurückgesetzt", "x", time.Now()))
	if !strings.Contains(msg, "Subject: =?utf-8?q?") {
		t.Fatalf("expected encoded subject:\n%s", msg)
	}
}

func TestNewRequiresRelay(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
	}{
		{name: "disabled", cfg: config.Config{EmailEnabled: false, SMTPHost: "smtp.example.com"}},
		{name: "no host", cfg: config.Config{EmailEnabled: true}},
		{name: "blank host", cfg: config.Config{EmailEnabled: true, SMTPHost: "  "}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mailer, err := New(tc.cfg)
			if !errors.Is(err, ErrNotConfigured) || mailer != nil {
				t.Fatalf("expected ErrNotConfigured, got %v %v", mailer, err)
			}
		})
	}

	mailer, err := New(config.Config{EmailEnabled: true, SMTPHost: "smtp.example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if mailer.port != 587 || mailer.timeout != defaultTimeout {
		t.Fatalf("unexpected defaults %+v", mailer)
	}
}

func TestSendRejectsBadAddressesBeforeDialing(t *testing.T) {
	mailer, err := New(config.Config{EmailEnabled: true, SMTPHost: "smtp.invalid", SMTPPort: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct {
		name, from, to, want string
	}{
		{name: "sender", from: "not an address", to: "anna@example.com", want: "email: sender"},
		{name: "recipient", from: "hr@example.com", to: "", want: "email: recipient"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := mailer.Send(context.Background(), tc.from, tc.to, "s", "b")
			if err == nil || !strings.HasPrefix(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}
