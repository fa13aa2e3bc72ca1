// Package email delivers plain text mail through a single SMTP relay.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"personnel/internal/platform/config"
)

// ErrNotConfigured is returned by New when email is disabled or no relay host
// is set.
var ErrNotConfigured = errors.New("email: smtp delivery is not configured")

const defaultTimeout = 10 * time.Second

// Mailer talks to the relay named in the configuration. It opens one
// connection per message.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	startTLS bool
	timeout  time.Duration
	now      func() time.Time
}

func New(cfg config.Config) (*Mailer, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	if !cfg.EmailEnabled || host == "" {
		return nil, ErrNotConfigured
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}
	return &Mailer{
		host:     host,
		port:     port,
		username: cfg.SMTPUser,
		password: cfg.SMTPPassword,
		startTLS: cfg.SMTPUseTLS,
		timeout:  defaultTimeout,
		now:      time.Now,
	}, nil
}

// Send delivers one message. Every failure names the SMTP step it happened in.
func (m *Mailer) Send(ctx context.Context, from, to, subject, body string) error {
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("email: sender %q: %w", from, err)
	}
	recipient, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("email: recipient %q: %w", to, err)
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := m.now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("email: deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("email: greeting: %w", err)
	}
	defer client.Close()

	if m.startTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	}
	if m.username != "" {
		if err := client.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}
	if err := client.Mail(sender.Address); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	if err := client.Rcpt(recipient.Address); err != nil {
		return fmt.Errorf("email: rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := w.Write(compose(sender, recipient, subject, body, m.now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: data close: %w", err)
	}
	return client.Quit()
}

func compose(from, to *mail.Address, subject, body string, at time.Time) []byte {
	domain := "localhost"
	if i := strings.LastIndex(from.Address, "@"); i >= 0 {
		domain = from.Address[i+1:]
	}
	headers := []string{
		"From: " + from.String(),
		"To: " + to.String(),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + at.Format(time.RFC1123Z),
		fmt.Sprintf("Message-ID: <%s@%s>", uuid.NewString(), domain),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"Content-Transfer-Encoding: 8bit",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + strings.ReplaceAll(body, "\n", "\r\n"))
}
