package runboard

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	gomail "gopkg.in/gomail.v2"
)

// Message is an outbound notification email.
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Mailer delivers notification emails. Delivery failures never roll back the
// token that triggered them.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LinkBuilder renders the URLs embedded in token notifications.
type LinkBuilder struct {
	BaseURL string
}

// ConfirmationLink returns the account confirmation URL for a token id.
func (b LinkBuilder) ConfirmationLink(tokenID string) string {
	return fmt.Sprintf("%s/account/confirm/%s", strings.TrimRight(b.BaseURL, "/"), tokenID)
}

// RecoveryLink returns the password reset URL for a token id.
func (b LinkBuilder) RecoveryLink(tokenID string) string {
	return fmt.Sprintf("%s/account/recover/%s", strings.TrimRight(b.BaseURL, "/"), tokenID)
}

// SMTPConfig holds the dialer options for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPMailer creates a mailer from dialer options.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	email := gomail.NewMessage()
	email.SetHeader("From", m.cfg.From)
	email.SetHeader("To", msg.To)
	email.SetHeader("Subject", msg.Subject)
	if msg.HTML {
		email.SetBody("text/html", msg.Body)
	} else {
		email.SetBody("text/plain", msg.Body)
	}

	if err := m.dialer.DialAndSend(email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed")
	}

	return nil
}

// DevMailer logs the notification instead of sending it; useful in
// development and tests.
type DevMailer struct {
	Logger Logger
}

// Send implements Mailer.
func (m DevMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("notification email to=%s subject=%q body=%q", msg.To, msg.Subject, msg.Body)
	return nil
}
