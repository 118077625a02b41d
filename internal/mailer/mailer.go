// Package mailer delivers issued tickets over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/wneessen/go-mail"
)

// Body formats accepted by Send.
const (
	FormatPlain = "plain"
	FormatHTML  = "html"
)

const implicitTLSPort = 465

// ErrMissingCredentials is returned when no SMTP account is available.
var ErrMissingCredentials = errors.New("smtp credentials are not configured")

// Credentials identify the SMTP account and display name used for one message.
type Credentials struct {
	User       string
	Password   string
	SenderName string
}

// Message is a single outgoing email with an optional file attachment.
type Message struct {
	Recipient      string
	Subject        string
	Body           string
	Format         string
	AttachmentPath string
	Credentials    Credentials
}

// SMTPMailer sends messages through one SMTP relay.
type SMTPMailer struct {
	server  string
	port    int
	timeout time.Duration
}

// New builds a mailer for the configured relay.
func New(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{server: cfg.SMTPServer, port: cfg.SMTPPort, timeout: cfg.Timeout()}
}

// ValidFormat reports whether format is a supported body format; empty means plain.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", FormatPlain, FormatHTML:
		return true
	}
	return false
}

// Send delivers msg. The attachment keeps its on-disk file name.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	creds := msg.Credentials
	if creds.User == "" || creds.Password == "" {
		return ErrMissingCredentials
	}

	out := mail.NewMsg()
	if err := out.FromFormat(creds.SenderName, creds.User); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := out.To(msg.Recipient); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	out.Subject(msg.Subject)

	contentType := mail.TypeTextPlain
	if strings.EqualFold(msg.Format, FormatHTML) {
		contentType = mail.TypeTextHTML
	}
	out.SetBodyString(contentType, msg.Body)
	if msg.AttachmentPath != "" {
		out.AttachFile(msg.AttachmentPath, mail.WithFileName(filepath.Base(msg.AttachmentPath)))
	}

	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.User),
		mail.WithPassword(creds.Password),
	}
	if m.port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if m.timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.timeout))
	}

	client, err := mail.NewClient(m.server, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
