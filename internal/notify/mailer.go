package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/eaziwage/ewa/internal/config"
)

// Mailer delivers one e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends plain text or HTML mail over implicit TLS.
type SMTPMailer struct {
	cfg config.MailConfig
}

// NewMailer picks Plunk when an API key is set, then SMTP when configured,
// otherwise a mailer that only logs.
func NewMailer(cfg config.MailConfig, logger *slog.Logger) Mailer {
	if cfg.PlunkAPIKey != "" {
		return NewPlunkMailer(cfg, nil)
	}
	if cfg.Enabled() {
		return &SMTPMailer{cfg: cfg}
	}
	logger.Warn("smtp not configured; e-mails will only be logged")
	return LogMailer{Logger: logger}
}

// Message builds the RFC 822 text for one mail.
func (m *SMTPMailer) Message(to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if m.cfg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", m.cfg.ReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	contentType := "text/plain"
	lb := strings.ToLower(body)
	if strings.Contains(lb, "<html") || strings.Contains(lb, "<body") {
		contentType = "text/html"
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType)
	b.WriteString("\r\n" + body + "\r\n")
	return b.String()
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(m.Message(to, subject, body))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

// LogMailer writes mails to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (l LogMailer) Send(ctx context.Context, to, subject, _ string) error {
	l.Logger.InfoContext(ctx, "mail not sent (smtp disabled)", "to", to, "subject", subject)
	return nil
}
