// ABOUTME: SMTP sender delivering OTP codes by email
// ABOUTME: Implicit TLS on port 465, STARTTLS via smtp.SendMail otherwise

package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/2389/coven-identity/internal/otp"
)

// SMTPConfig holds mail relay settings
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// sendFunc matches smtp.SendMail
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers codes as plain-text email.
type SMTPSender struct {
	cfg    SMTPConfig
	send   sendFunc
	logger *slog.Logger
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == "" {
		return nil, errors.New("smtp host and port are required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &SMTPSender{
		cfg:    cfg,
		logger: logger.With("component", "delivery", "channel", "smtp"),
	}
	if cfg.Port == "465" {
		s.send = s.sendImplicitTLS
	} else {
		s.send = smtp.SendMail
	}
	return s, nil
}

// Send emails the code to msg.To.
func (s *SMTPSender) Send(ctx context.Context, msg otp.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return fmt.Errorf("invalid recipient %q", msg.To)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, s.compose(msg)); err != nil {
		return fmt.Errorf("sending email to %s: %w", msg.To, err)
	}

	s.logger.Info("sent otp email", "to", msg.To, "purpose", msg.Purpose.String())
	return nil
}

func (s *SMTPSender) compose(msg otp.Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(msg))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(Body(msg))
	return []byte(b.String())
}

// sendImplicitTLS speaks SMTP over a TLS connection from the first byte
func (s *SMTPSender) sendImplicitTLS(addr string, auth smtp.Auth, from string, to []string, body []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer func() { _ = client.Quit() }()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Close()
}
