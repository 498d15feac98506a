// Package mailer sends transactional email over SMTP. The only message the
// service sends today is the account activation mail carrying the 4-digit
// code; the send paths (STARTTLS, implicit SSL, plaintext) are shared.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"

	"github.com/edustack/edustack/internal/config"
)

// activationTemplate renders the activation mail body. Kept inline: it is
// the single template the service owns.
var activationTemplate = template.Must(template.New("activation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>Hello {{.Name}},</h2>
  <p>Thanks for signing up. Enter the code below to activate your account:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.ActivationCode}}</p>
  <p>The code expires in 5 minutes. If you did not request this, you can ignore this email.</p>
</body>
</html>`))

// Mailer sends mail using a fixed SMTP configuration. When no SMTP host is
// configured (local development), sends are logged instead of delivered so
// the registration flow stays usable without a mail server.
type Mailer struct {
	cfg config.MailConfig
}

// New creates a mailer from the given SMTP configuration.
func New(cfg config.MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendActivationMail delivers the activation code to the given address. The
// context bounds the whole exchange; a dead or slow SMTP server surfaces as
// an error rather than a hang.
func (m *Mailer) SendActivationMail(ctx context.Context, toEmail, name, code string) error {
	if m.cfg.Host == "" {
		slog.Info("smtp not configured, logging activation code instead",
			slog.String("email", toEmail),
			slog.String("code", code),
		)
		return nil
	}

	var body strings.Builder
	err := activationTemplate.Execute(&body, struct {
		Name           string
		ActivationCode string
	}{Name: name, ActivationCode: code})
	if err != nil {
		return fmt.Errorf("rendering activation mail: %w", err)
	}

	return m.send(ctx, toEmail, "Activate your account", body.String())
}

// send builds the RFC 2822 message and dispatches it per the configured
// encryption mode.
func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	from := mail.Address{Name: m.cfg.FromName, Address: m.cfg.FromAddress}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	switch m.cfg.Encryption {
	case "ssl":
		return m.sendSSL(ctx, addr, from.Address, to, msg.String())
	case "none":
		return m.sendPlain(ctx, addr, from.Address, to, msg.String())
	default: // "starttls"
		return m.sendStartTLS(ctx, addr, from.Address, to, msg.String())
	}
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (m *Mailer) sendStartTLS(ctx context.Context, addr, from, to, msg string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()
	applyDeadline(ctx, conn)

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}

	if err := m.authenticate(client); err != nil {
		return err
	}

	return sendMessage(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (m *Mailer) sendSSL(ctx context.Context, addr, from, to, msg string) error {
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	conn, err := (&tls.Dialer{Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s (SSL): %w", addr, err)
	}
	defer conn.Close()
	applyDeadline(ctx, conn)

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := m.authenticate(client); err != nil {
		return err
	}

	return sendMessage(client, from, to, msg)
}

// sendPlain sends email without encryption.
func (m *Mailer) sendPlain(ctx context.Context, addr, from, to, msg string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()
	applyDeadline(ctx, conn)

	client, err := gosmtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := m.authenticate(client); err != nil {
		return err
	}

	return sendMessage(client, from, to, msg)
}

// authenticate performs AUTH PLAIN when a username is configured.
func (m *Mailer) authenticate(client *gosmtp.Client) error {
	if m.cfg.Username == "" {
		return nil
	}
	auth := gosmtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from, to, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// applyDeadline propagates the context deadline to the connection so the
// SMTP dialogue itself cannot outlive the caller's budget.
func applyDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}
