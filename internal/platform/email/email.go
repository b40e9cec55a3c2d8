// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

// Package email provides outbound transactional email delivery.
//
// # Architecture
//
// Services depend on the [Sender] interface only. Production wiring uses
// [SMTPSender] (STARTTLS when the server offers it); development and tests
// use [LogSender], which writes the message to the structured log instead
// of the network.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Message is a single plain-text transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers transactional emails.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// # SMTP Delivery

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender creates a production SMTP sender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

/*
Send delivers a single message through the configured relay.

It upgrades the connection with STARTTLS when the server advertises it and
authenticates with PLAIN auth when credentials are configured. The context
deadline bounds the dial; defaults to 15 seconds when no deadline is set.

Parameters:
  - ctx: context.Context controlling the dial timeout
  - message: the message to deliver

Returns:
  - error: wrapped transport error, or nil on success
*/
func (s *SMTPSender) Send(ctx context.Context, message Message) error {
	if strings.TrimSpace(message.To) == "" {
		return fmt.Errorf("email_send_failed: missing recipient")
	}

	var dialer net.Dialer
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Timeout = time.Until(deadline)
		if dialer.Timeout <= 0 {
			dialer.Timeout = 10 * time.Second
		}
	} else {
		dialer.Timeout = 15 * time.Second
	}

	address := fmt.Sprintf("%s:%d", s.host, s.port)
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("email_send_failed: dial: %w", err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email_send_failed: handshake: %w", err)
	}
	defer client.Quit()

	// Upgrade to TLS when the server supports it
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("email_send_failed: starttls: %w", err)
		}
	}

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("email_send_failed: auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("email_send_failed: mail from: %w", err)
	}
	if err := client.Rcpt(strings.TrimSpace(message.To)); err != nil {
		return fmt.Errorf("email_send_failed: rcpt to: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("email_send_failed: data: %w", err)
	}
	if _, err := writer.Write(buildMessage(s.from, message)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("email_send_failed: write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("email_send_failed: close data: %w", err)
	}
	return nil
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from string, message Message) []byte {
	var builder strings.Builder
	builder.WriteString("From: " + from + "\r\n")
	builder.WriteString("To: " + message.To + "\r\n")
	builder.WriteString("Subject: " + message.Subject + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(message.Body)
	return []byte(builder.String())
}

// # Development Delivery

// LogSender writes outbound email to the structured log instead of the network.
// Used in development and tests so no SMTP relay is required.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message at INFO level and always succeeds.
func (s *LogSender) Send(ctx context.Context, message Message) error {
	s.logger.InfoContext(ctx, "email_logged_instead_of_sent",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}
