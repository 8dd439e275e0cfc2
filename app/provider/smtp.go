package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

const smtpDialTimeout = 30 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope sender; Source the From header.
	From   string
	Source string
}

type SMTPProvider struct {
	cfg      SMTPConfig
	preparer preparer.EmailPreparer
}

// NewSMTPProvider builds a provider that delivers through an SMTP relay
// (STARTTLS on submission ports, implicit TLS on 465).
func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{
		cfg:      cfg,
		preparer: preparer.NewChain(preparer.NewRawPreparer(cfg.Source)),
	}
}

// Send renders msg and runs one SMTP transaction for it.
func (p *SMTPProvider) Send(ctx context.Context, msg preparer.Message) error {
	raw, err := p.preparer.Prepare(ctx, msg)
	if err != nil {
		return fmt.Errorf("prepare email content: %w", err)
	}

	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(p.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return client.Quit()
}

// Verify connects and authenticates without sending anything.
func (p *SMTPProvider) Verify(ctx context.Context) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (p *SMTPProvider) dial(ctx context.Context) (*smtp.Client, error) {
	if p.cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	tlsCfg := &tls.Config{ServerName: p.cfg.Host}
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if p.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(tlsCfg); err != nil {
			c.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if p.cfg.Username != "" && p.cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)); err != nil {
			c.Close()
			return nil, fmt.Errorf("SMTP auth: %w", err)
		}
	}
	return c, nil
}
