// Package mail delivers outbound email over SMTP or the SendGrid API.
package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrSMTPDisabled signals that email delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message represents an outbound email. HTMLBody is optional and sent as an
// alternative part to Body.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings capture the runtime configuration required by the SMTP mailer.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type smtpSendFunc func(ctx context.Context, msg *gomail.Msg) error

type smtpMailer struct {
	cfg    SMTPSettings
	sendFn smtpSendFunc
}

// NewSMTPMailer validates cfg and returns a go-mail backed Mailer. A disabled
// configuration yields a mailer that always returns ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if err := validateSMTPConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	m := &smtpMailer{cfg: cfg}
	if !cfg.Enabled {
		return m, nil
	}

	client, err := gomail.NewClient(cfg.Host, smtpOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("smtp: new client: %w", err)
	}
	m.sendFn = func(ctx context.Context, msg *gomail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}
	return m, nil
}

func smtpOptions(cfg SMTPSettings) []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
	}

	if strings.TrimSpace(cfg.Username) != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	if cfg.UseTLS {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	return opts
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	from, recipients, err := resolveEnvelope(msg, m.cfg.From)
	if err != nil {
		return fmt.Errorf("smtp: %w", err)
	}

	out, err := buildMessage(from, recipients, msg)
	if err != nil {
		return err
	}

	if err := m.sendFn(ctx, out); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

func buildMessage(from string, recipients []string, msg Message) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.From(from); err != nil {
		return nil, fmt.Errorf("smtp: from header: %w", err)
	}
	if err := out.To(recipients...); err != nil {
		return nil, fmt.Errorf("smtp: to header: %w", err)
	}
	out.Subject(escapeHeader(msg.Subject))
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)
	if strings.TrimSpace(msg.HTMLBody) != "" {
		out.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	}
	return out, nil
}

// resolveEnvelope picks the sender and the de-duplicated recipients and checks
// that every address parses.
func resolveEnvelope(msg Message, defaultFrom string) (string, []string, error) {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return "", nil, errors.New("at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(defaultFrom)
	}
	if from == "" {
		return "", nil, errors.New("sender address is required")
	}

	if _, err := netmail.ParseAddress(from); err != nil {
		return "", nil, fmt.Errorf("invalid from address: %w", err)
	}

	for _, rcpt := range recipients {
		if _, err := netmail.ParseAddress(rcpt); err != nil {
			return "", nil, fmt.Errorf("invalid recipient address %q: %w", rcpt, err)
		}
	}
	return from, recipients, nil
}

func validateSMTPConfig(cfg SMTPSettings) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return errors.New("smtp: host is required when enabled")
	}
	if cfg.Port == 0 {
		return errors.New("smtp: port is required when enabled")
	}
	return nil
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
