package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSettings configure delivery through the SendGrid v3 API.
type SendGridSettings struct {
	APIKey   string
	From     string
	FromName string
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

type sendGridMailer struct {
	cfg    SendGridSettings
	client sendGridClient
}

// NewSendGridMailer returns a Mailer posting messages to the SendGrid API.
func NewSendGridMailer(cfg SendGridSettings) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: api key is required")
	}
	return &sendGridMailer{
		cfg:    cfg,
		client: sendgrid.NewSendClient(cfg.APIKey),
	}, nil
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	if ctx == nil {
		ctx = context.Background()
	}

	from, recipients, err := resolveEnvelope(msg, m.cfg.From)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}

	payload, err := m.buildMail(from, recipients, msg)
	if err != nil {
		return err
	}

	response, err := m.client.SendWithContext(ctx, payload)
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

func (m *sendGridMailer) buildMail(from string, recipients []string, msg Message) (*sgmail.SGMailV3, error) {
	sender, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("sendgrid: invalid from address: %w", err)
	}
	name := sender.Name
	if name == "" {
		name = m.cfg.FromName
	}

	personalization := sgmail.NewPersonalization()
	for _, rcpt := range recipients {
		addr, err := netmail.ParseAddress(rcpt)
		if err != nil {
			return nil, fmt.Errorf("sendgrid: invalid recipient address %q: %w", rcpt, err)
		}
		personalization.AddTos(sgmail.NewEmail(addr.Name, addr.Address))
	}

	payload := sgmail.NewV3Mail()
	payload.SetFrom(sgmail.NewEmail(name, sender.Address))
	payload.Subject = escapeHeader(msg.Subject)
	payload.AddPersonalizations(personalization)
	payload.AddContent(sgmail.NewContent("text/plain", msg.Body))
	if strings.TrimSpace(msg.HTMLBody) != "" {
		payload.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	}
	return payload, nil
}
