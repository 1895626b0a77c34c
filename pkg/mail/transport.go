package mail

import (
	"fmt"
	"html"
	"strings"
)

// Transport names accepted by New.
const (
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
)

// Settings select and configure a delivery transport.
type Settings struct {
	Transport string
	SMTP      SMTPSettings
	SendGrid  SendGridSettings
}

// New builds the Mailer for the configured transport. An empty transport
// defaults to SMTP.
func New(cfg Settings) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportSMTP:
		return NewSMTPMailer(cfg.SMTP)
	case TransportSendGrid:
		return NewSendGridMailer(cfg.SendGrid)
	default:
		return nil, fmt.Errorf("mail: unsupported transport %q", cfg.Transport)
	}
}

// TextToHTML renders a plain text body as HTML, keeping line breaks.
func TextToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(html.EscapeString(text), "\n")
	return "<div>" + strings.Join(lines, "<br />\n") + "</div>"
}
