package app

import (
	"strings"

	"github.com/charlesng35/authinvite/pkg/mail"
)

// MailSettings converts EmailConfig to the mail package representation. The
// no-reply address doubles as sender when a transport has none configured.
func (c EmailConfig) MailSettings() mail.Settings {
	smtpFrom := strings.TrimSpace(c.SMTP.From)
	if smtpFrom == "" {
		smtpFrom = strings.TrimSpace(c.NoReplyAddress)
	}
	sendGridFrom := strings.TrimSpace(c.SendGrid.From)
	if sendGridFrom == "" {
		sendGridFrom = strings.TrimSpace(c.NoReplyAddress)
	}

	return mail.Settings{
		Transport: strings.ToLower(strings.TrimSpace(c.Transport)),
		SMTP: mail.SMTPSettings{
			Enabled:  c.SMTP.Enabled,
			Host:     c.SMTP.Host,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			From:     smtpFrom,
			UseTLS:   c.SMTP.UseTLS,
			Timeout:  c.SMTP.Timeout,
		},
		SendGrid: mail.SendGridSettings{
			APIKey:   strings.TrimSpace(c.SendGrid.APIKey),
			From:     sendGridFrom,
			FromName: c.SendGrid.FromName,
		},
	}
}
