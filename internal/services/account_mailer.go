package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/mail"
	"github.com/charlesng35/authinvite/pkg/metrics"
)

// Mail template identifiers, also used as metric labels.
const (
	MailWelcome        = "welcome"
	MailDeletionNotice = "deletion_notice"
	MailAccountDeleted = "account_deleted"
)

// AccountMailData holds the placeholders available to account email strings.
type AccountMailData struct {
	FirstName      string
	LastName       string
	FullName       string
	SiteFullName   string
	SiteShortName  string
	WWWRoot        string
	LoginURL       string
	Admin          string
	DeletionAfter  string
	DeletionInDays int
}

// AccountMailer sends localized account emails in each recipient's language.
type AccountMailer struct {
	mailer  mail.Mailer
	catalog *i18n.Catalog
	site    SiteConfig
	log     *zap.Logger
}

// NewAccountMailer constructs an AccountMailer.
func NewAccountMailer(mailer mail.Mailer, catalog *i18n.Catalog, site SiteConfig) (*AccountMailer, error) {
	if mailer == nil {
		return nil, errors.New("account mailer: mailer is required")
	}
	if catalog == nil {
		return nil, errors.New("account mailer: catalog is required")
	}
	return &AccountMailer{
		mailer:  mailer,
		catalog: catalog,
		site:    site,
		log:     logger.WithModule("mail"),
	}, nil
}

// SendWelcome tells a freshly registered user how to log in.
func (m *AccountMailer) SendWelcome(ctx context.Context, user *models.User) error {
	return m.send(ctx, user, MailWelcome, "welcomeemailsubject", "welcomeemail", m.commonData(user))
}

// SendDeletionNotice warns user that the account is removed at deletionTime
// unless they log in. The quoted date is the last day they can do so.
func (m *AccountMailer) SendDeletionNotice(ctx context.Context, user *models.User, deletionTime time.Time, noticeDays int) error {
	data := m.commonData(user)
	data.DeletionAfter = m.catalog.FormatDate(user.Lang, deletionTime.Add(-24*time.Hour), user.Timezone, m.site.Location())
	data.DeletionInDays = noticeDays
	return m.send(ctx, user, MailDeletionNotice, "accountdeletionnoticesubject", "accountdeletionnotice", data)
}

// SendAccountDeleted confirms an automatic deletion. user must carry the
// address from before the deletion.
func (m *AccountMailer) SendAccountDeleted(ctx context.Context, user *models.User) error {
	return m.send(ctx, user, MailAccountDeleted, "accountdeletedsubject", "accountdeleted", m.commonData(user))
}

func (m *AccountMailer) commonData(user *models.User) AccountMailData {
	admin := m.site.Signoff
	if admin == "" {
		admin = m.site.FullName
	}
	return AccountMailData{
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		FullName:      user.FullName(),
		SiteFullName:  m.site.FullName,
		SiteShortName: m.site.ShortName,
		WWWRoot:       m.site.WWWRoot,
		LoginURL:      m.site.URL(LoginPath),
		Admin:         admin,
	}
}

func (m *AccountMailer) send(ctx context.Context, user *models.User, template, subjectKey, bodyKey string, data AccountMailData) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.EmailsSent.WithLabelValues(template, result).Inc()
	}()

	if user == nil || user.Email == "" {
		return errors.New("account mailer: recipient has no email address")
	}

	subject, err := m.catalog.Render(user.Lang, subjectKey, data)
	if err != nil {
		return fmt.Errorf("account mailer: %s subject: %w", template, err)
	}
	body, err := m.catalog.Render(user.Lang, bodyKey, data)
	if err != nil {
		return fmt.Errorf("account mailer: %s body: %w", template, err)
	}

	msg := mail.Message{
		From:     m.site.NoReplyAddress,
		To:       []string{user.Email},
		Subject:  subject,
		Body:     body,
		HTMLBody: mail.TextToHTML(body),
	}
	if err := m.mailer.Send(ensureContext(ctx), msg); err != nil {
		m.log.Debug("mail delivery failed",
			zap.String("template", template),
			zap.Uint("user_id", user.ID),
			zap.Error(err),
		)
		return fmt.Errorf("account mailer: send %s: %w", template, err)
	}
	return nil
}
