package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/app"
	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/database"
)

// CheckStatus captures the outcome of a deployment audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService inspects the deployment for settings that weaken the
// invitation signup or make its notifications undeliverable.
type AuditService struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are
// optional; missing inputs degrade specific checks to warnings.
func NewAuditService(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		jwt: jwt,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkEnrolmentEnabled(ctx),
		s.checkJWTSecret(),
		s.checkSiteScheme(),
		s.checkMailDelivery(),
		s.checkNoticeWindow(),
		s.checkSessionTTL(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkEnrolmentEnabled(ctx context.Context) Check {
	const id = "invitation_enrolment_enabled"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm the invitation enrolment state.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	enabled, err := database.SystemSettingEnabled(ctx, s.db, database.EnrolInvitationEnabledSetting)
	if err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not read the invitation enrolment state: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}
	if !enabled {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Invitation enrolment is disabled; every invitation will be rejected.",
			Remediation: fmt.Sprintf("Set the %s system setting to 1.", database.EnrolInvitationEnabledSetting),
		}
	}

	return Check{ID: id, Status: StatusPass, Message: "Invitation enrolment is enabled."}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.jwt == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to assess signing secret strength.",
			Remediation: "Initialise JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()
	switch {
	case length < 32:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < 48:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of AUTHINVITE_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkSiteScheme() Check {
	const id = "site_https"
	if s.cfg == nil {
		return configMissing(id)
	}

	root := strings.TrimSpace(s.cfg.Site.WWWRoot)
	if !strings.HasPrefix(strings.ToLower(root), "https://") {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Site root %q is not served over HTTPS; invitation tokens and passwords travel in clear text.", root),
			Remediation: "Serve the site over HTTPS and update site.www_root.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Site root uses HTTPS."}
}

func (s *AuditService) checkMailDelivery() Check {
	const id = "mail_delivery"
	if s.cfg == nil {
		return configMissing(id)
	}

	inv := s.cfg.Invitation
	var needed []string
	if inv.SendWelcomeEmail {
		needed = append(needed, "welcome emails")
	}
	if inv.AutoDeleteUsers && inv.AutoDeleteUsersNoticeDays > 0 {
		needed = append(needed, "deletion notices")
	}
	if len(needed) == 0 {
		return Check{ID: id, Status: StatusPass, Message: "No notification emails are configured."}
	}

	email := s.cfg.Email
	transport := strings.ToLower(strings.TrimSpace(email.Transport))
	delivering := (transport == "sendgrid" && strings.TrimSpace(email.SendGrid.APIKey) != "") ||
		((transport == "" || transport == "smtp") && email.SMTP.Enabled)
	if !delivering {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Mail delivery is disabled but %s are enabled.", strings.Join(needed, " and ")),
			Remediation: "Enable email.smtp or configure email.sendgrid.api_key.",
			Details:     map[string]any{"transport": transport},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("Mail delivery is configured via %s.", transport)}
}

func (s *AuditService) checkNoticeWindow() Check {
	const id = "deletion_notice_window"
	if s.cfg == nil {
		return configMissing(id)
	}

	inv := s.cfg.Invitation
	if !inv.AutoDeleteUsers {
		return Check{ID: id, Status: StatusPass, Message: "Automatic deletion of inactive users is disabled."}
	}
	if inv.AutoDeleteUsersNoticeDays >= inv.AutoDeleteUsersAfterDays {
		return Check{
			ID:     id,
			Status: StatusWarn,
			Message: fmt.Sprintf("Deletion notices are sent %d days ahead but accounts are deleted after %d days of inactivity; active users will be warned.",
				inv.AutoDeleteUsersNoticeDays, inv.AutoDeleteUsersAfterDays),
			Remediation: "Lower invitation.auto_delete_users_notice_days below invitation.auto_delete_users_after_days.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Inactive accounts are deleted after %d days with %d days notice.", inv.AutoDeleteUsersAfterDays, inv.AutoDeleteUsersNoticeDays),
	}
}

func (s *AuditService) checkSessionTTL() Check {
	const id = "session_refresh_ttl"
	if s.cfg == nil {
		return configMissing(id)
	}

	ttl := s.cfg.Auth.Session.RefreshTTL
	if ttl <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Refresh token TTL is not configured; using default duration.",
			Remediation: "Set AUTHINVITE_AUTH_SESSION_REFRESH_TOKEN_TTL to control session lifetime.",
		}
	}

	const maxRecommended = 30 * 24 * time.Hour
	if ttl > maxRecommended {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommended),
			Remediation: "Reduce refresh token TTL to 30 days or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Refresh token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded, unable to evaluate this check.",
		Remediation: "Load configuration before running the audit.",
	}
}
