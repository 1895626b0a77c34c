package services

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/charlesng35/authinvite/pkg/emailpattern"
)

// Fixed site paths used in redirects and emails.
const (
	EnrolInvitationPath = "/enrol/invitation/enrol.php"
	SignupPath          = "/auth/invitation/signup.php"
	PostSignupPath      = "/auth/invitation/postsignup.php"
	LoginPath           = "/login/index.php"
)

// SiteConfig describes the installation the plugin runs in.
type SiteConfig struct {
	FullName        string
	ShortName       string
	WWWRoot         string
	DefaultTimezone *time.Location
	DefaultLang     string
	// Signoff closes outgoing emails, usually the support contact.
	Signoff        string
	NoReplyAddress string
}

// URL joins path onto the site root.
func (s SiteConfig) URL(path string) string {
	return strings.TrimRight(s.WWWRoot, "/") + path
}

// LocalURL returns target as an absolute URL when it points inside the site
// root. Root-relative paths are resolved against the site root. Anything else,
// including other hosts and schemes, reports false.
func (s SiteConfig) LocalURL(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" || strings.Contains(target, "\\") {
		return "", false
	}
	root, err := url.Parse(strings.TrimRight(s.WWWRoot, "/"))
	if err != nil || root.Host == "" {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil || u.User != nil {
		return "", false
	}

	switch {
	case u.Scheme == "" && u.Host == "":
		if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(target, "//") {
			return "", false
		}
		u.Path = root.Path + u.Path
	case strings.EqualFold(u.Scheme, root.Scheme) && strings.EqualFold(u.Host, root.Host):
	default:
		return "", false
	}

	cleaned := path.Clean("/" + u.Path)
	if root.Path != "" && cleaned != root.Path && !strings.HasPrefix(cleaned, root.Path+"/") {
		return "", false
	}

	u.Scheme = root.Scheme
	u.Host = root.Host
	u.Path = cleaned
	u.RawPath = ""
	return u.String(), true
}

// Location returns the default timezone, UTC when unset.
func (s SiteConfig) Location() *time.Location {
	if s.DefaultTimezone == nil {
		return time.UTC
	}
	return s.DefaultTimezone
}

// PluginConfig is the immutable plugin configuration. It is built once from
// the application config and passed by value into every component.
type PluginConfig struct {
	AssignedRoles           string
	AllowedEmailPatterns    string
	ProhibitedEmailPatterns string

	AutoDeleteUsers           bool
	AutoDeleteUsersAfterDays  int
	AutoDeleteUsersNoticeDays int

	SendWelcomeEmail          bool
	GenerateUsername          bool
	UsernamePrefix            string
	ConfirmPasswordOnSignup   bool
	RedirectToSignup          bool
	ProhibitedEmailLoginError bool
	ShowCityFieldOnSignup     bool
	ShowCountryFieldOnSignup  bool

	// AllowMismatchingEmails tells invitees they may log in with an account
	// that uses a different address than the invitation.
	AllowMismatchingEmails bool

	// LegacySingleEmail restores the older token resolution that ignores rejection links.
	LegacySingleEmail bool

	Site SiteConfig
}

// DefaultPluginConfig mirrors the plugin's out-of-the-box settings.
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		AllowedEmailPatterns:      "*",
		AutoDeleteUsersAfterDays:  180,
		AutoDeleteUsersNoticeDays: 14,
		UsernamePrefix:            "inviteduser",
		ShowCityFieldOnSignup:     true,
		ShowCountryFieldOnSignup:  true,
		Site: SiteConfig{
			DefaultLang: "en",
		},
	}
}

// EmailPolicy compiles the allow/deny pattern lists.
func (c PluginConfig) EmailPolicy() emailpattern.Policy {
	return emailpattern.NewPolicy(c.AllowedEmailPatterns, c.ProhibitedEmailPatterns)
}

// RoleList returns the configured role ids, trimmed and without blanks.
func (c PluginConfig) RoleList() []string {
	return splitList(c.AssignedRoles)
}

// DeleteAfter is the inactivity period after which accounts are removed.
func (c PluginConfig) DeleteAfter() time.Duration {
	return days(c.AutoDeleteUsersAfterDays)
}

// NoticePeriod is how long before deletion users are warned. Zero disables notices.
func (c PluginConfig) NoticePeriod() time.Duration {
	return days(c.AutoDeleteUsersNoticeDays)
}

func days(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * 24 * time.Hour
}
