package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/validator"
)

// PluginConfig validates the site and invitation sections and converts them
// into the immutable value handed to every invitation component.
func (c *Config) PluginConfig() (services.PluginConfig, error) {
	if c == nil {
		return services.PluginConfig{}, errors.New("config is nil")
	}
	if err := validator.ValidateStruct(c.Site); err != nil {
		return services.PluginConfig{}, fmt.Errorf("config: site: %w", err)
	}
	if err := validator.ValidateStruct(c.Invitation); err != nil {
		return services.PluginConfig{}, fmt.Errorf("config: invitation: %w", err)
	}

	loc, err := siteLocation(c.Site.Timezone)
	if err != nil {
		return services.PluginConfig{}, err
	}

	inv := c.Invitation
	return services.PluginConfig{
		AssignedRoles:             inv.AssignedRoles,
		AllowedEmailPatterns:      inv.AllowedEmailPatterns,
		ProhibitedEmailPatterns:   inv.ProhibitedEmailPatterns,
		AutoDeleteUsers:           inv.AutoDeleteUsers,
		AutoDeleteUsersAfterDays:  inv.AutoDeleteUsersAfterDays,
		AutoDeleteUsersNoticeDays: inv.AutoDeleteUsersNoticeDays,
		SendWelcomeEmail:          inv.SendWelcomeEmail,
		GenerateUsername:          inv.GenerateUsername,
		UsernamePrefix:            strings.TrimSpace(inv.UsernamePrefix),
		ConfirmPasswordOnSignup:   inv.ConfirmPasswordOnSignup,
		RedirectToSignup:          inv.RedirectToSignup,
		ProhibitedEmailLoginError: inv.ProhibitedEmailLoginError,
		ShowCityFieldOnSignup:     inv.ShowCityFieldOnSignup,
		ShowCountryFieldOnSignup:  inv.ShowCountryFieldOnSignup,
		LegacySingleEmail:         inv.LegacySingleEmail,
		AllowMismatchingEmails:    inv.AllowMismatchingEmails,
		Site: services.SiteConfig{
			FullName:        strings.TrimSpace(c.Site.FullName),
			ShortName:       strings.TrimSpace(c.Site.ShortName),
			WWWRoot:         strings.TrimRight(strings.TrimSpace(c.Site.WWWRoot), "/"),
			DefaultTimezone: loc,
			DefaultLang:     strings.TrimSpace(c.Site.DefaultLang),
			Signoff:         strings.TrimSpace(c.Email.Signoff),
			NoReplyAddress:  strings.TrimSpace(c.Email.NoReplyAddress),
		},
	}, nil
}

func siteLocation(timezone string) (*time.Location, error) {
	loc, err := i18n.LoadLocation(timezone)
	switch {
	case errors.Is(err, i18n.ErrNoTimezone):
		return time.UTC, nil
	case err != nil:
		return nil, fmt.Errorf("config: site.timezone %q: %w", timezone, err)
	}
	return loc, nil
}
