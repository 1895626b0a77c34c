package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration of the authinvite server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Site        SiteSettings      `mapstructure:"site"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Invitation  InvitationConfig  `mapstructure:"invitation"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles the login and signup endpoints per client.
// Requests <= 0 disables throttling. Store selects "memory" or "database"
// counters; the latter is shared between instances.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Store    string        `mapstructure:"store"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens and session lifetimes.
type SessionSettings struct {
	RefreshTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength   int           `mapstructure:"refresh_token_length"`
	ConcurrentLimit int           `mapstructure:"concurrent_limit"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	Transport      string         `mapstructure:"transport"`
	NoReplyAddress string         `mapstructure:"no_reply_address"`
	Signoff        string         `mapstructure:"signoff"`
	SMTP           SMTPConfig     `mapstructure:"smtp"`
	SendGrid       SendGridConfig `mapstructure:"sendgrid"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SendGridConfig configures the SendGrid API transport.
type SendGridConfig struct {
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// SiteSettings describes the site the plugin serves.
type SiteSettings struct {
	FullName    string `mapstructure:"full_name"`
	ShortName   string `mapstructure:"short_name"`
	WWWRoot     string `mapstructure:"www_root" validate:"required,url"`
	Timezone    string `mapstructure:"timezone"`
	DefaultLang string `mapstructure:"default_lang" validate:"required"`
}

// InvitationConfig holds the plugin settings. Key names follow the plugin's
// setting names.
type InvitationConfig struct {
	AssignedRoles             string `mapstructure:"assigned_roles"`
	AllowedEmailPatterns      string `mapstructure:"allowed_email_patterns"`
	ProhibitedEmailPatterns   string `mapstructure:"prohibited_email_patterns"`
	AutoDeleteUsers           bool   `mapstructure:"auto_delete_users"`
	AutoDeleteUsersAfterDays  int    `mapstructure:"auto_delete_users_after_days" validate:"gte=1"`
	AutoDeleteUsersNoticeDays int    `mapstructure:"auto_delete_users_notice_days" validate:"gte=0"`
	SendWelcomeEmail          bool   `mapstructure:"send_welcome_email"`
	GenerateUsername          bool   `mapstructure:"generate_username"`
	UsernamePrefix            string `mapstructure:"username_prefix" validate:"omitempty,max=80"`
	ConfirmPasswordOnSignup   bool   `mapstructure:"confirm_password_on_signup"`
	RedirectToSignup          bool   `mapstructure:"redirect_to_signup"`
	ProhibitedEmailLoginError bool   `mapstructure:"prohibited_email_login_error"`
	ShowCityFieldOnSignup     bool   `mapstructure:"show_city_field_on_signup"`
	ShowCountryFieldOnSignup  bool   `mapstructure:"show_country_field_on_signup"`
	LegacySingleEmail         bool   `mapstructure:"legacy_single_email"`
	AllowMismatchingEmails    bool   `mapstructure:"allow_mismatching_emails"`
	LifecycleSchedule         string `mapstructure:"lifecycle_schedule"`
}

// MaintenanceConfig controls background housekeeping.
type MaintenanceConfig struct {
	EventRetentionDays int    `mapstructure:"event_retention_days"`
	SessionSchedule    string `mapstructure:"session_schedule"`
	EventSchedule      string `mapstructure:"event_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHINVITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.rate_limit.requests", 20)
	v.SetDefault("server.rate_limit.window", "1m")
	v.SetDefault("server.rate_limit.store", "memory")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/authinvite.sqlite")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "authinvite")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.refresh_token_length", 48)
	v.SetDefault("auth.session.concurrent_limit", 0)

	v.SetDefault("email.transport", "smtp")
	v.SetDefault("email.no_reply_address", "noreply@localhost")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("site.full_name", "authinvite")
	v.SetDefault("site.short_name", "authinvite")
	v.SetDefault("site.www_root", "http://localhost:8000")
	v.SetDefault("site.timezone", "UTC")
	v.SetDefault("site.default_lang", "en")

	v.SetDefault("invitation.assigned_roles", "")
	v.SetDefault("invitation.allowed_email_patterns", "*")
	v.SetDefault("invitation.prohibited_email_patterns", "")
	v.SetDefault("invitation.auto_delete_users", false)
	v.SetDefault("invitation.auto_delete_users_after_days", 180)
	v.SetDefault("invitation.auto_delete_users_notice_days", 14)
	v.SetDefault("invitation.send_welcome_email", false)
	v.SetDefault("invitation.generate_username", false)
	v.SetDefault("invitation.username_prefix", "inviteduser")
	v.SetDefault("invitation.confirm_password_on_signup", false)
	v.SetDefault("invitation.redirect_to_signup", false)
	v.SetDefault("invitation.prohibited_email_login_error", false)
	v.SetDefault("invitation.show_city_field_on_signup", true)
	v.SetDefault("invitation.show_country_field_on_signup", true)
	v.SetDefault("invitation.legacy_single_email", false)
	v.SetDefault("invitation.allow_mismatching_emails", false)
	v.SetDefault("invitation.lifecycle_schedule", "@daily")

	v.SetDefault("maintenance.event_retention_days", 365)
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.event_schedule", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
