// Package i18n serves the localized strings used in user facing messages and emails.
package i18n

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	// Account timezones are resolved without relying on the host zoneinfo.
	_ "time/tzdata"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a requested language has no catalog.
const DefaultLanguage = "en"

//go:embed locales/*.yaml
var embedded embed.FS

type bundle struct {
	DateFormat string            `yaml:"dateformat"`
	Strings    map[string]string `yaml:"strings"`
}

// Catalog holds the strings of every supported language.
type Catalog struct {
	bundles  map[string]bundle
	codes    []string
	matcher  language.Matcher
	fallback string

	mu        sync.Mutex
	templates map[string]*template.Template
}

// Load returns the catalog compiled into the binary.
func Load() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}
	return NewCatalog(sub, DefaultLanguage)
}

// NewCatalog reads every <lang>.yaml file in dir. The fallback language must be present.
func NewCatalog(dir fs.FS, fallback string) (*Catalog, error) {
	entries, err := fs.Glob(dir, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: list catalogs: %w", err)
	}

	c := &Catalog{
		bundles:   make(map[string]bundle, len(entries)),
		fallback:  fallback,
		templates: make(map[string]*template.Template),
	}

	for _, name := range entries {
		raw, err := fs.ReadFile(dir, name)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", name, err)
		}
		var b bundle
		if err := yaml.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", name, err)
		}
		code := strings.TrimSuffix(path.Base(name), path.Ext(name))
		c.bundles[code] = b
	}

	if _, ok := c.bundles[fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback language %q has no catalog", fallback)
	}

	// the matcher falls back to the first tag, so the fallback language leads
	c.codes = append(c.codes, fallback)
	others := make([]string, 0, len(c.bundles))
	for code := range c.bundles {
		if code != fallback {
			others = append(others, code)
		}
	}
	sort.Strings(others)
	c.codes = append(c.codes, others...)

	tags := make([]language.Tag, 0, len(c.codes))
	for _, code := range c.codes {
		tags = append(tags, language.Make(code))
	}
	c.matcher = language.NewMatcher(tags)

	return c, nil
}

// Languages lists the available language codes, fallback first.
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.codes...)
}

// Resolve maps a user language preference (e.g. "de", "de_du", "en-GB") onto a
// supported catalog.
func (c *Catalog) Resolve(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return c.fallback
	}
	if _, ok := c.bundles[lang]; ok {
		return lang
	}

	tag, err := language.Parse(lang)
	if err != nil {
		base := lang
		if i := strings.Index(base, "-"); i > 0 {
			base = base[:i]
		}
		if tag, err = language.Parse(base); err != nil {
			return c.fallback
		}
	}

	_, index, confidence := c.matcher.Match(tag)
	if confidence == language.No {
		return c.fallback
	}
	return c.codes[index]
}

// String returns the raw string for key, falling back to the default language.
// Unknown keys render as [[key]].
func (c *Catalog) String(lang, key string) string {
	if s, ok := c.lookup(c.Resolve(lang), key); ok {
		return s
	}
	return "[[" + key + "]]"
}

func (c *Catalog) lookup(code, key string) (string, bool) {
	if s, ok := c.bundles[code].Strings[key]; ok {
		return s, true
	}
	s, ok := c.bundles[c.fallback].Strings[key]
	return s, ok
}

// Render executes the string for key as a text template with data.
func (c *Catalog) Render(lang, key string, data any) (string, error) {
	code := c.Resolve(lang)
	raw, ok := c.lookup(code, key)
	if !ok {
		return "", fmt.Errorf("i18n: unknown string %q", key)
	}

	tmpl, err := c.template(code+"/"+key, raw)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("i18n: render %q: %w", key, err)
	}
	return buf.String(), nil
}

func (c *Catalog) template(name, raw string) (*template.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tmpl, ok := c.templates[name]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("i18n: parse %q: %w", name, err)
	}
	c.templates[name] = tmpl
	return tmpl, nil
}

// FormatDate renders t as a short date in the language's format and the given
// IANA timezone. An unknown or empty timezone falls back to defaultZone.
func (c *Catalog) FormatDate(lang string, t time.Time, timezone string, defaultZone *time.Location) string {
	loc := defaultZone
	if loc == nil {
		loc = time.UTC
	}
	if zone, err := LoadLocation(timezone); err == nil {
		loc = zone
	}

	layout := c.bundles[c.Resolve(lang)].DateFormat
	if layout == "" {
		layout = c.bundles[c.fallback].DateFormat
	}
	return t.In(loc).Format(layout)
}

// ErrNoTimezone is returned for an empty or server-default timezone value.
var ErrNoTimezone = errors.New("i18n: no timezone")

// LoadLocation resolves an account timezone value. Empty strings and "99"
// (the platform marker for "server timezone") yield ErrNoTimezone.
func LoadLocation(timezone string) (*time.Location, error) {
	timezone = strings.TrimSpace(timezone)
	if timezone == "" || timezone == "99" {
		return nil, ErrNoTimezone
	}
	return time.LoadLocation(timezone)
}
