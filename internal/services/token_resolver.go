package services

import (
	"net/url"
	"strings"

	"github.com/charlesng35/authinvite/pkg/param"
)

// TokenResolver extracts pending invitation tokens from redirect targets.
type TokenResolver struct {
	// rootPath is the path component of the site root, "" when served at "/".
	rootPath string
	legacy   bool
}

// NewTokenResolver builds a resolver for the site and variant in cfg.
func NewTokenResolver(cfg PluginConfig) TokenResolver {
	var root string
	if parsed, err := url.Parse(strings.TrimSpace(cfg.Site.WWWRoot)); err == nil {
		root = strings.TrimRight(parsed.Path, "/")
	}
	return TokenResolver{rootPath: root, legacy: cfg.LegacySingleEmail}
}

// ResolvePendingToken resolves target for a site served at the domain root.
func ResolvePendingToken(target string, legacy bool) *string {
	return TokenResolver{legacy: legacy}.Resolve(target)
}

// Resolve returns the invitation token of a redirect target pointing at the
// enrolment acceptance page. It returns nil for other paths, rejection links
// (unless running the legacy variant), missing or non-scalar token parameters,
// and tokens that are empty once sanitised.
func (r TokenResolver) Resolve(target string) *string {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return nil
	}
	path := parsed.Path
	if parsed.IsAbs() || r.rootPath != "" && strings.HasPrefix(path, r.rootPath+"/") {
		path = strings.TrimPrefix(path, r.rootPath)
	}
	if path != EnrolInvitationPath {
		return nil
	}

	// malformed pairs are dropped, the rest is still usable
	query, _ := url.ParseQuery(parsed.RawQuery)
	if !r.legacy {
		if _, ok := query["reject"]; ok {
			return nil
		}
	}

	values, ok := query["token"]
	if !ok || len(values) != 1 {
		return nil
	}
	for key := range query {
		// token[]=x or token[0]=x arrive as array parameters
		if strings.HasPrefix(key, "token[") {
			return nil
		}
	}

	token := param.Alphanum(values[0])
	if token == "" {
		return nil
	}
	return &token
}
