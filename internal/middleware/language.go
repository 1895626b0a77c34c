package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/charlesng35/authinvite/pkg/i18n"
)

// CtxLanguageKey holds the negotiated catalog language.
const CtxLanguageKey = "language"

// Language negotiates the response language. An explicit ?lang= wins over the
// Accept-Language header; anything unsupported falls back to fallback.
func Language(catalog *i18n.Catalog, fallback string) gin.HandlerFunc {
	codes := catalog.Languages()
	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		tags = append(tags, language.Make(code))
	}
	matcher := language.NewMatcher(tags)
	fallback = catalog.Resolve(fallback)

	return func(c *gin.Context) {
		lang := fallback
		if explicit := strings.TrimSpace(c.Query("lang")); explicit != "" {
			lang = catalog.Resolve(explicit)
		} else if header := c.GetHeader("Accept-Language"); header != "" {
			if accepted, _, err := language.ParseAcceptLanguage(header); err == nil && len(accepted) > 0 {
				if _, index, confidence := matcher.Match(accepted...); confidence != language.No {
					lang = codes[index]
				}
			}
		}

		c.Set(CtxLanguageKey, lang)
		c.Next()
	}
}

// LanguageFrom returns the negotiated language, empty when Language did not run.
func LanguageFrom(c *gin.Context) string {
	return c.GetString(CtxLanguageKey)
}
