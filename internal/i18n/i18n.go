// Package i18n localizes user-facing API messages.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// ContextKeyLocalizer is the Gin context key for the request localizer.
const ContextKeyLocalizer = "localizer"

// Bundle holds the loaded message catalogs.
type Bundle struct {
	bundle        *goi18n.Bundle
	defaultLocale string
}

// New loads the embedded catalogs. defaultLocale is used when the client
// expresses no usable preference.
func New(defaultLocale string) (*Bundle, error) {
	if _, err := language.Parse(defaultLocale); err != nil {
		return nil, fmt.Errorf("parse default locale %q: %w", defaultLocale, err)
	}
	b := goi18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, file := range []string{"locales/en.json", "locales/id.json"} {
		if _, err := b.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return &Bundle{bundle: b, defaultLocale: defaultLocale}, nil
}

// Localizer returns a localizer that prefers the given languages, then the
// default locale.
func (b *Bundle) Localizer(langs ...string) *goi18n.Localizer {
	return goi18n.NewLocalizer(b.bundle, append(langs, b.defaultLocale)...)
}

// Tags lists the languages with a loaded catalog.
func (b *Bundle) Tags() []language.Tag {
	return b.bundle.LanguageTags()
}

// Middleware resolves the request language from ?lang= or Accept-Language.
func (b *Bundle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyLocalizer, b.Localizer(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// FromContext returns the request localizer, or nil when the middleware is
// not installed.
func FromContext(c *gin.Context) *goi18n.Localizer {
	val, ok := c.Get(ContextKeyLocalizer)
	if !ok {
		return nil
	}
	l, _ := val.(*goi18n.Localizer)
	return l
}

// Translate localizes messageID, returning fallback when no catalog has it.
func Translate(l *goi18n.Localizer, messageID, fallback string) string {
	if l == nil {
		return fallback
	}
	msg, err := l.Localize(&goi18n.LocalizeConfig{MessageID: messageID})
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}
