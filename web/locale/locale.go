// Package locale loads the TOML translation files and picks the language of each request.
package locale

import (
	"io/fs"
	"strings"
	"sync"

	"github.com/marquee-app/marquee/logger"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

const (
	CookieName = "lang"
	contextKey = "lang"
)

var (
	mu         sync.RWMutex
	bundle     *i18n.Bundle
	tags       []language.Tag
	matcher    language.Matcher
	localizers map[string]*i18n.Localizer
	defaultTag language.Tag
)

// InitLocalizer parses every file under "translation" in fsys. defaultLang is used when a
// request names no supported language and as the fallback for missing keys.
func InitLocalizer(fsys fs.FS, defaultLang string) error {
	def, err := language.Parse(defaultLang)
	if err != nil {
		def = language.French
	}

	b := i18n.NewBundle(def)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	if err := parseTranslationFiles(fsys, b); err != nil {
		return err
	}

	// the default language comes first so the matcher falls back to it
	supported := []language.Tag{def}
	for _, tag := range b.LanguageTags() {
		if tag != def {
			supported = append(supported, tag)
		}
	}
	locs := make(map[string]*i18n.Localizer, len(supported))
	for _, tag := range supported {
		locs[tag.String()] = i18n.NewLocalizer(b, tag.String(), def.String())
	}

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	tags = supported
	matcher = language.NewMatcher(supported)
	localizers = locs
	defaultTag = def
	return nil
}

func parseTranslationFiles(fsys fs.FS, b *i18n.Bundle) error {
	return fs.WalkDir(fsys, "translation", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		_, err = b.ParseMessageFileBytes(data, path)
		return err
	})
}

// Languages lists the supported language tags, default first.
func Languages() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}

// Match returns the supported language closest to the given preferences (cookie values
// or Accept-Language headers).
func Match(prefs ...string) string {
	mu.RLock()
	defer mu.RUnlock()
	if matcher == nil {
		return ""
	}
	_, index := language.MatchStrings(matcher, prefs...)
	return tags[index].String()
}

func createTemplateData(params []string) map[string]any {
	templateData := make(map[string]any, len(params))
	for _, param := range params {
		parts := strings.SplitN(param, "==", 2)
		if len(parts) == 2 {
			templateData[parts[0]] = parts[1]
		}
	}
	return templateData
}

// Tr translates key into lang. Params are "name==value" pairs for the message template.
// Unknown keys come back unchanged.
func Tr(lang, key string, params ...string) string {
	mu.RLock()
	localizer, ok := localizers[lang]
	if !ok {
		localizer = localizers[defaultTag.String()]
	}
	mu.RUnlock()
	if localizer == nil {
		return key
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: createTemplateData(params),
	})
	if err != nil {
		logger.Debugf("Failed to localize message %q: %v", key, err)
	}
	// go-i18n reports the default-language fallback together with an error
	if msg == "" {
		return key
	}
	return msg
}

// LocalizerMiddleware stores the request language: the "lang" cookie when it names a
// supported language, otherwise the best match for Accept-Language.
func LocalizerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var prefs []string
		if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
			prefs = append(prefs, cookie)
		}
		if accept := c.GetHeader("Accept-Language"); accept != "" {
			prefs = append(prefs, accept)
		}
		c.Set(contextKey, Match(prefs...))
		c.Next()
	}
}

// Lang returns the language chosen for the request.
func Lang(c *gin.Context) string {
	return c.GetString(contextKey)
}

// T translates key into the request language.
func T(c *gin.Context, key string, params ...string) string {
	return Tr(Lang(c), key, params...)
}
