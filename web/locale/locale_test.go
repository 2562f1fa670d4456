package locale

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"translation/translate.fr_FR.toml": {Data: []byte(`
[pages.home]
"title" = "Accueil"
"hello" = "Bonjour {{.name}}"
`)},
		"translation/translate.en_US.toml": {Data: []byte(`
[pages.home]
"title" = "Home"
`)},
	}
}

func TestInitLocalizer(t *testing.T) {
	require.NoError(t, InitLocalizer(testFS(), "fr-FR"))

	assert.Equal(t, []string{"fr-FR", "en-US"}, Languages())
	assert.Equal(t, "Accueil", Tr("fr-FR", "pages.home.title"))
	assert.Equal(t, "Home", Tr("en-US", "pages.home.title"))
	assert.Equal(t, "Bonjour Ana", Tr("fr-FR", "pages.home.hello", "name==Ana"))
	// missing keys fall back to the default language, then to the key itself
	assert.Equal(t, "Bonjour Ana", Tr("en-US", "pages.home.hello", "name==Ana"))
	assert.Equal(t, "pages.nope", Tr("en-US", "pages.nope"))
	assert.Equal(t, "Accueil", Tr("de-DE", "pages.home.title"))
}

func TestTrFallsBackToDefaultLanguage(t *testing.T) {
	require.NoError(t, InitLocalizer(testFS(), "fr-FR"))
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(LocalizerMiddleware())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, T(c, "pages.home.hello", "name==Ana"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-US")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "Bonjour Ana", w.Body.String())
}

func TestMatch(t *testing.T) {
	require.NoError(t, InitLocalizer(testFS(), "fr-FR"))

	assert.Equal(t, "fr-FR", Match())
	assert.Equal(t, "en-US", Match("en-GB,en;q=0.9"))
	assert.Equal(t, "fr-FR", Match("fr-CA"))
	assert.Equal(t, "fr-FR", Match("ja-JP"))
	assert.Equal(t, "en-US", Match("en-US", "fr-FR"))
}

func TestLocalizerMiddleware(t *testing.T) {
	require.NoError(t, InitLocalizer(testFS(), "fr-FR"))
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(LocalizerMiddleware())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, T(c, "pages.home.title"))
	})

	tests := []struct {
		name   string
		cookie string
		accept string
		want   string
	}{
		{"default", "", "", "Accueil"},
		{"accept language", "", "en-US", "Home"},
		{"cookie wins", "fr-FR", "en-US", "Accueil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}
