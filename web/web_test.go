package web

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/omdb"
	"github.com/marquee-app/marquee/web/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	mu      sync.Mutex
	results map[string]*omdb.Result
}

func (s *stubLookup) Lookup(_ context.Context, title string, _ int, _ omdb.Kind) (*omdb.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.results[title]; ok {
		return r, nil
	}
	return nil, omdb.ErrNotFound
}

type testApp struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func newTestApp(t *testing.T, lookup service.MetadataLookup) *testApp {
	t.Helper()
	t.Setenv("MARQUEE_ADMIN_EMAIL", "")
	t.Setenv("MARQUEE_SECRET_KEY", "test-secret-key-for-cookies-0123")
	t.Setenv("MARQUEE_DEBUG", "")
	require.NoError(t, database.InitDB(config.NewSQLiteConfig(filepath.Join(t.TempDir(), "web.db"))))
	t.Cleanup(func() { _ = database.CloseDB() })

	s := newServer(lookup, &service.Notifier{})
	engine, err := s.initRouter()
	require.NoError(t, err)

	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return &testApp{t: t, server: ts, client: newClient(t)}
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) do(c *http.Client, method, path string, form url.Values, header ...string) (*http.Response, string) {
	a.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, a.server.URL+path, body)
	require.NoError(a.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := c.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, string(b)
}

func (a *testApp) get(path string, header ...string) (*http.Response, string) {
	return a.do(a.client, http.MethodGet, path, nil, header...)
}

func (a *testApp) post(path string, form url.Values) (*http.Response, string) {
	return a.do(a.client, http.MethodPost, path, form)
}

func (a *testApp) createUser(email, password string, role model.Role) *model.User {
	a.t.Helper()
	userService := service.UserService{}
	user, err := userService.CreateUser(context.Background(), service.NewUser{
		Email:    email,
		Password: password,
		Role:     role,
		IsActive: true,
	})
	require.NoError(a.t, err)
	return user
}

func (a *testApp) login(email, password string) {
	a.t.Helper()
	resp, _ := a.post("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := app.get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, config.GetVersion())
}

func TestHomeLanguage(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := app.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Bienvenue sur Marquee")

	_, body = app.get("/", "Accept-Language", "en-US,en;q=0.8")
	assert.Contains(t, body, "Welcome to Marquee")

	resp, _ = app.get("/lang/en-US")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get("/")
	assert.Contains(t, body, "Welcome to Marquee")
}

func TestRegisterAndProfile(t *testing.T) {
	app := newTestApp(t, nil)

	resp, _ := app.post("/register", url.Values{
		"email":      {"new@example.com"},
		"password":   {"pw-123456"},
		"first_name": {"Nina"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/profile", resp.Header.Get("Location"))

	resp, body := app.get("/profile")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Compte créé")
	assert.Contains(t, body, "Nina")

	// flashes are shown once
	_, body = app.get("/profile")
	assert.NotContains(t, body, "Compte créé")

	resp, _ = app.post("/profile", url.Values{"city": {"Lyon"}, "age": {"33"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get("/profile")
	assert.Contains(t, body, "Profil enregistré.")
	assert.Contains(t, body, `value="Lyon"`)
	assert.Contains(t, body, `value="33"`)

	// a blank number clears the stored value
	resp, _ = app.post("/profile", url.Values{"city": {"Lyon"}, "age": {""}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get("/profile")
	assert.Contains(t, body, `value="Lyon"`)
	assert.NotContains(t, body, `value="33"`)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser("taken@example.com", "pw", model.RoleUser)

	resp, body := app.post("/register", url.Values{
		"email":    {"TAKEN@example.com"},
		"password": {"pw"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Cet email est déjà utilisé.")
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser("ana@example.com", "right-pw", model.RoleUser)

	resp, body := app.post("/login", url.Values{"email": {"ana@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Email ou mot de passe invalide.")

	resp, _ = app.post("/login", url.Values{
		"email":    {"ana@example.com"},
		"password": {"right-pw"},
		"next":     {"/movies?page=2"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/movies?page=2", resp.Header.Get("Location"))

	resp, _ = app.get("/logout")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = app.get("/profile")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fprofile", resp.Header.Get("Location"))
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser("ana@example.com", "pw", model.RoleUser)

	resp, _ := app.post("/login", url.Values{
		"email":    {"ana@example.com"},
		"password": {"pw"},
		"next":     {"//evil.example/steal"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/profile", resp.Header.Get("Location"))
}

func TestLoginRateLimit(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser("ana@example.com", "pw", model.RoleUser)

	bad := url.Values{"email": {"ana@example.com"}, "password": {"nope"}}
	for i := 0; i < 5; i++ {
		resp, _ := app.post("/login", bad)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// even the right password is refused until the window passes
	resp, _ := app.post("/login", url.Values{"email": {"ana@example.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	_, body := app.get("/login")
	assert.Contains(t, body, "Trop de tentatives")
}

func TestAdminAccess(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser("user@example.com", "pw", model.RoleUser)
	app.createUser("admin@example.com", "pw", model.RoleAdmin)

	resp, _ := app.get("/admin/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fadmin%2F", resp.Header.Get("Location"))

	app.login("user@example.com", "pw")
	resp, _ = app.get("/admin/users")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	// logged-in visitors bounce from /login to their profile, where the flash shows
	resp, _ = app.get("/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := app.get("/profile")
	assert.Contains(t, body, "Accès refusé.")

	admin := newClient(t)
	resp, _ = app.do(admin, http.MethodPost, "/login", url.Values{"email": {"admin@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, body = app.do(admin, http.MethodGet, "/admin/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Tableau de bord")
	resp, body = app.do(admin, http.MethodGet, "/admin/users?q=user", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "user@example.com")
	assert.NotContains(t, body, "admin@example.com</td>")
}

func TestAdminCannotDeleteSelf(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.createUser("admin@example.com", "pw", model.RoleAdmin)
	app.login("admin@example.com", "pw")

	resp, _ := app.post("/admin/users/"+strconv.Itoa(admin.Id)+"/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := app.get("/admin/users")
	assert.Contains(t, body, "Vous ne pouvez pas supprimer votre propre compte.")

	userService := service.UserService{}
	_, err := userService.GetUserById(context.Background(), admin.Id)
	assert.NoError(t, err)
}

func TestCatalogFlow(t *testing.T) {
	rating := 8.1
	lookup := &stubLookup{results: map[string]*omdb.Result{
		"Known Film": {Title: "Known Film", ImdbRating: &rating},
		"Night Show": {Title: "Night Show"},
	}}
	app := newTestApp(t, lookup)
	app.createUser("admin@example.com", "pw", model.RoleAdmin)
	app.login("admin@example.com", "pw")

	for _, title := range []string{"Known Film", "Ghost Film"} {
		resp, _ := app.post("/admin/movies/new", url.Values{
			"title":        {title},
			"type":         {model.TypeMovie},
			"release_year": {"2020"},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	resp, body := app.get("/movies")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Known Film")
	assert.Contains(t, body, "IMDb 8.1")
	// OMDB does not know it, so consolidation removed it
	assert.NotContains(t, body, "Ghost Film")

	resp, _ = app.post("/admin/movies/new", url.Values{
		"show_id":      {"tv1"},
		"title":        {"Night Show"},
		"type":         {model.TypeTVShow},
		"release_year": {"2021"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, body = app.get("/movies/tv1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Série · 2021")

	resp, _ = app.get("/movies/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = app.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminMovieValidation(t *testing.T) {
	app := newTestApp(t, nil)
	app.createUser("admin@example.com", "pw", model.RoleAdmin)
	app.login("admin@example.com", "pw")

	resp, body := app.post("/admin/movies/new", url.Values{"title": {"  "}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Le titre est obligatoire.")

	resp, _ = app.post("/admin/movies/s1/refresh", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get("/admin/movies")
	assert.Contains(t, body, "désactivé")
}

func TestAssetsServed(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := app.get("/assets/css/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ".topbar")
}
