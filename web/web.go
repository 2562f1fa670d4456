// Package web provides the Marquee HTTP server: routing, templates, static assets and the
// background jobs that keep the catalog seeded and enriched.
package web

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/omdb"
	"github.com/marquee-app/marquee/util/common"
	"github.com/marquee-app/marquee/util/random"
	"github.com/marquee-app/marquee/web/controller"
	"github.com/marquee-app/marquee/web/job"
	"github.com/marquee-app/marquee/web/locale"
	"github.com/marquee-app/marquee/web/middleware"
	"github.com/marquee-app/marquee/web/network"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

//go:embed assets
var assetsFS embed.FS

//go:embed html/*
var htmlFS embed.FS

//go:embed translation/*
var i18nFS embed.FS

var startTime = time.Now()

type wrapAssetsFS struct {
	embed.FS
}

func (f *wrapAssetsFS) Open(name string) (fs.File, error) {
	file, err := f.FS.Open("assets/" + name)
	if err != nil {
		return nil, err
	}
	return &wrapAssetsFile{File: file}, nil
}

type wrapAssetsFile struct {
	fs.File
}

func (f *wrapAssetsFile) Stat() (fs.FileInfo, error) {
	info, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	return &wrapAssetsFileInfo{FileInfo: info}, nil
}

// embedded files carry a zero mod time; use the process start so caches revalidate per release
type wrapAssetsFileInfo struct {
	fs.FileInfo
}

func (f *wrapAssetsFileInfo) ModTime() time.Time {
	return startTime
}

// Server wires the controllers, services and scheduled jobs of the catalog.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	index *controller.IndexController
	user  *controller.UserController
	movie *controller.MovieController
	admin *controller.AdminController

	movieService  *service.MovieService
	serverService *service.ServerService
	seedService   service.SeedService
	notifier      *service.Notifier
	limiter       *middleware.LoginLimiter

	enrichJob  *job.EnrichMoviesJob
	csvWatcher *job.CsvWatcher
	cron       *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds a server from the environment configuration.
func NewServer() *Server {
	var lookup service.MetadataLookup
	if key := config.GetOmdbAPIKey(); key != "" {
		lookup = omdb.NewClient(key, omdb.WithBaseURL(config.GetOmdbBaseURL()))
	} else {
		logger.Info("OMDB_API_KEY not set, catalog enrichment disabled")
	}

	notifier, err := service.NewNotifier(config.GetTgBotToken(), config.GetTgChatIds())
	if err != nil {
		logger.Warning("telegram notifier disabled:", err)
		notifier = &service.Notifier{}
	}
	return newServer(lookup, notifier)
}

// newServer takes the collaborators that talk to the outside world so tests can fake them.
func newServer(lookup service.MetadataLookup, notifier *service.Notifier) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		movieService:  service.NewMovieService(lookup, config.GetOmdbRefreshAge()),
		serverService: &service.ServerService{},
		notifier:      notifier,
		limiter:       middleware.NewLoginLimiter(middleware.DefaultRateLimitConfig()),
		ctx:           ctx,
		cancel:        cancel,
	}
	if s.movieService.EnrichmentEnabled() {
		s.enrichJob = job.NewEnrichMoviesJob(s.movieService, notifier, config.GetEnrichBatch())
	}
	return s
}

// getHtmlFiles walks the local `web/html` directory. Used only in debug mode so templates
// can be edited without a rebuild.
func (s *Server) getHtmlFiles() ([]string, error) {
	files := make([]string, 0)
	dir, _ := os.Getwd()
	err := fs.WalkDir(os.DirFS(dir), "web/html", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// getHtmlTemplate parses the embedded templates.
func (s *Server) getHtmlTemplate(funcMap template.FuncMap) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(htmlFS, "html/*.html")
}

func (s *Server) sessionSecret() []byte {
	secret := config.GetSecretKey()
	if secret == "" {
		logger.Warning("MARQUEE_SECRET_KEY not set, sessions will not survive a restart")
		secret = random.Seq(32)
	}
	return []byte(secret)
}

// initRouter initializes Gin, registers middleware, templates, static assets and
// controllers and returns the configured engine.
func (s *Server) initRouter() (*gin.Engine, error) {
	if config.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
		gin.SetMode(gin.ReleaseMode)
	}

	if err := locale.InitLocalizer(i18nFS, config.GetDefaultLang()); err != nil {
		return nil, err
	}

	engine := gin.Default()

	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedExtensions([]string{".png"})))

	store := cookie.NewStore(s.sessionSecret())
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   config.GetSessionMaxAge() * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	engine.Use(sessions.Sessions(session.CookieName, store))
	engine.Use(locale.LocalizerMiddleware())
	engine.Use(middleware.LoadUser())

	funcMap := templateFuncs()
	engine.SetFuncMap(funcMap)

	if config.IsDebug() {
		files, err := s.getHtmlFiles()
		if err != nil {
			return nil, err
		}
		engine.LoadHTMLFiles(files...)
		engine.StaticFS("/assets", http.FS(os.DirFS("web/assets")))
	} else {
		tpl, err := s.getHtmlTemplate(funcMap)
		if err != nil {
			return nil, err
		}
		engine.SetHTMLTemplate(tpl)
		engine.StaticFS("/assets", http.FS(&wrapAssetsFS{FS: assetsFS}))
	}

	g := engine.Group("/")
	s.index = controller.NewIndexController(g, s.notifier, s.limiter)
	s.user = controller.NewUserController(g, s.notifier, s.index)
	s.movie = controller.NewMovieController(g, s.movieService)
	s.admin = controller.NewAdminController(g, s.movieService, s.serverService, s.enrichJob)

	engine.NoRoute(controller.NotFound)

	return engine, nil
}

// seedAtStartup loads the configured CSV when it exists. Re-seeding is an upsert, so a
// restart never duplicates rows.
func (s *Server) seedAtStartup() {
	path := config.GetCSVPath()
	if _, err := os.Stat(path); err != nil {
		logger.Infof("no catalog CSV at %s, skipping seed", path)
		return
	}
	n, err := s.seedService.SeedMoviesFromCSV(s.ctx, path)
	if err != nil {
		logger.Error("seed catalog failed:", err)
		return
	}
	logger.Infof("seeded %d catalog rows from %s", n, path)
}

// startTask seeds the catalog and schedules the enrichment job and the CSV watcher.
func (s *Server) startTask() {
	go s.seedAtStartup()

	if s.enrichJob != nil {
		spec := config.GetEnrichCron()
		if _, err := s.cron.AddJob(spec, s.enrichJob); err != nil {
			logger.Warningf("invalid enrichment schedule %q: %v", spec, err)
		} else {
			logger.Infof("OMDB enrichment scheduled at %s", spec)
		}
	}

	if config.IsSeedWatchEnabled() {
		s.csvWatcher = job.NewCsvWatcher(config.GetCSVPath(), 0)
		if err := s.csvWatcher.Start(); err != nil {
			logger.Warning("catalog watcher disabled:", err)
			s.csvWatcher = nil
		}
	}
}

func (s *Server) listen() (net.Listener, error) {
	listenAddr := net.JoinHostPort(config.GetListen(), strconv.Itoa(config.GetPort()))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	certFile, keyFile := config.GetCertFile(), config.GetKeyFile()
	if certFile == "" && keyFile == "" {
		logger.Info("Web server running HTTP on", listener.Addr())
		return listener, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		logger.Error("Error loading certificates:", err)
		logger.Info("Web server running HTTP on", listener.Addr())
		return listener, nil
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	listener = tls.NewListener(network.NewRedirectListener(listener), cfg)
	logger.Info("Web server running HTTPS on", listener.Addr())
	return listener, nil
}

// Start initializes and starts the web server.
func (s *Server) Start() (err error) {
	defer func() {
		if err != nil {
			_ = s.Stop()
		}
	}()

	s.cron = cron.New(cron.WithLocation(time.UTC))
	s.cron.Start()

	engine, err := s.initRouter()
	if err != nil {
		return err
	}

	listener, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped:", err)
		}
	}()

	s.startTask()
	return nil
}

// Stop shuts down the HTTP server, the scheduled jobs and the CSV watcher.
func (s *Server) Stop() error {
	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.csvWatcher != nil {
		s.csvWatcher.Stop()
	}
	var err1, err2 error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err1 = s.httpServer.Shutdown(ctx)
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			err2 = err
		}
	}
	return common.Combine(err1, err2)
}
