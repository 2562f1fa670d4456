package controller

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/job"
	"github.com/marquee-app/marquee/web/middleware"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

const dashboardLogLines = 30

// AdminController serves the dashboard and mounts the user and movie admin pages.
type AdminController struct {
	BaseController

	userService   service.UserService
	movieService  *service.MovieService
	serverService *service.ServerService
	enrichJob     *job.EnrichMoviesJob

	userAdminController  *UserAdminController
	movieAdminController *MovieAdminController
}

// NewAdminController registers /admin. enrichJob may be nil when enrichment is disabled.
func NewAdminController(g *gin.RouterGroup, movieService *service.MovieService, serverService *service.ServerService, enrichJob *job.EnrichMoviesJob) *AdminController {
	a := &AdminController{
		movieService:  movieService,
		serverService: serverService,
		enrichJob:     enrichJob,
	}
	a.initRouter(g)
	return a
}

func (a *AdminController) initRouter(g *gin.RouterGroup) {
	g = g.Group("/admin")
	g.Use(middleware.RoleRequired(model.RoleAdmin))

	g.GET("/", a.dashboard)
	g.POST("/enrich", a.enrichNow)

	a.userAdminController = NewUserAdminController(g)
	a.movieAdminController = NewMovieAdminController(g, a.movieService)
}

func (a *AdminController) dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := a.userService.CountUsers(ctx)
	if err != nil {
		a.serverError(c, err)
		return
	}
	active, err := a.userService.CountActiveUsers(ctx)
	if err != nil {
		a.serverError(c, err)
		return
	}
	stats, err := a.movieService.GetConsolidationStats(ctx)
	if err != nil {
		a.serverError(c, err)
		return
	}

	data := gin.H{
		"user_count":         users,
		"active_user_count":  active,
		"movie_stats":        stats,
		"enrichment_enabled": a.movieService.EnrichmentEnabled(),
		"status":             a.serverService.GetStatus(),
		"logs":               a.serverService.GetLogs(c.DefaultQuery("logs", strconv.Itoa(dashboardLogLines)), c.DefaultQuery("level", "info")),
	}
	if a.enrichJob != nil {
		data["job_stats"] = a.enrichJob.Stats()
	}
	html(c, "admin_dashboard.html", "pages.admin.dashboard.title", data)
}

// enrichNow starts one enrichment batch in the background.
func (a *AdminController) enrichNow(c *gin.Context) {
	if a.enrichJob == nil {
		a.flashRedirect(c, session.FlashError, "pages.admin.dashboard.enrichDisabled", "/admin/")
		return
	}
	if a.enrichJob.Stats().Running {
		a.flashRedirect(c, session.FlashError, "pages.admin.dashboard.enrichRunning", "/admin/")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := a.enrichJob.RunOnce(ctx, 0); err != nil && !errors.Is(err, job.ErrAlreadyRunning) {
			logger.Warning("manual enrichment failed:", err)
		}
	}()
	a.flashRedirect(c, session.FlashInfo, "pages.admin.dashboard.enrichStarted", "/admin/")
}
