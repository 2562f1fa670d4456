package controller

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/omdb"
	"github.com/marquee-app/marquee/web/entity"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// MovieAdminController manages the catalog from the admin panel.
type MovieAdminController struct {
	BaseController

	movieService *service.MovieService
}

func NewMovieAdminController(g *gin.RouterGroup, movieService *service.MovieService) *MovieAdminController {
	a := &MovieAdminController{movieService: movieService}
	a.initRouter(g)
	return a
}

func (a *MovieAdminController) initRouter(g *gin.RouterGroup) {
	g = g.Group("/movies")

	g.GET("", a.list)
	g.GET("/new", a.newPage)
	g.POST("/new", a.create)
	g.GET("/:id/edit", a.editPage)
	g.POST("/:id/edit", a.update)
	g.POST("/:id/delete", a.delete)
	g.POST("/:id/refresh", a.refresh)
}

func (a *MovieAdminController) list(c *gin.Context) {
	q := c.Query("q")
	movies, page, err := a.movieService.ListMovies(c.Request.Context(), q, pageFromQuery(c))
	if err != nil {
		a.serverError(c, err)
		return
	}
	html(c, "admin_movies.html", "pages.admin.movies.title", gin.H{
		"movies":             movies,
		"page":               page,
		"q":                  q,
		"enrichment_enabled": a.movieService.EnrichmentEnabled(),
	})
}

func (a *MovieAdminController) newPage(c *gin.Context) {
	html(c, "admin_movie_form.html", "pages.admin.movies.new", gin.H{
		"form":  entity.MovieForm{Type: model.TypeMovie},
		"types": []string{model.TypeMovie, model.TypeTVShow},
	})
}

func (a *MovieAdminController) renderForm(c *gin.Context, title string, form entity.MovieForm, editId string, err error) {
	var key string
	switch {
	case errors.Is(err, service.ErrTitleRequired):
		key = "pages.admin.movies.titleRequired"
	case errors.Is(err, service.ErrShowIdTaken):
		key = "pages.admin.movies.showIdTaken"
	default:
		a.serverError(c, err)
		return
	}
	htmlStatus(c, http.StatusUnprocessableEntity, "admin_movie_form.html", title, gin.H{
		"form":    form,
		"edit_id": editId,
		"types":   []string{model.TypeMovie, model.TypeTVShow},
		"errors":  []string{I18nWeb(c, key)},
	})
}

func (a *MovieAdminController) create(c *gin.Context) {
	var form entity.MovieForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", "/admin/movies/new")
		return
	}
	movie, err := a.movieService.CreateMovie(c.Request.Context(), form)
	if err != nil {
		a.renderForm(c, "pages.admin.movies.new", form, "", err)
		return
	}
	logger.Infof("admin %d created movie %s", a.currentUser(c).Id, movie.ShowId)
	a.flashRedirect(c, session.FlashInfo, "pages.admin.movies.created", "/admin/movies")
}

func (a *MovieAdminController) loadTarget(c *gin.Context) (*model.Movie, bool) {
	movie, err := a.movieService.GetMovieById(c.Request.Context(), c.Param("id"))
	if database.IsNotFound(err) {
		a.notFound(c)
		return nil, false
	} else if err != nil {
		a.serverError(c, err)
		return nil, false
	}
	return movie, true
}

func (a *MovieAdminController) editPage(c *gin.Context) {
	movie, ok := a.loadTarget(c)
	if !ok {
		return
	}
	year := ""
	if movie.ReleaseYear > 0 {
		year = strconv.Itoa(movie.ReleaseYear)
	}
	html(c, "admin_movie_form.html", "pages.admin.movies.edit", gin.H{
		"edit_id":            movie.ShowId,
		"movie":              movie,
		"types":              []string{model.TypeMovie, model.TypeTVShow},
		"enrichment_enabled": a.movieService.EnrichmentEnabled(),
		"form": entity.MovieForm{
			ShowId:      movie.ShowId,
			Type:        movie.Type,
			Title:       movie.Title,
			Director:    movie.Director,
			Cast:        movie.Cast,
			Country:     movie.Country,
			DateAdded:   movie.DateAdded,
			ReleaseYear: year,
			Rating:      movie.Rating,
			Duration:    movie.Duration,
			ListedIn:    movie.ListedIn,
			Description: movie.Description,
		},
	})
}

func (a *MovieAdminController) update(c *gin.Context) {
	showId := c.Param("id")
	var form entity.MovieForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", c.Request.URL.Path)
		return
	}
	form.ShowId = showId
	_, err := a.movieService.UpdateMovie(c.Request.Context(), showId, form)
	if database.IsNotFound(err) {
		a.notFound(c)
		return
	} else if err != nil {
		a.renderForm(c, "pages.admin.movies.edit", form, showId, err)
		return
	}
	logger.Infof("admin %d updated movie %s", a.currentUser(c).Id, showId)
	a.flashRedirect(c, session.FlashInfo, "pages.admin.movies.updated", "/admin/movies")
}

func (a *MovieAdminController) delete(c *gin.Context) {
	movie, ok := a.loadTarget(c)
	if !ok {
		return
	}
	if err := a.movieService.DeleteMovie(c.Request.Context(), movie.ShowId); err != nil {
		a.serverError(c, err)
		return
	}
	logger.Infof("admin %d deleted movie %s", a.currentUser(c).Id, movie.ShowId)
	a.flashRedirect(c, session.FlashInfo, "pages.admin.movies.deleted", "/admin/movies")
}

func (a *MovieAdminController) refresh(c *gin.Context) {
	showId := c.Param("id")
	_, deleted, err := a.movieService.RefreshMovie(c.Request.Context(), showId)
	switch {
	case errors.Is(err, omdb.ErrNoAPIKey):
		a.flashRedirect(c, session.FlashError, "pages.admin.dashboard.enrichDisabled", "/admin/movies")
	case database.IsNotFound(err):
		a.notFound(c)
	case deleted:
		a.flashRedirect(c, session.FlashInfo, "pages.admin.movies.refreshRemoved", "/admin/movies")
	case err != nil:
		logger.Warningf("refresh %s failed: %v", showId, err)
		a.flashRedirect(c, session.FlashError, "pages.admin.movies.refreshFailed", "/admin/movies/"+url.PathEscape(showId)+"/edit")
	default:
		a.flashRedirect(c, session.FlashInfo, "pages.admin.movies.refreshed", "/admin/movies/"+url.PathEscape(showId)+"/edit")
	}
}
