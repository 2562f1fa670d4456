package controller

import (
	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/web/service"

	"github.com/gin-gonic/gin"
)

// MovieController serves the public catalog pages.
type MovieController struct {
	BaseController

	movieService *service.MovieService
}

func NewMovieController(g *gin.RouterGroup, movieService *service.MovieService) *MovieController {
	a := &MovieController{movieService: movieService}
	a.initRouter(g)
	return a
}

func (a *MovieController) initRouter(g *gin.RouterGroup) {
	g = g.Group("/movies")

	g.GET("", a.list)
	g.GET("/:id", a.detail)
}

func (a *MovieController) list(c *gin.Context) {
	movies, page, err := a.movieService.GetMoviesPaginated(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		a.serverError(c, err)
		return
	}
	html(c, "movies.html", "pages.movies.title", gin.H{
		"movies": movies,
		"page":   page,
	})
}

func (a *MovieController) detail(c *gin.Context) {
	movie, err := a.movieService.GetConsolidatedMovie(c.Request.Context(), c.Param("id"))
	if database.IsNotFound(err) {
		a.notFound(c)
		return
	} else if err != nil {
		a.serverError(c, err)
		return
	}
	html(c, "movie.html", "pages.movie.title", gin.H{
		"movie": movie,
	})
}
