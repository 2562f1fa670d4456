// Package controller holds the gin handlers of the catalog: public pages, account pages
// and the admin panel.
package controller

import (
	"net/http"

	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/locale"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// BaseController provides the helpers every page controller shares.
type BaseController struct{}

// I18nWeb translates name into the request language.
func I18nWeb(c *gin.Context, name string, params ...string) string {
	return locale.T(c, name, params...)
}

func (a *BaseController) currentUser(c *gin.Context) *model.User {
	return session.GetLoginUser(c)
}

// flashRedirect queues a flash message and redirects with 303 so the browser issues a GET.
func (a *BaseController) flashRedirect(c *gin.Context, category session.FlashCategory, key, location string) {
	if key != "" {
		session.AddFlash(c, category, I18nWeb(c, key))
	}
	if err := session.Save(c); err != nil {
		logger.Warning("Unable to save session:", err)
	}
	c.Redirect(http.StatusSeeOther, location)
}

// notFound renders the shared error page with a 404.
func (a *BaseController) notFound(c *gin.Context) {
	htmlStatus(c, http.StatusNotFound, "error.html", "pages.error.notFound", gin.H{
		"message": I18nWeb(c, "pages.error.notFound"),
	})
}

// serverError logs err and renders the generic error page.
func (a *BaseController) serverError(c *gin.Context, err error) {
	logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	htmlStatus(c, http.StatusInternalServerError, "error.html", "pages.error.title", gin.H{
		"message": I18nWeb(c, "pages.error.generic"),
	})
}

// NotFound is the engine's NoRoute handler.
func NotFound(c *gin.Context) {
	(&BaseController{}).notFound(c)
}
