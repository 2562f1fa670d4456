package middleware

import (
	"net/http"
	"net/url"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// LoadUser resolves the session's user id into the request user. Sessions pointing at a
// deleted or deactivated account are cleared.
func LoadUser() gin.HandlerFunc {
	userService := service.UserService{}
	return func(c *gin.Context) {
		id := session.GetLoginUserId(c)
		if id == 0 {
			c.Next()
			return
		}
		user, err := userService.GetUserById(c.Request.Context(), id)
		switch {
		case err == nil && user.IsActive:
			session.SetContextUser(c, user)
		case err == nil || database.IsNotFound(err):
			logger.Infof("dropping session of unavailable user %d", id)
			_ = session.ClearSession(c)
		default:
			logger.Warning("load session user failed:", err)
		}
		c.Next()
	}
}

// LoginURL is the login page that returns to next after a successful login.
func LoginURL(next string) string {
	if next == "" || next == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

// LoginRequired sends anonymous visitors to the login page.
func LoginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !session.IsLogin(c) {
			c.Redirect(http.StatusSeeOther, LoginURL(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}
