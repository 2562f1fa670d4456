package middleware

import (
	"net/http"

	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/locale"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// RoleRequired lets through users holding one of roles. Anonymous visitors go to the login
// page with a return address; logged-in users without the role get an "access denied"
// flash on the login page.
func RoleRequired(roles ...model.Role) gin.HandlerFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		user := session.GetLoginUser(c)
		if user == nil {
			c.Redirect(http.StatusSeeOther, LoginURL(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		if !allowed[user.Role] {
			logger.Warningf("user %d (%s) denied access to %s", user.Id, user.Role, c.Request.URL.Path)
			session.AddFlash(c, session.FlashError, locale.T(c, "flash.accessDenied"))
			_ = session.Save(c)
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}
