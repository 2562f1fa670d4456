package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/entity"
	"github.com/marquee-app/marquee/web/locale"
	"github.com/marquee-app/marquee/web/middleware"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// IndexController handles the home page, login/logout, the language switch and the
// health check.
type IndexController struct {
	BaseController

	userService service.UserService
	notifier    *service.Notifier
	limiter     *middleware.LoginLimiter
}

func NewIndexController(g *gin.RouterGroup, notifier *service.Notifier, limiter *middleware.LoginLimiter) *IndexController {
	a := &IndexController{notifier: notifier, limiter: limiter}
	a.initRouter(g)
	return a
}

func (a *IndexController) initRouter(g *gin.RouterGroup) {
	g.GET("/", a.index)
	g.GET("/login", a.loginPage)
	g.POST("/login", middleware.RateLimitMiddleware(a.limiter), a.login)
	g.GET("/logout", a.logout)
	g.GET("/lang/:code", a.setLang)
	g.GET("/healthz", a.healthz)
}

func (a *IndexController) index(c *gin.Context) {
	html(c, "home.html", "pages.home.title", nil)
}

func (a *IndexController) loginPage(c *gin.Context) {
	if session.IsLogin(c) {
		c.Redirect(http.StatusSeeOther, "/profile")
		return
	}
	html(c, "login.html", "pages.login.title", gin.H{
		"email":      "",
		"next":       safeNext(c.Query("next"), ""),
		"two_factor": false,
	})
}

func (a *IndexController) login(c *gin.Context) {
	var form entity.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", "/login")
		return
	}
	next := safeNext(form.Next, "/profile")
	ip := getRemoteIp(c)

	user, err := a.userService.CheckUser(c.Request.Context(), form.Email, form.Password, form.TwoFactorCode)
	if err != nil {
		var key string
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			key = "pages.login.toasts.wrongEmailOrPassword"
		case errors.Is(err, service.ErrInactiveUser):
			key = "pages.login.toasts.inactive"
		case errors.Is(err, service.ErrTwoFactorRequired):
			key = "pages.login.toasts.twoFactor"
		default:
			a.serverError(c, err)
			return
		}
		remaining := a.limiter.Fail(c.ClientIP(), form.Email)
		logger.Warningf("failed login for %q from %s (%v, %d attempts left)", form.Email, ip, err, remaining)
		if admin, lookupErr := a.userService.GetUserByEmail(c.Request.Context(), form.Email); lookupErr == nil && admin.IsAdmin() {
			a.notifier.AdminLoginNotify(admin.Email, ip, service.LoginFail)
		}
		htmlStatus(c, http.StatusUnauthorized, "login.html", "pages.login.title", gin.H{
			"email":      form.Email,
			"next":       form.Next,
			"errors":     []string{I18nWeb(c, key)},
			"two_factor": errors.Is(err, service.ErrTwoFactorRequired),
		})
		return
	}

	a.limiter.Reset(c.ClientIP(), form.Email)
	if err := a.startSession(c, user); err != nil {
		a.serverError(c, err)
		return
	}
	logger.Infof("%s logged in successfully, Ip Address: %s", user.Email, ip)
	if user.IsAdmin() {
		a.notifier.AdminLoginNotify(user.Email, ip, service.LoginSuccess)
	}
	a.flashRedirect(c, session.FlashInfo, "pages.login.toasts.successLogin", next)
}

func (a *IndexController) startSession(c *gin.Context, user *model.User) error {
	if err := session.SetMaxAge(c, config.GetSessionMaxAge()*60); err != nil {
		return err
	}
	return session.SetLoginUser(c, user)
}

func (a *IndexController) logout(c *gin.Context) {
	if user := a.currentUser(c); user != nil {
		logger.Infof("%s logged out successfully", user.Email)
	}
	if err := session.ClearSession(c); err != nil {
		logger.Warning("Unable to save session after clearing:", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (a *IndexController) setLang(c *gin.Context) {
	lang := locale.Match(c.Param("code"))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(locale.CookieName, lang, 365*24*3600, "/", "", false, true)

	back := "/"
	if ref := c.GetHeader("Referer"); ref != "" {
		if i := strings.Index(ref, "://"); i >= 0 {
			if j := strings.Index(ref[i+3:], "/"); j >= 0 {
				back = safeNext(ref[i+3+j:], "/")
			}
		}
	}
	c.Redirect(http.StatusSeeOther, back)
}

func (a *IndexController) healthz(c *gin.Context) {
	now, err := database.CurrentTime()
	jsonMsgObj(c, "ok", gin.H{"version": config.GetVersion(), "db_time": now}, err)
}
