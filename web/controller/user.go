package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/util/crypto"
	"github.com/marquee-app/marquee/web/entity"
	"github.com/marquee-app/marquee/web/middleware"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// UserController serves registration and the self-service profile pages.
type UserController struct {
	BaseController

	userService service.UserService
	notifier    *service.Notifier
	index       *IndexController
}

func NewUserController(g *gin.RouterGroup, notifier *service.Notifier, index *IndexController) *UserController {
	a := &UserController{notifier: notifier, index: index}
	a.initRouter(g)
	return a
}

func (a *UserController) initRouter(g *gin.RouterGroup) {
	g.GET("/register", a.registerPage)
	g.POST("/register", a.register)

	profile := g.Group("/profile")
	profile.Use(middleware.LoginRequired())
	{
		profile.GET("", a.profilePage)
		profile.POST("", a.updateProfile)
		profile.POST("/2fa/setup", a.setupTwoFactor)
		profile.GET("/2fa/qr.png", a.twoFactorQRCode)
		profile.POST("/2fa/enable", a.enableTwoFactor)
		profile.POST("/2fa/disable", a.disableTwoFactor)
	}
}

func (a *UserController) registerPage(c *gin.Context) {
	if session.IsLogin(c) {
		c.Redirect(http.StatusSeeOther, "/profile")
		return
	}
	html(c, "register.html", "pages.register.title", gin.H{
		"form": entity.RegisterForm{},
	})
}

func (a *UserController) register(c *gin.Context) {
	var form entity.RegisterForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", "/register")
		return
	}

	user, err := a.userService.CreateUser(c.Request.Context(), service.NewUser{
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
		IsActive:  true,
	})
	if err != nil {
		var key string
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			key = "pages.register.toasts.emailTaken"
		case errors.Is(err, service.ErrEmailRequired):
			key = "pages.register.toasts.emailRequired"
		case errors.Is(err, service.ErrPasswordRequired):
			key = "pages.register.toasts.passwordRequired"
		default:
			a.serverError(c, err)
			return
		}
		htmlStatus(c, http.StatusUnprocessableEntity, "register.html", "pages.register.title", gin.H{
			"form":   form,
			"errors": []string{I18nWeb(c, key)},
		})
		return
	}

	a.notifier.RegistrationNotify(user.Email, getRemoteIp(c))
	if err := a.index.startSession(c, user); err != nil {
		a.serverError(c, err)
		return
	}
	a.flashRedirect(c, session.FlashInfo, "pages.register.toasts.success", "/profile")
}

func (a *UserController) profilePage(c *gin.Context) {
	html(c, "profile.html", "pages.profile.title", gin.H{
		"pending_secret": session.GetPendingSecret(c),
	})
}

func optionalString(s string) *string {
	return &s
}

func (a *UserController) updateProfile(c *gin.Context) {
	user := a.currentUser(c)
	var form entity.ProfileForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", "/profile")
		return
	}

	update := service.UserUpdate{
		FirstName:             optionalString(form.FirstName),
		LastName:              optionalString(form.LastName),
		Age:                   entity.OptionalInt(form.Age),
		Gender:                optionalString(form.Gender),
		Country:               optionalString(form.Country),
		StateProvince:         optionalString(form.StateProvince),
		City:                  optionalString(form.City),
		SubscriptionPlan:      optionalString(form.SubscriptionPlan),
		SubscriptionStartDate: optionalString(form.SubscriptionStartDate),
		MonthlySpend:          entity.OptionalFloat(form.MonthlySpend),
		PrimaryDevice:         optionalString(form.PrimaryDevice),
		HouseholdSize:         entity.OptionalInt(form.HouseholdSize),
	}
	if form.Password != "" {
		update.Password = &form.Password
	}
	for column, value := range map[string]string{
		"age":            form.Age,
		"monthly_spend":  form.MonthlySpend,
		"household_size": form.HouseholdSize,
	} {
		if strings.TrimSpace(value) == "" {
			update.Clear = append(update.Clear, column)
		}
	}
	if _, err := a.userService.UpdateUser(c.Request.Context(), user.Id, update); err != nil {
		a.serverError(c, err)
		return
	}
	logger.Infof("user %d updated their profile", user.Id)
	a.flashRedirect(c, session.FlashInfo, "pages.profile.toasts.saved", "/profile")
}

func (a *UserController) setupTwoFactor(c *gin.Context) {
	if a.currentUser(c).HasTwoFactor() {
		a.flashRedirect(c, session.FlashError, "pages.profile.toasts.twoFactorAlreadyOn", "/profile")
		return
	}
	if err := session.SetPendingSecret(c, crypto.NewTwoFactorSecret()); err != nil {
		a.serverError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/profile#two-factor")
}

func (a *UserController) twoFactorQRCode(c *gin.Context) {
	secret := session.GetPendingSecret(c)
	if secret == "" {
		a.notFound(c)
		return
	}
	png, err := crypto.TwoFactorQRCode(secret, a.currentUser(c).Email)
	if err != nil {
		a.serverError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (a *UserController) enableTwoFactor(c *gin.Context) {
	secret := session.GetPendingSecret(c)
	if secret == "" {
		a.flashRedirect(c, session.FlashError, "pages.profile.toasts.twoFactorNoSetup", "/profile")
		return
	}
	user := a.currentUser(c)
	err := a.userService.EnableTwoFactor(c.Request.Context(), user.Id, secret, c.PostForm("code"))
	if errors.Is(err, service.ErrTwoFactorRequired) {
		a.flashRedirect(c, session.FlashError, "pages.profile.toasts.twoFactorBadCode", "/profile#two-factor")
		return
	} else if err != nil {
		a.serverError(c, err)
		return
	}
	if err := session.ClearPendingSecret(c); err != nil {
		logger.Warning("Unable to save session:", err)
	}
	logger.Infof("user %d enabled two-factor login", user.Id)
	a.flashRedirect(c, session.FlashInfo, "pages.profile.toasts.twoFactorOn", "/profile")
}

func (a *UserController) disableTwoFactor(c *gin.Context) {
	user := a.currentUser(c)
	err := a.userService.DisableTwoFactor(c.Request.Context(), user.Id, c.PostForm("code"))
	if errors.Is(err, service.ErrTwoFactorRequired) {
		a.flashRedirect(c, session.FlashError, "pages.profile.toasts.twoFactorBadCode", "/profile#two-factor")
		return
	} else if err != nil {
		a.serverError(c, err)
		return
	}
	logger.Infof("user %d disabled two-factor login", user.Id)
	a.flashRedirect(c, session.FlashInfo, "pages.profile.toasts.twoFactorOff", "/profile")
}
