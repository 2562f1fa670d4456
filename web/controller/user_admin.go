package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/entity"
	"github.com/marquee-app/marquee/web/service"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// UserAdminController manages accounts from the admin panel.
type UserAdminController struct {
	BaseController

	userService service.UserService
}

func NewUserAdminController(g *gin.RouterGroup) *UserAdminController {
	a := &UserAdminController{}
	a.initRouter(g)
	return a
}

func (a *UserAdminController) initRouter(g *gin.RouterGroup) {
	g = g.Group("/users")

	g.GET("", a.list)
	g.GET("/new", a.newPage)
	g.POST("/new", a.create)
	g.GET("/:id/edit", a.editPage)
	g.POST("/:id/edit", a.update)
	g.POST("/:id/delete", a.delete)
}

func (a *UserAdminController) list(c *gin.Context) {
	q := c.Query("q")
	users, page, err := a.userService.ListUsers(c.Request.Context(), q, pageFromQuery(c))
	if err != nil {
		a.serverError(c, err)
		return
	}
	html(c, "admin_users.html", "pages.admin.users.title", gin.H{
		"users": users,
		"page":  page,
		"q":     q,
	})
}

func (a *UserAdminController) newPage(c *gin.Context) {
	html(c, "admin_user_form.html", "pages.admin.users.new", gin.H{
		"form": entity.AdminUserForm{Role: string(model.RoleUser), IsActive: "on"},
	})
}

func userErrorKey(err error) string {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		return "pages.register.toasts.emailTaken"
	case errors.Is(err, service.ErrEmailRequired):
		return "pages.register.toasts.emailRequired"
	case errors.Is(err, service.ErrPasswordRequired):
		return "pages.register.toasts.passwordRequired"
	case errors.Is(err, service.ErrInvalidRole):
		return "pages.admin.users.invalidRole"
	}
	return ""
}

func (a *UserAdminController) renderForm(c *gin.Context, title string, form entity.AdminUserForm, editId int, err error) {
	key := userErrorKey(err)
	if key == "" {
		a.serverError(c, err)
		return
	}
	htmlStatus(c, http.StatusUnprocessableEntity, "admin_user_form.html", title, gin.H{
		"form":    form,
		"edit_id": editId,
		"errors":  []string{I18nWeb(c, key)},
	})
}

func (a *UserAdminController) create(c *gin.Context) {
	var form entity.AdminUserForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", "/admin/users/new")
		return
	}
	user, err := a.userService.CreateUser(c.Request.Context(), service.NewUser{
		Email:     form.Email,
		Password:  form.Password,
		Role:      model.Role(form.Role),
		FirstName: form.FirstName,
		LastName:  form.LastName,
		IsActive:  form.Active(),
	})
	if err != nil {
		a.renderForm(c, "pages.admin.users.new", form, 0, err)
		return
	}
	logger.Infof("admin %d created user %d", a.currentUser(c).Id, user.Id)
	a.flashRedirect(c, session.FlashInfo, "pages.admin.users.created", "/admin/users")
}

// loadTarget resolves :id, rendering the 404 page itself when the user does not exist.
func (a *UserAdminController) loadTarget(c *gin.Context) (*model.User, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		a.notFound(c)
		return nil, false
	}
	user, err := a.userService.GetUserById(c.Request.Context(), id)
	if database.IsNotFound(err) {
		a.notFound(c)
		return nil, false
	} else if err != nil {
		a.serverError(c, err)
		return nil, false
	}
	return user, true
}

func (a *UserAdminController) editPage(c *gin.Context) {
	user, ok := a.loadTarget(c)
	if !ok {
		return
	}
	active := ""
	if user.IsActive {
		active = "on"
	}
	html(c, "admin_user_form.html", "pages.admin.users.edit", gin.H{
		"edit_id": user.Id,
		"form": entity.AdminUserForm{
			Email:     user.Email,
			Role:      string(user.Role),
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IsActive:  active,
		},
	})
}

func (a *UserAdminController) update(c *gin.Context) {
	user, ok := a.loadTarget(c)
	if !ok {
		return
	}
	var form entity.AdminUserForm
	if err := c.ShouldBind(&form); err != nil {
		a.flashRedirect(c, session.FlashError, "pages.login.toasts.invalidFormData", c.Request.URL.Path)
		return
	}

	role, active := model.Role(form.Role), form.Active()
	// an admin cannot lock themselves out
	if user.Id == a.currentUser(c).Id && (role != model.RoleAdmin || !active) {
		a.flashRedirect(c, session.FlashError, "pages.admin.users.selfLockout", c.Request.URL.Path)
		return
	}

	update := service.UserUpdate{
		Email:     &form.Email,
		FirstName: &form.FirstName,
		LastName:  &form.LastName,
		Role:      &role,
		IsActive:  &active,
	}
	if form.Password != "" {
		update.Password = &form.Password
	}
	if _, err := a.userService.UpdateUser(c.Request.Context(), user.Id, update); err != nil {
		a.renderForm(c, "pages.admin.users.edit", form, user.Id, err)
		return
	}
	logger.Infof("admin %d updated user %d", a.currentUser(c).Id, user.Id)
	a.flashRedirect(c, session.FlashInfo, "pages.admin.users.updated", "/admin/users")
}

func (a *UserAdminController) delete(c *gin.Context) {
	user, ok := a.loadTarget(c)
	if !ok {
		return
	}
	if user.Id == a.currentUser(c).Id {
		a.flashRedirect(c, session.FlashError, "pages.admin.users.selfDelete", "/admin/users")
		return
	}
	if err := a.userService.DeleteUser(c.Request.Context(), user.Id); err != nil {
		a.serverError(c, err)
		return
	}
	logger.Infof("admin %d deleted user %d (%s)", a.currentUser(c).Id, user.Id, user.Email)
	a.flashRedirect(c, session.FlashInfo, "pages.admin.users.deleted", "/admin/users")
}
