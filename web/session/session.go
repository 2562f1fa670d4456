// Package session keeps the logged-in user id, flash messages and the pending two-factor
// secret in the signed session cookie.
package session

import (
	"github.com/marquee-app/marquee/database/model"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	CookieName = "marquee"

	loginUserId    = "LOGIN_USER_ID"
	pendingSecret  = "PENDING_2FA_SECRET"
	userContextKey = "login_user"
)

type FlashCategory string

const (
	FlashInfo  FlashCategory = "info"
	FlashError FlashCategory = "error"
)

func flashKey(category FlashCategory) string {
	return "_flash_" + string(category)
}

func SetLoginUser(c *gin.Context, user *model.User) error {
	s := sessions.Default(c)
	s.Set(loginUserId, user.Id)
	s.Delete(pendingSecret)
	return s.Save()
}

// GetLoginUserId returns the id stored at login, or 0 for anonymous sessions.
func GetLoginUserId(c *gin.Context) int {
	s := sessions.Default(c)
	if id, ok := s.Get(loginUserId).(int); ok {
		return id
	}
	return 0
}

// SetContextUser attaches the loaded user to the request.
func SetContextUser(c *gin.Context, user *model.User) {
	c.Set(userContextKey, user)
}

// GetLoginUser returns the user loaded for this request, or nil.
func GetLoginUser(c *gin.Context) *model.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}
	return nil
}

func IsLogin(c *gin.Context) bool {
	return GetLoginUser(c) != nil
}

func SetMaxAge(c *gin.Context, maxAge int) error {
	s := sessions.Default(c)
	s.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
	})
	return s.Save()
}

func ClearSession(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{
		Path:   "/",
		MaxAge: -1,
	})
	return s.Save()
}

// AddFlash queues a message for the next rendered page. The caller saves the session,
// usually through a redirect helper.
func AddFlash(c *gin.Context, category FlashCategory, msg string) {
	sessions.Default(c).AddFlash(msg, flashKey(category))
}

// Flashes pops the queued messages of one category.
func Flashes(c *gin.Context, category FlashCategory) []string {
	s := sessions.Default(c)
	raw := s.Flashes(flashKey(category))
	if len(raw) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(raw))
	for _, v := range raw {
		if msg, ok := v.(string); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func Save(c *gin.Context) error {
	return sessions.Default(c).Save()
}

func SetPendingSecret(c *gin.Context, secret string) error {
	s := sessions.Default(c)
	s.Set(pendingSecret, secret)
	return s.Save()
}

func GetPendingSecret(c *gin.Context) string {
	secret, _ := sessions.Default(c).Get(pendingSecret).(string)
	return secret
}

func ClearPendingSecret(c *gin.Context) error {
	s := sessions.Default(c)
	s.Delete(pendingSecret)
	return s.Save()
}
