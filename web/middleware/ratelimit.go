package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marquee-app/marquee/caching"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/locale"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig bounds failed logins per client IP and email.
type RateLimitConfig struct {
	MaxFailures int
	Window      time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxFailures: 5,
		Window:      15 * time.Minute,
	}
}

// LoginLimiter counts failed logins in the in-memory cache.
type LoginLimiter struct {
	config RateLimitConfig
	cache  *caching.Cache
}

func NewLoginLimiter(config RateLimitConfig) *LoginLimiter {
	return &LoginLimiter{
		config: config,
		cache:  caching.NewCache(config.Window, config.Window),
	}
}

func (l *LoginLimiter) key(ip, email string) string {
	return "login:" + ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

func (l *LoginLimiter) failures(key string) int {
	if v, ok := l.cache.Get(key); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}

func (l *LoginLimiter) Blocked(ip, email string) bool {
	return l.failures(l.key(ip, email)) >= l.config.MaxFailures
}

// Fail records a failed attempt and returns how many remain in the window.
func (l *LoginLimiter) Fail(ip, email string) int {
	n := l.cache.Incr(l.key(ip, email), l.config.Window)
	if remaining := l.config.MaxFailures - n; remaining > 0 {
		return remaining
	}
	logger.Warningf("login rate limit reached for %s (%s)", ip, email)
	return 0
}

func (l *LoginLimiter) Reset(ip, email string) {
	l.cache.Delete(l.key(ip, email))
}

// RateLimitMiddleware rejects login posts from a client that used up its failures.
func RateLimitMiddleware(l *LoginLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		email := c.PostForm("email")
		if l.Blocked(c.ClientIP(), email) {
			c.Header("Retry-After", strconv.Itoa(int(l.config.Window.Seconds())))
			session.AddFlash(c, session.FlashError, locale.T(c, "flash.tooManyAttempts"))
			_ = session.Save(c)
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}
