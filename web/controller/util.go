package controller

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/web/entity"
	"github.com/marquee-app/marquee/web/locale"
	"github.com/marquee-app/marquee/web/session"

	"github.com/gin-gonic/gin"
)

// getRemoteIp extracts the real IP address from the request headers or remote address.
func getRemoteIp(c *gin.Context) string {
	value := c.GetHeader("X-Real-IP")
	if value != "" {
		return value
	}
	value = c.GetHeader("X-Forwarded-For")
	if value != "" {
		ips := strings.Split(value, ",")
		return strings.TrimSpace(ips[0])
	}
	addr := c.Request.RemoteAddr
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}

// jsonMsgObj sends a JSON response with a message, object, and error status.
func jsonMsgObj(c *gin.Context, msg string, obj any, err error) {
	m := entity.Msg{
		Obj: obj,
	}
	if err == nil {
		m.Success = true
		m.Msg = msg
		c.JSON(http.StatusOK, m)
		return
	}
	m.Success = false
	m.Msg = msg + " (" + err.Error() + ")"
	logger.Warning(msg+": ", err)
	c.JSON(http.StatusServiceUnavailable, m)
}

// html renders an HTML template with the provided data and title key.
func html(c *gin.Context, name string, title string, data gin.H) {
	htmlStatus(c, http.StatusOK, name, title, data)
}

func htmlStatus(c *gin.Context, status int, name string, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	lang := locale.Lang(c)
	data["title"] = locale.Tr(lang, title)
	data["lang"] = lang
	data["languages"] = locale.Languages()
	data["request_uri"] = c.Request.RequestURI
	data["user"] = session.GetLoginUser(c)
	data["flash_errors"] = append(session.Flashes(c, session.FlashError), toStrings(data["errors"])...)
	data["flash_infos"] = session.Flashes(c, session.FlashInfo)
	// flashes were consumed
	if err := session.Save(c); err != nil {
		logger.Warning("Unable to save session:", err)
	}
	c.HTML(status, name, getContext(data))
}

func toStrings(v any) []string {
	if s, ok := v.([]string); ok {
		return s
	}
	return nil
}

// getContext adds version and other context data to the provided gin.H.
func getContext(h gin.H) gin.H {
	a := gin.H{
		"cur_ver":  config.GetVersion(),
		"app_name": config.GetName(),
	}
	for key, value := range h {
		a[key] = value
	}
	return a
}

// pageFromQuery reads ?page= with the default page size.
func pageFromQuery(c *gin.Context) entity.Page {
	number, _ := strconv.Atoi(c.Query("page"))
	return entity.NewPage(number, entity.DefaultPageSize)
}

// safeNext keeps only same-site absolute paths so ?next= cannot redirect off-site.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return next
}
