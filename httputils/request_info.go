package httputils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo"
)

type ctxKey int

const (
	requestInfoCtxKey ctxKey = iota
)

const HeaderRequestID = "X-Request-ID"

// SetRequestInfo returns a new context with set (or re-set) RequestInfo.
func SetRequestInfo(ctx context.Context, r *http.Request, appVersion string) (out context.Context, res RequestInfo) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ipsl := strings.Split(xff, ", ")
		res.RealIP = ipsl[0]
		if len(ipsl) > 1 {
			res.ProxyIPs = ipsl[1:]
		}
	}
	res.UserAgent = r.UserAgent()
	res.RequestID = r.Header.Get(HeaderRequestID)

	if res.RealIP == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			res.ProxyIPs = []string{host}
		}
	}

	if res.RequestID == "" {
		res.RequestID = appCreatedRequestID()
	}
	res.AppVersion = appVersion

	out = context.WithValue(ctx, requestInfoCtxKey, res)

	return out, res
}

// GetRequestInfo returns RequestInfo from the context.
func GetRequestInfo(ctx context.Context) (res RequestInfo) {
	res, _ = ctx.Value(requestInfoCtxKey).(RequestInfo)
	return res
}

// RequestInfoMiddleware puts RequestInfo into the request context and echoes the request id back.
func RequestInfoMiddleware(appVersion string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			ctx, ri := SetRequestInfo(r.Context(), r, appVersion)
			c.SetRequest(r.WithContext(ctx))
			c.Response().Header().Set(HeaderRequestID, ri.RequestID)
			return next(c)
		}
	}
}

// RequestInfo metadata of the inbound request.
type RequestInfo struct {
	RealIP     string
	ProxyIPs   []string
	UserAgent  string
	RequestID  string
	AppVersion string
}

func (ri RequestInfo) FirstProxyIP() string {
	if len(ri.ProxyIPs) > 0 {
		return ri.ProxyIPs[0]
	}
	return ""
}

// application created
// ac-2006-01-02T15:04:05.000-XXX###XXX
func appCreatedRequestID() string {
	return "ac-" + time.Now().Format("2006-01-02T15:04:05.000") + randString(9)
}

func randString(len int) string {
	b := make([]byte, len)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
