package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig configures the read API's cross-origin policy.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	// MaxAge is the preflight cache lifetime in seconds; 0 omits the header.
	MaxAge int
}

func (cfg CORSConfig) allowed(origin string) (string, bool) {
	if len(cfg.AllowOrigins) == 0 {
		return origin, true
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			if origin == "" {
				return "*", true
			}
			return origin, true
		}
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}

// CORS sets the allow headers for permitted origins and answers preflight
// requests. Requests from other origins pass through without CORS headers.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			allow, ok := cfg.allowed(c.Request().Header.Get(echo.HeaderOrigin))
			if !ok {
				return next(c)
			}
			if allow != "" {
				h.Set(echo.HeaderAccessControlAllowOrigin, allow)
			}
			if methods != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}

			if c.Request().Method == http.MethodOptions {
				if cfg.MaxAge > 0 {
					h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAge))
				}
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
