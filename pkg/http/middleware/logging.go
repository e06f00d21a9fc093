package middleware

import (
	"log"
	"time"

	applogger "Farenheit/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests. With a nil logger it falls back to the
// standard log package.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)

			latency := time.Since(start)
			if l == nil {
				log.Printf("[%s] %s %s - %d (%s)", req.Method, req.RequestURI, req.RemoteAddr, res.Status, latency)
				return err
			}
			l.Debug("http request",
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Duration("latency", latency),
			)
			return err
		}
	}
}
