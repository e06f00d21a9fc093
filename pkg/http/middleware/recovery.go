package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	applogger "Farenheit/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 response in the API error envelope.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				if l != nil {
					l.Error("handler panic",
						applogger.String("route", c.Path()),
						applogger.String("method", c.Request().Method),
						applogger.Error(perr),
						applogger.String("stack", string(debug.Stack())),
					)
				} else {
					log.Printf("panic on %s %s: %v\n%s", c.Request().Method, c.Path(), perr, debug.Stack())
				}
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"code":    "ERR_INTERNAL",
					"message": "internal server error",
				})
			}()
			return next(c)
		}
	}
}
