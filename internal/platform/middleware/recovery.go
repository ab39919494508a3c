package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 in the portal error envelope.
// If the handler had already started writing, only the log entry is produced.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
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

				rid, _ := c.Get("request_id").(string)
				committed := c.Response().Committed
				logger.Error().
					Err(perr).
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Bool("committed", committed).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				if !committed {
					err = c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
				}
			}()
			return next(c)
		}
	}
}
