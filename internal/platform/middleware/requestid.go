package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vaxportal/portal/internal/platform/apiclient"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = apiclient.RequestIDHeader

// RequestID reuses an inbound X-Request-ID or generates one. The id is
// stored as "request_id" on the echo context and attached to the request
// context so backend calls made while serving it carry the same id.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}

			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			c.SetRequest(req.WithContext(apiclient.WithRequestID(req.Context(), rid)))

			return next(c)
		}
	}
}

// errorBody mirrors the backend envelope for responses produced here.
func errorBody(message string) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"message": message,
	}
}
