package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	s *Session
}

func NewHandler(s *Session) *Handler {
	return &Handler{s: s}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/session", h.Get)
	api.PUT("/session", h.SignIn)
	api.DELETE("/session", h.SignOut)
}

type signInRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	Principal     *Principal `json:"principal,omitempty"`
}

func (h *Handler) Get(c echo.Context) error {
	if !h.s.Check(c.Request().Context()) {
		return c.JSON(http.StatusOK, sessionResponse{})
	}
	p, _ := h.s.Principal()
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, Principal: &p})
}

func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.s.SignIn(c.Request().Context(), req.Token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, Principal: &p})
}

func (h *Handler) SignOut(c echo.Context) error {
	h.s.SignOut(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// RequireAuth rejects requests while the session is signed out.
func RequireAuth(s *Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.Check(c.Request().Context()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
			}
			return next(c)
		}
	}
}

// RequireRole rejects requests unless the signed-in principal holds one of
// roles. Admins pass every check. Opaque tokens carry no role and are left to
// the backend to authorize.
func RequireRole(s *Session, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.Check(c.Request().Context()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
			}
			p, _ := s.Principal()
			if p.Role == "" || p.Role == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
