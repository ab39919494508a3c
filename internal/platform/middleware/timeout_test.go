package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func runTimeout(t *testing.T, path string, timeout time.Duration, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	return rec, RequestTimeout(timeout)(handler)(c)
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	_, err := runTimeout(t, "/api/v1/vaccines", 30*time.Second, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected context to have a deadline")
		}
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_SlowBackendGets504(t *testing.T) {
	rec, err := runTimeout(t, "/api/v1/vaccines", 50*time.Millisecond, func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.NoContent(http.StatusOK)
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["success"] != false {
		t.Errorf("expected error envelope, got %v", body)
	}
}

func TestRequestTimeout_SkipsChangeFeed(t *testing.T) {
	called := false
	_, err := runTimeout(t, "/api/v1/ws", 50*time.Millisecond, func(c echo.Context) error {
		called = true
		if deadline, ok := c.Request().Context().Deadline(); ok && time.Until(deadline) < time.Second {
			t.Error("expected no short deadline on the change feed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	_, err := runTimeout(t, "/api/v1/vaccines/123", 5*time.Second, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "vaccine not found")
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}
