package db

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// CacheHealth is the /health/db body.
type CacheHealth struct {
	Status string     `json:"status"`
	Cache  string     `json:"cache"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

func poolStats(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

// checkCache pings the postgres cache. A failed ping still reports the pool
// snapshot so exhausted pools can be told apart from an unreachable server.
func checkCache(ctx context.Context, ping func(context.Context) error, stats func() *PoolStats) (int, CacheHealth) {
	report := CacheHealth{Status: "healthy", Cache: "postgres"}
	if err := ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
	}
	report.Pool = stats()
	if report.Error != "" {
		return http.StatusServiceUnavailable, report
	}
	return http.StatusOK, report
}

// HealthHandler reports on the directory cache store. A nil pool means the
// in-memory cache is in use, which is always healthy.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pool == nil {
			return c.JSON(http.StatusOK, CacheHealth{Status: "healthy", Cache: "memory"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()
		code, report := checkCache(ctx, pool.Ping, func() *PoolStats { return poolStats(pool) })
		return c.JSON(code, report)
	}
}
