package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Health is a simple liveness endpoint used by load balancers and
// monitoring systems to verify that the process is running. It never
// touches the store.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const readyTimeout = 2 * time.Second

// Ready returns a readiness handler that reports 503 while the store cannot
// be reached, so a replica whose volume went away stops receiving traffic.
// Each failed ping is logged at warn level.
func Ready(p Pinger, logger *zap.Logger) echo.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
		defer cancel()
		if err := p.PingContext(ctx); err != nil {
			logger.Warn("readiness check failed",
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err),
			)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
		}
		return c.String(http.StatusOK, "ok")
	}
}
