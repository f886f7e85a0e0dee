package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/hello-counter/internal/handler"
	"github.com/iliyamo/hello-counter/internal/middleware"
)

// Options carries everything New needs to assemble the server.
type Options struct {
	Counter   *handler.CounterHandler
	Store     handler.Pinger // pinged by /readyz
	Logger    *zap.Logger
	Metrics   bool                // expose /metrics
	RateLimit echo.MiddlewareFunc // applied to the counter routes; nil disables
}

// New builds an Echo instance with the global middleware chain and every
// route registered.
func New(opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if opts.Metrics {
		e.Use(middleware.Metrics())
	}

	RegisterRoutes(e, opts.Counter, opts.RateLimit)
	RegisterSystem(e, opts.Store, opts.Metrics, logger)
	return e
}

// RegisterRoutes maps GET / and POST / to the counter handler. Other
// methods on / get echo's 405 and other paths its 404.
func RegisterRoutes(e *echo.Echo, h *handler.CounterHandler, rateLimit echo.MiddlewareFunc) {
	var mws []echo.MiddlewareFunc
	if rateLimit != nil {
		mws = append(mws, rateLimit)
	}
	e.GET("/", h.Hello, mws...)
	e.POST("/", h.Increment, mws...)
}

// RegisterSystem registers probes and, when enabled, the Prometheus
// endpoint. None of these are rate limited.
func RegisterSystem(e *echo.Echo, store handler.Pinger, metrics bool, logger *zap.Logger) {
	e.GET("/healthz", handler.Health)
	if store != nil {
		e.GET("/readyz", handler.Ready(store, logger))
	}
	if metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
}
