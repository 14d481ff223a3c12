package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/eventcore/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger *slog.Logger

	// APIPrefix is the prefix for all API routes. Default "/api/v1".
	APIPrefix string
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:    slog.Default(),
		APIPrefix: "/api/v1",
	}
}

// Router applies the global middleware chain and owns the API group.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger
	api    *echo.Group
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/v1"
	}

	// Recovery must wrap everything else.
	e.Use(middleware.Recovery(config.Logger))
	logging := middleware.DefaultLoggingConfig()
	logging.Logger = config.Logger
	e.Use(middleware.Logging(logging))

	return &Router{
		echo:   e,
		config: config,
		logger: config.Logger,
		api:    e.Group(config.APIPrefix),
	}
}

// API returns the versioned API group.
func (r *Router) API() *echo.Group {
	return r.api
}

// RegisterHealthEndpoints registers /health and /ready over checkers.
func (r *Router) RegisterHealthEndpoints(endpoints *HealthEndpoints) {
	endpoints.Register(r.echo)
}

// RegisterMetricsEndpoint exposes gatherer in the Prometheus text format.
func (r *Router) RegisterMetricsEndpoint(path string, gatherer prometheus.Gatherer) {
	r.echo.GET(path, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// PrintRoutes logs all registered routes at debug level.
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
		)
	}
}
