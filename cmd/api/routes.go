package main

import (
	"github.com/lllypuk/eventcore/internal/infrastructure/httpserver"
)

// SetupRoutes mounts health checks, metrics and the inspection API on server.
func SetupRoutes(c *Container, server *httpserver.Server) *httpserver.Router {
	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Logger = c.Logger

	router := httpserver.NewRouter(server.Echo(), routerCfg)
	router.RegisterHealthEndpoints(httpserver.NewHealthEndpoints(c.HealthCheckers...))
	if c.Config.Metrics.Enabled {
		router.RegisterMetricsEndpoint(c.Config.Metrics.Path, c.Registry)
	}
	httpserver.NewInspectionHandler(c.EventStore, c.SagaStore).Register(router.API())

	router.PrintRoutes()
	return router
}
