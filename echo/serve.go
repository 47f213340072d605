package echo

import (
	"net/http"
	"slices"

	"github.com/labstack/echo-contrib/echoprometheus"
	echov4 "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/proxy"
	"github.com/openrange/balancer/teams"
)

func New() *echov4.Echo {
	e := echov4.New()
	e.HideBanner = true

	e.Use(otelecho.Middleware("balancer", otelecho.WithSkipper(telemetryURLSkipper)))

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Registerer:                prom.DefaultRegisterer,
		Skipper:                   telemetryURLSkipper,
		DoNotUseRequestPathFor404: true,
	}))

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prom.DefaultGatherer,
	}))

	echoLogConfig := middleware.DefaultLoggerConfig
	echoLogConfig.Skipper = telemetryURLSkipper
	e.Use(middleware.LoggerWithConfig(echoLogConfig))

	e.GET("/healthz", func(c echov4.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	teams.NewHandler(api.Kubernetes).RegisterRoutes(e)

	// Everything outside /balancer is proxied to the team's backend.
	proxy.NewRouter(api.Kubernetes).Register(e)

	return e
}

// telemetryURLSkipper ignores metrics route on some middleware
func telemetryURLSkipper(c echov4.Context) bool {
	pathsToSkip := []string{"/healthz", "/metrics"}
	return slices.Contains(pathsToSkip, c.Path())
}
