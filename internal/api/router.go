// Package api exposes the read-side service over HTTP with fiber.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/metrics"
	"github.com/smukkama/sensor-pipeline/internal/service"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// Options configures the HTTP app. Metrics and Gatherer may be nil.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
}

// OptionsFromConfig maps the http section onto Options
func OptionsFromConfig(cfg config.HTTPConfig, m *metrics.Metrics, g prometheus.Gatherer) Options {
	return Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Metrics:      m,
		Gatherer:     g,
	}
}

// New creates a new Fiber app with all routes registered
func New(svc *service.Service, opts Options, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Sensor ETL API",
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          ErrorHandler(logger),
	})

	Setup(app, svc, opts, logger)
	return app
}

// Setup registers middleware and routes on app
func Setup(app *fiber.App, svc *service.Service, opts Options, logger *zap.Logger) *Handler {
	h := &Handler{svc: svc, logger: logger}

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
	}))
	app.Use(requestMetrics(opts.Metrics))

	api := app.Group("/api")
	api.Get("/kpis", h.KPIs)
	api.Get("/trends", h.Trends)
	api.Get("/summary", h.Summary)
	api.Get("/health", h.Health)
	api.Get("/download", h.Download)

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// requestMetrics counts requests by matched route. Errors are rendered here
// so the recorded status is the one sent.
func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		m.ObserveRequest(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start))
		return nil
	}
}
