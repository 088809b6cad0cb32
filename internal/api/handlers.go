package api

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/export"
	"github.com/smukkama/sensor-pipeline/internal/service"
)

// Handler contains all HTTP handlers
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// KPIs handles GET /api/kpis?date=YYYY-MM-DD
func (h *Handler) KPIs(c *fiber.Ctx) error {
	snap, err := h.svc.KPIs(c.UserContext(), c.Query("date"))
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

// Trends handles GET /api/trends?date=YYYY-MM-DD
func (h *Handler) Trends(c *fiber.Ctx) error {
	series, err := h.svc.Trends(c.UserContext(), c.Query("date"))
	if err != nil {
		return err
	}
	return c.JSON(series)
}

// Summary handles GET /api/summary?date=YYYY-MM-DD
func (h *Handler) Summary(c *fiber.Ctx) error {
	summary, err := h.svc.Summary(c.UserContext(), c.Query("date"))
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// Health handles GET /api/health. A degraded store answers 503 with the
// same body.
func (h *Handler) Health(c *fiber.Ctx) error {
	health := h.svc.Health(c.UserContext())
	if !health.Healthy() {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(health)
}

// Download handles GET /api/download?date=YYYY-MM-DD&format=csv|xlsx
func (h *Handler) Download(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return err
	}

	readings, filter, err := h.svc.Readings(c.UserContext(), c.Query("date"))
	if err != nil {
		return err
	}

	var body []byte
	switch format {
	case export.FormatXLSX:
		body, err = export.GenerateXLSX(readings)
	default:
		var buf bytes.Buffer
		err = export.WriteCSV(&buf, readings)
		body = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("failed to render %s export: %w", format, err)
	}

	filename := export.Filename(h.svc.Table(), filter, format)
	h.logger.Debug("Serving export", zap.String("file", filename), zap.Int("rows", len(readings)))
	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(body)
}

// NotFound handles unmatched routes
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "Route not found")
}
