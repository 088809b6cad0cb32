package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/export"
	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/store"
)

const (
	CodeInvalidFilter    = "INVALID_FILTER"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// ErrorHandler maps handler errors to status codes and the error envelope.
// Client input errors are 400, store connectivity errors are 503.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code, message := classify(err)

		fields := []zap.Field{
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request error", fields...)
		} else {
			logger.Debug("Request rejected", fields...)
		}

		return c.Status(status).JSON(ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: message,
				Path:    c.Path(),
			},
		})
	}
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, sensor.ErrInvalidFilter):
		return fiber.StatusBadRequest, CodeInvalidFilter, err.Error()
	case errors.Is(err, export.ErrUnsupportedFormat):
		return fiber.StatusBadRequest, CodeInvalidFormat, err.Error()
	case errors.Is(err, store.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, CodeStoreUnavailable, "database unavailable"
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code == fiber.StatusNotFound {
			return fe.Code, CodeNotFound, fe.Message
		}
		return fe.Code, "ERROR", fe.Message
	}

	return fiber.StatusInternalServerError, CodeInternal, "Internal Server Error"
}
