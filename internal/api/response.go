package api

import (
	"errors"
	"net/http"

	"stealth-signal-bot/internal/broker"
	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/database"
	"stealth-signal-bot/internal/orchestrator"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func dataResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func errorResponse(c echo.Context, status int, message string, details interface{}) error {
	return c.JSON(status, Response{
		Status:  status,
		Message: message,
		Errors:  details,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrScanRunning):
		return http.StatusConflict
	case errors.Is(err, broker.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, broker.ErrNotActive), errors.Is(err, broker.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, broker.ErrInsufficientCash),
		errors.Is(err, broker.ErrMaxPositions),
		errors.Is(err, broker.ErrUnsupportedAction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return errorResponse(c, status, http.StatusText(status), nil)
	}
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return errorResponse(c, status, err.Error(), verr.Fields)
	}
	return errorResponse(c, status, err.Error(), nil)
}
