package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/notify"
	"github.com/eaziwage/ewa/internal/policy"
	"github.com/eaziwage/ewa/internal/workers"
)

// fail maps a service error onto a status code and an error body.
func (h *Handler) fail(c echo.Context, err error) error {
	var rule *advance.RuleError
	if errors.As(err, &rule) {
		status := http.StatusUnprocessableEntity
		if rule.Code == advance.CodeValidation {
			status = http.StatusBadRequest
		}
		body := echo.Map{"error": rule.Message, "code": rule.Code}
		if rule.Reason != advance.ReasonNone {
			body["reason"] = rule.Reason
		}
		return c.JSON(status, body)
	}
	var te *advance.TransitionError
	if errors.As(err, &te) {
		return c.JSON(http.StatusConflict, echo.Map{"error": te.Error(), "code": advance.CodeInvalidTransition})
	}

	switch {
	case errors.Is(err, advance.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "advance not found"})
	case errors.Is(err, advance.ErrWorkerNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "worker not found"})
	case errors.Is(err, notify.ErrNotificationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
	case errors.Is(err, workers.ErrKycTransition), errors.Is(err, workers.ErrWorkerExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, workers.ErrInvalidStatus), errors.Is(err, workers.ErrEarningsDecreased):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, policy.ErrInvalidPolicy):
		h.Logger.ErrorContext(c.Request().Context(), "advance policy unavailable", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "advance policy unavailable"})
	}
	h.Logger.ErrorContext(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// bind decodes and validates the request body into req. The error text is
// safe to return to the caller.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid request")
	}
	return c.Validate(req)
}
