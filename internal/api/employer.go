package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/workers"
)

type OnboardRequest struct {
	ID       string `json:"id" validate:"required,max=64"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type EarningsRequest struct {
	Lines []workers.EarningsLine `json:"lines" validate:"required,min=1,dive"`
}

// GET /employer/advances
func (h *Handler) EmployerAdvances(c echo.Context) error {
	f := advance.Filter{EmployerID: employerID(c)}
	if err := filterFromQuery(c, &f); err != nil {
		return badRequest(c, err.Error())
	}
	reqs, err := h.Advances.List(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"advances": nonNil(reqs)})
}

// GET /employer/workers
func (h *Handler) EmployerWorkers(c echo.Context) error {
	ws, err := h.Workers.Workers(c.Request().Context(), employerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"workers": nonNil(ws)})
}

// POST /employer/workers
func (h *Handler) OnboardWorker(c echo.Context) error {
	var req OnboardRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	w, err := h.Workers.Onboard(c.Request().Context(), advance.Worker{
		ID:         req.ID,
		EmployerID: employerID(c),
		FullName:   req.FullName,
		Email:      req.Email,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, w)
}

// GET /employer/summary
func (h *Handler) EmployerSummary(c echo.Context) error {
	s, err := h.Workers.Summary(c.Request().Context(), employerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// POST /employer/payroll/earnings
func (h *Handler) UploadEarnings(c echo.Context) error {
	var req EarningsRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.Workers.RecordEarnings(c.Request().Context(), employerID(c), req.Lines)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// POST /employer/payroll/close
func (h *Handler) ClosePayroll(c echo.Context) error {
	res, err := h.Workers.CloseCycle(c.Request().Context(), employerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GET /employer/payroll/deductions
func (h *Handler) Deductions(c echo.Context) error {
	status := advance.DeductionStatus(c.QueryParam("status"))
	if status != "" && status != advance.DeductionScheduled && status != advance.DeductionDeducted {
		return badRequest(c, "status must be scheduled or deducted")
	}
	ds, err := h.Workers.Deductions(c.Request().Context(), employerID(c), status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deductions": nonNil(ds)})
}
