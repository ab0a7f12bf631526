package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/risk"
)

type RejectRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=REVIEWER_DECLINED FRAUD_RULE"`
	Note   string `json:"note" validate:"max=500"`
}

type DisburseRequest struct {
	// Reference is the payment rail confirmation; empty generates one.
	Reference string `json:"reference" validate:"max=64"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type RiskRequest struct {
	Scores risk.Scores `json:"scores" validate:"required,min=1"`
}

type LimitRequest struct {
	// LimitCap in major units; null removes the cap.
	LimitCap *decimal.Decimal `json:"limit_cap"`
}

func reviewer(c echo.Context) advance.Actor {
	return advance.ReviewerActor(userID(c))
}

// GET /admin/advances
func (h *Handler) AdminAdvances(c echo.Context) error {
	f := advance.Filter{
		WorkerID:   c.QueryParam("worker_id"),
		EmployerID: c.QueryParam("employer_id"),
	}
	if err := filterFromQuery(c, &f); err != nil {
		return badRequest(c, err.Error())
	}
	reqs, err := h.Advances.List(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"advances": nonNil(reqs)})
}

// GET /admin/advances/:id
func (h *Handler) AdminAdvance(c echo.Context) error {
	r, err := h.Advances.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// POST /admin/advances/:id/approve
// The response carries the final status: a request the worker no longer
// qualifies for comes back rejected.
func (h *Handler) ApproveAdvance(c echo.Context) error {
	r, err := h.Advances.Approve(c.Request().Context(), c.Param("id"), reviewer(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// POST /admin/advances/:id/reject
func (h *Handler) RejectAdvance(c echo.Context) error {
	var req RejectRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	r, err := h.Advances.Reject(c.Request().Context(), c.Param("id"), reviewer(c), advance.Reason(req.Reason), req.Note)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// POST /admin/advances/:id/disburse
func (h *Handler) DisburseAdvance(c echo.Context) error {
	var req DisburseRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	r, err := h.Advances.Disburse(c.Request().Context(), c.Param("id"), reviewer(c), req.Reference)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// GET /admin/workers
func (h *Handler) AdminWorkers(c echo.Context) error {
	ws, err := h.Workers.Workers(c.Request().Context(), c.QueryParam("employer_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"workers": nonNil(ws)})
}

// GET /admin/workers/:id
func (h *Handler) AdminWorker(c echo.Context) error {
	w, err := h.Workers.Worker(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, w)
}

// POST /admin/workers/:id/status
func (h *Handler) SetEmploymentStatus(c echo.Context) error {
	var req StatusRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	id := c.Param("id")
	if err := h.Workers.SetEmploymentStatus(c.Request().Context(), id, advance.EmploymentStatus(req.Status)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "employment status updated", "worker_id": id, "status": req.Status})
}

// POST /admin/workers/:id/kyc
func (h *Handler) ReviewKyc(c echo.Context) error {
	var req StatusRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	id := c.Param("id")
	if err := h.Workers.ReviewKyc(c.Request().Context(), id, advance.KycStatus(req.Status), string(reviewer(c))); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "kyc status updated", "worker_id": id, "status": req.Status})
}

// POST /admin/workers/:id/risk
func (h *Handler) AssessRisk(c echo.Context) error {
	var req RiskRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := risk.Assess(req.Scores); err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.Workers.AssessRisk(c.Request().Context(), c.Param("id"), req.Scores)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// POST /admin/workers/:id/limit
func (h *Handler) SetLimitCap(c echo.Context) error {
	var req LimitRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	var limit *money.Amount
	if req.LimitCap != nil {
		amount, _, err := h.minor(ctx, *req.LimitCap)
		if err != nil {
			return h.fail(c, err)
		}
		limit = &amount
	}
	id := c.Param("id")
	if err := h.Workers.SetLimitCap(ctx, id, limit); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "limit cap updated", "worker_id": id, "limit_cap": limit})
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	s, err := h.Workers.Summary(c.Request().Context(), "")
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// POST /admin/sweep
func (h *Handler) Sweep(c echo.Context) error {
	n, err := h.Advances.ExpireStale(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
