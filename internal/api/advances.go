package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
)

type QuoteRequest struct {
	// Amount is in major units, e.g. 1000.00.
	Amount decimal.Decimal `json:"amount"`
}

type CreateAdvanceRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"disbursement_method" validate:"required,oneof=mobile_money bank_transfer"`
	Destination string          `json:"destination" validate:"required,max=64"`
	Purpose     string          `json:"purpose" validate:"max=200"`
}

func userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

func employerID(c echo.Context) string {
	id, _ := c.Get("employer_id").(string)
	return id
}

// minor converts a major-unit amount using the current policy's scale.
func (h *Handler) minor(ctx context.Context, major decimal.Decimal) (money.Amount, int32, error) {
	p, err := h.Policies.Policy(ctx)
	if err != nil {
		return 0, 0, err
	}
	return money.FromDecimal(major, p.Scale), p.Scale, nil
}

// GET /me/eligibility
func (h *Handler) MyEligibility(c echo.Context) error {
	ctx := c.Request().Context()
	e, err := h.Advances.Eligibility(ctx, userID(c))
	if err != nil {
		return h.fail(c, err)
	}
	p, err := h.Policies.Policy(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"eligible":          e.Eligible,
		"reason":            e.Reason,
		"advanceable_limit": e.Limit,
		"display_limit":     e.Limit.Format(p.Scale),
		"currency":          p.Currency,
	})
}

// GET /me/summary
func (h *Handler) MySummary(c echo.Context) error {
	ctx := c.Request().Context()
	uid := userID(c)
	w, err := h.Workers.Worker(ctx, uid)
	if err != nil {
		return h.fail(c, err)
	}
	e, err := h.Advances.Eligibility(ctx, uid)
	if err != nil {
		return h.fail(c, err)
	}
	reqs, err := h.Advances.List(ctx, advance.Filter{WorkerID: uid})
	if err != nil {
		return h.fail(c, err)
	}
	var reserved, outstanding money.Amount
	for _, r := range reqs {
		switch {
		case r.Open():
			reserved += r.Amount
		case r.Outstanding():
			outstanding += r.Amount
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"worker":           w,
		"eligible":         e.Eligible,
		"reason":           e.Reason,
		"available":        e.Limit,
		"reserved":         reserved,
		"outstanding":      outstanding,
		"earned_wages":     w.EarnedWages,
		"total_requests":   len(reqs),
		"cycle_started_at": w.CycleStartedAt,
	})
}

// POST /me/kyc
func (h *Handler) SubmitKyc(c echo.Context) error {
	if err := h.Workers.SubmitKyc(c.Request().Context(), userID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "kyc submitted for review"})
}

// POST /advances/quote
func (h *Handler) Quote(c echo.Context) error {
	var req QuoteRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	amount, scale, err := h.minor(ctx, req.Amount)
	if err != nil {
		return h.fail(c, err)
	}
	bd, err := h.Advances.Quote(ctx, userID(c), amount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"breakdown": bd,
		"display": echo.Map{
			"requested_amount": bd.RequestedAmount.Format(scale),
			"total_fee":        bd.TotalFee.Format(scale),
			"net_payout":       bd.NetPayout.Format(scale),
		},
	})
}

// POST /advances
func (h *Handler) CreateAdvance(c echo.Context) error {
	var req CreateAdvanceRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	amount, _, err := h.minor(ctx, req.Amount)
	if err != nil {
		return h.fail(c, err)
	}
	r, err := h.Advances.Submit(ctx, advance.SubmitInput{
		WorkerID:    userID(c),
		Amount:      amount,
		Method:      advance.Method(req.Method),
		Destination: req.Destination,
		Purpose:     req.Purpose,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// GET /advances
func (h *Handler) MyAdvances(c echo.Context) error {
	f := advance.Filter{WorkerID: userID(c)}
	if err := filterFromQuery(c, &f); err != nil {
		return badRequest(c, err.Error())
	}
	reqs, err := h.Advances.List(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"advances": nonNil(reqs)})
}

// GET /advances/:id
func (h *Handler) MyAdvance(c echo.Context) error {
	r, err := h.Advances.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if r.WorkerID != userID(c) {
		return h.fail(c, advance.ErrNotFound)
	}
	return c.JSON(http.StatusOK, r)
}

// GET /transactions
func (h *Handler) MyTransactions(c echo.Context) error {
	entries, err := h.Advances.Ledger(c.Request().Context(), userID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": nonNil(entries)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
