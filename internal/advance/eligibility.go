package advance

import (
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/policy"
)

// Eligibility is the verdict for one worker snapshot. Limit is always
// filled so callers can show it even when Eligible is false.
type Eligibility struct {
	Eligible bool         `json:"eligible"`
	Reason   Reason       `json:"reason,omitempty"`
	Limit    money.Amount `json:"advanceable_limit"`
}

// AdvanceableLimit is the accessible share of the worker's earned wages,
// bounded by the employer cap. It never goes below zero.
func AdvanceableLimit(w Worker, p *policy.Policy) money.Amount {
	base := w.EarnedWages
	if w.LimitCap != nil {
		base = money.Min(base, *w.LimitCap)
	}
	if base <= 0 {
		return 0
	}
	return base.MulFraction(p.AccessibleFraction)
}

// Evaluate decides whether w may request an advance right now. Checks run
// in a fixed order and the first failing one names the reason.
func Evaluate(w Worker, p *policy.Policy) Eligibility {
	e := Eligibility{Limit: AdvanceableLimit(w, p)}
	switch {
	case w.EmploymentStatus != EmploymentApproved:
		e.Reason = ReasonNotApproved
	case w.KycStatus == KycRejected:
		e.Reason = ReasonKycRejected
	case w.KycStatus != KycApproved:
		e.Reason = ReasonKycPending
	case e.Limit <= 0:
		e.Reason = ReasonNoAvailableLimit
	default:
		e.Eligible = true
	}
	return e
}
