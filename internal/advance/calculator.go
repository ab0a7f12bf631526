package advance

import (
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/policy"
)

// ComputeAdvance prices a requested amount for w. It checks the amount
// against the worker's limit but not against open requests; the service
// does that under the worker lock.
func ComputeAdvance(w Worker, p *policy.Policy, requested money.Amount) (Breakdown, error) {
	if requested <= 0 {
		return Breakdown{}, validationError(ReasonNonPositiveAmount, "amount must be greater than zero")
	}
	limit := AdvanceableLimit(w, p)
	if requested > limit {
		return Breakdown{}, validationError(ReasonLimitExceeded,
			"amount %s exceeds advanceable limit %s", requested.Format(p.Scale), limit.Format(p.Scale))
	}

	pct := p.FeePercent(w.RiskScore)
	fee := requested.MulPercent(pct)
	fixed := p.FixedFeeMinor()
	total := fee + fixed
	if total > requested {
		return Breakdown{}, &RuleError{
			Code:    CodeAmountTooSmall,
			Message: "amount " + requested.Format(p.Scale) + " does not cover fees of " + total.Format(p.Scale),
		}
	}

	return Breakdown{
		Currency:        p.Currency,
		Scale:           p.Scale,
		RequestedAmount: requested,
		FeePercent:      pct,
		FeeAmount:       fee,
		FixedFee:        fixed,
		TotalFee:        total,
		NetPayout:       requested - total,
	}, nil
}

// Consumed is the part of the limit held by the given requests: everything
// open plus everything paid out and not yet recovered through payroll.
func Consumed(requests []Request, exceptID string) money.Amount {
	var sum money.Amount
	for _, r := range requests {
		if r.ID == exceptID {
			continue
		}
		if r.Open() || r.Outstanding() {
			sum += r.Amount
		}
	}
	return sum
}
