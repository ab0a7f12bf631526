package advance

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/eaziwage/ewa/internal/money"
)

// TestBreakdownProperties checks the pricing invariants over random inputs.
func TestBreakdownProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	p := testPolicy()

	properties.Property("fees and payout add up to the requested amount", prop.ForAll(
		func(earned, requested int64, risk float64) bool {
			w := eligibleWorker()
			w.EarnedWages = money.Amount(earned)
			w.RiskScore = risk
			bd, err := ComputeAdvance(w, p, money.Amount(requested))
			if err != nil {
				return CodeOf(err) == CodeValidation || CodeOf(err) == CodeAmountTooSmall
			}
			return bd.NetPayout >= 0 &&
				bd.TotalFee == bd.FeeAmount+bd.FixedFee &&
				bd.NetPayout+bd.TotalFee == bd.RequestedAmount &&
				bd.RequestedAmount <= AdvanceableLimit(w, p)
		},
		gen.Int64Range(0, 100_000_000),
		gen.Int64Range(-1_000, 60_000_000),
		gen.Float64Range(1, 5),
	))

	properties.Property("fee percentage stays inside the published range", prop.ForAll(
		func(risk float64) bool {
			pct := p.FeePercent(risk)
			return !pct.LessThan(p.MinFeePercent) && !pct.GreaterThan(p.MaxFeePercent)
		},
		gen.Float64Range(-10, 20),
	))

	properties.Property("fee is non-decreasing in risk", prop.ForAll(
		func(a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			return !p.FeePercent(a).GreaterThan(p.FeePercent(b))
		},
		gen.Float64Range(1, 5),
		gen.Float64Range(1, 5),
	))

	properties.Property("limit never exceeds earnings or goes negative", prop.ForAll(
		func(earned int64, fraction float64) bool {
			q := testPolicy()
			q.AccessibleFraction = decimal.NewFromFloat(fraction).Round(4)
			w := eligibleWorker()
			w.EarnedWages = money.Amount(earned)
			limit := AdvanceableLimit(w, q)
			if earned <= 0 {
				return limit == 0
			}
			return limit >= 0 && limit <= w.EarnedWages
		},
		gen.Int64Range(-1_000, 100_000_000),
		gen.Float64Range(0.01, 1),
	))

	properties.Property("same inputs always price the same", prop.ForAll(
		func(earned, requested int64, risk float64) bool {
			w := eligibleWorker()
			w.EarnedWages = money.Amount(earned)
			w.RiskScore = risk
			a, errA := ComputeAdvance(w, p, money.Amount(requested))
			b, errB := ComputeAdvance(w, testPolicy(), money.Amount(requested))
			if errA != nil || errB != nil {
				return errA != nil && errB != nil && CodeOf(errA) == CodeOf(errB) && errA.Error() == errB.Error()
			}
			return a.FeePercent.Equal(b.FeePercent) &&
				a.FeeAmount == b.FeeAmount &&
				a.FixedFee == b.FixedFee &&
				a.TotalFee == b.TotalFee &&
				a.NetPayout == b.NetPayout
		},
		gen.Int64Range(0, 100_000_000),
		gen.Int64Range(-1_000, 60_000_000),
		gen.Float64Range(1, 5),
	))

	properties.TestingRun(t)
}
