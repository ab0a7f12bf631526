package advance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eaziwage/ewa/internal/money"
)

func TestEvaluate(t *testing.T) {
	ceiling := money.Amount(200_000)
	cases := []struct {
		name   string
		mutate func(w *Worker)
		ok     bool
		reason Reason
		limit  money.Amount
	}{
		{"eligible", func(*Worker) {}, true, ReasonNone, 500_000},
		{"employment pending", func(w *Worker) { w.EmploymentStatus = EmploymentPending }, false, ReasonNotApproved, 500_000},
		{"suspended", func(w *Worker) { w.EmploymentStatus = EmploymentSuspended }, false, ReasonNotApproved, 500_000},
		{"kyc submitted", func(w *Worker) { w.KycStatus = KycSubmitted }, false, ReasonKycPending, 500_000},
		{"kyc not started", func(w *Worker) { w.KycStatus = KycNotStarted }, false, ReasonKycPending, 500_000},
		{"kyc rejected", func(w *Worker) { w.KycStatus = KycRejected }, false, ReasonKycRejected, 500_000},
		{"no earnings", func(w *Worker) { w.EarnedWages = 0 }, false, ReasonNoAvailableLimit, 0},
		{"negative earnings", func(w *Worker) { w.EarnedWages = -10 }, false, ReasonNoAvailableLimit, 0},
		{"employer cap", func(w *Worker) { w.LimitCap = &ceiling }, true, ReasonNone, 100_000},
		{"employment wins over kyc", func(w *Worker) {
			w.EmploymentStatus = EmploymentTerminated
			w.KycStatus = KycRejected
		}, false, ReasonNotApproved, 500_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := eligibleWorker()
			tc.mutate(&w)
			e := Evaluate(w, testPolicy())
			assert.Equal(t, tc.ok, e.Eligible)
			assert.Equal(t, tc.reason, e.Reason)
			assert.Equal(t, tc.limit, e.Limit)
		})
	}
}

func TestAdvanceableLimitRoundsHalfUp(t *testing.T) {
	w := eligibleWorker()
	w.EarnedWages = 1_001
	assert.Equal(t, money.Amount(501), AdvanceableLimit(w, testPolicy()))
}
