package review

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/policy"
)

func newEvaluator(t *testing.T, rules policy.AutoReview) *Evaluator {
	t.Helper()
	p := policy.Default()
	p.AutoReview = rules
	provider, err := policy.NewStatic(p)
	require.NoError(t, err)
	e, err := New(provider, nil)
	require.NoError(t, err)
	return e
}

func input(amount int64, requests24h int) advance.ReviewInput {
	return advance.ReviewInput{
		Request: advance.Request{
			ID:         "r-1",
			Amount:     money.Amount(amount),
			FeePercent: decimal.RequireFromString("4.5"),
			Method:     advance.MethodMobileMoney,
			Currency:   "KES",
			CreatedAt:  time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		Worker: advance.Worker{
			ID:               "w-1",
			EmployerID:       "emp-1",
			EmploymentStatus: advance.EmploymentApproved,
			KycStatus:        advance.KycApproved,
			RiskScore:        2.4,
			EarnedWages:      1_000_000,
		},
		Requests24h:  requests24h,
		OpenRequests: 1,
		Limit:        500_000,
	}
}

func TestReviewApprovesSmallLowRiskRequests(t *testing.T) {
	e := newEvaluator(t, policy.AutoReview{
		Approve: "request.amount <= 200000 && worker.risk_score < 3",
	})
	in := input(100_000, 1)
	v, err := e.Review(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, advance.ActionApprove, v.Action)

	in.Worker.RiskScore = 4
	v, err = e.Review(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, advance.ActionNone, v.Action)
}

func TestReviewRejectRulesWinOverApprove(t *testing.T) {
	e := newEvaluator(t, policy.AutoReview{
		Approve: "true",
		Reject: []policy.Rule{
			{Name: "velocity", Expr: "history.requests_24h >= 3"},
			{Name: "drain", Expr: "history.consumed + request.amount > history.limit * 9 / 10"},
		},
	})

	v, err := e.Review(context.Background(), input(100_000, 3))
	require.NoError(t, err)
	assert.Equal(t, advance.Verdict{Action: advance.ActionReject, Rule: "velocity"}, v)

	v, err = e.Review(context.Background(), input(100_000, 1))
	require.NoError(t, err)
	assert.Equal(t, advance.ActionApprove, v.Action)
}

func TestReviewComparesIntsWithDoubles(t *testing.T) {
	e := newEvaluator(t, policy.AutoReview{Approve: "worker.risk_score <= 3 && request.fee_percentage < 5"})
	v, err := e.Review(context.Background(), input(100_000, 1))
	require.NoError(t, err)
	assert.Equal(t, advance.ActionApprove, v.Action)
}

func TestReviewSurfacesBadRules(t *testing.T) {
	e := newEvaluator(t, policy.AutoReview{Approve: "request.amount"})
	_, err := e.Review(context.Background(), input(100_000, 1))
	assert.ErrorIs(t, err, ErrNotBool)

	e = newEvaluator(t, policy.AutoReview{Reject: []policy.Rule{{Name: "typo", Expr: "history.missing > 1"}}})
	_, err = e.Review(context.Background(), input(100_000, 1))
	assert.Error(t, err)
}

func TestCheckCompilesRules(t *testing.T) {
	e := newEvaluator(t, policy.AutoReview{})
	good := policy.Default()
	good.AutoReview.Approve = "request.amount < 100"
	assert.NoError(t, e.Check(good))

	bad := policy.Default()
	bad.AutoReview.Reject = []policy.Rule{{Name: "broken", Expr: "request.amount <"}}
	assert.Error(t, e.Check(bad))
}

func TestProgramsAreCached(t *testing.T) {
	e := newEvaluator(t, policy.AutoReview{Approve: "true"})
	for i := 0; i < 3; i++ {
		_, err := e.Review(context.Background(), input(100_000, 1))
		require.NoError(t, err)
	}
	assert.Len(t, e.prgCache, 1)
}

func TestSamplePolicyRules(t *testing.T) {
	provider, err := policy.NewFile("../../configs/policy.yaml")
	require.NoError(t, err)
	p, err := provider.Policy(context.Background())
	require.NoError(t, err)

	e, err := New(provider, nil)
	require.NoError(t, err)
	require.NoError(t, e.Check(p))

	v, err := e.Review(context.Background(), input(100_000, 4))
	require.NoError(t, err)
	assert.Equal(t, advance.Verdict{Action: advance.ActionReject, Rule: "burst"}, v)

	in := input(100_000, 1)
	in.Worker.RiskScore = 1.5
	v, err = e.Review(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, advance.ActionApprove, v.Action)

	v, err = e.Review(context.Background(), input(100_000, 1))
	require.NoError(t, err)
	assert.Equal(t, advance.ActionNone, v.Action)
}
