package advance_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/policy"
	"github.com/eaziwage/ewa/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []advance.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e advance.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) types() []advance.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []advance.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type reviewerFunc func(advance.ReviewInput) (advance.Verdict, error)

func (f reviewerFunc) Review(_ context.Context, in advance.ReviewInput) (advance.Verdict, error) {
	return f(in)
}

type fixture struct {
	svc      *advance.Service
	mem      *store.Memory
	clock    *clock
	sent     *recorder
	policies policy.Provider
}

func newFixture(t *testing.T, opts ...advance.Option) *fixture {
	t.Helper()
	p := policy.Default()
	p.FixedFee = policy.FixedFee{Reference: decimal.RequireFromString("0.80"), ReferenceCurrency: "KES", Rate: decimal.NewFromInt(1)}
	provider, err := policy.NewStatic(p)
	require.NoError(t, err)

	f := &fixture{
		mem:   store.NewMemory(),
		clock: &clock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		sent:  &recorder{},
	}
	f.policies = provider
	require.NoError(t, f.mem.CreateWorker(context.Background(), advance.Worker{
		ID:               "w-1",
		EmployerID:       "emp-1",
		Email:            "amina@example.com",
		EmploymentStatus: advance.EmploymentApproved,
		KycStatus:        advance.KycApproved,
		EarnedWages:      1_000_000,
		RiskScore:        3.0,
	}))
	opts = append([]advance.Option{advance.WithClock(f.clock.Now), advance.WithNotifier(f.sent)}, opts...)
	f.svc = advance.NewService(f.mem, provider, opts...)
	return f
}

func (f *fixture) submit(t *testing.T, amount money.Amount) advance.Request {
	t.Helper()
	r, err := f.svc.Submit(context.Background(), advance.SubmitInput{
		WorkerID:    "w-1",
		Amount:      amount,
		Method:      advance.MethodMobileMoney,
		Destination: "+254700000001",
	})
	require.NoError(t, err)
	return r
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, 100_000)

	assert.Equal(t, advance.StatusPending, r.Status)
	assert.Equal(t, "emp-1", r.EmployerID)
	assert.Equal(t, money.Amount(4_500), r.FeeAmount)
	assert.Equal(t, money.Amount(80), r.FixedFee)
	assert.Equal(t, money.Amount(95_420), r.NetPayout)
	require.Len(t, r.History, 1)
	assert.Equal(t, advance.WorkerActor("w-1"), r.History[0].Actor)

	got, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Len(t, got.History, 1)

	ledger, err := f.svc.Ledger(context.Background(), "w-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, advance.EntryAdvanceRequest, ledger[0].Type)
	assert.Empty(t, f.sent.types())
}

func TestSubmitRejectsIneligibleWorker(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.SetKycStatus(context.Background(), "w-1", advance.KycSubmitted))

	_, err := f.svc.Submit(context.Background(), advance.SubmitInput{
		WorkerID: "w-1", Amount: 100_000, Method: advance.MethodMobileMoney, Destination: "+254700000001",
	})
	var re *advance.RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, advance.CodeNotEligible, re.Code)
	assert.Equal(t, advance.ReasonKycPending, re.Reason)

	reqs, err := f.svc.List(context.Background(), advance.Filter{WorkerID: "w-1"})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := advance.SubmitInput{WorkerID: "w-1", Amount: 100_000, Method: advance.MethodBankTransfer, Destination: "0123456789"}

	over := base
	over.Amount = 600_000
	_, err := f.svc.Submit(ctx, over)
	assert.ErrorIs(t, err, advance.ErrValidation)

	small := base
	small.Amount = 50
	_, err = f.svc.Submit(ctx, small)
	assert.ErrorIs(t, err, advance.ErrAmountTooSmall)

	badMethod := base
	badMethod.Method = "cash"
	_, err = f.svc.Submit(ctx, badMethod)
	assert.ErrorIs(t, err, advance.ErrValidation)

	noDest := base
	noDest.Destination = "  "
	_, err = f.svc.Submit(ctx, noDest)
	assert.ErrorIs(t, err, advance.ErrValidation)

	unknown := base
	unknown.WorkerID = "nobody"
	_, err = f.svc.Submit(ctx, unknown)
	assert.ErrorIs(t, err, advance.ErrWorkerNotFound)
}

func TestSubmitCountsOpenRequestsAgainstLimit(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 300_000)

	_, err := f.svc.Submit(context.Background(), advance.SubmitInput{
		WorkerID: "w-1", Amount: 300_000, Method: advance.MethodMobileMoney, Destination: "+254700000001",
	})
	var re *advance.RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, advance.CodeValidation, re.Code)
	assert.Equal(t, advance.ReasonLimitExceeded, re.Reason)

	e, err := f.svc.Eligibility(context.Background(), "w-1")
	require.NoError(t, err)
	assert.True(t, e.Eligible)
	assert.Equal(t, money.Amount(200_000), e.Limit)
}

func TestConcurrentSubmissionsCannotOverdraw(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(context.Background(), advance.SubmitInput{
				WorkerID: "w-1", Amount: 300_000, Method: advance.MethodMobileMoney, Destination: "+254700000001",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, advance.ErrValidation)
	}
	assert.Equal(t, 1, succeeded)

	reqs, err := f.svc.List(context.Background(), advance.Filter{WorkerID: "w-1"})
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestApproveRevalidatesWorker(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, 100_000)
	require.NoError(t, f.mem.SetEmploymentStatus(context.Background(), "w-1", advance.EmploymentSuspended))

	got, err := f.svc.Approve(context.Background(), r.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, got.Status)
	assert.Equal(t, advance.ReasonLimitExceededAtApproval, got.RejectReason)
	assert.Equal(t, string(advance.ReasonNotApproved), got.RejectNote)
	assert.Equal(t, []advance.EventType{advance.EventRejected}, f.sent.types())

	stored, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, stored.Status)
	assert.Len(t, stored.History, 2)
}

func TestApproveRejectsWhenEarningsShrankBelowAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 400_000)
	cut := money.Amount(600_000)
	require.NoError(t, f.mem.SetLimitCap(ctx, "w-1", &cut))

	got, err := f.svc.Approve(ctx, r.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, got.Status)
	assert.Equal(t, advance.ReasonLimitExceededAtApproval, got.RejectReason)
	assert.Contains(t, got.RejectNote, "exceeds available limit")
}

func TestApproveAndDisburse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 100_000)

	approved, err := f.svc.Approve(ctx, r.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, advance.StatusApproved, approved.Status)

	f.clock.Advance(time.Hour)
	paid, err := f.svc.Disburse(ctx, r.ID, advance.SystemActor("rail"), "")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusDisbursed, paid.Status)
	assert.True(t, strings.HasPrefix(paid.Reference, "EW-20260310090000-"), paid.Reference)
	assert.Len(t, paid.History, 3)

	deductions, err := f.mem.Deductions(ctx, "emp-1", advance.DeductionScheduled)
	require.NoError(t, err)
	require.Len(t, deductions, 1)
	assert.Equal(t, money.Amount(100_000), deductions[0].Amount)
	assert.Equal(t, r.ID, deductions[0].RequestID)

	ledger, err := f.svc.Ledger(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	amounts := map[advance.EntryType]money.Amount{}
	for _, e := range ledger {
		amounts[e.Type] = e.Amount
	}
	assert.Equal(t, money.Amount(95_420), amounts[advance.EntryDisbursement])
	assert.Equal(t, money.Amount(4_580), amounts[advance.EntryFee])

	assert.Equal(t, []advance.EventType{advance.EventApproved, advance.EventDisbursed}, f.sent.types())

	// Paid out but not yet recovered, so it still holds the limit.
	e, err := f.svc.Eligibility(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(400_000), e.Limit)
}

func TestDisburseKeepsRailReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 100_000)
	_, err := f.svc.Approve(ctx, r.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)

	paid, err := f.svc.Disburse(ctx, r.ID, advance.SystemActor("rail"), "MPESA-QX12")
	require.NoError(t, err)
	assert.Equal(t, "MPESA-QX12", paid.Reference)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 100_000)

	_, err := f.svc.Disburse(ctx, r.ID, advance.SystemActor("rail"), "")
	assert.ErrorIs(t, err, advance.ErrInvalidTransition)
	assert.Equal(t, advance.CodeInvalidTransition, advance.CodeOf(err))

	rejected, err := f.svc.Reject(ctx, r.ID, advance.ReviewerActor("admin-1"), "", "missing payslip")
	require.NoError(t, err)
	assert.Equal(t, advance.ReasonReviewerDeclined, rejected.RejectReason)
	assert.Equal(t, "missing payslip", rejected.RejectNote)

	_, err = f.svc.Approve(ctx, r.ID, advance.ReviewerActor("admin-1"))
	assert.ErrorIs(t, err, advance.ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, r.ID, advance.ReviewerActor("admin-1"), "", "")
	assert.ErrorIs(t, err, advance.ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, stored.Status)
	assert.Len(t, stored.History, 2)

	_, err = f.svc.Approve(ctx, "missing", advance.ReviewerActor("admin-1"))
	assert.ErrorIs(t, err, advance.ErrNotFound)
}

func TestRejectApprovedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 100_000)
	_, err := f.svc.Approve(ctx, r.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)

	got, err := f.svc.Reject(ctx, r.ID, advance.SystemActor("rail"), advance.ReasonFraudRule, "rail flagged destination")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, got.Status)
	assert.Equal(t, advance.ReasonFraudRule, got.RejectReason)
}

// racingStore runs between once, after a request is read and before the
// caller gets it back.
type racingStore struct {
	*store.Memory
	between func()
}

func (s *racingStore) Request(ctx context.Context, id string) (advance.Request, error) {
	r, err := s.Memory.Request(ctx, id)
	if fn := s.between; fn != nil {
		s.between = nil
		fn()
	}
	return r, err
}

func TestInterleavedReviewKeepsEveryTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 100_000)

	racing := &racingStore{Memory: f.mem, between: func() {
		_, err := f.svc.Approve(ctx, r.ID, advance.ReviewerActor("admin-1"))
		require.NoError(t, err)
	}}
	svc := advance.NewService(racing, f.policies, advance.WithClock(f.clock.Now))

	got, err := svc.Reject(ctx, r.ID, advance.ReviewerActor("admin-2"), advance.ReasonFraudRule, "late flag")
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	for _, h := range [][]advance.Transition{got.History, stored.History} {
		require.Len(t, h, 3)
		assert.Equal(t, advance.StatusApproved, h[1].To)
		assert.Equal(t, advance.StatusApproved, h[2].From)
		assert.Equal(t, advance.StatusRejected, h[2].To)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.submit(t, 100_000)
	kept := f.submit(t, 100_000)
	_, err := f.svc.Approve(ctx, kept.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	fresh := f.submit(t, 100_000)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(25 * time.Hour)
	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, advance.StatusRejected, got.Status)
	assert.Equal(t, advance.ReasonTimeout, got.RejectReason)
	assert.Equal(t, advance.SystemActor("sweep"), got.History[len(got.History)-1].Actor)

	for id, want := range map[string]advance.Status{kept.ID: advance.StatusApproved, fresh.ID: advance.StatusPending} {
		got, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	_, err = f.svc.Expire(ctx, kept.ID)
	assert.ErrorIs(t, err, advance.ErrInvalidTransition)
}

func TestAutoReview(t *testing.T) {
	approve := reviewerFunc(func(in advance.ReviewInput) (advance.Verdict, error) {
		assert.Equal(t, 1, in.Requests24h)
		assert.Equal(t, money.Amount(500_000), in.Limit)
		return advance.Verdict{Action: advance.ActionApprove, Rule: "small_amount"}, nil
	})
	f := newFixture(t, advance.WithReviewer(approve))
	r := f.submit(t, 100_000)
	assert.Equal(t, advance.StatusApproved, r.Status)
	assert.Equal(t, advance.SystemActor("auto-review"), r.History[1].Actor)
	assert.Equal(t, []advance.EventType{advance.EventApproved}, f.sent.types())

	reject := reviewerFunc(func(advance.ReviewInput) (advance.Verdict, error) {
		return advance.Verdict{Action: advance.ActionReject, Rule: "velocity"}, nil
	})
	f = newFixture(t, advance.WithReviewer(reject))
	r = f.submit(t, 100_000)
	assert.Equal(t, advance.StatusRejected, r.Status)
	assert.Equal(t, advance.ReasonFraudRule, r.RejectReason)
	assert.Equal(t, "velocity", r.RejectNote)

	broken := reviewerFunc(func(advance.ReviewInput) (advance.Verdict, error) {
		return advance.Verdict{}, errors.New("cel: no such key")
	})
	f = newFixture(t, advance.WithReviewer(broken))
	r = f.submit(t, 100_000)
	assert.Equal(t, advance.StatusPending, r.Status)
}

func TestNotifierFailureDoesNotUndoTransition(t *testing.T) {
	f := newFixture(t)
	f.sent.err = errors.New("queue down")
	r := f.submit(t, 100_000)

	got, err := f.svc.Approve(context.Background(), r.ID, advance.ReviewerActor("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, advance.StatusApproved, got.Status)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	bd, err := f.svc.Quote(context.Background(), "w-1", 100_000)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(95_420), bd.NetPayout)

	reqs, err := f.svc.List(context.Background(), advance.Filter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestQuoteMatchesSubmitAfterOpenRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, 300_000)

	_, err := f.svc.Quote(ctx, "w-1", 300_000)
	var re *advance.RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, advance.ReasonLimitExceeded, re.Reason)

	_, submitErr := f.svc.Submit(ctx, advance.SubmitInput{
		WorkerID: "w-1", Amount: 300_000, Method: advance.MethodMobileMoney, Destination: "+254700000001",
	})
	assert.Equal(t, err.Error(), submitErr.Error())

	bd, err := f.svc.Quote(ctx, "w-1", 200_000)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(200_000), bd.RequestedAmount)
}

type brokenProvider struct{}

func (brokenProvider) Policy(context.Context) (*policy.Policy, error) {
	p := policy.Default()
	p.AccessibleFraction = decimal.Zero
	return p, nil
}

func TestInvalidPolicyIsAnIntegrationError(t *testing.T) {
	mem := store.NewMemory()
	svc := advance.NewService(mem, brokenProvider{})
	_, err := svc.Quote(context.Background(), "w-1", 100)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
	assert.Equal(t, advance.Code(""), advance.CodeOf(err))
}
