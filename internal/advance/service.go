package advance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/policy"
)

// Notifier receives status changes after they are committed. Delivery is
// best effort; a failure never rolls back a transition.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Reviewer is consulted right after a request is created and may approve or
// reject it automatically.
type Reviewer interface {
	Review(ctx context.Context, in ReviewInput) (Verdict, error)
}

// ReviewInput is what automated review rules can see.
type ReviewInput struct {
	Request      Request
	Worker       Worker
	Requests24h  int
	OpenRequests int
	Consumed     money.Amount
	Limit        money.Amount
}

type Action string

const (
	ActionNone    Action = ""
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Verdict is the reviewer's decision; Rule names the rule that fired.
type Verdict struct {
	Action Action
	Rule   string
}

// SubmitInput is a worker's advance request.
type SubmitInput struct {
	WorkerID    string
	Amount      money.Amount
	Method      Method
	Destination string
	Purpose     string
}

// Service runs the eligibility, pricing and lifecycle rules against a Store.
type Service struct {
	store    Store
	policies policy.Provider
	notifier Notifier
	reviewer Reviewer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithReviewer(r Reviewer) Option { return func(s *Service) { s.reviewer = r } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, policies policy.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		policies: policies,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) policy(ctx context.Context) (*policy.Policy, error) {
	p, err := s.policies.Policy(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Eligibility evaluates a worker without reserving anything. The returned
// limit is reduced by what the worker's requests already hold.
func (s *Service) Eligibility(ctx context.Context, workerID string) (Eligibility, error) {
	p, err := s.policy(ctx)
	if err != nil {
		return Eligibility{}, err
	}
	w, err := s.store.Worker(ctx, workerID)
	if err != nil {
		return Eligibility{}, err
	}
	reqs, err := s.store.Requests(ctx, Filter{WorkerID: workerID})
	if err != nil {
		return Eligibility{}, err
	}
	e := Evaluate(w, p)
	available := e.Limit - Consumed(reqs, "")
	if available < 0 {
		available = 0
	}
	e.Limit = available
	if e.Eligible && available == 0 {
		e.Eligible = false
		e.Reason = ReasonNoAvailableLimit
	}
	return e, nil
}

// Quote prices an amount for the worker without creating anything. It runs
// the same checks as Submit, against the requests the worker already holds.
func (s *Service) Quote(ctx context.Context, workerID string, amount money.Amount) (Breakdown, error) {
	p, err := s.policy(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	w, err := s.store.Worker(ctx, workerID)
	if err != nil {
		return Breakdown{}, err
	}
	if e := Evaluate(w, p); !e.Eligible {
		return Breakdown{}, notEligible(e.Reason)
	}
	bd, err := ComputeAdvance(w, p, amount)
	if err != nil {
		return Breakdown{}, err
	}
	reqs, err := s.store.Requests(ctx, Filter{WorkerID: workerID})
	if err != nil {
		return Breakdown{}, err
	}
	if err := checkAvailable(w, p, reqs, amount); err != nil {
		return Breakdown{}, err
	}
	return bd, nil
}

// checkAvailable fails with LIMIT_EXCEEDED when amount does not fit next to
// the open and outstanding requests in reqs.
func checkAvailable(w Worker, p *policy.Policy, reqs []Request, amount money.Amount) error {
	limit := AdvanceableLimit(w, p)
	consumed := Consumed(reqs, "")
	if consumed+amount > limit {
		return validationError(ReasonLimitExceeded, "amount %s exceeds available limit %s",
			amount.Format(p.Scale), (limit - consumed).Format(p.Scale))
	}
	return nil
}

// Submit creates a pending request. The eligibility and limit checks and the
// insert are atomic per worker.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Request, error) {
	if !in.Method.Valid() {
		return Request{}, validationError(ReasonInvalidMethod, "unknown disbursement method %q", in.Method)
	}
	if strings.TrimSpace(in.Destination) == "" {
		return Request{}, validationError(ReasonInvalidMethod, "destination is required for %s", in.Method)
	}
	p, err := s.policy(ctx)
	if err != nil {
		return Request{}, err
	}

	var (
		created Request
		events  []Event
	)
	err = s.store.WithWorker(ctx, in.WorkerID, func(ctx context.Context, tx WorkerTx) error {
		events = events[:0]
		w := tx.Worker()
		if e := Evaluate(w, p); !e.Eligible {
			return notEligible(e.Reason)
		}
		bd, err := ComputeAdvance(w, p, in.Amount)
		if err != nil {
			return err
		}
		reqs, err := tx.Requests(ctx)
		if err != nil {
			return err
		}
		if err := checkAvailable(w, p, reqs, in.Amount); err != nil {
			return err
		}
		limit := AdvanceableLimit(w, p)
		consumed := Consumed(reqs, "")

		now := s.now().UTC()
		r := Request{
			ID:          s.newID(),
			WorkerID:    w.ID,
			EmployerID:  w.EmployerID,
			Currency:    bd.Currency,
			Scale:       bd.Scale,
			Amount:      bd.RequestedAmount,
			Method:      in.Method,
			Destination: strings.TrimSpace(in.Destination),
			Purpose:     in.Purpose,
			FeePercent:  bd.FeePercent,
			FeeAmount:   bd.FeeAmount,
			FixedFee:    bd.FixedFee,
			NetPayout:   bd.NetPayout,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
			History:     []Transition{{To: StatusPending, Actor: WorkerActor(w.ID), At: now}},
		}
		if err := tx.Insert(ctx, &r); err != nil {
			return err
		}
		if err := tx.Record(ctx, Entry{
			ID:        s.newID(),
			WorkerID:  w.ID,
			Type:      EntryAdvanceRequest,
			Amount:    r.Amount,
			Reference: r.ID,
			Status:    string(StatusPending),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		verdict := s.review(ctx, ReviewInput{
			Request:      r,
			Worker:       w,
			Requests24h:  countSince(reqs, now.Add(-24*time.Hour)) + 1,
			OpenRequests: countOpen(reqs) + 1,
			Consumed:     consumed,
			Limit:        limit,
		})
		switch verdict.Action {
		case ActionApprove:
			ev, err := s.approveLocked(ctx, tx, p, &r, SystemActor("auto-review"))
			if err != nil {
				return err
			}
			events = append(events, ev)
		case ActionReject:
			t, err := apply(&r, StatusRejected, SystemActor("auto-review"), ReasonFraudRule, verdict.Rule, now)
			if err != nil {
				return err
			}
			if err := tx.Save(ctx, &r, t); err != nil {
				return err
			}
			events = append(events, Event{Type: EventRejected, Request: r, Worker: w, At: now})
		}
		created = r
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.logger.InfoContext(ctx, "advance submitted",
		"request_id", created.ID, "worker_id", created.WorkerID,
		"amount", created.Amount.Format(created.Scale), "status", created.Status)
	s.publish(ctx, events)
	return created, nil
}

// Approve re-validates the worker and moves a pending request to approved.
// If the worker no longer qualifies, or the amount no longer fits, the
// request is rejected with LIMIT_EXCEEDED_AT_APPROVAL instead and returned
// without error.
func (s *Service) Approve(ctx context.Context, id string, actor Actor) (Request, error) {
	p, err := s.policy(ctx)
	if err != nil {
		return Request{}, err
	}
	return s.transition(ctx, id, func(ctx context.Context, tx WorkerTx, r *Request) (Event, error) {
		return s.approveLocked(ctx, tx, p, r, actor)
	})
}

func (s *Service) approveLocked(ctx context.Context, tx WorkerTx, p *policy.Policy, r *Request, actor Actor) (Event, error) {
	if !CanTransition(r.Status, StatusApproved) {
		return Event{}, &TransitionError{ID: r.ID, From: r.Status, To: StatusApproved}
	}
	w := tx.Worker()
	reqs, err := tx.Requests(ctx)
	if err != nil {
		return Event{}, err
	}
	now := s.now().UTC()
	e := Evaluate(w, p)
	available := e.Limit - Consumed(reqs, r.ID)

	var note string
	switch {
	case !e.Eligible:
		note = string(e.Reason)
	case r.Amount > available:
		note = fmt.Sprintf("amount %s exceeds available limit %s", r.Amount.Format(r.Scale), available.Format(r.Scale))
	}
	if note != "" {
		t, err := apply(r, StatusRejected, actor, ReasonLimitExceededAtApproval, note, now)
		if err != nil {
			return Event{}, err
		}
		if err := tx.Save(ctx, r, t); err != nil {
			return Event{}, err
		}
		s.logger.WarnContext(ctx, "advance rejected at approval", "request_id", r.ID, "detail", note)
		return Event{Type: EventRejected, Request: *r, Worker: w, At: now}, nil
	}

	t, err := apply(r, StatusApproved, actor, ReasonNone, "", now)
	if err != nil {
		return Event{}, err
	}
	if err := tx.Save(ctx, r, t); err != nil {
		return Event{}, err
	}
	return Event{Type: EventApproved, Request: *r, Worker: w, At: now}, nil
}

// Reject moves a pending or approved request to rejected.
func (s *Service) Reject(ctx context.Context, id string, actor Actor, reason Reason, note string) (Request, error) {
	if reason == ReasonNone {
		reason = ReasonReviewerDeclined
	}
	return s.transition(ctx, id, func(ctx context.Context, tx WorkerTx, r *Request) (Event, error) {
		now := s.now().UTC()
		t, err := apply(r, StatusRejected, actor, reason, note, now)
		if err != nil {
			return Event{}, err
		}
		if err := tx.Save(ctx, r, t); err != nil {
			return Event{}, err
		}
		return Event{Type: EventRejected, Request: *r, Worker: tx.Worker(), At: now}, nil
	})
}

// Expire rejects a request that has been pending for too long.
func (s *Service) Expire(ctx context.Context, id string) (Request, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx WorkerTx, r *Request) (Event, error) {
		if r.Status != StatusPending {
			return Event{}, &TransitionError{ID: r.ID, From: r.Status, To: StatusRejected}
		}
		now := s.now().UTC()
		t, err := apply(r, StatusRejected, SystemActor("sweep"), ReasonTimeout, "", now)
		if err != nil {
			return Event{}, err
		}
		if err := tx.Save(ctx, r, t); err != nil {
			return Event{}, err
		}
		return Event{Type: EventRejected, Request: *r, Worker: tx.Worker(), At: now}, nil
	})
}

// ExpireStale rejects every request pending for longer than the policy
// timeout and returns how many it moved.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	p, err := s.policy(ctx)
	if err != nil {
		return 0, err
	}
	if p.PendingTimeout == 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-p.PendingTimeout)
	stale, err := s.store.Requests(ctx, Filter{Status: StatusPending, CreatedBefore: cutoff})
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, r := range stale {
		if _, err := s.Expire(ctx, r.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// Reviewed between the listing and the lock.
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale advances", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}

// Disburse records the payout of an approved request, schedules its payroll
// deduction and writes the ledger rows. An empty reference gets a generated
// one.
func (s *Service) Disburse(ctx context.Context, id string, actor Actor, reference string) (Request, error) {
	return s.transition(ctx, id, func(ctx context.Context, tx WorkerTx, r *Request) (Event, error) {
		now := s.now().UTC()
		t, err := apply(r, StatusDisbursed, actor, ReasonNone, "", now)
		if err != nil {
			return Event{}, err
		}
		if reference == "" {
			reference = Reference(r.ID, now)
		}
		r.Reference = reference
		if err := tx.Save(ctx, r, t); err != nil {
			return Event{}, err
		}
		if err := tx.ScheduleDeduction(ctx, Deduction{
			ID:         s.newID(),
			RequestID:  r.ID,
			WorkerID:   r.WorkerID,
			EmployerID: r.EmployerID,
			Amount:     r.Amount,
			Status:     DeductionScheduled,
			CreatedAt:  now,
		}); err != nil {
			return Event{}, err
		}
		for _, e := range []Entry{
			{Type: EntryDisbursement, Amount: r.NetPayout},
			{Type: EntryFee, Amount: r.TotalFee()},
		} {
			e.ID = s.newID()
			e.WorkerID = r.WorkerID
			e.Reference = reference
			e.Status = "completed"
			e.CreatedAt = now
			if err := tx.Record(ctx, e); err != nil {
				return Event{}, err
			}
		}
		return Event{Type: EventDisbursed, Request: *r, Worker: tx.Worker(), At: now}, nil
	})
}

// Reference builds the rail reference for a payout, e.g.
// EW-20260101093000-1a2b3c4d.
func Reference(requestID string, at time.Time) string {
	short := strings.ReplaceAll(requestID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return "EW-" + at.UTC().Format("20060102150405") + "-" + short
}

// Get returns one request with its history.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.store.Request(ctx, id)
}

// List returns requests matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Request, error) {
	return s.store.Requests(ctx, f)
}

// Ledger returns the worker's transaction rows, newest first.
func (s *Service) Ledger(ctx context.Context, workerID string) ([]Entry, error) {
	return s.store.Entries(ctx, workerID)
}

type step func(ctx context.Context, tx WorkerTx, r *Request) (Event, error)

// transition loads the request, locks its worker, reloads the request under
// the lock and runs fn. The resulting event is published after commit.
func (s *Service) transition(ctx context.Context, id string, fn step) (Request, error) {
	current, err := s.store.Request(ctx, id)
	if err != nil {
		return Request{}, err
	}
	var (
		out Request
		ev  Event
	)
	err = s.store.WithWorker(ctx, current.WorkerID, func(ctx context.Context, tx WorkerTx) error {
		r, err := tx.Request(ctx, id)
		if err != nil {
			return err
		}
		if ev, err = fn(ctx, tx, &r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.logger.InfoContext(ctx, "advance transition",
		"request_id", out.ID, "status", out.Status, "reason", out.RejectReason)
	s.publish(ctx, []Event{ev})
	return out, nil
}

func (s *Service) review(ctx context.Context, in ReviewInput) Verdict {
	if s.reviewer == nil {
		return Verdict{}
	}
	v, err := s.reviewer.Review(ctx, in)
	if err != nil {
		// Leave the request pending for a human.
		s.logger.ErrorContext(ctx, "auto review failed", "request_id", in.Request.ID, "error", err)
		return Verdict{}
	}
	return v
}

func (s *Service) publish(ctx context.Context, events []Event) {
	if s.notifier == nil {
		return
	}
	for _, e := range events {
		if e.Type == "" {
			continue
		}
		if err := s.notifier.Notify(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "notify failed", "type", e.Type, "request_id", e.Request.ID, "error", err)
		}
	}
}

func notEligible(reason Reason) *RuleError {
	return &RuleError{Code: CodeNotEligible, Reason: reason, Message: "worker is not eligible for an advance"}
}

func countSince(reqs []Request, since time.Time) int {
	n := 0
	for _, r := range reqs {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

func countOpen(reqs []Request) int {
	n := 0
	for _, r := range reqs {
		if r.Open() {
			n++
		}
	}
	return n
}
