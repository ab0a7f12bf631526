package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/policy"
	"github.com/eaziwage/ewa/internal/risk"
)

// KycReviewer decides on submitted identity documents.
type KycReviewer interface {
	ReviewKyc(ctx context.Context, workerID string, decision advance.KycStatus, reviewer string) error
}

var kycMoves = map[advance.KycStatus][]advance.KycStatus{
	advance.KycNotStarted: {advance.KycSubmitted},
	advance.KycSubmitted:  {advance.KycApproved, advance.KycRejected},
	advance.KycRejected:   {advance.KycSubmitted},
	advance.KycApproved:   {advance.KycRejected},
}

// daysPerMonth converts a monthly gross salary to a daily rate.
var daysPerMonth = decimal.NewFromInt(30)

type Service struct {
	dir      Directory
	policies policy.Provider
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(dir Directory, policies policy.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, policies: policies, logger: logger, now: time.Now}
}

var _ KycReviewer = (*Service)(nil)

func (s *Service) ReviewKyc(ctx context.Context, workerID string, decision advance.KycStatus, reviewer string) error {
	if !decision.Valid() {
		return fmt.Errorf("%w: kyc %q", ErrInvalidStatus, decision)
	}
	w, err := s.dir.Worker(ctx, workerID)
	if err != nil {
		return err
	}
	allowed := false
	for _, next := range kycMoves[w.KycStatus] {
		if next == decision {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrKycTransition, w.KycStatus, decision)
	}
	if err := s.dir.SetKycStatus(ctx, workerID, decision); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "kyc reviewed", "worker_id", workerID, "status", decision, "reviewer", reviewer)
	return nil
}

// SubmitKyc marks documents as uploaded and waiting for review.
func (s *Service) SubmitKyc(ctx context.Context, workerID string) error {
	return s.ReviewKyc(ctx, workerID, advance.KycSubmitted, "worker:"+workerID)
}

func (s *Service) SetEmploymentStatus(ctx context.Context, workerID string, status advance.EmploymentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: employment %q", ErrInvalidStatus, status)
	}
	if err := s.dir.SetEmploymentStatus(ctx, workerID, status); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "employment status changed", "worker_id", workerID, "status", status)
	return nil
}

// AssessRisk scores a worker from factor scores and stores the resulting
// 1..5 risk score (lower is safer).
func (s *Service) AssessRisk(ctx context.Context, workerID string, scores risk.Scores) (risk.Assessment, error) {
	a, err := risk.Assess(scores)
	if err != nil {
		return risk.Assessment{}, err
	}
	if err := s.dir.SetRiskScore(ctx, workerID, a.RiskScore); err != nil {
		return risk.Assessment{}, err
	}
	s.logger.InfoContext(ctx, "risk assessed", "worker_id", workerID, "composite", a.Composite, "rating", a.Rating, "risk_score", a.RiskScore)
	return a, nil
}

func (s *Service) SetLimitCap(ctx context.Context, workerID string, limit *money.Amount) error {
	if limit != nil && *limit < 0 {
		return fmt.Errorf("%w: limit cap must not be negative", ErrInvalidStatus)
	}
	return s.dir.SetLimitCap(ctx, workerID, limit)
}

// EarningsLine is one row of an employer's attendance upload.
type EarningsLine struct {
	WorkerID    string          `json:"worker_id" validate:"required"`
	GrossSalary decimal.Decimal `json:"gross_salary"`
	DaysWorked  int             `json:"days_worked" validate:"gte=0,lte=31"`
}

// EarningsResult lists accepted rows and per-row failures.
type EarningsResult struct {
	Updated int               `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Earned is gross/30 per day worked, in minor units.
func Earned(gross decimal.Decimal, days int, scale int32) money.Amount {
	return money.FromDecimal(gross.Div(daysPerMonth).Mul(decimal.NewFromInt(int64(days))), scale)
}

// RecordEarnings applies an attendance upload. Rows are independent; one
// bad row does not block the rest.
func (s *Service) RecordEarnings(ctx context.Context, employerID string, lines []EarningsLine) (EarningsResult, error) {
	p, err := s.policies.Policy(ctx)
	if err != nil {
		return EarningsResult{}, err
	}
	res := EarningsResult{Failed: map[string]string{}}
	for _, l := range lines {
		if l.GrossSalary.IsNegative() || l.DaysWorked < 0 || l.DaysWorked > 31 {
			res.Failed[l.WorkerID] = "gross_salary and days_worked must be non-negative, days at most 31"
			continue
		}
		earned := Earned(l.GrossSalary, l.DaysWorked, p.Scale)
		if err := s.dir.RaiseEarnings(ctx, employerID, l.WorkerID, earned); err != nil {
			res.Failed[l.WorkerID] = err.Error()
			continue
		}
		res.Updated++
	}
	s.logger.InfoContext(ctx, "earnings recorded", "employer_id", employerID, "updated", res.Updated, "failed", len(res.Failed))
	if len(res.Failed) == 0 {
		res.Failed = nil
	}
	return res, nil
}

// CloseCycle ends the employer's pay period.
func (s *Service) CloseCycle(ctx context.Context, employerID string) (CycleResult, error) {
	res, err := s.dir.CloseCycle(ctx, employerID, s.now().UTC())
	if err != nil {
		return CycleResult{}, err
	}
	s.logger.InfoContext(ctx, "pay cycle closed", "employer_id", employerID,
		"workers", res.WorkersReset, "settled", res.Settled, "recovered", res.Recovered)
	return res, nil
}

func (s *Service) Worker(ctx context.Context, id string) (advance.Worker, error) {
	return s.dir.Worker(ctx, id)
}

func (s *Service) Workers(ctx context.Context, employerID string) ([]advance.Worker, error) {
	return s.dir.Workers(ctx, employerID)
}

// Onboard registers a new worker. Workers start pending with KYC not
// started and no earnings. An existing worker is left untouched and
// ErrWorkerExists is returned.
func (s *Service) Onboard(ctx context.Context, w advance.Worker) (advance.Worker, error) {
	if w.ID == "" || w.EmployerID == "" {
		return advance.Worker{}, fmt.Errorf("%w: id and employer_id are required", ErrInvalidStatus)
	}
	if w.EmploymentStatus == "" {
		w.EmploymentStatus = advance.EmploymentPending
	}
	if w.KycStatus == "" {
		w.KycStatus = advance.KycNotStarted
	}
	if !w.EmploymentStatus.Valid() || !w.KycStatus.Valid() {
		return advance.Worker{}, fmt.Errorf("%w: %s/%s", ErrInvalidStatus, w.EmploymentStatus, w.KycStatus)
	}
	if w.RiskScore == 0 {
		w.RiskScore = 3
	}
	if w.CycleStartedAt.IsZero() {
		w.CycleStartedAt = s.now().UTC()
	}
	if err := s.dir.CreateWorker(ctx, w); err != nil {
		return advance.Worker{}, err
	}
	return w, nil
}

func (s *Service) Deductions(ctx context.Context, employerID string, status advance.DeductionStatus) ([]advance.Deduction, error) {
	return s.dir.Deductions(ctx, employerID, status)
}

func (s *Service) Summary(ctx context.Context, employerID string) (Summary, error) {
	return s.dir.Summary(ctx, employerID)
}
