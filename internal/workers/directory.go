// Package workers owns the worker-side records the advance engine reads:
// employment and KYC status, risk score, and earnings for the current pay
// cycle.
package workers

import (
	"context"
	"errors"
	"time"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
)

var (
	ErrEarningsDecreased = errors.New("earned wages cannot decrease within a pay cycle")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrKycTransition     = errors.New("kyc status change not allowed")
	ErrWorkerExists      = errors.New("worker already onboarded")
)

// Directory is the persistence side of the worker registry.
type Directory interface {
	Worker(ctx context.Context, id string) (advance.Worker, error)
	Workers(ctx context.Context, employerID string) ([]advance.Worker, error)
	// CreateWorker inserts a new worker. It returns ErrWorkerExists when the
	// id is taken and never touches the existing row.
	CreateWorker(ctx context.Context, w advance.Worker) error
	SetEmploymentStatus(ctx context.Context, id string, s advance.EmploymentStatus) error
	SetKycStatus(ctx context.Context, id string, s advance.KycStatus) error
	SetRiskScore(ctx context.Context, id string, score float64) error
	SetLimitCap(ctx context.Context, id string, limit *money.Amount) error
	// RaiseEarnings sets the cycle-to-date earnings. It returns
	// ErrEarningsDecreased when earned is below the stored value and
	// advance.ErrWorkerNotFound when the worker is not on employerID's payroll.
	RaiseEarnings(ctx context.Context, employerID, workerID string, earned money.Amount) error
	// CloseCycle settles scheduled deductions and resets earnings for every
	// worker of the employer.
	CloseCycle(ctx context.Context, employerID string, at time.Time) (CycleResult, error)
	Deductions(ctx context.Context, employerID string, status advance.DeductionStatus) ([]advance.Deduction, error)
	// Summary aggregates dashboard numbers; an empty employerID covers all.
	Summary(ctx context.Context, employerID string) (Summary, error)
}

// CycleResult reports what a payroll close did.
type CycleResult struct {
	EmployerID   string       `json:"employer_id"`
	WorkersReset int          `json:"workers_reset"`
	Settled      int          `json:"deductions_settled"`
	Recovered    money.Amount `json:"amount_recovered"`
	ClosedAt     time.Time    `json:"closed_at"`
}

// Summary is the dashboard view for admins and employers.
type Summary struct {
	Workers     int                    `json:"workers"`
	PendingKyc  int                    `json:"pending_kyc"`
	ByStatus    map[advance.Status]int `json:"requests_by_status"`
	Disbursed   money.Amount           `json:"total_disbursed"`
	Outstanding money.Amount           `json:"outstanding"`
	Fees        money.Amount           `json:"fees_earned"`
}
