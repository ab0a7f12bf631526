package advance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/ewa/internal/money"
)

type EmploymentStatus string

const (
	EmploymentPending    EmploymentStatus = "pending"
	EmploymentApproved   EmploymentStatus = "approved"
	EmploymentSuspended  EmploymentStatus = "suspended"
	EmploymentTerminated EmploymentStatus = "terminated"
)

// Valid reports whether s is a known employment status.
func (s EmploymentStatus) Valid() bool {
	switch s {
	case EmploymentPending, EmploymentApproved, EmploymentSuspended, EmploymentTerminated:
		return true
	}
	return false
}

type KycStatus string

const (
	KycNotStarted KycStatus = "not_started"
	KycSubmitted  KycStatus = "submitted"
	KycApproved   KycStatus = "approved"
	KycRejected   KycStatus = "rejected"
)

func (s KycStatus) Valid() bool {
	switch s {
	case KycNotStarted, KycSubmitted, KycApproved, KycRejected:
		return true
	}
	return false
}

// Status is the lifecycle state of an advance request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDisbursed Status = "disbursed"
	StatusRejected  Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDisbursed, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusDisbursed || s == StatusRejected
}

// Method is how the net payout reaches the worker.
type Method string

const (
	MethodMobileMoney  Method = "mobile_money"
	MethodBankTransfer Method = "bank_transfer"
)

func (m Method) Valid() bool {
	return m == MethodMobileMoney || m == MethodBankTransfer
}

// Reason explains an ineligibility or a rejection.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonNotApproved             Reason = "NOT_APPROVED"
	ReasonKycPending              Reason = "KYC_PENDING"
	ReasonKycRejected             Reason = "KYC_REJECTED"
	ReasonNoAvailableLimit        Reason = "NO_AVAILABLE_LIMIT"
	ReasonLimitExceeded           Reason = "LIMIT_EXCEEDED"
	ReasonNonPositiveAmount       Reason = "NON_POSITIVE_AMOUNT"
	ReasonInvalidMethod           Reason = "INVALID_DISBURSEMENT_METHOD"
	ReasonLimitExceededAtApproval Reason = "LIMIT_EXCEEDED_AT_APPROVAL"
	ReasonTimeout                 Reason = "TIMEOUT"
	ReasonReviewerDeclined        Reason = "REVIEWER_DECLINED"
	ReasonFraudRule               Reason = "FRAUD_RULE"
)

// Actor identifies who caused a transition, e.g. "worker:<id>",
// "admin:<id>", "system:sweep".
type Actor string

func WorkerActor(id string) Actor { return Actor("worker:" + id) }
func ReviewerActor(id string) Actor { return Actor("admin:" + id) }
func SystemActor(job string) Actor { return Actor("system:" + job) }

// Worker is the read-only snapshot of a worker account taken for one
// computation.
type Worker struct {
	ID               string           `json:"id"`
	EmployerID       string           `json:"employer_id"`
	FullName         string           `json:"full_name"`
	Email            string           `json:"email"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	KycStatus        KycStatus        `json:"kyc_status"`
	EarnedWages      money.Amount     `json:"earned_wages"`
	RiskScore        float64          `json:"risk_score"`
	// LimitCap is the employer-configured ceiling; nil means unlimited.
	LimitCap       *money.Amount `json:"limit_cap,omitempty"`
	CycleStartedAt time.Time     `json:"cycle_started_at"`
}

// Breakdown is the priced view of a requested amount. All money values are
// in minor units of Currency.
type Breakdown struct {
	Currency        string          `json:"currency"`
	Scale           int32           `json:"-"`
	RequestedAmount money.Amount    `json:"requested_amount"`
	FeePercent      decimal.Decimal `json:"fee_percentage"`
	FeeAmount       money.Amount    `json:"fee_amount"`
	FixedFee        money.Amount    `json:"fixed_processing_fee"`
	TotalFee        money.Amount    `json:"total_fee"`
	NetPayout       money.Amount    `json:"net_payout"`
}

// Transition is one audited status change.
type Transition struct {
	From   Status    `json:"from,omitempty"`
	To     Status    `json:"to"`
	Actor  Actor     `json:"actor"`
	Reason Reason    `json:"reason,omitempty"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Request is an advance request. Fee fields are frozen at creation.
type Request struct {
	ID          string       `json:"id"`
	WorkerID    string       `json:"worker_id"`
	EmployerID  string       `json:"employer_id"`
	Currency    string       `json:"currency"`
	Scale       int32        `json:"scale"`
	Amount      money.Amount `json:"amount"`
	Method      Method       `json:"disbursement_method"`
	Destination string       `json:"destination"`
	Purpose     string       `json:"purpose,omitempty"`

	FeePercent decimal.Decimal `json:"fee_percentage"`
	FeeAmount  money.Amount    `json:"fee_amount"`
	FixedFee   money.Amount    `json:"fixed_processing_fee"`
	NetPayout  money.Amount    `json:"net_payout"`

	Status       Status `json:"status"`
	RejectReason Reason `json:"reject_reason,omitempty"`
	RejectNote   string `json:"reject_note,omitempty"`
	Reference    string `json:"disbursement_reference,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// SettledAt is set once the payroll deduction for a disbursed advance
	// has been taken.
	SettledAt *time.Time `json:"settled_at,omitempty"`

	History []Transition `json:"history,omitempty"`
}

// TotalFee is the variable fee plus the processing fee.
func (r Request) TotalFee() money.Amount {
	return r.FeeAmount + r.FixedFee
}

// Open reports whether r still reserves part of the worker's limit.
func (r Request) Open() bool {
	return r.Status == StatusPending || r.Status == StatusApproved
}

// Outstanding reports whether r was paid out but not yet recovered.
func (r Request) Outstanding() bool {
	return r.Status == StatusDisbursed && r.SettledAt == nil
}

// Deduction instructs payroll to recover an advance in the next run.
type Deduction struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"advance_id"`
	WorkerID   string          `json:"worker_id"`
	EmployerID string          `json:"employer_id"`
	Amount     money.Amount    `json:"amount"`
	Status     DeductionStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	DeductedAt *time.Time      `json:"deducted_at,omitempty"`
}

type DeductionStatus string

const (
	DeductionScheduled DeductionStatus = "scheduled"
	DeductionDeducted  DeductionStatus = "deducted"
)

// Entry is a ledger row shown to the worker.
type Entry struct {
	ID        string       `json:"id"`
	WorkerID  string       `json:"worker_id"`
	Type      EntryType    `json:"type"`
	Amount    money.Amount `json:"amount"`
	Reference string       `json:"reference"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type EntryType string

const (
	EntryAdvanceRequest EntryType = "advance_request"
	EntryDisbursement   EntryType = "disbursement"
	EntryFee            EntryType = "fee"
)

// EventType names the status changes pushed to the notification collaborator.
type EventType string

const (
	EventApproved  EventType = "advance.approved"
	EventRejected  EventType = "advance.rejected"
	EventDisbursed EventType = "advance.disbursed"
)

// Event is a status change for user-facing messaging.
type Event struct {
	Type    EventType `json:"type"`
	Request Request   `json:"request"`
	Worker  Worker    `json:"worker"`
	At      time.Time `json:"at"`
}
