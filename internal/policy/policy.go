// Package policy holds the pricing and sizing rules for wage advances.
// Values that used to drift between surfaces (accessible fraction, fee
// range, processing fee) live in one Policy object handed to the engine.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eaziwage/ewa/internal/money"
)

// ErrInvalidPolicy reports a missing or inconsistent policy. It is an
// integration error, never a business outcome.
var ErrInvalidPolicy = errors.New("invalid advance policy")

// Policy is one snapshot of the risk/pricing configuration.
type Policy struct {
	Currency string
	// Scale is the number of minor-unit digits (2 for KES, 0 for UGX).
	Scale int32

	// AccessibleFraction is the share of earned wages a worker may draw.
	AccessibleFraction decimal.Decimal

	Curve         FeeCurve
	MinFeePercent decimal.Decimal
	MaxFeePercent decimal.Decimal

	FixedFee FixedFee

	// PendingTimeout is how long a request may wait for review before the
	// sweep rejects it. Zero disables the sweep.
	PendingTimeout time.Duration

	AutoReview AutoReview
}

// FixedFee is the flat per-transaction charge, published in a reference
// currency and converted into the settlement currency.
type FixedFee struct {
	Reference         decimal.Decimal
	ReferenceCurrency string
	Rate              decimal.Decimal
}

// AutoReview carries the CEL expressions run right after submission.
type AutoReview struct {
	Approve string
	Reject  []Rule
}

// Rule is a named boolean expression.
type Rule struct {
	Name string
	Expr string
}

// FeePercent maps a risk score onto the fee percentage (4.5 means 4.5%),
// clamped to the published range.
func (p *Policy) FeePercent(riskScore float64) decimal.Decimal {
	pct := p.Curve.Percent(riskScore)
	if pct.LessThan(p.MinFeePercent) {
		return p.MinFeePercent
	}
	if pct.GreaterThan(p.MaxFeePercent) {
		return p.MaxFeePercent
	}
	return pct
}

// FixedFeeMinor converts the processing fee to settlement minor units.
func (p *Policy) FixedFeeMinor() money.Amount {
	return money.FromDecimal(p.FixedFee.Reference.Mul(p.FixedFee.Rate), p.Scale)
}

// Validate checks the invariants the engine relies on.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: policy is nil", ErrInvalidPolicy)
	}
	var problems []string
	if strings.TrimSpace(p.Currency) == "" {
		problems = append(problems, "currency is required")
	}
	if p.Scale < 0 || p.Scale > 4 {
		problems = append(problems, fmt.Sprintf("scale %d out of range", p.Scale))
	}
	if !p.AccessibleFraction.IsPositive() || p.AccessibleFraction.GreaterThan(decimal.NewFromInt(1)) {
		problems = append(problems, "accessible_fraction must be in (0, 1]")
	}
	if p.Curve == nil {
		problems = append(problems, "fee curve is required")
	} else if err := p.Curve.validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if p.MinFeePercent.IsNegative() || p.MaxFeePercent.LessThan(p.MinFeePercent) {
		problems = append(problems, "fee range must satisfy 0 <= min <= max")
	}
	if p.FixedFee.Reference.IsNegative() {
		problems = append(problems, "fixed fee must not be negative")
	}
	if !p.FixedFee.Rate.IsPositive() {
		problems = append(problems, "fixed_fee.rate must be positive")
	}
	if p.PendingTimeout < 0 {
		problems = append(problems, "pending_timeout must not be negative")
	}
	for i, r := range p.AutoReview.Reject {
		if r.Name == "" || r.Expr == "" {
			problems = append(problems, fmt.Sprintf("auto_review.reject[%d] needs name and expr", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, strings.Join(problems, "; "))
	}
	return nil
}

// Default is the policy used when no file is configured: KES, half of earned
// wages, 3.5–6.5% by risk band and a USD 0.80 processing fee.
func Default() *Policy {
	return &Policy{
		Currency:           "KES",
		Scale:              2,
		AccessibleFraction: decimal.RequireFromString("0.5"),
		Curve: StepCurve{Steps: []Step{
			{MaxScore: 1.5, Percent: decimal.RequireFromString("3.5")},
			{MaxScore: 2.5, Percent: decimal.RequireFromString("4.0")},
			{MaxScore: 3.0, Percent: decimal.RequireFromString("4.5")},
			{MaxScore: 3.5, Percent: decimal.RequireFromString("5.0")},
			{MaxScore: 4.0, Percent: decimal.RequireFromString("5.5")},
			{MaxScore: 4.5, Percent: decimal.RequireFromString("6.0")},
			{MaxScore: 5.0, Percent: decimal.RequireFromString("6.5")},
		}},
		MinFeePercent: decimal.RequireFromString("3.5"),
		MaxFeePercent: decimal.RequireFromString("6.5"),
		FixedFee: FixedFee{
			Reference:         decimal.RequireFromString("0.80"),
			ReferenceCurrency: "USD",
			Rate:              decimal.NewFromInt(155),
		},
		PendingTimeout: 72 * time.Hour,
	}
}
