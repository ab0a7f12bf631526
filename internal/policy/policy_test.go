package policy

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaziwage/ewa/internal/money"
)

const samplePolicy = `
currency: kes
scale: 2
accessible_fraction: "0.6"
fee:
  min_percent: "3.5"
  max_percent: "6.5"
  curve:
    type: step
    steps:
      - max_score: 2.0
        percent: "3.5"
      - max_score: 3.0
        percent: "4.5"
      - max_score: 5.0
        percent: "6.5"
fixed_fee:
  reference: "0.80"
  reference_currency: usd
  rate: "155"
pending_timeout: 48h
auto_review:
  approve: "request.amount <= 100000"
  reject:
    - name: velocity
      expr: "history.requests_24h >= 3"
`

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefaultFeeBands(t *testing.T) {
	p := Default()
	assert.Equal(t, "3.5", p.FeePercent(1.0).String())
	assert.Equal(t, "4.5", p.FeePercent(3.0).String())
	assert.Equal(t, "6.5", p.FeePercent(5.0).String())
	assert.Equal(t, "6.5", p.FeePercent(9.0).String())
}

func TestFixedFeeConversion(t *testing.T) {
	p := Default()
	// USD 0.80 at 155 KES is KES 124.00
	assert.Equal(t, money.Amount(12400), p.FixedFeeMinor())

	// 0.805 sits exactly between two minor units and rounds up.
	p.FixedFee.Reference = decimal.RequireFromString("0.805")
	p.FixedFee.Rate = decimal.NewFromInt(1)
	assert.Equal(t, money.Amount(81), p.FixedFeeMinor())
	p.FixedFee.Reference = decimal.RequireFromString("0.0025")
	p.FixedFee.Rate = decimal.NewFromInt(2)
	assert.Equal(t, money.Amount(1), p.FixedFeeMinor())
}

func TestValidateRejectsZeroRate(t *testing.T) {
	p := Default()
	p.FixedFee.Rate = decimal.Zero
	err := p.Validate()
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Contains(t, err.Error(), "fixed_fee.rate")

	p.FixedFee.Rate = decimal.NewFromInt(-1)
	assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
}

func TestFeePercentNonFiniteScore(t *testing.T) {
	linear := LinearCurve{
		From: Point{Score: 1, Percent: decimal.RequireFromString("3.5")},
		To:   Point{Score: 5, Percent: decimal.RequireFromString("6.5")},
	}
	assert.NotPanics(t, func() { linear.Percent(math.NaN()) })
	assert.Equal(t, "6.5", linear.Percent(math.NaN()).String())
	assert.Equal(t, "6.5", linear.Percent(math.Inf(1)).String())
	assert.Equal(t, "3.5", linear.Percent(math.Inf(-1)).String())

	p := Default()
	assert.True(t, p.FeePercent(math.NaN()).Equal(p.MaxFeePercent))
	p.Curve = linear
	assert.True(t, p.FeePercent(math.NaN()).Equal(p.MaxFeePercent))
}

func TestFeePercentClamped(t *testing.T) {
	p := Default()
	p.Curve = LinearCurve{
		From: Point{Score: 1, Percent: decimal.NewFromInt(2)},
		To:   Point{Score: 5, Percent: decimal.NewFromInt(10)},
	}
	assert.True(t, p.FeePercent(1).Equal(decimal.RequireFromString("3.5")))
	assert.True(t, p.FeePercent(5).Equal(decimal.RequireFromString("6.5")))
	assert.True(t, p.FeePercent(2).Equal(decimal.NewFromInt(4)))
}

func TestLinearCurveInterpolates(t *testing.T) {
	c := LinearCurve{
		From: Point{Score: 1, Percent: decimal.RequireFromString("3.5")},
		To:   Point{Score: 5, Percent: decimal.RequireFromString("6.5")},
	}
	assert.True(t, c.Percent(3).Equal(decimal.NewFromInt(5)))
	assert.True(t, c.Percent(0).Equal(decimal.RequireFromString("3.5")))
	assert.True(t, c.Percent(7).Equal(decimal.RequireFromString("6.5")))
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	cases := map[string]func(p *Policy){
		"zero fraction":   func(p *Policy) { p.AccessibleFraction = decimal.Zero },
		"fraction > 1":    func(p *Policy) { p.AccessibleFraction = decimal.RequireFromString("1.2") },
		"missing curve":   func(p *Policy) { p.Curve = nil },
		"inverted range":  func(p *Policy) { p.MinFeePercent = decimal.NewFromInt(9) },
		"missing currency": func(p *Policy) { p.Currency = "" },
		"decreasing steps": func(p *Policy) {
			p.Curve = StepCurve{Steps: []Step{
				{MaxScore: 2, Percent: decimal.NewFromInt(5)},
				{MaxScore: 3, Percent: decimal.NewFromInt(4)},
			}}
		},
		"unnamed rule": func(p *Policy) { p.AutoReview.Reject = []Rule{{Expr: "true"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := Default()
			mutate(p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
		})
	}
	var nilPolicy *Policy
	assert.ErrorIs(t, nilPolicy.Validate(), ErrInvalidPolicy)
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	require.NoError(t, err)

	assert.Equal(t, "KES", p.Currency)
	assert.Equal(t, int32(2), p.Scale)
	assert.Equal(t, "0.6", p.AccessibleFraction.String())
	assert.Equal(t, 48*time.Hour, p.PendingTimeout)
	assert.Equal(t, "4.5", p.FeePercent(2.5).String())
	assert.Equal(t, money.Amount(12400), p.FixedFeeMinor())
	assert.Equal(t, "request.amount <= 100000", p.AutoReview.Approve)
	require.Len(t, p.AutoReview.Reject, 1)
	assert.Equal(t, "velocity", p.AutoReview.Reject[0].Name)
}

func TestParseLinear(t *testing.T) {
	doc := `
currency: UGX
scale: 0
accessible_fraction: "0.5"
fee:
  min_percent: "3.5"
  max_percent: "6.5"
  curve:
    type: linear
    from: {score: 1, percent: "3.5"}
    to: {score: 5, percent: "6.5"}
fixed_fee:
  reference: "0.80"
  rate: "3750"
`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(3000), p.FixedFeeMinor())
	assert.Equal(t, "5", p.FeePercent(3).String())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("currency: [unterminated"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = Parse([]byte(`
currency: KES
accessible_fraction: "abc"
`))
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = Parse([]byte(`
currency: KES
accessible_fraction: "0.5"
fee: {min_percent: "1", max_percent: "2", curve: {type: cubic}}
`))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestFileProviderReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o600))

	f, err := NewFile(path)
	require.NoError(t, err)
	p, err := f.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.6", p.AccessibleFraction.String())

	updated := []byte(strings.Replace(samplePolicy, `accessible_fraction: "0.6"`, `accessible_fraction: "0.5"`, 1))
	require.NoError(t, os.WriteFile(path, updated, 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	p, err = f.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.5", p.AccessibleFraction.String())

	require.NoError(t, os.WriteFile(path, []byte("currency: ''"), 0o600))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	_, err = f.Policy(context.Background())
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestNewStaticValidates(t *testing.T) {
	_, err := NewStatic(&Policy{})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	s, err := NewStatic(Default())
	require.NoError(t, err)
	p, err := s.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "KES", p.Currency)
}
