package policy

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type fileSchema struct {
	Currency           string `yaml:"currency"`
	Scale              *int32 `yaml:"scale"`
	AccessibleFraction string `yaml:"accessible_fraction"`
	Fee                struct {
		MinPercent string `yaml:"min_percent"`
		MaxPercent string `yaml:"max_percent"`
		Curve      struct {
			Type  string `yaml:"type"`
			Steps []struct {
				MaxScore float64 `yaml:"max_score"`
				Percent  string  `yaml:"percent"`
			} `yaml:"steps"`
			From pointSchema `yaml:"from"`
			To   pointSchema `yaml:"to"`
		} `yaml:"curve"`
	} `yaml:"fee"`
	FixedFee struct {
		Reference         string `yaml:"reference"`
		ReferenceCurrency string `yaml:"reference_currency"`
		Rate              string `yaml:"rate"`
	} `yaml:"fixed_fee"`
	PendingTimeout string `yaml:"pending_timeout"`
	AutoReview     struct {
		Approve string `yaml:"approve"`
		Reject  []struct {
			Name string `yaml:"name"`
			Expr string `yaml:"expr"`
		} `yaml:"reject"`
	} `yaml:"auto_review"`
}

type pointSchema struct {
	Score   float64 `yaml:"score"`
	Percent string  `yaml:"percent"`
}

// Load reads and validates a YAML policy file.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML policy document.
func Parse(raw []byte) (*Policy, error) {
	var doc fileSchema
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidPolicy, err)
	}

	p := &Policy{Currency: strings.ToUpper(strings.TrimSpace(doc.Currency)), Scale: 2}
	if doc.Scale != nil {
		p.Scale = *doc.Scale
	}

	var err error
	dec := func(field, v string) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		if strings.TrimSpace(v) == "" {
			err = fmt.Errorf("%w: %s is required", ErrInvalidPolicy, field)
			return decimal.Zero
		}
		d, perr := decimal.NewFromString(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, field, perr)
		}
		return d
	}

	p.AccessibleFraction = dec("accessible_fraction", doc.AccessibleFraction)
	p.MinFeePercent = dec("fee.min_percent", doc.Fee.MinPercent)
	p.MaxFeePercent = dec("fee.max_percent", doc.Fee.MaxPercent)

	switch strings.ToLower(doc.Fee.Curve.Type) {
	case "", "step":
		steps := make([]Step, 0, len(doc.Fee.Curve.Steps))
		for i, s := range doc.Fee.Curve.Steps {
			steps = append(steps, Step{
				MaxScore: s.MaxScore,
				Percent:  dec(fmt.Sprintf("fee.curve.steps[%d].percent", i), s.Percent),
			})
		}
		p.Curve = StepCurve{Steps: steps}
	case "linear":
		p.Curve = LinearCurve{
			From: Point{Score: doc.Fee.Curve.From.Score, Percent: dec("fee.curve.from.percent", doc.Fee.Curve.From.Percent)},
			To:   Point{Score: doc.Fee.Curve.To.Score, Percent: dec("fee.curve.to.percent", doc.Fee.Curve.To.Percent)},
		}
	default:
		return nil, fmt.Errorf("%w: unknown fee curve type %q", ErrInvalidPolicy, doc.Fee.Curve.Type)
	}

	p.FixedFee = FixedFee{
		Reference:         dec("fixed_fee.reference", doc.FixedFee.Reference),
		ReferenceCurrency: strings.ToUpper(doc.FixedFee.ReferenceCurrency),
		Rate:              decimal.NewFromInt(1),
	}
	if doc.FixedFee.Rate != "" {
		p.FixedFee.Rate = dec("fixed_fee.rate", doc.FixedFee.Rate)
	}
	if err != nil {
		return nil, err
	}

	if doc.PendingTimeout != "" {
		d, perr := time.ParseDuration(doc.PendingTimeout)
		if perr != nil {
			return nil, fmt.Errorf("%w: pending_timeout: %v", ErrInvalidPolicy, perr)
		}
		p.PendingTimeout = d
	}

	p.AutoReview.Approve = strings.TrimSpace(doc.AutoReview.Approve)
	for _, r := range doc.AutoReview.Reject {
		p.AutoReview.Reject = append(p.AutoReview.Reject, Rule{Name: r.Name, Expr: strings.TrimSpace(r.Expr)})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
