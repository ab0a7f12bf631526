package policy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// FeeCurve maps a risk score (lower is better) to a fee percentage.
// Implementations must be monotonic non-decreasing in the score.
type FeeCurve interface {
	Percent(riskScore float64) decimal.Decimal
	validate() error
}

// Step is one band of a StepCurve: scores up to and including MaxScore pay
// Percent.
type Step struct {
	MaxScore float64
	Percent  decimal.Decimal
}

// StepCurve is a banded fee table. Scores above the last band pay the last
// band's percentage.
type StepCurve struct {
	Steps []Step
}

func (c StepCurve) Percent(riskScore float64) decimal.Decimal {
	for _, s := range c.Steps {
		if riskScore <= s.MaxScore {
			return s.Percent
		}
	}
	return c.Steps[len(c.Steps)-1].Percent
}

func (c StepCurve) validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("step curve has no steps")
	}
	for i := 1; i < len(c.Steps); i++ {
		prev, cur := c.Steps[i-1], c.Steps[i]
		if cur.MaxScore <= prev.MaxScore {
			return fmt.Errorf("step curve scores must ascend (step %d)", i)
		}
		if cur.Percent.LessThan(prev.Percent) {
			return fmt.Errorf("step curve percentages must not decrease (step %d)", i)
		}
	}
	return nil
}

// Point anchors a LinearCurve.
type Point struct {
	Score   float64
	Percent decimal.Decimal
}

// LinearCurve interpolates between two points and is flat outside them.
type LinearCurve struct {
	From Point
	To   Point
}

// Percent prices an unknown (NaN) score like the riskiest one.
func (c LinearCurve) Percent(riskScore float64) decimal.Decimal {
	if math.IsNaN(riskScore) || riskScore >= c.To.Score {
		return c.To.Percent
	}
	if riskScore <= c.From.Score {
		return c.From.Percent
	}
	span := decimal.NewFromFloat(c.To.Score - c.From.Score)
	offset := decimal.NewFromFloat(riskScore - c.From.Score)
	rise := c.To.Percent.Sub(c.From.Percent)
	return c.From.Percent.Add(rise.Mul(offset).Div(span)).Round(4)
}

func (c LinearCurve) validate() error {
	if c.To.Score <= c.From.Score {
		return fmt.Errorf("linear curve needs from.score < to.score")
	}
	if c.To.Percent.LessThan(c.From.Percent) {
		return fmt.Errorf("linear curve percentage must not decrease")
	}
	return nil
}
