// Package risk turns reviewer factor scores into the numbers the advance
// engine consumes.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Factor scores run from 1 (worst) to 5 (best).
const (
	MinFactorScore = 1
	MaxFactorScore = 5
)

// ErrNoFactors is returned when none of the submitted factors carry weight.
var ErrNoFactors = errors.New("no weighted factors scored")

// Weights maps category -> factor -> weight.
type Weights map[string]map[string]float64

// EmployeeWeights is the weighting used for individual workers.
var EmployeeWeights = Weights{
	"legal_compliance": {
		"verification_status": 0.15,
		"tax_compliance":      0.10,
		"consent_data_rights": 0.10,
	},
	"financial_health": {
		"account_verification": 0.45,
	},
	"operational": {
		"employment_status":   0.075,
		"employment_contract": 0.075,
		"recent_payslips":     0.025,
		"bank_statements":     0.025,
	},
}

// Scores maps category -> factor -> score.
type Scores map[string]map[string]int

// Assessment is the outcome of scoring one worker.
type Assessment struct {
	Composite float64 `json:"composite_score"`
	Rating    string  `json:"rating"`
	RiskScore float64 `json:"risk_score"`
}

// Composite is the weight-averaged factor score; higher is safer. Factors
// absent from the weights are ignored.
func Composite(scores Scores, weights Weights) (float64, error) {
	var weighted, total float64
	categories := make([]string, 0, len(weights))
	for c := range weights {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		submitted, ok := scores[category]
		if !ok {
			continue
		}
		for factor, weight := range weights[category] {
			score, ok := submitted[factor]
			if !ok {
				continue
			}
			if score < MinFactorScore || score > MaxFactorScore {
				return 0, fmt.Errorf("%s.%s: score %d outside %d..%d", category, factor, score, MinFactorScore, MaxFactorScore)
			}
			weighted += float64(score) * weight
			total += weight
		}
	}
	if total == 0 {
		return 0, ErrNoFactors
	}
	return round2(weighted / total), nil
}

// Rating buckets a composite score: A low risk through D very high risk.
func Rating(composite float64) string {
	switch {
	case composite >= 4.0:
		return "A"
	case composite >= 3.0:
		return "B"
	case composite >= 2.6:
		return "C"
	default:
		return "D"
	}
}

// RiskScore flips the composite onto the engine's scale where lower is
// better, bounded to [1, 5].
func RiskScore(composite float64) float64 {
	s := 6 - composite
	return round2(math.Min(MaxFactorScore, math.Max(MinFactorScore, s)))
}

// Assess scores a worker with EmployeeWeights.
func Assess(scores Scores) (Assessment, error) {
	c, err := Composite(scores, EmployeeWeights)
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{Composite: c, Rating: Rating(c), RiskScore: RiskScore(c)}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
