// Package review runs the automated approve and fraud-reject rules on new
// advance requests. Rules are CEL expressions taken from the active policy.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/policy"
)

var ErrNotBool = errors.New("rule did not evaluate to a bool")

// Evaluator implements advance.Reviewer. Compiled programs are cached by
// expression text, so policy reloads only compile what changed.
type Evaluator struct {
	env      *cel.Env
	policies policy.Provider
	logger   *slog.Logger

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

var _ advance.Reviewer = (*Evaluator)(nil)

func New(policies policy.Provider, logger *slog.Logger) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("worker", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("history", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		env:      env,
		policies: policies,
		logger:   logger,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// Check compiles every rule of p without running it.
func (e *Evaluator) Check(p *policy.Policy) error {
	if p.AutoReview.Approve != "" {
		if _, err := e.program(p.AutoReview.Approve); err != nil {
			return fmt.Errorf("approve rule: %w", err)
		}
	}
	for _, r := range p.AutoReview.Reject {
		if _, err := e.program(r.Expr); err != nil {
			return fmt.Errorf("reject rule %s: %w", r.Name, err)
		}
	}
	return nil
}

// Review runs reject rules first, in order; the first match rejects. If
// none match, the approve rule may approve. Otherwise the request stays
// with a human reviewer.
func (e *Evaluator) Review(ctx context.Context, in advance.ReviewInput) (advance.Verdict, error) {
	p, err := e.policies.Policy(ctx)
	if err != nil {
		return advance.Verdict{}, err
	}
	vars := Activation(in)

	for _, r := range p.AutoReview.Reject {
		hit, err := e.eval(r.Expr, vars)
		if err != nil {
			return advance.Verdict{}, fmt.Errorf("reject rule %s: %w", r.Name, err)
		}
		if hit {
			e.logger.InfoContext(ctx, "auto review rejected", "request_id", in.Request.ID, "rule", r.Name)
			return advance.Verdict{Action: advance.ActionReject, Rule: r.Name}, nil
		}
	}
	if p.AutoReview.Approve == "" {
		return advance.Verdict{}, nil
	}
	ok, err := e.eval(p.AutoReview.Approve, vars)
	if err != nil {
		return advance.Verdict{}, fmt.Errorf("approve rule: %w", err)
	}
	if ok {
		return advance.Verdict{Action: advance.ActionApprove, Rule: "approve"}, nil
	}
	return advance.Verdict{}, nil
}

// Activation exposes a review input to CEL. Money values are integers in
// minor units.
func Activation(in advance.ReviewInput) map[string]any {
	r, w := in.Request, in.Worker
	return map[string]any{
		"request": map[string]any{
			"id":             r.ID,
			"amount":         int64(r.Amount),
			"net_payout":     int64(r.NetPayout),
			"total_fee":      int64(r.TotalFee()),
			"fee_percentage": r.FeePercent.InexactFloat64(),
			"method":         string(r.Method),
			"destination":    r.Destination,
			"currency":       r.Currency,
		},
		"worker": map[string]any{
			"id":                w.ID,
			"employer_id":       w.EmployerID,
			"risk_score":        w.RiskScore,
			"earned_wages":      int64(w.EarnedWages),
			"kyc_status":        string(w.KycStatus),
			"employment_status": string(w.EmploymentStatus),
		},
		"history": map[string]any{
			"requests_24h":  int64(in.Requests24h),
			"open_requests": int64(in.OpenRequests),
			"consumed":      int64(in.Consumed),
			"limit":         int64(in.Limit),
		},
	}
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = prg
	return prg, nil
}

func (e *Evaluator) eval(expr string, vars map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, ErrNotBool
	}
	return val, nil
}
