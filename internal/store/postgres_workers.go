package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eaziwage/ewa/internal/advance"
	"github.com/eaziwage/ewa/internal/money"
	"github.com/eaziwage/ewa/internal/workers"
)

func (p *Postgres) Workers(ctx context.Context, employerID string) ([]advance.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers`
	var args []any
	if employerID != "" {
		query += ` WHERE employer_id = $1`
		args = append(args, employerID)
	}
	query += ` ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()
	var out []advance.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateWorker(ctx context.Context, w advance.Worker) error {
	var limitCap sql.NullInt64
	if w.LimitCap != nil {
		limitCap = sql.NullInt64{Int64: int64(*w.LimitCap), Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
        INSERT INTO workers (`+workerColumns+`, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
        ON CONFLICT (id) DO NOTHING`,
		w.ID, w.EmployerID, w.FullName, w.Email, string(w.EmploymentStatus), string(w.KycStatus),
		int64(w.EarnedWages), w.RiskScore, limitCap, w.CycleStartedAt)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workers.ErrWorkerExists
	}
	return nil
}

func (p *Postgres) setColumn(ctx context.Context, id, column string, value any) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE workers SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, value)
	if err != nil {
		return fmt.Errorf("failed to update worker %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return advance.ErrWorkerNotFound
	}
	return nil
}

func (p *Postgres) SetEmploymentStatus(ctx context.Context, id string, s advance.EmploymentStatus) error {
	return p.setColumn(ctx, id, "employment_status", string(s))
}

func (p *Postgres) SetKycStatus(ctx context.Context, id string, s advance.KycStatus) error {
	return p.setColumn(ctx, id, "kyc_status", string(s))
}

func (p *Postgres) SetRiskScore(ctx context.Context, id string, score float64) error {
	return p.setColumn(ctx, id, "risk_score", score)
}

func (p *Postgres) SetLimitCap(ctx context.Context, id string, limit *money.Amount) error {
	var v sql.NullInt64
	if limit != nil {
		v = sql.NullInt64{Int64: int64(*limit), Valid: true}
	}
	return p.setColumn(ctx, id, "limit_cap", v)
}

func (p *Postgres) RaiseEarnings(ctx context.Context, employerID, workerID string, earned money.Amount) error {
	res, err := p.db.ExecContext(ctx, `
        UPDATE workers SET earned_wages = $3, updated_at = NOW()
        WHERE id = $1 AND employer_id = $2 AND earned_wages <= $3`,
		workerID, employerID, int64(earned))
	if err != nil {
		return fmt.Errorf("failed to update earnings: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current int64
	err = p.db.QueryRowContext(ctx,
		`SELECT earned_wages FROM workers WHERE id = $1 AND employer_id = $2`, workerID, employerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return advance.ErrWorkerNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read earnings: %w", err)
	}
	return fmt.Errorf("%w: stored %d, got %d", workers.ErrEarningsDecreased, current, int64(earned))
}

// CloseCycle locks every worker of the employer so no advance for them can
// be submitted or disbursed while deductions settle.
func (p *Postgres) CloseCycle(ctx context.Context, employerID string, at time.Time) (workers.CycleResult, error) {
	res := workers.CycleResult{EmployerID: employerID, ClosedAt: at}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM workers WHERE employer_id = $1 ORDER BY id FOR UPDATE`, employerID)
	if err != nil {
		return res, fmt.Errorf("failed to lock workers: %w", err)
	}
	for rows.Next() {
		res.WorkersReset++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE advances SET settled_at = $2
        WHERE id IN (SELECT advance_id FROM payroll_deductions WHERE employer_id = $1 AND status = 'scheduled')`,
		employerID, at); err != nil {
		return res, fmt.Errorf("failed to settle advances: %w", err)
	}

	settled, err := tx.QueryContext(ctx, `
        UPDATE payroll_deductions SET status = 'deducted', deducted_at = $2
        WHERE employer_id = $1 AND status = 'scheduled'
        RETURNING amount`, employerID, at)
	if err != nil {
		return res, fmt.Errorf("failed to settle deductions: %w", err)
	}
	for settled.Next() {
		var amount int64
		if err := settled.Scan(&amount); err != nil {
			settled.Close()
			return res, err
		}
		res.Settled++
		res.Recovered += money.Amount(amount)
	}
	settled.Close()
	if err := settled.Err(); err != nil {
		return res, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workers SET earned_wages = 0, cycle_started_at = $2, updated_at = NOW() WHERE employer_id = $1`,
		employerID, at); err != nil {
		return res, fmt.Errorf("failed to reset earnings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit: %w", err)
	}
	return res, nil
}

func (p *Postgres) Deductions(ctx context.Context, employerID string, status advance.DeductionStatus) ([]advance.Deduction, error) {
	var (
		where []string
		args  []any
	)
	if employerID != "" {
		args = append(args, employerID)
		where = append(where, fmt.Sprintf("employer_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, string(status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT id, advance_id, worker_id, employer_id, amount, status, created_at, deducted_at FROM payroll_deductions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deductions: %w", err)
	}
	defer rows.Close()
	var out []advance.Deduction
	for rows.Next() {
		var (
			d        advance.Deduction
			deducted sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.RequestID, &d.WorkerID, &d.EmployerID, &d.Amount, &d.Status, &d.CreatedAt, &deducted); err != nil {
			return nil, fmt.Errorf("failed to read deduction: %w", err)
		}
		if deducted.Valid {
			t := deducted.Time
			d.DeductedAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) Summary(ctx context.Context, employerID string) (workers.Summary, error) {
	s := workers.Summary{ByStatus: map[advance.Status]int{}}
	err := p.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COUNT(*) FILTER (WHERE kyc_status = 'submitted')
        FROM workers WHERE ($1 = '' OR employer_id = $1)`, employerID).Scan(&s.Workers, &s.PendingKyc)
	if err != nil {
		return s, fmt.Errorf("failed to count workers: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
        SELECT status, COUNT(*),
            COALESCE(SUM(net_payout), 0),
            COALESCE(SUM(fee_amount + fixed_fee), 0),
            COALESCE(SUM(amount) FILTER (WHERE settled_at IS NULL), 0)
        FROM advances WHERE ($1 = '' OR employer_id = $1)
        GROUP BY status`, employerID)
	if err != nil {
		return s, fmt.Errorf("failed to aggregate advances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status                 advance.Status
			count                  int
			net, fees, outstanding int64
		)
		if err := rows.Scan(&status, &count, &net, &fees, &outstanding); err != nil {
			return s, fmt.Errorf("failed to read aggregate: %w", err)
		}
		s.ByStatus[status] = count
		if status == advance.StatusDisbursed {
			s.Disbursed = money.Amount(net)
			s.Fees = money.Amount(fees)
			s.Outstanding = money.Amount(outstanding)
		}
	}
	return s, rows.Err()
}
