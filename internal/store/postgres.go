// Package store holds the persistence backends for advances and workers.
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

const workerColumns = `id, employer_id, full_name, email, employment_status, kyc_status, earned_wages, risk_score, limit_cap, cycle_started_at`

const advanceColumns = `id, worker_id, employer_id, currency, scale, amount, method, destination, purpose, fee_percentage, fee_amount, fixed_fee, net_payout, status, reject_reason, reject_note, reference, created_at, updated_at, settled_at`

// Postgres implements advance.Store and workers.Directory. Per-worker
// serialization comes from SELECT ... FOR UPDATE on the workers row.
type Postgres struct {
	db *sql.DB
}

var (
	_ advance.Store     = (*Postgres)(nil)
	_ workers.Directory = (*Postgres)(nil)
)

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorker(s scanner) (advance.Worker, error) {
	var (
		w        advance.Worker
		limitCap sql.NullInt64
	)
	err := s.Scan(&w.ID, &w.EmployerID, &w.FullName, &w.Email, &w.EmploymentStatus, &w.KycStatus,
		&w.EarnedWages, &w.RiskScore, &limitCap, &w.CycleStartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return advance.Worker{}, advance.ErrWorkerNotFound
	}
	if err != nil {
		return advance.Worker{}, fmt.Errorf("failed to read worker: %w", err)
	}
	if limitCap.Valid {
		c := money.Amount(limitCap.Int64)
		w.LimitCap = &c
	}
	return w, nil
}

func scanAdvance(s scanner) (advance.Request, error) {
	var (
		r       advance.Request
		settled sql.NullTime
	)
	err := s.Scan(&r.ID, &r.WorkerID, &r.EmployerID, &r.Currency, &r.Scale, &r.Amount, &r.Method,
		&r.Destination, &r.Purpose, &r.FeePercent, &r.FeeAmount, &r.FixedFee, &r.NetPayout, &r.Status,
		&r.RejectReason, &r.RejectNote, &r.Reference, &r.CreatedAt, &r.UpdatedAt, &settled)
	if errors.Is(err, sql.ErrNoRows) {
		return advance.Request{}, advance.ErrNotFound
	}
	if err != nil {
		return advance.Request{}, fmt.Errorf("failed to read advance: %w", err)
	}
	if settled.Valid {
		t := settled.Time
		r.SettledAt = &t
	}
	return r, nil
}

func (p *Postgres) WithWorker(ctx context.Context, workerID string, fn func(ctx context.Context, tx advance.WorkerTx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	w, err := scanWorker(tx.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1 FOR UPDATE`, workerID))
	if err != nil {
		return err
	}
	if err := fn(ctx, &pgTx{tx: tx, worker: w}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (p *Postgres) Worker(ctx context.Context, id string) (advance.Worker, error) {
	return scanWorker(p.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
}

func (p *Postgres) Request(ctx context.Context, id string) (advance.Request, error) {
	r, err := scanAdvance(p.db.QueryRowContext(ctx, `SELECT `+advanceColumns+` FROM advances WHERE id = $1`, id))
	if err != nil {
		return advance.Request{}, err
	}
	if err := loadHistory(ctx, p.db, &r); err != nil {
		return advance.Request{}, err
	}
	return r, nil
}

func loadHistory(ctx context.Context, q querier, r *advance.Request) error {
	rows, err := q.QueryContext(ctx,
		`SELECT from_status, to_status, actor, reason, note, at FROM advance_transitions WHERE advance_id = $1 ORDER BY id`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t advance.Transition
		if err := rows.Scan(&t.From, &t.To, &t.Actor, &t.Reason, &t.Note, &t.At); err != nil {
			return fmt.Errorf("failed to read transition: %w", err)
		}
		r.History = append(r.History, t)
	}
	return rows.Err()
}

func (p *Postgres) Requests(ctx context.Context, f advance.Filter) ([]advance.Request, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.WorkerID != "" {
		add("worker_id = $%d", f.WorkerID)
	}
	if f.EmployerID != "" {
		add("employer_id = $%d", f.EmployerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at <= $%d", f.CreatedBefore)
	}

	query := `SELECT ` + advanceColumns + ` FROM advances`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return queryAdvances(ctx, p.db, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryAdvances(ctx context.Context, q querier, query string, args ...any) ([]advance.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list advances: %w", err)
	}
	defer rows.Close()
	var out []advance.Request
	for rows.Next() {
		r, err := scanAdvance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Entries(ctx context.Context, workerID string) ([]advance.Entry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, worker_id, type, amount, reference, status, created_at FROM transactions WHERE worker_id = $1 ORDER BY created_at DESC, id DESC`,
		workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	var out []advance.Entry
	for rows.Next() {
		var e advance.Entry
		if err := rows.Scan(&e.ID, &e.WorkerID, &e.Type, &e.Amount, &e.Reference, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to read transaction: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx     *sql.Tx
	worker advance.Worker
}

func (t *pgTx) Worker() advance.Worker { return t.worker }

func (t *pgTx) Requests(ctx context.Context) ([]advance.Request, error) {
	return queryAdvances(ctx, t.tx,
		`SELECT `+advanceColumns+` FROM advances WHERE worker_id = $1 ORDER BY created_at DESC, id DESC`, t.worker.ID)
}

func (t *pgTx) Request(ctx context.Context, id string) (advance.Request, error) {
	r, err := scanAdvance(t.tx.QueryRowContext(ctx,
		`SELECT `+advanceColumns+` FROM advances WHERE id = $1 AND worker_id = $2`, id, t.worker.ID))
	if err != nil {
		return advance.Request{}, err
	}
	if err := loadHistory(ctx, t.tx, &r); err != nil {
		return advance.Request{}, err
	}
	return r, nil
}

func (t *pgTx) Insert(ctx context.Context, r *advance.Request) error {
	_, err := t.tx.ExecContext(ctx, `
        INSERT INTO advances (`+advanceColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		r.ID, r.WorkerID, r.EmployerID, r.Currency, r.Scale, int64(r.Amount), string(r.Method), r.Destination,
		r.Purpose, r.FeePercent, int64(r.FeeAmount), int64(r.FixedFee), int64(r.NetPayout), string(r.Status),
		string(r.RejectReason), r.RejectNote, r.Reference, r.CreatedAt, r.UpdatedAt, nullTime(r.SettledAt))
	if err != nil {
		return fmt.Errorf("failed to insert advance: %w", err)
	}
	for _, tr := range r.History {
		if err := t.insertTransition(ctx, r.ID, tr); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) Save(ctx context.Context, r *advance.Request, tr advance.Transition) error {
	res, err := t.tx.ExecContext(ctx, `
        UPDATE advances SET status = $2, reject_reason = $3, reject_note = $4, reference = $5, updated_at = $6
        WHERE id = $1`,
		r.ID, string(r.Status), string(r.RejectReason), r.RejectNote, r.Reference, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update advance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return advance.ErrNotFound
	}
	return t.insertTransition(ctx, r.ID, tr)
}

func (t *pgTx) insertTransition(ctx context.Context, id string, tr advance.Transition) error {
	_, err := t.tx.ExecContext(ctx, `
        INSERT INTO advance_transitions (advance_id, from_status, to_status, actor, reason, note, at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(tr.From), string(tr.To), string(tr.Actor), string(tr.Reason), tr.Note, tr.At)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

func (t *pgTx) ScheduleDeduction(ctx context.Context, d advance.Deduction) error {
	_, err := t.tx.ExecContext(ctx, `
        INSERT INTO payroll_deductions (id, advance_id, worker_id, employer_id, amount, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.RequestID, d.WorkerID, d.EmployerID, int64(d.Amount), string(d.Status), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to schedule deduction: %w", err)
	}
	return nil
}

func (t *pgTx) Record(ctx context.Context, e advance.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
        INSERT INTO transactions (id, worker_id, type, amount, reference, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.WorkerID, string(e.Type), int64(e.Amount), e.Reference, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
