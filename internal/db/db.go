package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Connect opens the pool and checks the database answers.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// SQL exposes the pool through database/sql for the stores.
func SQL(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// Execer is the part of *sql.DB the schema helpers need.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureSchema creates the tables and indexes the service relies on. Every
// statement is idempotent, so it runs on each start.
func EnsureSchema(ctx context.Context, db Execer, logger *slog.Logger) error {
	steps := []struct {
		name string
		fn   func(context.Context, Execer) error
	}{
		{"workers", ensureWorkersTable},
		{"advances", ensureAdvancesTable},
		{"advance_transitions", ensureTransitionsTable},
		{"payroll_deductions", ensureDeductionsTable},
		{"transactions", ensureTransactionsTable},
		{"notifications", ensureNotificationsTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx, db); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	logger.Info("schema ensured", "tables", len(steps))
	return nil
}

func ensureWorkersTable(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS workers (
            id TEXT PRIMARY KEY,
            employer_id TEXT NOT NULL,
            full_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            employment_status TEXT NOT NULL DEFAULT 'pending'
                CHECK (employment_status IN ('pending','approved','suspended','terminated')),
            kyc_status TEXT NOT NULL DEFAULT 'not_started'
                CHECK (kyc_status IN ('not_started','submitted','approved','rejected')),
            earned_wages BIGINT NOT NULL DEFAULT 0,
            risk_score DOUBLE PRECISION NOT NULL DEFAULT 3,
            limit_cap BIGINT NULL,
            cycle_started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_workers_employer ON workers(employer_id);
    `)
	return err
}

func ensureAdvancesTable(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS advances (
            id TEXT PRIMARY KEY,
            worker_id TEXT NOT NULL REFERENCES workers(id),
            employer_id TEXT NOT NULL,
            currency TEXT NOT NULL,
            scale SMALLINT NOT NULL,
            amount BIGINT NOT NULL CHECK (amount > 0),
            method TEXT NOT NULL CHECK (method IN ('mobile_money','bank_transfer')),
            destination TEXT NOT NULL,
            purpose TEXT NOT NULL DEFAULT '',
            fee_percentage NUMERIC(7,4) NOT NULL,
            fee_amount BIGINT NOT NULL,
            fixed_fee BIGINT NOT NULL,
            net_payout BIGINT NOT NULL CHECK (net_payout >= 0),
            status TEXT NOT NULL CHECK (status IN ('pending','approved','disbursed','rejected')),
            reject_reason TEXT NOT NULL DEFAULT '',
            reject_note TEXT NOT NULL DEFAULT '',
            reference TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            settled_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_advances_worker_created ON advances(worker_id, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_advances_pending ON advances(created_at) WHERE status = 'pending';
    `)
	return err
}

func ensureTransitionsTable(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS advance_transitions (
            id BIGSERIAL PRIMARY KEY,
            advance_id TEXT NOT NULL REFERENCES advances(id) ON DELETE CASCADE,
            from_status TEXT NOT NULL DEFAULT '',
            to_status TEXT NOT NULL,
            actor TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            note TEXT NOT NULL DEFAULT '',
            at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_transitions_advance ON advance_transitions(advance_id, id);
    `)
	return err
}

func ensureDeductionsTable(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS payroll_deductions (
            id TEXT PRIMARY KEY,
            advance_id TEXT NOT NULL UNIQUE REFERENCES advances(id),
            worker_id TEXT NOT NULL REFERENCES workers(id),
            employer_id TEXT NOT NULL,
            amount BIGINT NOT NULL,
            status TEXT NOT NULL DEFAULT 'scheduled' CHECK (status IN ('scheduled','deducted')),
            created_at TIMESTAMPTZ NOT NULL,
            deducted_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_deductions_employer_status ON payroll_deductions(employer_id, status);
    `)
	return err
}

func ensureTransactionsTable(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS transactions (
            id TEXT PRIMARY KEY,
            worker_id TEXT NOT NULL REFERENCES workers(id),
            type TEXT NOT NULL CHECK (type IN ('advance_request','disbursement','fee')),
            amount BIGINT NOT NULL,
            reference TEXT NOT NULL,
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_worker_created ON transactions(worker_id, created_at DESC);
    `)
	return err
}

func ensureNotificationsTable(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id TEXT NOT NULL,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference TEXT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
    `)
	return err
}
