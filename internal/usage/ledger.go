package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS usage_accounts (
	account         TEXT PRIMARY KEY,
	plan            TEXT NOT NULL DEFAULT 'free',
	usage_count     INTEGER NOT NULL DEFAULT 0,
	usage_limit     INTEGER NOT NULL DEFAULT 0,
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);
`

var ErrUnknownPlan = errors.New("unknown plan")

// Ledger is a SQLite-backed Gate. New accounts start on the free plan.
type Ledger struct {
	db     *sql.DB
	limits map[string]int
}

// Limits maps plan names to upload allowances.
type Limits map[string]int

// DefaultLimits returns the free and pro allowances.
func DefaultLimits() Limits {
	return Limits{PlanFree: DefaultFreeLimit, PlanPro: DefaultProLimit}
}

// OpenLedger opens (or creates) the ledger database at path.
func OpenLedger(path string, limits Limits) (*Ledger, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer keeps Consume's read-modify-write serialized
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Ledger{db: db, limits: resolveLimits(limits)}, nil
}

// resolveLimits copies limits, defaulting to DefaultLimits and always
// carrying a free plan.
func resolveLimits(limits Limits) Limits {
	if len(limits) == 0 {
		return DefaultLimits()
	}
	out := make(Limits, len(limits)+1)
	for plan, limit := range limits {
		out[plan] = limit
	}
	if _, ok := out[PlanFree]; !ok {
		out[PlanFree] = DefaultFreeLimit
	}
	return out
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) Check(ctx context.Context, account string) (Record, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Record{}, ErrEmptyAccount
	}
	if err := l.ensure(ctx, l.db, account); err != nil {
		return Record{}, err
	}
	return l.read(ctx, l.db, account)
}

// Consume increments the counter if the account is below its limit.
// On refusal it returns the current record with ErrQuotaExceeded.
func (l *Ledger) Consume(ctx context.Context, account string) (Record, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Record{}, ErrEmptyAccount
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := l.ensure(ctx, tx, account); err != nil {
		return Record{}, err
	}
	rec, err := l.read(ctx, tx, account)
	if err != nil {
		return Record{}, err
	}
	if !rec.CanProceed {
		return rec, ErrQuotaExceeded
	}
	const q = `UPDATE usage_accounts SET usage_count = usage_count + 1, updated_at_unix = ? WHERE account = ?`
	if _, err := tx.ExecContext(ctx, q, time.Now().Unix(), account); err != nil {
		return Record{}, fmt.Errorf("increment usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit usage: %w", err)
	}
	return newRecord(rec.Count+1, rec.Limit, rec.Plan), nil
}

// SetPlan moves an account to plan and applies that plan's limit.
func (l *Ledger) SetPlan(ctx context.Context, account, plan string) (Record, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Record{}, ErrEmptyAccount
	}
	plan = strings.ToLower(strings.TrimSpace(plan))
	limit, ok := l.limits[plan]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	if err := l.ensure(ctx, l.db, account); err != nil {
		return Record{}, err
	}
	const q = `UPDATE usage_accounts SET plan = ?, usage_limit = ?, updated_at_unix = ? WHERE account = ?`
	if _, err := l.db.ExecContext(ctx, q, plan, limit, time.Now().Unix(), account); err != nil {
		return Record{}, fmt.Errorf("set plan: %w", err)
	}
	return l.read(ctx, l.db, account)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Ledger) ensure(ctx context.Context, db execQuerier, account string) error {
	const q = `INSERT OR IGNORE INTO usage_accounts (account, plan, usage_count, usage_limit, updated_at_unix)
VALUES (?, ?, 0, ?, ?)`
	if _, err := db.ExecContext(ctx, q, account, PlanFree, l.limits[PlanFree], time.Now().Unix()); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

func (l *Ledger) read(ctx context.Context, db execQuerier, account string) (Record, error) {
	const q = `SELECT usage_count, usage_limit, plan FROM usage_accounts WHERE account = ?`
	var count, limit int
	var plan string
	if err := db.QueryRowContext(ctx, q, account).Scan(&count, &limit, &plan); err != nil {
		return Record{}, fmt.Errorf("read usage: %w", err)
	}
	return newRecord(count, limit, plan), nil
}
