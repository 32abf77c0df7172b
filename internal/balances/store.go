package balances

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ConflictObserver counts retried balance-version conflicts.
type ConflictObserver interface {
	ObserveBalanceConflict()
}

// Store owns the ledger_balances rows. Apply runs inside the posting engine's
// transaction; the read queries run against the pool.
type Store struct {
	pool     *pgxpool.Pool
	observer ConflictObserver
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithObserver wires a metrics observer for conflict retries.
func (s *Store) WithObserver(o ConflictObserver) *Store {
	s.observer = o
	return s
}

// Apply folds a line's debit and credit into the (account, period) row and
// bumps its version. The upsert takes the row lock, so concurrent applies
// serialize on the row; when a concurrent transaction commits first under
// repeatable read, the failure is classified as a version conflict so the
// posting engine can retry on a fresh transaction. A doomed transaction
// cannot run further statements, which is why the retry lives with the
// caller that owns the transaction.
func (s *Store) Apply(ctx context.Context, tx pgx.Tx, accountID, periodID int64, debit, credit decimal.Decimal) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_balances (account_id, period_id, debit_total, credit_total, net_balance, version)
VALUES ($1,$2,$3,$4,$5,1)
ON CONFLICT (account_id, period_id) DO UPDATE
SET debit_total = ledger_balances.debit_total + EXCLUDED.debit_total,
    credit_total = ledger_balances.credit_total + EXCLUDED.credit_total,
    net_balance = ledger_balances.net_balance + EXCLUDED.net_balance,
    version = ledger_balances.version + 1,
    updated_at = NOW()`,
		accountID, periodID, debit, credit, debit.Sub(credit))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "23505") {
			s.observeConflict()
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

func (s *Store) observeConflict() {
	if s.observer != nil {
		s.observer.ObserveBalanceConflict()
	}
}

// BalanceAsOf sums every period up to and including the one containing date.
// Net is signed debit-positive; reports apply the normal-balance presentation.
func (s *Store) BalanceAsOf(ctx context.Context, accountID int64, date time.Time) (decimal.Decimal, error) {
	var net decimal.Decimal
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(b.net_balance), 0)
FROM ledger_balances b
JOIN financial_periods p ON p.id = b.period_id
WHERE b.account_id = $1 AND p.start_date <= $2`, accountID, date).Scan(&net)
	return net, err
}

// Query returns balance rows joined with account identity, optionally
// filtered by classification and period.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Row, error) {
	query := `SELECT a.id, a.code, a.name, a.classification, a.currency,
COALESCE(SUM(b.debit_total),0), COALESCE(SUM(b.credit_total),0), COALESCE(SUM(b.net_balance),0)
FROM ledger_balances b
JOIN accounts a ON a.id = b.account_id
WHERE ($1 = '' OR a.classification = $1)
AND ($2::bigint IS NULL OR b.period_id = $2)
GROUP BY a.id, a.code, a.name, a.classification, a.currency
ORDER BY a.code`
	rows, err := s.pool.Query(ctx, query, filter.Classification, filter.PeriodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryAsOf aggregates per-account activity across every period starting at
// or before date.
func (s *Store) QueryAsOf(ctx context.Context, date time.Time) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.classification, a.currency,
COALESCE(SUM(b.debit_total),0), COALESCE(SUM(b.credit_total),0), COALESCE(SUM(b.net_balance),0)
FROM ledger_balances b
JOIN accounts a ON a.id = b.account_id
JOIN financial_periods p ON p.id = b.period_id
WHERE p.start_date <= $1
GROUP BY a.id, a.code, a.name, a.classification, a.currency
ORDER BY a.code`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryRange aggregates activity for periods falling wholly inside the range.
// The income statement uses this to scope revenue and expense to the fiscal
// window instead of since-inception totals.
func (s *Store) QueryRange(ctx context.Context, from, to time.Time) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.classification, a.currency,
COALESCE(SUM(b.debit_total),0), COALESCE(SUM(b.credit_total),0), COALESCE(SUM(b.net_balance),0)
FROM ledger_balances b
JOIN accounts a ON a.id = b.account_id
JOIN financial_periods p ON p.id = b.period_id
WHERE p.start_date >= $1 AND p.end_date <= $2
GROUP BY a.id, a.code, a.name, a.classification, a.currency
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.AccountID, &r.Code, &r.Name, &r.Classification, &r.Currency, &r.Debit, &r.Credit, &r.Net); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
