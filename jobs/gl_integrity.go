package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// HaltPort marks a period suspect so posting stops until a person clears it.
type HaltPort interface {
	Halt(ctx context.Context, periodID int64) error
}

// IntegrityObserver counts integrity trips by source.
type IntegrityObserver interface {
	ObserveIntegrityTrip(source string)
}

// GLIntegrityChecker cross-checks the ledger against posted journal lines.
// It recomputes debit and credit sums per open period two ways and halts any
// period where the books disagree.
type GLIntegrityChecker struct {
	pool     *pgxpool.Pool
	halter   HaltPort
	observer IntegrityObserver
	logger   *slog.Logger
}

// NewGLIntegrityChecker constructs the checker.
func NewGLIntegrityChecker(pool *pgxpool.Pool, halter HaltPort, observer IntegrityObserver, logger *slog.Logger) *GLIntegrityChecker {
	return &GLIntegrityChecker{pool: pool, halter: halter, observer: observer, logger: logger}
}

type periodSums struct {
	id     int64
	startD string
	endD   string
}

// Run scans every open period concurrently. A period fails the scan when the
// ledger_balances sums drift from the sums of posted journal lines dated
// inside the period, or when either side of the books is internally
// unbalanced. Failing periods are halted, not repaired.
func (c *GLIntegrityChecker) Run(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `SELECT id, start_date::text, end_date::text
FROM financial_periods WHERE status='OPEN' AND NOT halted ORDER BY id`)
	if err != nil {
		return fmt.Errorf("gl integrity: list periods: %w", err)
	}
	var periods []periodSums
	for rows.Next() {
		var p periodSums
		if err := rows.Scan(&p.id, &p.startD, &p.endD); err != nil {
			rows.Close()
			return err
		}
		periods = append(periods, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range periods {
		p := p
		g.Go(func() error {
			return c.checkPeriod(ctx, p)
		})
	}
	return g.Wait()
}

func (c *GLIntegrityChecker) checkPeriod(ctx context.Context, p periodSums) error {
	var ledgerDebit, ledgerCredit decimal.Decimal
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit_total), 0), COALESCE(SUM(credit_total), 0)
FROM ledger_balances WHERE period_id=$1`, p.id).Scan(&ledgerDebit, &ledgerCredit)
	if err != nil {
		return fmt.Errorf("gl integrity: ledger sums period %d: %w", p.id, err)
	}

	var lineDebit, lineCredit decimal.Decimal
	err = c.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(l.amount) FILTER (WHERE l.side='DEBIT'), 0),
COALESCE(SUM(l.amount) FILTER (WHERE l.side='CREDIT'), 0)
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.status='POSTED' AND e.entry_date >= $1::date AND e.entry_date <= $2::date`,
		p.startD, p.endD).Scan(&lineDebit, &lineCredit)
	if err != nil {
		return fmt.Errorf("gl integrity: line sums period %d: %w", p.id, err)
	}

	// Ledger sums are in functional currency while line sums are in entry
	// currency, so the cross-check compares each side with itself.
	switch {
	case !ledgerDebit.Equal(ledgerCredit):
		return c.trip(ctx, p.id, "ledger_balances", ledgerDebit, ledgerCredit)
	case !lineDebit.Equal(lineCredit):
		return c.trip(ctx, p.id, "journal_lines", lineDebit, lineCredit)
	}
	return nil
}

func (c *GLIntegrityChecker) trip(ctx context.Context, periodID int64, source string, debit, credit decimal.Decimal) error {
	if c.observer != nil {
		c.observer.ObserveIntegrityTrip(source)
	}
	if c.logger != nil {
		c.logger.Error("gl integrity violation, halting period",
			slog.Int64("period_id", periodID),
			slog.String("source", source),
			slog.String("debit", debit.String()),
			slog.String("credit", credit.String()))
	}
	if c.halter != nil {
		if err := c.halter.Halt(ctx, periodID); err != nil {
			return fmt.Errorf("gl integrity: halt period %d: %w", periodID, err)
		}
	}
	return fmt.Errorf("gl integrity: period %d unbalanced in %s", periodID, source)
}

// TaskHandler adapts the checker to an Asynq handler.
func (c *GLIntegrityChecker) TaskHandler() TaskHandler {
	return TaskHandler{
		Type: TaskGLIntegrity,
		Handler: func(ctx context.Context, _ *asynq.Task) error {
			return c.Run(ctx)
		},
	}
}
