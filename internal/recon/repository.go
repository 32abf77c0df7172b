package recon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/outbox"
	"github.com/harbor-fin/harbor/internal/platform/db"
)

// Repository persists reconciliation runs and their statement lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("recon repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const reconColumns = `id, bank_account_id, currency, statement_start, statement_end,
statement_opening, statement_closing, book_closing, variance, status,
created_by, created_at, updated_at, finalized_at`

func scanRecon(row pgx.Row) (Reconciliation, error) {
	var rec Reconciliation
	err := row.Scan(&rec.ID, &rec.BankAccountID, &rec.Currency, &rec.StatementStart, &rec.StatementEnd,
		&rec.StatementOpening, &rec.StatementClosing, &rec.BookClosing, &rec.Variance, &rec.Status,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt, &rec.FinalizedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, ErrReconNotFound
		}
		return Reconciliation{}, err
	}
	return rec, nil
}

func loadReconLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, id uuid.UUID) ([]StatementLine, error) {
	rows, err := q.Query(ctx, `SELECT id, reconciliation_id, line_date, amount, description, external_ref, status, matched_line_id, outstanding
FROM reconciliation_lines WHERE reconciliation_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []StatementLine
	for rows.Next() {
		var l StatementLine
		if err := rows.Scan(&l.ID, &l.ReconciliationID, &l.Date, &l.Amount, &l.Description, &l.ExternalRef, &l.Status, &l.MatchedLineID, &l.Outstanding); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads a reconciliation with lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Reconciliation, error) {
	rec, err := scanRecon(r.pool.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE id=$1`, id))
	if err != nil {
		return Reconciliation{}, err
	}
	rec.Lines, err = loadReconLines(ctx, r.pool, id)
	return rec, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) HasActiveForAccount(ctx context.Context, bankAccountID int64) (bool, error) {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_reconciliations
WHERE bank_account_id=$1 AND status IN ('IN_PROGRESS','UNBALANCED'))`, bankAccountID).Scan(&active)
	return active, err
}

func (r *txRepository) Insert(ctx context.Context, in StartInput) (Reconciliation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bank_reconciliations
(id, bank_account_id, currency, statement_start, statement_end, statement_opening, statement_closing, book_closing, variance, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,0,0,'IN_PROGRESS',$8) RETURNING `+reconColumns,
		uuid.New(), in.BankAccountID, in.Currency, in.StatementStart, in.StatementEnd,
		in.StatementOpening, in.StatementClosing, in.ActorID)
	return scanRecon(row)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Reconciliation, error) {
	rec, err := scanRecon(r.tx.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Reconciliation{}, err
	}
	rec.Lines, err = loadReconLines(ctx, r.tx, id)
	return rec, err
}

func (r *txRepository) InsertLines(ctx context.Context, id uuid.UUID, lines []LineInput) ([]StatementLine, error) {
	out := make([]StatementLine, 0, len(lines))
	for _, line := range lines {
		var l StatementLine
		err := r.tx.QueryRow(ctx, `INSERT INTO reconciliation_lines
(reconciliation_id, line_date, amount, description, external_ref, status, outstanding)
VALUES ($1,$2,$3,$4,$5,'UNMATCHED',FALSE)
RETURNING id, reconciliation_id, line_date, amount, description, external_ref, status, matched_line_id, outstanding`,
			id, line.Date, line.Amount, line.Description, line.ExternalRef).
			Scan(&l.ID, &l.ReconciliationID, &l.Date, &l.Amount, &l.Description, &l.ExternalRef, &l.Status, &l.MatchedLineID, &l.Outstanding)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *txRepository) UpdateLine(ctx context.Context, line StatementLine) error {
	_, err := r.tx.Exec(ctx, `UPDATE reconciliation_lines
SET status=$2, matched_line_id=$3, outstanding=$4 WHERE id=$1`,
		line.ID, string(line.Status), line.MatchedLineID, line.Outstanding)
	return err
}

func (r *txRepository) SetOutcome(ctx context.Context, id uuid.UUID, status Status, bookClosing, variance decimal.Decimal, at *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations
SET status=$2, book_closing=$3, variance=$4, finalized_at=$5, updated_at=NOW() WHERE id=$1`,
		id, string(status), bookClosing, variance, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReconNotFound
	}
	return nil
}

// PostedLedgerLines returns posted journal lines on the account inside the
// window, signed debit-positive.
func (r *txRepository) PostedLedgerLines(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.entry_id, e.entry_date, l.side, l.amount
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status='POSTED' AND e.entry_date BETWEEN $2 AND $3
ORDER BY e.entry_date, l.id`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerLine
	for rows.Next() {
		var l LedgerLine
		var side string
		var amount decimal.Decimal
		if err := rows.Scan(&l.LineID, &l.EntryID, &l.Date, &side, &amount); err != nil {
			return nil, err
		}
		if coa.Side(side) == coa.SideCredit {
			amount = amount.Neg()
		}
		l.Amount = amount
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *txRepository) AppendEvent(ctx context.Context, topic string, payload any) error {
	return outbox.Append(ctx, r.tx, topic, payload)
}
