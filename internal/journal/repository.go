package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/balances"
	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/outbox"
	"github.com/harbor-fin/harbor/internal/periods"
	"github.com/harbor-fin/harbor/internal/platform/db"
)

// Repository persists journal entries and bridges into the balance store.
type Repository struct {
	pool  *pgxpool.Pool
	store *balances.Store
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, store *balances.Store) *Repository {
	return &Repository{pool: pool, store: store}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journal repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, store: r.store})
	})
}

const entryColumns = `id, number, ref, entry_date, description, currency, status, reversal_of,
created_by, submitted_by, submitted_at, approved_by, approved_at,
rejected_by, rejected_at, reject_reason, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Number, &e.Ref, &e.EntryDate, &e.Description, &e.Currency, &e.Status, &e.ReversalOf,
		&e.CreatedBy, &e.SubmittedBy, &e.SubmittedAt, &e.ApprovedBy, &e.ApprovedAt,
		&e.RejectedBy, &e.RejectedAt, &e.RejectReason, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, side, amount, currency, reference
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Side, &l.Amount, &l.Currency, &l.Reference); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads an entry with lines.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, id)
	return entry, err
}

// List returns entries newest first, without lines.
func (r *Repository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY number DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Number, &e.Ref, &e.EntryDate, &e.Description, &e.Currency, &e.Status, &e.ReversalOf,
			&e.CreatedBy, &e.SubmittedBy, &e.SubmittedAt, &e.ApprovedBy, &e.ApprovedAt,
			&e.RejectedBy, &e.RejectedAt, &e.RejectReason, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx    pgx.Tx
	store *balances.Store
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (coa.Account, error) {
	var a coa.Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, classification, parent_id, currency, is_active, created_at, updated_at
FROM accounts WHERE id=$1`, id).Scan(&a.ID, &a.Code, &a.Name, &a.Classification, &a.ParentID, &a.Currency, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coa.Account{}, coa.ErrAccountNotFound
		}
		return coa.Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, id)
	return entry, err
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, fiscal_year, seq, start_date, end_date, status, halted, closed_by, closed_at, created_at, updated_at
FROM financial_periods WHERE start_date <= $1 AND end_date >= $1 FOR UPDATE`, date).
		Scan(&p.ID, &p.Year, &p.Seq, &p.StartDate, &p.EndDate, &p.Status, &p.Halted, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, periods.ErrPeriodNotFound
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) Insert(ctx context.Context, in CreateDraftInput) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (ref, entry_date, description, currency, status, reversal_of, created_by)
VALUES (gen_random_uuid(), $1, $2, $3, 'DRAFT', $4, $5) RETURNING `+entryColumns,
		in.EntryDate, in.Description, in.Currency, in.ReversalOf, in.ActorID)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, err
	}
	for _, line := range in.Lines {
		currency := line.Currency
		if currency == "" {
			currency = in.Currency
		}
		var l Line
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_entry_lines (entry_id, account_id, side, amount, currency, reference)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, entry_id, account_id, side, amount, currency, reference`,
			entry.ID, line.AccountID, string(line.Side), line.Amount, currency, line.Reference).
			Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Side, &l.Amount, &l.Currency, &l.Reference)
		if err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, l)
	}
	return entry, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time, reason string) error {
	var query string
	switch status {
	case StatusSubmitted:
		query = `UPDATE journal_entries SET status=$2, submitted_by=$3, submitted_at=$4, updated_at=NOW() WHERE id=$1`
	case StatusApproved:
		query = `UPDATE journal_entries SET status=$2, approved_by=$3, approved_at=$4, updated_at=NOW() WHERE id=$1`
	case StatusPosted:
		query = `UPDATE journal_entries SET status=$2, posted_by=$3, posted_at=$4, updated_at=NOW() WHERE id=$1`
	case StatusRejected:
		tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, rejected_by=$3, rejected_at=$4, reject_reason=$5, updated_at=NOW() WHERE id=$1`,
			id, string(status), actorID, at, reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEntryNotFound
		}
		return nil
	default:
		return ErrInvalidTransition
	}
	tag, err := r.tx.Exec(ctx, query, id, string(status), actorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) HasReversal(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE reversal_of=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) ApplyBalance(ctx context.Context, accountID, periodID int64, debit, credit decimal.Decimal) error {
	return r.store.Apply(ctx, r.tx, accountID, periodID, debit, credit)
}

func (r *txRepository) AppendEvent(ctx context.Context, topic string, payload any) error {
	return outbox.Append(ctx, r.tx, topic, payload)
}
