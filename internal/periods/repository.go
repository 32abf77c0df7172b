package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harbor-fin/harbor/internal/outbox"
	"github.com/harbor-fin/harbor/internal/platform/db"
)

// Repository persists financial periods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, fiscal_year, seq, start_date, end_date, status, halted, closed_by, closed_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Year, &p.Seq, &p.StartDate, &p.EndDate, &p.Status, &p.Halted, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("periods repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// PeriodFor returns the period containing date.
func (r *Repository) PeriodFor(ctx context.Context, date time.Time) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods
WHERE start_date <= $1 AND end_date >= $1`, date))
}

// Get returns the period by id.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE id=$1`, id))
}

// ListYear returns the year's periods ordered by sequence.
func (r *Repository) ListYear(ctx context.Context, year int) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE fiscal_year=$1 ORDER BY seq`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Year, &p.Seq, &p.StartDate, &p.EndDate, &p.Status, &p.Halted, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) YearExists(ctx context.Context, year int) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM financial_periods WHERE fiscal_year=$1)`, year).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertPeriods(ctx context.Context, periods []Period) ([]Period, error) {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		row := r.tx.QueryRow(ctx, `INSERT INTO financial_periods (fiscal_year, seq, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING `+periodColumns, p.Year, p.Seq, p.StartDate, p.EndDate, string(p.Status))
		inserted, err := scanPeriod(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) CountEarlierOpen(ctx context.Context, year, seq int) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM financial_periods
WHERE status='OPEN' AND (fiscal_year < $1 OR (fiscal_year = $1 AND seq < $2))`, year, seq).Scan(&count)
	return count, err
}

func (r *txRepository) CountPendingEntries(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries
WHERE entry_date BETWEEN $1 AND $2 AND status NOT IN ('POSTED','REJECTED')`, start, end).Scan(&count)
	return count, err
}

func (r *txRepository) CountPostedAfter(ctx context.Context, start, end, closedAt time.Time) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries
WHERE entry_date BETWEEN $1 AND $2 AND status='POSTED' AND posted_at > $3`, start, end, closedAt).Scan(&count)
	return count, err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, actorID *int64, at *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE financial_periods SET status=$2, closed_by=$3, closed_at=$4, updated_at=NOW() WHERE id=$1`,
		id, string(status), actorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) SetHalted(ctx context.Context, id int64, halted bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE financial_periods SET halted=$2, updated_at=NOW() WHERE id=$1`, id, halted)
	return err
}

func (r *txRepository) AppendEvent(ctx context.Context, topic string, payload any) error {
	return outbox.Append(ctx, r.tx, topic, payload)
}
