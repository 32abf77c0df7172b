// Package fx is the currency-rate boundary consumed by the posting engine
// for multi-currency entries.
package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/shared"
)

// RateProvider resolves a conversion rate effective at a date.
type RateProvider interface {
	Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error)
}

// ErrRateNotFound indicates no usable rate at or before the date.
var ErrRateNotFound = fmt.Errorf("fx: rate %w", shared.ErrNotFound)

// Repository reads fx_rates, keeping the most recent rate at or before asOf.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Rate returns the conversion rate from → to effective at asOf.
func (r *Repository) Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT rate FROM fx_rates
WHERE from_currency=$1 AND to_currency=$2 AND effective_date <= $3
ORDER BY effective_date DESC LIMIT 1`, from, to, asOf).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrRateNotFound
		}
		return decimal.Zero, err
	}
	return rate, nil
}

// Static is a fixed-table provider for tests and single-currency deployments.
type Static map[string]decimal.Decimal

// Rate looks up "FROM/TO" in the table.
func (s Static) Rate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := s[from+"/"+to]; ok {
		return rate, nil
	}
	return decimal.Zero, ErrRateNotFound
}
