package reports

import (
	"context"
	"time"

	"github.com/harbor-fin/harbor/internal/balances"
)

// BalancePort is the read surface the aggregator needs from the balance store.
type BalancePort interface {
	QueryAsOf(ctx context.Context, date time.Time) ([]balances.Row, error)
	QueryRange(ctx context.Context, from, to time.Time) ([]balances.Row, error)
}

// Service derives financial statements from posted ledger balances.
type Service struct {
	store BalancePort
}

// NewService constructs the statement aggregator.
func NewService(store BalancePort) *Service {
	return &Service{store: store}
}

// TrialBalance lists every account with activity up to asOf.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	rows, err := s.store.QueryAsOf(ctx, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(rows)
}

// BalanceSheet groups cumulative balances by classification as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	rows, err := s.store.QueryAsOf(ctx, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(rows), nil
}

// IncomeStatement sums income and expense activity inside [from, to].
func (s *Service) IncomeStatement(ctx context.Context, from, to time.Time) (IncomeStatement, error) {
	rows, err := s.store.QueryRange(ctx, from, to)
	if err != nil {
		return IncomeStatement{}, err
	}
	return BuildIncomeStatement(rows), nil
}
