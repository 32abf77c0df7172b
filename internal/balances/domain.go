package balances

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/shared"
)

// Balance is the accumulated activity for one (account, period) key. Rows are
// maintained only by the posting engine; callers never edit them directly.
type Balance struct {
	AccountID int64
	PeriodID  int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Net       decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

// Row is a balance joined with its account for the reporting surface.
type Row struct {
	AccountID      int64
	Code           string
	Name           string
	Classification string
	Currency       string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Net            decimal.Decimal
}

// Filter narrows the reporting query surface.
type Filter struct {
	Classification string
	PeriodID       *int64
}

// ErrVersionConflict means a concurrent transaction updated the same balance
// row first. The posting engine retries the whole posting transaction a
// bounded number of times before surfacing it.
var ErrVersionConflict = shared.Conflict("balances: version conflict on balance update")
