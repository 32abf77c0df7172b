package reports

import (
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/balances"
	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/shared"
)

// TrialBalanceRow is one account's column placement in the trial balance.
// The amount sits in the account's normal-balance column; a contra balance
// shows as a negative amount in that same column rather than hopping sides.
type TrialBalanceRow struct {
	Code           string
	Name           string
	Classification string
	Currency       string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
}

// TrialBalance lists every account with activity and the column totals.
type TrialBalance struct {
	Rows         []TrialBalanceRow
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

// ErrTrialBalanceImbalance means posted activity no longer sums to zero.
// That can only come from a posting-engine defect or a partial commit, so it
// is surfaced loudly instead of being tolerated.
var ErrTrialBalanceImbalance = shared.Integrity("reports: trial balance out of balance")

// BuildTrialBalance converts balance rows into a trial balance and verifies
// the totals agree within the currency's minor unit.
func BuildTrialBalance(rows []balances.Row) (TrialBalance, error) {
	tb := TrialBalance{}
	for _, row := range rows {
		if row.Net.IsZero() && row.Debit.IsZero() && row.Credit.IsZero() {
			continue
		}
		out := TrialBalanceRow{
			Code:           row.Code,
			Name:           row.Name,
			Classification: row.Classification,
			Currency:       row.Currency,
		}
		if coa.Classification(row.Classification).NormalBalance() == coa.SideDebit {
			out.Debit = row.Net
		} else {
			out.Credit = row.Net.Neg()
		}
		tb.Rows = append(tb.Rows, out)
		tb.TotalDebits = tb.TotalDebits.Add(out.Debit)
		tb.TotalCredits = tb.TotalCredits.Add(out.Credit)
	}
	if tb.TotalDebits.Sub(tb.TotalCredits).Abs().Cmp(epsilonFor(rows)) > 0 {
		return TrialBalance{}, shared.IntegrityErrorf(ErrTrialBalanceImbalance,
			"debits %s credits %s", tb.TotalDebits.String(), tb.TotalCredits.String())
	}
	return tb, nil
}

// epsilonFor picks the loosest minor-unit epsilon among the row currencies.
func epsilonFor(rows []balances.Row) decimal.Decimal {
	eps := decimal.New(1, -2)
	for _, row := range rows {
		if e := shared.MinorUnitEpsilon(row.Currency); e.Cmp(eps) > 0 {
			eps = e
		}
	}
	return eps
}
