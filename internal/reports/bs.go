package reports

import (
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/balances"
	"github.com/harbor-fin/harbor/internal/coa"
)

// BalanceSheetAccount summarises one account inside a section.
type BalanceSheetAccount struct {
	Code     string
	Name     string
	Currency string
	Balance  decimal.Decimal
}

// BalanceSheetSection groups accounts of one classification.
type BalanceSheetSection struct {
	Label    string
	Accounts []BalanceSheetAccount
	Total    decimal.Decimal
}

// BalanceSheet is the structured balance sheet response. IsBalanced is
// derived at build time, never stored.
type BalanceSheet struct {
	Assets           BalanceSheetSection
	Liabilities      BalanceSheetSection
	Equity           BalanceSheetSection
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	TotalEquity      decimal.Decimal
	IsBalanced       bool
}

// BuildBalanceSheet groups balances by top-level classification. Income and
// expense activity rolls into equity as current earnings so the accounting
// equation holds mid-year.
func BuildBalanceSheet(rows []balances.Row) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	earnings := decimal.Zero

	for _, row := range rows {
		switch coa.Classification(row.Classification) {
		case coa.ClassificationAsset:
			// Asset accounts are debit-normal: net is already sign-correct.
			assets.Accounts = append(assets.Accounts, BalanceSheetAccount{Code: row.Code, Name: row.Name, Currency: row.Currency, Balance: row.Net})
			assets.Total = assets.Total.Add(row.Net)
		case coa.ClassificationLiability:
			balance := row.Net.Neg()
			liabilities.Accounts = append(liabilities.Accounts, BalanceSheetAccount{Code: row.Code, Name: row.Name, Currency: row.Currency, Balance: balance})
			liabilities.Total = liabilities.Total.Add(balance)
		case coa.ClassificationEquity:
			balance := row.Net.Neg()
			equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Code: row.Code, Name: row.Name, Currency: row.Currency, Balance: balance})
			equity.Total = equity.Total.Add(balance)
		case coa.ClassificationIncome:
			earnings = earnings.Add(row.Net.Neg())
		case coa.ClassificationExpense:
			earnings = earnings.Sub(row.Net)
		}
	}

	if !earnings.IsZero() {
		equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Name: "Current earnings", Balance: earnings})
		equity.Total = equity.Total.Add(earnings)
	}

	sheet := BalanceSheet{
		Assets:           assets,
		Liabilities:      liabilities,
		Equity:           equity,
		TotalAssets:      assets.Total,
		TotalLiabilities: liabilities.Total,
		TotalEquity:      equity.Total,
	}
	diff := sheet.TotalAssets.Sub(sheet.TotalLiabilities.Add(sheet.TotalEquity)).Abs()
	sheet.IsBalanced = diff.Cmp(epsilonFor(rows)) <= 0
	return sheet
}
