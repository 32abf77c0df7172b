package reports

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/harbor-fin/harbor/internal/shared"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders an amount with thousands separators and the currency's
// minor-unit precision, for report payloads and exports.
func FormatAmount(amount decimal.Decimal, currency string) string {
	eps := shared.MinorUnitEpsilon(currency)
	places := -eps.Exponent()
	f, _ := amount.Round(places).Float64()
	return printer.Sprintf("%.*f", int(places), f)
}

// TrialBalanceRowView carries a trial balance row with rendered amounts.
type TrialBalanceRowView struct {
	Code           string
	Name           string
	Classification string
	Currency       string
	Debit          string
	Credit         string
}

// TrialBalanceView is the transport shape of a trial balance.
type TrialBalanceView struct {
	Rows         []TrialBalanceRowView
	TotalDebits  string
	TotalCredits string
}

// View renders the trial balance for transport.
func (tb TrialBalance) View() TrialBalanceView {
	out := TrialBalanceView{Rows: make([]TrialBalanceRowView, 0, len(tb.Rows))}
	currency := ""
	for _, row := range tb.Rows {
		if currency == "" {
			currency = row.Currency
		}
		out.Rows = append(out.Rows, TrialBalanceRowView{
			Code:           row.Code,
			Name:           row.Name,
			Classification: row.Classification,
			Currency:       row.Currency,
			Debit:          FormatAmount(row.Debit, row.Currency),
			Credit:         FormatAmount(row.Credit, row.Currency),
		})
	}
	out.TotalDebits = FormatAmount(tb.TotalDebits, currency)
	out.TotalCredits = FormatAmount(tb.TotalCredits, currency)
	return out
}

// BalanceSheetAccountView carries one section account with a rendered balance.
type BalanceSheetAccountView struct {
	Code    string
	Name    string
	Balance string
}

// BalanceSheetSectionView groups rendered accounts of one classification.
type BalanceSheetSectionView struct {
	Label    string
	Accounts []BalanceSheetAccountView
	Total    string
}

// BalanceSheetView is the transport shape of a balance sheet.
type BalanceSheetView struct {
	Assets           BalanceSheetSectionView
	Liabilities      BalanceSheetSectionView
	Equity           BalanceSheetSectionView
	TotalAssets      string
	TotalLiabilities string
	TotalEquity      string
	IsBalanced       bool
}

func (s BalanceSheetSection) view() (BalanceSheetSectionView, string) {
	out := BalanceSheetSectionView{Label: s.Label, Accounts: make([]BalanceSheetAccountView, 0, len(s.Accounts))}
	currency := ""
	for _, account := range s.Accounts {
		if currency == "" {
			currency = account.Currency
		}
		out.Accounts = append(out.Accounts, BalanceSheetAccountView{
			Code:    account.Code,
			Name:    account.Name,
			Balance: FormatAmount(account.Balance, account.Currency),
		})
	}
	out.Total = FormatAmount(s.Total, currency)
	return out, currency
}

// View renders the balance sheet for transport.
func (bs BalanceSheet) View() BalanceSheetView {
	assets, currency := bs.Assets.view()
	liabilities, _ := bs.Liabilities.view()
	equity, _ := bs.Equity.view()
	return BalanceSheetView{
		Assets:           assets,
		Liabilities:      liabilities,
		Equity:           equity,
		TotalAssets:      FormatAmount(bs.TotalAssets, currency),
		TotalLiabilities: FormatAmount(bs.TotalLiabilities, currency),
		TotalEquity:      FormatAmount(bs.TotalEquity, currency),
		IsBalanced:       bs.IsBalanced,
	}
}

// IncomeStatementAccountView carries one line with a rendered amount.
type IncomeStatementAccountView struct {
	Code   string
	Name   string
	Amount string
}

// IncomeStatementSectionView groups rendered lines by nature.
type IncomeStatementSectionView struct {
	Label    string
	Accounts []IncomeStatementAccountView
	Total    string
}

// IncomeStatementView is the transport shape of an income statement.
type IncomeStatementView struct {
	Income    IncomeStatementSectionView
	Expense   IncomeStatementSectionView
	NetIncome string
}

func (s IncomeStatementSection) view() (IncomeStatementSectionView, string) {
	out := IncomeStatementSectionView{Label: s.Label, Accounts: make([]IncomeStatementAccountView, 0, len(s.Accounts))}
	currency := ""
	for _, account := range s.Accounts {
		if currency == "" {
			currency = account.Currency
		}
		out.Accounts = append(out.Accounts, IncomeStatementAccountView{
			Code:   account.Code,
			Name:   account.Name,
			Amount: FormatAmount(account.Amount, account.Currency),
		})
	}
	out.Total = FormatAmount(s.Total, currency)
	return out, currency
}

// View renders the income statement for transport.
func (is IncomeStatement) View() IncomeStatementView {
	income, currency := is.Income.view()
	expense, expenseCurrency := is.Expense.view()
	if currency == "" {
		currency = expenseCurrency
	}
	return IncomeStatementView{
		Income:    income,
		Expense:   expense,
		NetIncome: FormatAmount(is.NetIncome, currency),
	}
}
