package reports

import (
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/balances"
	"github.com/harbor-fin/harbor/internal/coa"
)

// IncomeStatementAccount represents one income or expense account summary.
type IncomeStatementAccount struct {
	Code     string
	Name     string
	Currency string
	Amount   decimal.Decimal
}

// IncomeStatementSection groups accounts by nature.
type IncomeStatementSection struct {
	Label    string
	Accounts []IncomeStatementAccount
	Total    decimal.Decimal
}

// IncomeStatement reports income and expense activity strictly within the
// requested range: income and expense accounts notionally reset each fiscal
// year, so the aggregator scopes to the period range rather than cumulative
// since-inception balances.
type IncomeStatement struct {
	Income    IncomeStatementSection
	Expense   IncomeStatementSection
	NetIncome decimal.Decimal
}

// BuildIncomeStatement aggregates range-scoped rows into the statement.
func BuildIncomeStatement(rows []balances.Row) IncomeStatement {
	income := IncomeStatementSection{Label: "Income"}
	expense := IncomeStatementSection{Label: "Expense"}

	for _, row := range rows {
		switch coa.Classification(row.Classification) {
		case coa.ClassificationIncome:
			amount := row.Net.Neg()
			income.Accounts = append(income.Accounts, IncomeStatementAccount{Code: row.Code, Name: row.Name, Currency: row.Currency, Amount: amount})
			income.Total = income.Total.Add(amount)
		case coa.ClassificationExpense:
			expense.Accounts = append(expense.Accounts, IncomeStatementAccount{Code: row.Code, Name: row.Name, Currency: row.Currency, Amount: row.Net})
			expense.Total = expense.Total.Add(row.Net)
		}
	}

	return IncomeStatement{
		Income:    income,
		Expense:   expense,
		NetIncome: income.Total.Sub(expense.Total),
	}
}
