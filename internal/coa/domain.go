package coa

import (
	"fmt"
	"strings"
	"time"

	"github.com/harbor-fin/harbor/internal/shared"
)

// Classification enumerates top-level account categories.
type Classification string

const (
	ClassificationAsset     Classification = "ASSET"
	ClassificationLiability Classification = "LIABILITY"
	ClassificationEquity    Classification = "EQUITY"
	ClassificationIncome    Classification = "INCOME"
	ClassificationExpense   Classification = "EXPENSE"
)

// Valid reports whether the classification is a known category.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationAsset, ClassificationLiability, ClassificationEquity,
		ClassificationIncome, ClassificationExpense:
		return true
	}
	return false
}

// Side identifies which column grows an account's balance.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalBalance returns the side on which postings increase the balance.
// The mapping is fixed by classification and never changes after creation.
func (c Classification) NormalBalance() Side {
	switch c {
	case ClassificationAsset, ClassificationExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node. Accounts with postings are never
// deleted, only deactivated.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Classification Classification
	ParentID       *int64
	Currency       string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateAccountInput carries fields for a new account.
type CreateAccountInput struct {
	Code           string
	Name           string
	Classification Classification
	ParentCode     string
	Currency       string
	ActorID        int64
}

var (
	// ErrDuplicateCode indicates the code already exists for the tenant.
	ErrDuplicateCode = shared.Validation("coa: account code already exists")
	// ErrInvalidParent indicates a missing parent or a hierarchy cycle.
	ErrInvalidParent = shared.Validation("coa: invalid parent account")
	// ErrAccountNotFound indicates the code resolves to nothing.
	ErrAccountNotFound = fmt.Errorf("coa: account %w", shared.ErrNotFound)
	// ErrAccountInactive indicates the account cannot take new postings.
	ErrAccountInactive = shared.Validation("coa: account is inactive")
)

// Validate ensures create input meets minimum criteria.
func (in CreateAccountInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return shared.Validation("coa: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("coa: name required")
	}
	if !in.Classification.Valid() {
		return shared.Validation("coa: unknown classification")
	}
	if len(in.Currency) != 3 {
		return shared.Validation("coa: currency must be an ISO code")
	}
	return nil
}
