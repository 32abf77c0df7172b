package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/shared"
)

// Status enumerates journal entry lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusPosted    Status = "POSTED"
	StatusRejected  Status = "REJECTED"
)

// transitions is the closed set of legal status changes. Every transition is
// validated here, at one choke point, rather than by scattered guard clauses.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusPosted, StatusRejected},
	// Posted and Rejected are terminal. Posted spawns reversal entries;
	// Rejected entries can be cloned into a fresh draft.
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Line stores one debit or credit amount against an account. A line never
// exists outside its parent entry.
type Line struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Side      coa.Side
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

// Debit returns the line amount when it sits on the debit side, else zero.
func (l Line) Debit() decimal.Decimal {
	if l.Side == coa.SideDebit {
		return l.Amount
	}
	return decimal.Zero
}

// Credit returns the line amount when it sits on the credit side, else zero.
func (l Line) Credit() decimal.Decimal {
	if l.Side == coa.SideCredit {
		return l.Amount
	}
	return decimal.Zero
}

// Entry is a journal entry with its full audit trail. Once posted it is
// immutable; corrections happen through reversing entries.
type Entry struct {
	ID           int64
	Number       int64
	Ref          uuid.UUID
	EntryDate    time.Time
	Description  string
	Currency     string
	Status       Status
	ReversalOf   *int64
	CreatedBy    int64
	SubmittedBy  *int64
	SubmittedAt  *time.Time
	ApprovedBy   *int64
	ApprovedAt   *time.Time
	RejectedBy   *int64
	RejectedAt   *time.Time
	RejectReason string
	PostedBy     *int64
	PostedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// LineInput describes a journal line for draft creation.
type LineInput struct {
	AccountID int64
	Side      coa.Side
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

// CreateDraftInput groups fields required to create a draft entry.
type CreateDraftInput struct {
	EntryDate   time.Time
	Description string
	Currency    string
	ActorID     int64
	ReversalOf  *int64
	Lines       []LineInput
}

var (
	// ErrUnbalancedEntry indicates per-currency debits != credits.
	ErrUnbalancedEntry = shared.Validation("journal: debit and credit totals must balance per currency")
	// ErrEmptyEntry indicates fewer than two lines.
	ErrEmptyEntry = shared.Validation("journal: entry requires at least two lines")
	// ErrInvalidAccount indicates a referenced account is unknown or inactive.
	ErrInvalidAccount = shared.Validation("journal: line references an unknown or inactive account")
	// ErrInvalidTransition indicates the operation is illegal from the current status.
	ErrInvalidTransition = shared.State("journal: invalid status transition")
	// ErrAlreadyReversed indicates a reversal already exists for the entry.
	ErrAlreadyReversed = shared.State("journal: entry already reversed")
	// ErrEntryNotFound indicates the entry id resolves to nothing.
	ErrEntryNotFound = fmt.Errorf("journal: entry %w", shared.ErrNotFound)
)

// Validate checks structural invariants: at least two lines, positive
// magnitudes, exactly one side per line, and exact per-currency balance.
func (in CreateDraftInput) Validate() error {
	if in.EntryDate.IsZero() {
		return shared.Validation("journal: entry date required")
	}
	if len(in.Currency) != 3 {
		return shared.Validation("journal: currency must be an ISO code")
	}
	if len(in.Lines) < 2 {
		return ErrEmptyEntry
	}
	debits := make(map[string]decimal.Decimal)
	credits := make(map[string]decimal.Decimal)
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Validation(fmt.Sprintf("journal: line %d missing account", idx))
		}
		if line.Side != coa.SideDebit && line.Side != coa.SideCredit {
			return shared.Validation(fmt.Sprintf("journal: line %d must be a debit or a credit", idx))
		}
		if !line.Amount.IsPositive() {
			return shared.Validation(fmt.Sprintf("journal: line %d amount must be positive", idx))
		}
		currency := line.Currency
		if strings.TrimSpace(currency) == "" {
			currency = in.Currency
		}
		if line.Side == coa.SideDebit {
			debits[currency] = debits[currency].Add(line.Amount)
		} else {
			credits[currency] = credits[currency].Add(line.Amount)
		}
	}
	for currency, debit := range debits {
		if !debit.Equal(credits[currency]) {
			return ErrUnbalancedEntry
		}
	}
	for currency, credit := range credits {
		if _, ok := debits[currency]; !ok && !credit.IsZero() {
			return ErrUnbalancedEntry
		}
	}
	return nil
}
