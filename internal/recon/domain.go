package recon

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/shared"
)

// Status enumerates reconciliation lifecycle values. Balanced and Abandoned
// are terminal.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusBalanced   Status = "BALANCED"
	StatusUnbalanced Status = "UNBALANCED"
	StatusAbandoned  Status = "ABANDONED"
)

// LineStatus enumerates statement line match outcomes.
type LineStatus string

const (
	LineUnmatched LineStatus = "UNMATCHED"
	LineMatched   LineStatus = "MATCHED"
	// LineException marks zero or multiple candidates; the matcher never
	// guesses among ambiguous candidates, a person resolves these.
	LineException LineStatus = "EXCEPTION"
)

// Reconciliation is one run of statement-to-ledger matching for a bank
// account.
type Reconciliation struct {
	ID               uuid.UUID
	BankAccountID    int64
	Currency         string
	StatementStart   time.Time
	StatementEnd     time.Time
	StatementOpening decimal.Decimal
	StatementClosing decimal.Decimal
	BookClosing      decimal.Decimal
	Variance         decimal.Decimal
	Status           Status
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FinalizedAt      *time.Time
	Lines            []StatementLine
}

// StatementLine is a normalized bank statement movement handed to the core
// by the statement-import collaborator, already parsed from whatever file
// format was uploaded.
type StatementLine struct {
	ID               int64
	ReconciliationID uuid.UUID
	Date             time.Time
	Amount           decimal.Decimal
	Description      string
	ExternalRef      string
	Status           LineStatus
	MatchedLineID    *int64
	// Outstanding marks a line matched to a ledger posting dated after the
	// statement end; it counts toward the finalize variance.
	Outstanding bool
}

// LineInput is the import shape for statement lines.
type LineInput struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	ExternalRef string
}

// LedgerLine is a posted journal line on the bank account, signed
// debit-positive to align with statement conventions for asset accounts.
type LedgerLine struct {
	LineID    int64
	EntryID   int64
	Date      time.Time
	Amount    decimal.Decimal
}

// StartInput groups fields to begin a reconciliation run.
type StartInput struct {
	BankAccountID    int64
	Currency         string
	StatementStart   time.Time
	StatementEnd     time.Time
	StatementOpening decimal.Decimal
	StatementClosing decimal.Decimal
	ActorID          int64
}

// Validate ensures the run bounds are coherent.
func (in StartInput) Validate() error {
	if in.BankAccountID == 0 {
		return shared.Validation("recon: bank account required")
	}
	if len(in.Currency) != 3 {
		return shared.Validation("recon: currency must be an ISO code")
	}
	if in.StatementStart.IsZero() || in.StatementEnd.IsZero() {
		return shared.Validation("recon: statement bounds required")
	}
	if in.StatementEnd.Before(in.StatementStart) {
		return shared.Validation("recon: statement end before start")
	}
	return nil
}

// DefaultMatchWindowDays is the ± day window used when searching ledger
// candidates for a statement line.
const DefaultMatchWindowDays = 3

var (
	// ErrReconciliationInProgress blocks a second concurrent run per account.
	ErrReconciliationInProgress = shared.State("recon: reconciliation already in progress for bank account")
	// ErrNotInProgress indicates the run is already terminal or finalized.
	ErrNotInProgress = shared.State("recon: reconciliation is not in progress")
	// ErrReconNotFound indicates the run id resolves to nothing.
	ErrReconNotFound = fmt.Errorf("recon: reconciliation %w", shared.ErrNotFound)
)
