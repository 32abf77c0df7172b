package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/periods"
	"github.com/harbor-fin/harbor/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

// TxRepository exposes the operations the engine performs inside one
// transaction. Posting spans entry status, every balance apply, and the
// outbox append; either all commit or none do.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (coa.Account, error)
	GetEntryForUpdate(ctx context.Context, id int64) (Entry, error)
	GetPeriodForUpdate(ctx context.Context, date time.Time) (periods.Period, error)
	Insert(ctx context.Context, in CreateDraftInput) (Entry, error)
	SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time, reason string) error
	HasReversal(ctx context.Context, id int64) (bool, error)
	ApplyBalance(ctx context.Context, accountID, periodID int64, debit, credit decimal.Decimal) error
	AppendEvent(ctx context.Context, topic string, payload any) error
}

// RatePort converts between currencies for multi-currency entries.
type RatePort interface {
	Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error)
}

// PostObserver counts posted entries for metrics.
type PostObserver interface {
	ObserveEntryPosted()
}

// DefaultPostRetries bounds how often a conflicted posting transaction is
// rerun before the conflict surfaces to the caller.
const DefaultPostRetries = 3

// Service drives the entry lifecycle and is the only writer of ledger
// balances.
type Service struct {
	repo     RepositoryPort
	rates    RatePort
	audit    shared.AuditPort
	observer PostObserver
	retries  int
	now      shared.Clock
}

// NewService constructs the journal entry engine.
func NewService(repo RepositoryPort, rates RatePort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, rates: rates, audit: audit, retries: DefaultPostRetries, now: shared.SystemClock}
}

// WithRetries overrides the bound on conflicted-posting reruns.
func (s *Service) WithRetries(n int) {
	if n > 0 {
		s.retries = n
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now shared.Clock) {
	if now != nil {
		s.now = now
	}
}

// WithObserver wires a metrics observer.
func (s *Service) WithObserver(o PostObserver) {
	s.observer = o
}

// CreateDraft validates the balance invariant and account references, then
// persists a new Draft entry. Validation repeats at post time: accounts can
// deactivate and periods can close between the two.
func (s *Service) CreateDraft(ctx context.Context, in CreateDraftInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkAccounts(ctx, tx, in.Lines); err != nil {
			return err
		}
		created, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, in.ActorID, "journal.draft.create", entry, nil)
	return entry, nil
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, lines []LineInput) error {
	for _, line := range lines {
		account, err := tx.GetAccount(ctx, line.AccountID)
		if err != nil {
			return ErrInvalidAccount
		}
		if !account.Active {
			return ErrInvalidAccount
		}
	}
	return nil
}

// Submit moves a Draft entry into review.
func (s *Service) Submit(ctx context.Context, entryID, actorID int64) (Entry, error) {
	return s.transition(ctx, entryID, actorID, StatusSubmitted, "", "journal.entry.submit")
}

// Approve clears a Submitted entry for posting.
func (s *Service) Approve(ctx context.Context, entryID, approverID int64) (Entry, error) {
	return s.transition(ctx, entryID, approverID, StatusApproved, "", "journal.entry.approve")
}

// Reject terminates a Submitted or Approved entry. The rejected record is
// immutable; CloneRejected starts over from a copy.
func (s *Service) Reject(ctx context.Context, entryID, actorID int64, reason string) (Entry, error) {
	if strings.TrimSpace(reason) == "" {
		return Entry{}, shared.Validation("journal: rejection reason required")
	}
	return s.transition(ctx, entryID, actorID, StatusRejected, reason, "journal.entry.reject")
}

func (s *Service) transition(ctx context.Context, entryID, actorID int64, to Status, reason, action string) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, to) {
			return ErrInvalidTransition
		}
		at := s.now()
		if err := tx.SetStatus(ctx, current.ID, to, actorID, at, reason); err != nil {
			return err
		}
		current.Status = to
		switch to {
		case StatusSubmitted:
			current.SubmittedBy, current.SubmittedAt = &actorID, &at
		case StatusApproved:
			current.ApprovedBy, current.ApprovedAt = &actorID, &at
		case StatusRejected:
			current.RejectedBy, current.RejectedAt = &actorID, &at
			current.RejectReason = reason
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	meta := map[string]any{}
	if reason != "" {
		meta["reason"] = reason
	}
	s.recordAudit(ctx, actorID, action, entry, meta)
	return entry, nil
}

// Post commits an Approved entry to the ledger. It re-validates the balance
// invariant and the period gate inside the transaction, then applies every
// line to the balance store atomically. This is the only operation anywhere
// that mutates ledger balances.
func (s *Service) Post(ctx context.Context, entryID, actorID int64) (Entry, error) {
	var entry Entry
	post := func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, StatusPosted) {
			return ErrInvalidTransition
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.EntryDate)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// No period covers the date; not postable.
				return periods.ErrPeriodClosed
			}
			return err
		}
		if period.Status != periods.StatusOpen {
			return periods.ErrPeriodClosed
		}
		if period.Halted {
			return periods.ErrPeriodHalted
		}
		if err := s.revalidateBalance(current); err != nil {
			return err
		}
		for _, line := range current.Lines {
			debit, credit, err := s.functionalAmounts(ctx, tx, current, line)
			if err != nil {
				return err
			}
			if err := tx.ApplyBalance(ctx, line.AccountID, period.ID, debit, credit); err != nil {
				return err
			}
		}
		at := s.now()
		if err := tx.SetStatus(ctx, current.ID, StatusPosted, actorID, at, ""); err != nil {
			return err
		}
		current.Status = StatusPosted
		current.PostedBy, current.PostedAt = &actorID, &at
		if err := tx.AppendEvent(ctx, "journal.entry.posted", map[string]any{
			"entry_id":  current.ID,
			"number":    current.Number,
			"period_id": period.ID,
		}); err != nil {
			return err
		}
		entry = current
		return nil
	}
	// A conflicted transaction is doomed and rolled back whole, so the
	// retry reruns from a fresh transaction rather than inside it.
	var err error
	for attempt := 0; ; attempt++ {
		err = s.repo.WithTx(ctx, post)
		if err == nil || shared.ClassOf(err) != shared.ClassConflict || attempt >= s.retries {
			break
		}
	}
	if err != nil {
		return Entry{}, err
	}
	if s.observer != nil {
		s.observer.ObserveEntryPosted()
	}
	s.recordAudit(ctx, actorID, "journal.entry.post", entry, nil)
	return entry, nil
}

// revalidateBalance repeats the per-currency balance check on the stored
// lines before committing them to balances.
func (s *Service) revalidateBalance(entry Entry) error {
	totals := make(map[string]decimal.Decimal)
	for _, line := range entry.Lines {
		currency := line.Currency
		if currency == "" {
			currency = entry.Currency
		}
		totals[currency] = totals[currency].Add(line.Debit()).Sub(line.Credit())
	}
	for _, diff := range totals {
		if !diff.IsZero() {
			return ErrUnbalancedEntry
		}
	}
	return nil
}

// functionalAmounts converts a line into the account's functional currency.
func (s *Service) functionalAmounts(ctx context.Context, tx TxRepository, entry Entry, line Line) (decimal.Decimal, decimal.Decimal, error) {
	account, err := tx.GetAccount(ctx, line.AccountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, ErrInvalidAccount
	}
	// Reversals are exempt from the active check: backing out posted history
	// on a deactivated account must not require reactivating it.
	if !account.Active && entry.ReversalOf == nil {
		return decimal.Zero, decimal.Zero, ErrInvalidAccount
	}
	amount := line.Amount
	lineCurrency := line.Currency
	if lineCurrency == "" {
		lineCurrency = entry.Currency
	}
	if lineCurrency != account.Currency {
		if s.rates == nil {
			return decimal.Zero, decimal.Zero, shared.Validation("journal: no rate provider for cross-currency line")
		}
		rate, err := s.rates.Rate(ctx, lineCurrency, account.Currency, entry.EntryDate)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		amount = amount.Mul(rate)
	}
	if line.Side == coa.SideDebit {
		return amount, decimal.Zero, nil
	}
	return decimal.Zero, amount, nil
}

// Reverse creates a brand-new draft negating a posted entry: same accounts
// and amounts, debit and credit flipped, referencing the original. The
// original is never touched.
func (s *Service) Reverse(ctx context.Context, entryID, actorID int64) (Entry, error) {
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return ErrInvalidTransition
		}
		reversed, err := tx.HasReversal(ctx, original.ID)
		if err != nil {
			return err
		}
		if reversed {
			return ErrAlreadyReversed
		}
		// No checkAccounts pass here: the lines come from a posted entry,
		// and reversals stay valid after an account is deactivated.
		in := CreateDraftInput{
			EntryDate:   original.EntryDate,
			Description: fmt.Sprintf("Reversal of entry %d", original.Number),
			Currency:    original.Currency,
			ActorID:     actorID,
			ReversalOf:  &original.ID,
			Lines:       flipLines(original.Lines),
		}
		created, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		reversal = created
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.entry.reverse", reversal, map[string]any{"original_id": entryID})
	return reversal, nil
}

// CloneRejected copies a rejected entry into a fresh draft.
func (s *Service) CloneRejected(ctx context.Context, entryID, actorID int64) (Entry, error) {
	var clone Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if original.Status != StatusRejected {
			return ErrInvalidTransition
		}
		in := CreateDraftInput{
			EntryDate:   original.EntryDate,
			Description: original.Description,
			Currency:    original.Currency,
			ActorID:     actorID,
			Lines:       copyLines(original.Lines),
		}
		created, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		clone = created
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.entry.clone", clone, map[string]any{"original_id": entryID})
	return clone, nil
}

// Get loads an entry with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx)
}

func flipLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		side := coa.SideDebit
		if line.Side == coa.SideDebit {
			side = coa.SideCredit
		}
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Side:      side,
			Amount:    line.Amount,
			Currency:  line.Currency,
			Reference: line.Reference,
		})
	}
	return out
}

func copyLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Side:      line.Side,
			Amount:    line.Amount,
			Currency:  line.Currency,
			Reference: line.Reference,
		})
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entry Entry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
