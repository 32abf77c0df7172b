package recon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Reconciliation, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	HasActiveForAccount(ctx context.Context, bankAccountID int64) (bool, error)
	Insert(ctx context.Context, in StartInput) (Reconciliation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (Reconciliation, error)
	InsertLines(ctx context.Context, id uuid.UUID, lines []LineInput) ([]StatementLine, error)
	UpdateLine(ctx context.Context, line StatementLine) error
	SetOutcome(ctx context.Context, id uuid.UUID, status Status, bookClosing, variance decimal.Decimal, at *time.Time) error
	PostedLedgerLines(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error)
	AppendEvent(ctx context.Context, topic string, payload any) error
}

// BalancePort reads the book balance for the bank account.
type BalancePort interface {
	BalanceAsOf(ctx context.Context, accountID int64, date time.Time) (decimal.Decimal, error)
}

// Locker guards one in-progress run per bank account across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Service matches bank statement lines against posted ledger activity.
type Service struct {
	repo       RepositoryPort
	book       BalancePort
	locks      Locker
	audit      shared.AuditPort
	windowDays int
	now        shared.Clock
}

// NewService constructs the reconciliation matcher.
func NewService(repo RepositoryPort, book BalancePort, locks Locker, audit shared.AuditPort) *Service {
	return &Service{
		repo:       repo,
		book:       book,
		locks:      locks,
		audit:      audit,
		windowDays: DefaultMatchWindowDays,
		now:        shared.SystemClock,
	}
}

// WithWindowDays overrides the candidate search window.
func (s *Service) WithWindowDays(days int) {
	if days > 0 {
		s.windowDays = days
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now shared.Clock) {
	if now != nil {
		s.now = now
	}
}

// Start opens a reconciliation run. At most one run per bank account may be
// in progress; the redis lock catches racing starts before the storage
// constraint would.
func (s *Service) Start(ctx context.Context, in StartInput) (Reconciliation, error) {
	if err := in.Validate(); err != nil {
		return Reconciliation{}, err
	}
	key := shared.ReconLockKey(in.BankAccountID)
	if s.locks != nil {
		ok, err := s.locks.Acquire(ctx, key)
		if err != nil {
			return Reconciliation{}, err
		}
		if !ok {
			return Reconciliation{}, ErrReconciliationInProgress
		}
	}
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.HasActiveForAccount(ctx, in.BankAccountID)
		if err != nil {
			return err
		}
		if active {
			return ErrReconciliationInProgress
		}
		created, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		rec = created
		return nil
	})
	if err != nil {
		if s.locks != nil {
			_ = s.locks.Release(context.WithoutCancel(ctx), key)
		}
		return Reconciliation{}, err
	}
	s.recordAudit(ctx, in.ActorID, "recon.start", rec)
	return rec, nil
}

// ImportLines attaches normalized statement lines to an in-progress run.
func (s *Service) ImportLines(ctx context.Context, id uuid.UUID, lines []LineInput) (Reconciliation, error) {
	if len(lines) == 0 {
		return Reconciliation{}, shared.Validation("recon: no statement lines supplied")
	}
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusInProgress && current.Status != StatusUnbalanced {
			return ErrNotInProgress
		}
		inserted, err := tx.InsertLines(ctx, id, lines)
		if err != nil {
			return err
		}
		current.Lines = append(current.Lines, inserted...)
		rec = current
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return rec, nil
}

// Match pairs statement lines with posted ledger lines on the bank account.
// A candidate must carry exactly the statement amount and fall within the
// ±window around the statement date. Exactly one candidate matches; zero or
// several leave the line as an exception for manual resolution.
func (s *Service) Match(ctx context.Context, id uuid.UUID) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusInProgress && current.Status != StatusUnbalanced {
			return ErrNotInProgress
		}
		window := time.Duration(s.windowDays) * 24 * time.Hour
		ledger, err := tx.PostedLedgerLines(ctx, current.BankAccountID,
			current.StatementStart.Add(-window), current.StatementEnd.Add(window))
		if err != nil {
			return err
		}
		consumed := make(map[int64]bool)
		for _, line := range current.Lines {
			if line.MatchedLineID != nil {
				consumed[*line.MatchedLineID] = true
			}
		}
		for i, line := range current.Lines {
			if line.Status == LineMatched {
				continue
			}
			candidates := candidatesFor(line, ledger, consumed, window)
			switch len(candidates) {
			case 1:
				matched := candidates[0]
				line.Status = LineMatched
				line.MatchedLineID = &matched.LineID
				line.Outstanding = matched.Date.After(current.StatementEnd)
				consumed[matched.LineID] = true
			default:
				line.Status = LineException
				line.MatchedLineID = nil
			}
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
			current.Lines[i] = line
		}
		rec = current
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return rec, nil
}

func candidatesFor(line StatementLine, ledger []LedgerLine, consumed map[int64]bool, window time.Duration) []LedgerLine {
	var out []LedgerLine
	for _, candidate := range ledger {
		if consumed[candidate.LineID] {
			continue
		}
		if !candidate.Amount.Equal(line.Amount) {
			continue
		}
		diff := candidate.Date.Sub(line.Date)
		if diff < 0 {
			diff = -diff
		}
		if diff > window {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// Finalize computes the book closing balance and the variance. Matched lines
// cleared after the statement end count as outstanding and are backed out of
// the variance. Within the currency's minor unit the run is Balanced and
// terminal; otherwise it stays reviewable as Unbalanced.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, actorID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusInProgress && current.Status != StatusUnbalanced {
			return ErrNotInProgress
		}
		bookClosing, err := s.book.BalanceAsOf(ctx, current.BankAccountID, current.StatementEnd)
		if err != nil {
			return err
		}
		outstanding := decimal.Zero
		for _, line := range current.Lines {
			if line.Status == LineMatched && line.Outstanding {
				outstanding = outstanding.Add(line.Amount)
			}
		}
		variance := current.StatementClosing.Sub(bookClosing).Sub(outstanding)
		status := StatusUnbalanced
		var finalizedAt *time.Time
		if shared.SameMagnitude(variance, decimal.Zero, current.Currency) {
			status = StatusBalanced
			at := s.now()
			finalizedAt = &at
		}
		if err := tx.SetOutcome(ctx, id, status, bookClosing, variance, finalizedAt); err != nil {
			return err
		}
		if status == StatusBalanced {
			if err := tx.AppendEvent(ctx, "recon.balanced", map[string]any{
				"reconciliation_id": id,
				"bank_account_id":   current.BankAccountID,
			}); err != nil {
				return err
			}
		}
		current.Status = status
		current.BookClosing = bookClosing
		current.Variance = variance
		current.FinalizedAt = finalizedAt
		rec = current
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if rec.Status == StatusBalanced {
		s.releaseLock(ctx, rec.BankAccountID)
	}
	s.recordAudit(ctx, actorID, "recon.finalize", rec)
	return rec, nil
}

// Abandon terminalizes a run without balancing it and frees the account for
// a fresh start.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID, actorID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusBalanced || current.Status == StatusAbandoned {
			return ErrNotInProgress
		}
		if err := tx.SetOutcome(ctx, id, StatusAbandoned, current.BookClosing, current.Variance, nil); err != nil {
			return err
		}
		current.Status = StatusAbandoned
		rec = current
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.releaseLock(ctx, rec.BankAccountID)
	s.recordAudit(ctx, actorID, "recon.abandon", rec)
	return rec, nil
}

// Get loads a reconciliation with lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Reconciliation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) releaseLock(ctx context.Context, bankAccountID int64) {
	if s.locks != nil {
		_ = s.locks.Release(context.WithoutCancel(ctx), shared.ReconLockKey(bankAccountID))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, rec Reconciliation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bank_reconciliation",
		EntityID: rec.ID.String(),
		Meta: map[string]any{
			"bank_account_id": rec.BankAccountID,
			"status":          string(rec.Status),
			"variance":        rec.Variance.String(),
		},
		At: s.now(),
	})
}
