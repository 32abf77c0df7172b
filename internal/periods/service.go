package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harbor-fin/harbor/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	PeriodFor(ctx context.Context, date time.Time) (Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	ListYear(ctx context.Context, year int) ([]Period, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	YearExists(ctx context.Context, year int) (bool, error)
	InsertPeriods(ctx context.Context, periods []Period) ([]Period, error)
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	CountEarlierOpen(ctx context.Context, year, seq int) (int, error)
	CountPendingEntries(ctx context.Context, start, end time.Time) (int, error)
	CountPostedAfter(ctx context.Context, start, end, closedAt time.Time) (int, error)
	SetStatus(ctx context.Context, id int64, status Status, actorID *int64, at *time.Time) error
	SetHalted(ctx context.Context, id int64, halted bool) error
	AppendEvent(ctx context.Context, topic string, payload any) error
}

// Locker serializes the close critical section across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Service manages fiscal year and period lifecycle and the posting gate.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	locks Locker
	now   shared.Clock
}

// NewService constructs the period manager.
func NewService(repo RepositoryPort, audit shared.AuditPort, locks Locker) *Service {
	return &Service{repo: repo, audit: audit, locks: locks, now: shared.SystemClock}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now shared.Clock) {
	if now != nil {
		s.now = now
	}
}

// OpenYear creates twelve contiguous monthly periods covering the year.
func (s *Service) OpenYear(ctx context.Context, year int, actorID int64) ([]Period, error) {
	if year < 1900 || year > 9999 {
		return nil, shared.Validation("periods: implausible fiscal year")
	}
	var created []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.YearExists(ctx, year)
		if err != nil {
			return err
		}
		if exists {
			return ErrYearExists
		}
		months := make([]Period, 0, 12)
		for m := 1; m <= 12; m++ {
			start := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, -1)
			months = append(months, Period{
				Year:      year,
				Seq:       m,
				StartDate: start,
				EndDate:   end,
				Status:    StatusOpen,
			})
		}
		created, err = tx.InsertPeriods(ctx, months)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "periods.year.open", fmt.Sprintf("%d", year), nil)
	return created, nil
}

// Close closes a period. Periods must close in date order, and every journal
// entry dated inside must already be posted or rejected. The advisory lock is
// taken before the row lock so a post racing the close either commits first
// or fails the gate.
func (s *Service) Close(ctx context.Context, periodID, actorID int64) (Period, error) {
	key := shared.PeriodCloseLockKey(periodID)
	if s.locks != nil {
		ok, err := s.locks.Acquire(ctx, key)
		if err != nil {
			return Period{}, err
		}
		if !ok {
			return Period{}, ErrCloseInProgress
		}
		defer func() { _ = s.locks.Release(context.WithoutCancel(ctx), key) }()
	}

	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if current.Status != StatusOpen {
			return ErrNotOpen
		}
		earlier, err := tx.CountEarlierOpen(ctx, current.Year, current.Seq)
		if err != nil {
			return err
		}
		if earlier > 0 {
			return ErrOpenSubperiodsExist
		}
		pending, err := tx.CountPendingEntries(ctx, current.StartDate, current.EndDate)
		if err != nil {
			return err
		}
		if pending > 0 {
			return ErrUnpostedDraftsExist
		}
		at := s.now()
		if err := tx.SetStatus(ctx, current.ID, StatusClosed, &actorID, &at); err != nil {
			return err
		}
		current.Status = StatusClosed
		current.ClosedBy = &actorID
		current.ClosedAt = &at
		if err := tx.AppendEvent(ctx, "periods.period.closed", map[string]any{
			"period_id": current.ID,
			"year":      current.Year,
			"seq":       current.Seq,
		}); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, actorID, "periods.period.close", fmt.Sprintf("%d", period.ID), nil)
	return period, nil
}

// Reopen is the administrative escape hatch. It re-validates that nothing was
// posted into the period after the close committed; a hit means the close
// gate was bypassed and the period stays shut pending audit.
func (s *Service) Reopen(ctx context.Context, periodID, actorID int64) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if current.Status != StatusClosed {
			return ErrNotClosed
		}
		if current.ClosedAt != nil {
			slipped, err := tx.CountPostedAfter(ctx, current.StartDate, current.EndDate, *current.ClosedAt)
			if err != nil {
				return err
			}
			if slipped > 0 {
				return shared.IntegrityErrorf(ErrPostedAfterClose, "period %d has %d entries posted after close", current.ID, slipped)
			}
		}
		if err := tx.SetStatus(ctx, current.ID, StatusOpen, nil, nil); err != nil {
			return err
		}
		current.Status = StatusOpen
		current.ClosedBy = nil
		current.ClosedAt = nil
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, actorID, "periods.period.reopen", fmt.Sprintf("%d", period.ID), nil)
	return period, nil
}

// Halt flags a period after the integrity scan found an imbalance.
func (s *Service) Halt(ctx context.Context, periodID int64) error {
	return s.setHalted(ctx, periodID, true)
}

// ClearHalt releases a halted period once it has been manually audited.
func (s *Service) ClearHalt(ctx context.Context, periodID, actorID int64) error {
	if err := s.setHalted(ctx, periodID, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "periods.period.clear_halt", fmt.Sprintf("%d", periodID), nil)
	return nil
}

func (s *Service) setHalted(ctx context.Context, periodID int64, halted bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, periodID); err != nil {
			return err
		}
		return tx.SetHalted(ctx, periodID, halted)
	})
}

// IsPostable is the single query the posting engine relies on for the
// PeriodClosed check. A date with no period is not postable.
func (s *Service) IsPostable(ctx context.Context, date time.Time) (bool, error) {
	period, err := s.repo.PeriodFor(ctx, date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return period.Status == StatusOpen && !period.Halted, nil
}

// PeriodFor resolves the period containing date.
func (s *Service) PeriodFor(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.PeriodFor(ctx, date)
}

// Get resolves a period by id.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// ListYear returns the periods of a fiscal year in sequence order.
func (s *Service) ListYear(ctx context.Context, year int) ([]Period, error) {
	return s.repo.ListYear(ctx, year)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "financial_period",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
