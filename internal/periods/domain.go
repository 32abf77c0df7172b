package periods

import (
	"fmt"
	"time"

	"github.com/harbor-fin/harbor/internal/shared"
)

// Status enumerates the period lifecycle.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Period is one fiscal month inside a fiscal year. Periods within a year are
// contiguous and non-overlapping by construction: OpenYear generates all
// twelve at once.
type Period struct {
	ID        int64
	Year      int
	Seq       int
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	// Halted blocks posting after the integrity scan found an imbalance.
	// Cleared manually once the period has been audited.
	Halted    bool
	ClosedBy  *int64
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether date falls inside the period bounds.
func (p Period) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

var (
	// ErrPeriodClosed blocks posting into a closed (or missing) period.
	ErrPeriodClosed = shared.Gate("periods: period is closed for posting")
	// ErrOpenSubperiodsExist blocks closing out of chronological order.
	ErrOpenSubperiodsExist = shared.Gate("periods: earlier periods are still open")
	// ErrUnpostedDraftsExist blocks closing while entries dated inside the
	// period are neither posted nor rejected.
	ErrUnpostedDraftsExist = shared.Gate("periods: pending journal entries dated in period")
	// ErrPeriodHalted blocks posting into a period flagged by the integrity scan.
	ErrPeriodHalted = shared.Integrity("periods: period halted pending manual audit")
	// ErrPostedAfterClose surfaces an entry that slipped past the close gate.
	ErrPostedAfterClose = shared.Integrity("periods: entry posted after period close")
	// ErrYearExists indicates the fiscal year was already opened.
	ErrYearExists = shared.Validation("periods: fiscal year already open")
	// ErrNotOpen indicates close was called on a non-open period.
	ErrNotOpen = shared.State("periods: period is not open")
	// ErrNotClosed indicates reopen was called on a non-closed period.
	ErrNotClosed = shared.State("periods: period is not closed")
	// ErrCloseInProgress indicates another close holds the advisory lock.
	ErrCloseInProgress = shared.State("periods: close already in progress")
	// ErrPeriodNotFound indicates the period id resolves to nothing.
	ErrPeriodNotFound = fmt.Errorf("periods: period %w", shared.ErrNotFound)
)
