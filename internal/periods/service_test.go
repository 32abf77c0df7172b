package periods

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harbor-fin/harbor/internal/shared"
)

type pendingRange struct {
	start time.Time
	end   time.Time
	count int
}

type memoryPeriodRepo struct {
	periods map[int64]Period
	// pending simulates unposted journal entries dated inside a range.
	pending []pendingRange
	// postedAfter simulates entries posted after a close timestamp.
	postedAfter []pendingRange
	events      []string
	nextID      int64
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{periods: make(map[int64]Period)}
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryPeriodTx{repo: r})
}

func (r *memoryPeriodRepo) PeriodFor(ctx context.Context, date time.Time) (Period, error) {
	for _, p := range r.periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (r *memoryPeriodRepo) Get(ctx context.Context, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (r *memoryPeriodRepo) ListYear(ctx context.Context, year int) ([]Period, error) {
	var out []Period
	for seq := 1; seq <= 12; seq++ {
		for _, p := range r.periods {
			if p.Year == year && p.Seq == seq {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type memoryPeriodTx struct {
	repo *memoryPeriodRepo
}

func (tx *memoryPeriodTx) YearExists(ctx context.Context, year int) (bool, error) {
	for _, p := range tx.repo.periods {
		if p.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryPeriodTx) InsertPeriods(ctx context.Context, periods []Period) ([]Period, error) {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		tx.repo.nextID++
		p.ID = tx.repo.nextID
		tx.repo.periods[p.ID] = p
		out = append(out, p)
	}
	return out, nil
}

func (tx *memoryPeriodTx) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryPeriodTx) CountEarlierOpen(ctx context.Context, year, seq int) (int, error) {
	count := 0
	for _, p := range tx.repo.periods {
		if p.Year == year && p.Seq < seq && p.Status == StatusOpen {
			count++
		}
	}
	return count, nil
}

func (tx *memoryPeriodTx) CountPendingEntries(ctx context.Context, start, end time.Time) (int, error) {
	count := 0
	for _, pr := range tx.repo.pending {
		if pr.start.Equal(start) && pr.end.Equal(end) {
			count += pr.count
		}
	}
	return count, nil
}

func (tx *memoryPeriodTx) CountPostedAfter(ctx context.Context, start, end, closedAt time.Time) (int, error) {
	count := 0
	for _, pr := range tx.repo.postedAfter {
		if pr.start.Equal(start) && pr.end.Equal(end) {
			count += pr.count
		}
	}
	return count, nil
}

func (tx *memoryPeriodTx) SetStatus(ctx context.Context, id int64, status Status, actorID *int64, at *time.Time) error {
	p, ok := tx.repo.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = status
	p.ClosedBy = actorID
	p.ClosedAt = at
	tx.repo.periods[id] = p
	return nil
}

func (tx *memoryPeriodTx) SetHalted(ctx context.Context, id int64, halted bool) error {
	p, ok := tx.repo.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Halted = halted
	tx.repo.periods[id] = p
	return nil
}

func (tx *memoryPeriodTx) AppendEvent(ctx context.Context, topic string, payload any) error {
	tx.repo.events = append(tx.repo.events, topic)
	return nil
}

func openYear(t *testing.T, service *Service, year int) []Period {
	t.Helper()
	created, err := service.OpenYear(context.Background(), year, 1)
	require.NoError(t, err)
	require.Len(t, created, 12)
	return created
}

func TestOpenYearCreatesTwelveContiguousPeriods(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)

	created := openYear(t, service, 2026)

	for i, p := range created {
		require.Equal(t, i+1, p.Seq)
		require.Equal(t, StatusOpen, p.Status)
		if i > 0 {
			require.Equal(t, created[i-1].EndDate.AddDate(0, 0, 1), p.StartDate, "periods must be contiguous")
		}
	}
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), created[0].StartDate)
	require.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), created[11].EndDate)
}

func TestOpenYearTwiceFails(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)

	openYear(t, service, 2026)

	_, err := service.OpenYear(context.Background(), 2026, 1)
	require.ErrorIs(t, err, ErrYearExists)
}

func TestCloseEnforcesDateOrder(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)

	// February cannot close while January is open.
	_, err := service.Close(context.Background(), created[1].ID, 1)
	require.ErrorIs(t, err, ErrOpenSubperiodsExist)

	closed, err := service.Close(context.Background(), created[0].ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = service.Close(context.Background(), created[1].ID, 1)
	require.NoError(t, err)
	require.Contains(t, repo.events, "periods.period.closed")
}

func TestCloseBlocksOnPendingEntries(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)

	repo.pending = []pendingRange{{start: created[0].StartDate, end: created[0].EndDate, count: 2}}

	_, err := service.Close(context.Background(), created[0].ID, 1)
	require.ErrorIs(t, err, ErrUnpostedDraftsExist)
	require.Equal(t, shared.ClassGate, shared.ClassOf(err))
}

func TestCloseRequiresOpenStatus(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)

	_, err := service.Close(context.Background(), created[0].ID, 1)
	require.NoError(t, err)

	_, err = service.Close(context.Background(), created[0].ID, 1)
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestCloseSerializedByAdvisoryLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locks := shared.NewAdvisoryLock(client, time.Minute)

	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, locks)
	created := openYear(t, service, 2026)

	// A held lock means another close is mid-flight.
	held, err := locks.Acquire(context.Background(), shared.PeriodCloseLockKey(created[0].ID))
	require.NoError(t, err)
	require.True(t, held)

	_, err = service.Close(context.Background(), created[0].ID, 1)
	require.ErrorIs(t, err, ErrCloseInProgress)

	require.NoError(t, locks.Release(context.Background(), shared.PeriodCloseLockKey(created[0].ID)))

	closed, err := service.Close(context.Background(), created[0].ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	// The lock is released after the close commits.
	held, err = locks.Acquire(context.Background(), shared.PeriodCloseLockKey(created[0].ID))
	require.NoError(t, err)
	require.True(t, held)
}

func TestReopenRestoresOpenStatus(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)

	_, err := service.Close(context.Background(), created[0].ID, 1)
	require.NoError(t, err)

	reopened, err := service.Reopen(context.Background(), created[0].ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, reopened.Status)
	require.Nil(t, reopened.ClosedAt)
}

func TestReopenRequiresClosedStatus(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)

	_, err := service.Reopen(context.Background(), created[0].ID, 1)
	require.ErrorIs(t, err, ErrNotClosed)
}

func TestReopenDetectsPostAfterClose(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)

	_, err := service.Close(context.Background(), created[0].ID, 1)
	require.NoError(t, err)

	repo.postedAfter = []pendingRange{{start: created[0].StartDate, end: created[0].EndDate, count: 1}}

	_, err = service.Reopen(context.Background(), created[0].ID, 1)
	require.ErrorIs(t, err, ErrPostedAfterClose)
	require.Equal(t, shared.ClassIntegrity, shared.ClassOf(err))
}

func TestIsPostable(t *testing.T) {
	repo := newMemoryPeriodRepo()
	service := NewService(repo, nil, nil)
	created := openYear(t, service, 2026)
	ctx := context.Background()

	ok, err := service.IsPostable(ctx, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)

	// No period covers the date.
	ok, err = service.IsPostable(ctx, time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, ok)

	// Halted periods refuse postings without being closed.
	require.NoError(t, service.Halt(ctx, created[4].ID))
	ok, err = service.IsPostable(ctx, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, service.ClearHalt(ctx, created[4].ID, 1))
	ok, err = service.IsPostable(ctx, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)
}
