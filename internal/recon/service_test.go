package recon

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/harbor-fin/harbor/internal/shared"
)

type memoryReconRepo struct {
	recs   map[uuid.UUID]Reconciliation
	ledger map[int64][]LedgerLine
	events []string
	nextID int64
}

func newMemoryReconRepo() *memoryReconRepo {
	return &memoryReconRepo{
		recs:   make(map[uuid.UUID]Reconciliation),
		ledger: make(map[int64][]LedgerLine),
	}
}

func (r *memoryReconRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryReconTx{repo: r})
}

func (r *memoryReconRepo) Get(ctx context.Context, id uuid.UUID) (Reconciliation, error) {
	rec, ok := r.recs[id]
	if !ok {
		return Reconciliation{}, ErrReconNotFound
	}
	return cloneRec(rec), nil
}

type memoryReconTx struct {
	repo *memoryReconRepo
}

func (tx *memoryReconTx) HasActiveForAccount(ctx context.Context, bankAccountID int64) (bool, error) {
	for _, rec := range tx.repo.recs {
		if rec.BankAccountID != bankAccountID {
			continue
		}
		if rec.Status == StatusInProgress || rec.Status == StatusUnbalanced {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryReconTx) Insert(ctx context.Context, in StartInput) (Reconciliation, error) {
	rec := Reconciliation{
		ID:               uuid.New(),
		BankAccountID:    in.BankAccountID,
		Currency:         in.Currency,
		StatementStart:   in.StatementStart,
		StatementEnd:     in.StatementEnd,
		StatementOpening: in.StatementOpening,
		StatementClosing: in.StatementClosing,
		Status:           StatusInProgress,
		CreatedBy:        in.ActorID,
	}
	tx.repo.recs[rec.ID] = rec
	return cloneRec(rec), nil
}

func (tx *memoryReconTx) GetForUpdate(ctx context.Context, id uuid.UUID) (Reconciliation, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryReconTx) InsertLines(ctx context.Context, id uuid.UUID, lines []LineInput) ([]StatementLine, error) {
	rec, ok := tx.repo.recs[id]
	if !ok {
		return nil, ErrReconNotFound
	}
	var inserted []StatementLine
	for _, in := range lines {
		tx.repo.nextID++
		line := StatementLine{
			ID:               tx.repo.nextID,
			ReconciliationID: id,
			Date:             in.Date,
			Amount:           in.Amount,
			Description:      in.Description,
			ExternalRef:      in.ExternalRef,
			Status:           LineUnmatched,
		}
		rec.Lines = append(rec.Lines, line)
		inserted = append(inserted, line)
	}
	tx.repo.recs[id] = rec
	return inserted, nil
}

func (tx *memoryReconTx) UpdateLine(ctx context.Context, line StatementLine) error {
	rec, ok := tx.repo.recs[line.ReconciliationID]
	if !ok {
		return ErrReconNotFound
	}
	for i := range rec.Lines {
		if rec.Lines[i].ID == line.ID {
			rec.Lines[i] = line
		}
	}
	tx.repo.recs[line.ReconciliationID] = rec
	return nil
}

func (tx *memoryReconTx) SetOutcome(ctx context.Context, id uuid.UUID, status Status, bookClosing, variance decimal.Decimal, at *time.Time) error {
	rec, ok := tx.repo.recs[id]
	if !ok {
		return ErrReconNotFound
	}
	rec.Status = status
	rec.BookClosing = bookClosing
	rec.Variance = variance
	rec.FinalizedAt = at
	tx.repo.recs[id] = rec
	return nil
}

func (tx *memoryReconTx) PostedLedgerLines(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error) {
	var out []LedgerLine
	for _, line := range tx.repo.ledger[accountID] {
		if line.Date.Before(from) || line.Date.After(to) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func (tx *memoryReconTx) AppendEvent(ctx context.Context, topic string, payload any) error {
	tx.repo.events = append(tx.repo.events, topic)
	return nil
}

func cloneRec(rec Reconciliation) Reconciliation {
	rec.Lines = append([]StatementLine(nil), rec.Lines...)
	return rec
}

type fixedBook struct {
	balance decimal.Decimal
}

func (b fixedBook) BalanceAsOf(ctx context.Context, accountID int64, date time.Time) (decimal.Decimal, error) {
	return b.balance, nil
}

func day(d int) time.Time {
	return time.Date(2026, time.June, d, 0, 0, 0, 0, time.UTC)
}

func startInput() StartInput {
	return StartInput{
		BankAccountID:    10,
		Currency:         "NGN",
		StatementStart:   day(1),
		StatementEnd:     day(30),
		StatementOpening: decimal.Zero,
		StatementClosing: decimal.RequireFromString("900"),
		ActorID:          3,
	}
}

func newTestRecon(t *testing.T, book decimal.Decimal) (*Service, *memoryReconRepo) {
	t.Helper()
	repo := newMemoryReconRepo()
	service := NewService(repo, fixedBook{balance: book}, nil, nil)
	service.WithNow(func() time.Time { return day(30) })
	return service, repo
}

func TestStartValidatesBounds(t *testing.T) {
	service, _ := newTestRecon(t, decimal.Zero)

	in := startInput()
	in.StatementEnd = day(1)
	in.StatementStart = day(30)

	_, err := service.Start(context.Background(), in)
	require.Equal(t, shared.ClassValidation, shared.ClassOf(err))
}

func TestStartBlocksSecondActiveRun(t *testing.T) {
	service, _ := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	_, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	_, err = service.Start(ctx, startInput())
	require.ErrorIs(t, err, ErrReconciliationInProgress)
}

func TestStartLockBlocksRacingRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locks := shared.NewAdvisoryLock(client, time.Minute)

	repo := newMemoryReconRepo()
	service := NewService(repo, fixedBook{}, locks, nil)
	ctx := context.Background()

	held, err := locks.Acquire(ctx, shared.ReconLockKey(10))
	require.NoError(t, err)
	require.True(t, held)

	_, err = service.Start(ctx, startInput())
	require.ErrorIs(t, err, ErrReconciliationInProgress)

	require.NoError(t, locks.Release(ctx, shared.ReconLockKey(10)))
	_, err = service.Start(ctx, startInput())
	require.NoError(t, err)
}

func TestImportLinesRequiresActiveRun(t *testing.T) {
	service, repo := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	stored := repo.recs[rec.ID]
	stored.Status = StatusBalanced
	repo.recs[rec.ID] = stored

	_, err = service.ImportLines(ctx, rec.ID, []LineInput{{Date: day(5), Amount: decimal.RequireFromString("100")}})
	require.ErrorIs(t, err, ErrNotInProgress)
}

func TestMatchPairsExactAmountWithinWindow(t *testing.T) {
	service, repo := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	repo.ledger[10] = []LedgerLine{
		{LineID: 100, EntryID: 1, Date: day(6), Amount: decimal.RequireFromString("250")},
		{LineID: 101, EntryID: 2, Date: day(20), Amount: decimal.RequireFromString("99.50")},
	}

	_, err = service.ImportLines(ctx, rec.ID, []LineInput{
		{Date: day(5), Amount: decimal.RequireFromString("250"), ExternalRef: "TXN-1"},
		{Date: day(20), Amount: decimal.RequireFromString("99.50"), ExternalRef: "TXN-2"},
		{Date: day(25), Amount: decimal.RequireFromString("42"), ExternalRef: "TXN-3"},
	})
	require.NoError(t, err)

	matched, err := service.Match(ctx, rec.ID)
	require.NoError(t, err)

	require.Equal(t, LineMatched, matched.Lines[0].Status)
	require.Equal(t, int64(100), *matched.Lines[0].MatchedLineID)
	require.Equal(t, LineMatched, matched.Lines[1].Status)
	// No ledger candidate carries 42: the line becomes an exception.
	require.Equal(t, LineException, matched.Lines[2].Status)
	require.Nil(t, matched.Lines[2].MatchedLineID)
}

func TestMatchRejectsCandidatesOutsideWindow(t *testing.T) {
	service, repo := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	// Ledger posting four days away from the statement date. The default
	// window is three days.
	repo.ledger[10] = []LedgerLine{
		{LineID: 100, EntryID: 1, Date: day(9), Amount: decimal.RequireFromString("250")},
	}

	_, err = service.ImportLines(ctx, rec.ID, []LineInput{
		{Date: day(5), Amount: decimal.RequireFromString("250")},
	})
	require.NoError(t, err)

	matched, err := service.Match(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, LineException, matched.Lines[0].Status)
}

func TestMatchLeavesAmbiguousLinesAsExceptions(t *testing.T) {
	service, repo := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	// Two ledger candidates with identical amounts inside the window.
	repo.ledger[10] = []LedgerLine{
		{LineID: 100, EntryID: 1, Date: day(5), Amount: decimal.RequireFromString("200.00")},
		{LineID: 101, EntryID: 2, Date: day(6), Amount: decimal.RequireFromString("200.00")},
	}

	_, err = service.ImportLines(ctx, rec.ID, []LineInput{
		{Date: day(5), Amount: decimal.RequireFromString("200.00")},
	})
	require.NoError(t, err)

	matched, err := service.Match(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, LineException, matched.Lines[0].Status)
	require.Nil(t, matched.Lines[0].MatchedLineID)
}

func TestMatchFlagsOutstandingAfterStatementEnd(t *testing.T) {
	service, repo := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	in := startInput()
	in.StatementEnd = day(28)
	rec, err := service.Start(ctx, in)
	require.NoError(t, err)

	// Cleared in the ledger two days after the statement cut-off.
	repo.ledger[10] = []LedgerLine{
		{LineID: 100, EntryID: 1, Date: day(30), Amount: decimal.RequireFromString("75")},
	}

	_, err = service.ImportLines(ctx, rec.ID, []LineInput{
		{Date: day(28), Amount: decimal.RequireFromString("75")},
	})
	require.NoError(t, err)

	matched, err := service.Match(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, LineMatched, matched.Lines[0].Status)
	require.True(t, matched.Lines[0].Outstanding)
}

func TestFinalizeBalancedWhenVarianceZero(t *testing.T) {
	service, repo := newTestRecon(t, decimal.RequireFromString("900"))
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	final, err := service.Finalize(ctx, rec.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusBalanced, final.Status)
	require.NotNil(t, final.FinalizedAt)
	require.True(t, final.Variance.IsZero())
	require.Contains(t, repo.events, "recon.balanced")
}

func TestFinalizeUnbalancedStaysReviewable(t *testing.T) {
	service, repo := newTestRecon(t, decimal.RequireFromString("850"))
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	final, err := service.Finalize(ctx, rec.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusUnbalanced, final.Status)
	require.Nil(t, final.FinalizedAt)
	require.True(t, final.Variance.Equal(decimal.RequireFromString("50")))
	require.NotContains(t, repo.events, "recon.balanced")

	// Unbalanced runs accept further imports and a fresh finalize.
	_, err = service.ImportLines(ctx, rec.ID, []LineInput{{Date: day(12), Amount: decimal.RequireFromString("50")}})
	require.NoError(t, err)
}

func TestFinalizeBacksOutOutstandingLines(t *testing.T) {
	// Book closing includes a 100 deposit the bank only cleared after the
	// statement end, so statement closing is 100 lower.
	service, repo := newTestRecon(t, decimal.RequireFromString("1000"))
	ctx := context.Background()

	in := startInput()
	in.StatementEnd = day(28)
	in.StatementClosing = decimal.RequireFromString("1100")
	rec, err := service.Start(ctx, in)
	require.NoError(t, err)

	repo.ledger[10] = []LedgerLine{
		{LineID: 100, EntryID: 1, Date: day(30), Amount: decimal.RequireFromString("100")},
	}
	_, err = service.ImportLines(ctx, rec.ID, []LineInput{
		{Date: day(28), Amount: decimal.RequireFromString("100")},
	})
	require.NoError(t, err)
	_, err = service.Match(ctx, rec.ID)
	require.NoError(t, err)

	final, err := service.Finalize(ctx, rec.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusBalanced, final.Status)
	require.True(t, final.Variance.IsZero(), "variance %s", final.Variance)
}

func TestAbandonFreesAccount(t *testing.T) {
	service, _ := newTestRecon(t, decimal.Zero)
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)

	abandoned, err := service.Abandon(ctx, rec.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusAbandoned, abandoned.Status)

	_, err = service.Start(ctx, startInput())
	require.NoError(t, err)
}

func TestAbandonTerminalRunFails(t *testing.T) {
	service, _ := newTestRecon(t, decimal.RequireFromString("900"))
	ctx := context.Background()

	rec, err := service.Start(ctx, startInput())
	require.NoError(t, err)
	_, err = service.Finalize(ctx, rec.ID, 3)
	require.NoError(t, err)

	_, err = service.Abandon(ctx, rec.ID, 3)
	require.ErrorIs(t, err, ErrNotInProgress)
}
