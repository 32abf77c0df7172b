package coa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harbor-fin/harbor/internal/shared"
)

type memoryAccountRepo struct {
	byID   map[int64]Account
	byCode map[string]int64
	events []string
	nextID int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		byID:   make(map[int64]Account),
		byCode: make(map[string]int64),
	}
}

func (r *memoryAccountRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryAccountTx{repo: r})
}

func (r *memoryAccountRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	id, ok := r.byCode[code]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *memoryAccountRepo) GetByID(ctx context.Context, id int64) (Account, error) {
	account, ok := r.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *memoryAccountRepo) List(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(r.byID))
	for _, account := range r.byID {
		out = append(out, account)
	}
	return out, nil
}

type memoryAccountTx struct {
	repo *memoryAccountRepo
}

func (tx *memoryAccountTx) GetByCode(ctx context.Context, code string) (Account, error) {
	return tx.repo.GetByCode(ctx, code)
}

func (tx *memoryAccountTx) GetByID(ctx context.Context, id int64) (Account, error) {
	return tx.repo.GetByID(ctx, id)
}

func (tx *memoryAccountTx) Insert(ctx context.Context, in CreateAccountInput, parentID *int64) (Account, error) {
	if _, exists := tx.repo.byCode[in.Code]; exists {
		return Account{}, ErrDuplicateCode
	}
	tx.repo.nextID++
	account := Account{
		ID:             tx.repo.nextID,
		Code:           in.Code,
		Name:           in.Name,
		Classification: in.Classification,
		ParentID:       parentID,
		Currency:       in.Currency,
		Active:         true,
	}
	tx.repo.byID[account.ID] = account
	tx.repo.byCode[account.Code] = account.ID
	return account, nil
}

func (tx *memoryAccountTx) SetActive(ctx context.Context, id int64, active bool) error {
	account, ok := tx.repo.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.Active = active
	tx.repo.byID[id] = account
	return nil
}

func (tx *memoryAccountTx) AppendEvent(ctx context.Context, topic string, payload any) error {
	tx.repo.events = append(tx.repo.events, topic)
	return nil
}

func accountInput(code, parent string) CreateAccountInput {
	return CreateAccountInput{
		Code:           code,
		Name:           "Account " + code,
		Classification: ClassificationAsset,
		ParentCode:     parent,
		Currency:       "NGN",
		ActorID:        1,
	}
}

func TestCreateAccount(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)
	ctx := context.Background()

	account, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)
	require.Equal(t, "1000", account.Code)
	require.True(t, account.Active)
	require.Nil(t, account.ParentID)
}

func TestCreateAccountRejectsDuplicateCode(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)

	_, err = service.CreateAccount(ctx, accountInput("1000", ""))
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCreateAccountRejectsUnknownParent(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)

	_, err := service.CreateAccount(context.Background(), accountInput("1010", "9999"))
	require.ErrorIs(t, err, ErrInvalidParent)
}

func TestCreateAccountRejectsCurrencyMismatchWithParent(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)

	in := accountInput("1010", "1000")
	in.Currency = "USD"
	_, err = service.CreateAccount(ctx, in)
	require.ErrorIs(t, err, ErrInvalidParent)
}

func TestCreateAccountRejectsSelfParent(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)

	// Reusing an existing code as both child and ancestor closes a loop.
	_, err = service.CreateAccount(ctx, accountInput("1000", "1000"))
	require.ErrorIs(t, err, ErrInvalidParent)
}

func TestCreateAccountValidation(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)
	ctx := context.Background()

	in := accountInput("1000", "")
	in.Classification = "WEIRD"
	_, err := service.CreateAccount(ctx, in)
	require.Equal(t, shared.ClassValidation, shared.ClassOf(err))

	in = accountInput("1000", "")
	in.Currency = "NAIRA"
	_, err = service.CreateAccount(ctx, in)
	require.Equal(t, shared.ClassValidation, shared.ClassOf(err))
}

func TestClassifyReturnsNormalBalance(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)

	in := accountInput("4000", "")
	in.Classification = ClassificationIncome
	_, err = service.CreateAccount(ctx, in)
	require.NoError(t, err)

	side, err := service.Classify(ctx, "1000")
	require.NoError(t, err)
	require.Equal(t, SideDebit, side)

	side, err = service.Classify(ctx, "4000")
	require.NoError(t, err)
	require.Equal(t, SideCredit, side)
}

func TestDeactivateReactivate(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)

	account, err := service.Deactivate(ctx, "1000", 2)
	require.NoError(t, err)
	require.False(t, account.Active)

	// Deactivating twice is a state error.
	_, err = service.Deactivate(ctx, "1000", 2)
	require.Equal(t, shared.ClassState, shared.ClassOf(err))

	account, err = service.Reactivate(ctx, "1000", 2)
	require.NoError(t, err)
	require.True(t, account.Active)

	require.Contains(t, repo.events, "coa.account.deactivated")
	require.Contains(t, repo.events, "coa.account.activated")
}

func TestRollupClassificationWalksToRoot(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)
	ctx := context.Background()

	_, err := service.CreateAccount(ctx, accountInput("1000", ""))
	require.NoError(t, err)
	_, err = service.CreateAccount(ctx, accountInput("1010", "1000"))
	require.NoError(t, err)
	_, err = service.CreateAccount(ctx, accountInput("1011", "1010"))
	require.NoError(t, err)

	classification, err := service.RollupClassification(ctx, "1011")
	require.NoError(t, err)
	require.Equal(t, ClassificationAsset, classification)
}

func TestNormalBalanceMapping(t *testing.T) {
	require.Equal(t, SideDebit, ClassificationAsset.NormalBalance())
	require.Equal(t, SideDebit, ClassificationExpense.NormalBalance())
	require.Equal(t, SideCredit, ClassificationLiability.NormalBalance())
	require.Equal(t, SideCredit, ClassificationEquity.NormalBalance())
	require.Equal(t, SideCredit, ClassificationIncome.NormalBalance())
}
