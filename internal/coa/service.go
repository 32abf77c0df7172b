package coa

import (
	"context"
	"fmt"
	"strings"

	"github.com/harbor-fin/harbor/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByCode(ctx context.Context, code string) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context) ([]Account, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetByCode(ctx context.Context, code string) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, in CreateAccountInput, parentID *int64) (Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
	AppendEvent(ctx context.Context, topic string, payload any) error
}

// Service owns account identity, hierarchy, and classification rules.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	now   shared.Clock
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: shared.SystemClock}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now shared.Clock) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount registers a new account in the chart.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var parentID *int64
		if strings.TrimSpace(in.ParentCode) != "" {
			parent, err := tx.GetByCode(ctx, in.ParentCode)
			if err != nil {
				return ErrInvalidParent
			}
			if parent.Currency != in.Currency {
				return ErrInvalidParent
			}
			if err := s.ensureNoCycle(ctx, tx, in.Code, parent); err != nil {
				return err
			}
			parentID = &parent.ID
		}
		created, err := tx.Insert(ctx, in, parentID)
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, in.ActorID, "coa.account.create", account)
	return account, nil
}

// ensureNoCycle walks the parent chain; a parent whose ancestry contains the
// new code would close a loop in the rooted forest.
func (s *Service) ensureNoCycle(ctx context.Context, tx TxRepository, code string, parent Account) error {
	current := parent
	for depth := 0; depth < 64; depth++ {
		if current.Code == code {
			return ErrInvalidParent
		}
		if current.ParentID == nil {
			return nil
		}
		next, err := tx.GetByID(ctx, *current.ParentID)
		if err != nil {
			return err
		}
		current = next
	}
	return ErrInvalidParent
}

// Resolve returns the account registered under code.
func (s *Service) Resolve(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// Classify returns the normal-balance side for code, used by the posting
// engine to decide whether debits grow or shrink the balance.
func (s *Service) Classify(ctx context.Context, code string) (Side, error) {
	account, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return account.Classification.NormalBalance(), nil
}

// Deactivate marks the account inactive; the posting engine refuses new
// lines against it from that point on.
func (s *Service) Deactivate(ctx context.Context, code string, actorID int64) (Account, error) {
	return s.setActive(ctx, code, actorID, false, "coa.account.deactivate", "coa.account.deactivated")
}

// Reactivate returns a previously deactivated account to service.
func (s *Service) Reactivate(ctx context.Context, code string, actorID int64) (Account, error) {
	return s.setActive(ctx, code, actorID, true, "coa.account.reactivate", "coa.account.activated")
}

func (s *Service) setActive(ctx context.Context, code string, actorID int64, active bool, action, topic string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if current.Active == active {
			return shared.State("coa: account already in requested state")
		}
		if err := tx.SetActive(ctx, current.ID, active); err != nil {
			return err
		}
		current.Active = active
		if err := tx.AppendEvent(ctx, topic, map[string]any{
			"account_id": current.ID,
			"code":       current.Code,
		}); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, actorID, action, account)
	return account, nil
}

// List returns every account ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// RollupClassification resolves the top-level classification for reporting
// rollups. Each account keeps its own explicit classification; the rollup only
// walks the hierarchy for presentation grouping.
func (s *Service) RollupClassification(ctx context.Context, code string) (Classification, error) {
	account, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	for account.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *account.ParentID)
		if err != nil {
			return "", err
		}
		account = parent
	}
	return account.Classification, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, account Account) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", account.ID),
		Meta: map[string]any{
			"code":           account.Code,
			"classification": string(account.Classification),
		},
		At: s.now(),
	})
}
