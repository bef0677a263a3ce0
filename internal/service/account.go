package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrValidation marks request data the services refuse before touching storage.
var ErrValidation = errors.New("validation failed")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type AccountService struct {
	store QueryStore
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{store: store}
}

type OpenAccountRequest struct {
	Email          string
	FullName       string
	Currency       string
	OpeningBalance decimal.Decimal
	Role           string
}

// OpenAccount creates an owner and its single account in one transaction.
func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (*models.Owner, *models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, nil, fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if req.OpeningBalance.IsNegative() {
		return nil, nil, fmt.Errorf("%w: opening_balance must not be negative", ErrValidation)
	}
	if err := domain.CheckScale(req.OpeningBalance); err != nil {
		return nil, nil, fmt.Errorf("%w: opening_balance: %s", ErrValidation, err.Error())
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return nil, nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	var (
		owner   *models.Owner
		account *models.Account
	)
	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		owner, err = qtx.CreateOwner(ctx, repository.CreateOwnerParams{
			ID:       uuid.New(),
			Email:    email,
			FullName: strings.TrimSpace(req.FullName),
			Role:     role,
		})
		if err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		account, err = qtx.CreateAccount(ctx, repository.CreateAccountParams{
			ID:             uuid.New(),
			OwnerID:        owner.ID,
			OpeningBalance: req.OpeningBalance,
			Currency:       currency,
		})
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("account opened",
		zap.String("owner_id", owner.ID.String()),
		zap.String("account_id", account.ID.String()),
		zap.String("currency", account.Currency),
	)
	return owner, account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.store.Queries().GetAccount(ctx, id)
}

func (s *AccountService) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	return s.store.Queries().GetOwner(ctx, id)
}

func (s *AccountService) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Account, error) {
	return s.store.Queries().GetAccountByOwner(ctx, ownerID)
}

type TransferPage struct {
	Items    []models.Transfer
	Page     int
	PageSize int
	Total    int64
}

// ListTransfers returns the account's transfers in either role, newest first.
func (s *AccountService) ListTransfers(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*TransferPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	queries := s.store.Queries()
	if _, err := queries.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	items, err := queries.ListTransfersByAccount(ctx, repository.ListTransfersByAccountParams{
		AccountID: accountID,
		Limit:     int32(pageSize),
		Offset:    int32((page - 1) * pageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	total, err := queries.CountTransfersByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("count transfers: %w", err)
	}
	return &TransferPage{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}
