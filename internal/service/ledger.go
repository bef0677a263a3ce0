package service

import (
	"context"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore is the transactional view the transfer engine operates on. Every call
// runs inside the caller's transaction; the engine never commits or rolls back.
//
// Implemented by *repository.Queries (bound with WithTx) and *memstore.Tx.
type LedgerStore interface {
	// GetAccount is a plain read. Missing rows return an error wrapping models.ErrNotFound.
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetAccountForUpdate blocks until the caller holds the row exclusively.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// UpdateAccountBalance sets the balance and increments the version.
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error)
	// UpdateAccountBalanceIfVersion writes only while the version still equals expectedVersion.
	UpdateAccountBalanceIfVersion(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (int64, error)
	CreateTransfer(ctx context.Context, t *models.Transfer) error
}
