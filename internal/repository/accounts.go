package repository

import (
	"context"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, owner_id, balance, opening_balance, currency, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Balance, &a.OpeningBalance, &a.Currency, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, classifyError(err)
	}
	return &a, nil
}

type CreateOwnerParams struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Role     string
}

const createOwner = `-- name: CreateOwner :one
INSERT INTO owners (id, email, full_name, role)
VALUES ($1, $2, $3, $4)
RETURNING id, email, full_name, role, is_active, created_at, updated_at
`

func (q *Queries) CreateOwner(ctx context.Context, arg CreateOwnerParams) (*models.Owner, error) {
	row := q.db.QueryRow(ctx, createOwner, arg.ID, arg.Email, arg.FullName, arg.Role)
	return scanOwner(row)
}

const getOwner = `-- name: GetOwner :one
SELECT id, email, full_name, role, is_active, created_at, updated_at
FROM owners
WHERE id = $1
`

func (q *Queries) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	return scanOwner(q.db.QueryRow(ctx, getOwner, id))
}

const getOwnerByAccountID = `-- name: GetOwnerByAccountID :one
SELECT o.id, o.email, o.full_name, o.role, o.is_active, o.created_at, o.updated_at
FROM owners o
JOIN accounts a ON a.owner_id = o.id
WHERE a.id = $1
`

func (q *Queries) GetOwnerByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Owner, error) {
	return scanOwner(q.db.QueryRow(ctx, getOwnerByAccountID, accountID))
}

func scanOwner(row rowScanner) (*models.Owner, error) {
	var o models.Owner
	if err := row.Scan(&o.ID, &o.Email, &o.FullName, &o.Role, &o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, classifyError(err)
	}
	return &o, nil
}

type CreateAccountParams struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	OpeningBalance decimal.Decimal
	Currency       string
}

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (id, owner_id, balance, opening_balance, currency)
VALUES ($1, $2, $3, $3, $4)
RETURNING ` + accountColumns

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (*models.Account, error) {
	row := q.db.QueryRow(ctx, createAccount, arg.ID, arg.OwnerID, arg.OpeningBalance, arg.Currency)
	return scanAccount(row)
}

const getAccount = `-- name: GetAccount :one
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
`

// GetAccount is a plain read; it takes no row lock.
func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccount, id))
}

const getAccountForUpdate = `-- name: GetAccountForUpdate :one
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
FOR UPDATE
`

// GetAccountForUpdate blocks until it holds the row lock, which is released when
// the enclosing transaction ends. Waits are bounded by the session lock_timeout.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountForUpdate, id))
}

const getAccountByOwner = `-- name: GetAccountByOwner :one
SELECT ` + accountColumns + `
FROM accounts
WHERE owner_id = $1
`

func (q *Queries) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountByOwner, ownerID))
}

const updateAccountBalance = `-- name: UpdateAccountBalance :execrows
UPDATE accounts
SET balance = $2, version = version + 1, updated_at = NOW()
WHERE id = $1
`

func (q *Queries) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error) {
	result, err := q.db.Exec(ctx, updateAccountBalance, id, balance)
	if err != nil {
		return 0, classifyError(err)
	}
	return result.RowsAffected(), nil
}

const updateAccountBalanceIfVersion = `-- name: UpdateAccountBalanceIfVersion :execrows
UPDATE accounts
SET balance = $3, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2
`

// UpdateAccountBalanceIfVersion applies the write only when the stored version still
// equals expectedVersion. Zero rows affected means another writer got there first.
func (q *Queries) UpdateAccountBalanceIfVersion(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (int64, error) {
	result, err := q.db.Exec(ctx, updateAccountBalanceIfVersion, id, expectedVersion, balance)
	if err != nil {
		return 0, classifyError(err)
	}
	return result.RowsAffected(), nil
}
