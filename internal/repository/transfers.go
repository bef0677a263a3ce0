package repository

import (
	"context"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
)

const transferColumns = `id, sender_account_id, receiver_account_id, amount, status, created_at`

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var t models.Transfer
	if err := row.Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID, &t.Amount, &t.Status, &t.CreatedAt); err != nil {
		return nil, classifyError(err)
	}
	return &t, nil
}

const createTransfer = `-- name: CreateTransfer :one
INSERT INTO transfers (id, sender_account_id, receiver_account_id, amount, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at
`

// CreateTransfer appends t and fills in its CreatedAt.
func (q *Queries) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	err := q.db.QueryRow(ctx, createTransfer, t.ID, t.SenderAccountID, t.ReceiverAccountID, t.Amount, t.Status).
		Scan(&t.CreatedAt)
	return classifyError(err)
}

const getTransfer = `-- name: GetTransfer :one
SELECT ` + transferColumns + `
FROM transfers
WHERE id = $1
`

func (q *Queries) GetTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	return scanTransfer(q.db.QueryRow(ctx, getTransfer, id))
}

type ListTransfersByAccountParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

const listTransfersByAccount = `-- name: ListTransfersByAccount :many
SELECT ` + transferColumns + `
FROM transfers
WHERE sender_account_id = $1 OR receiver_account_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`

func (q *Queries) ListTransfersByAccount(ctx context.Context, arg ListTransfersByAccountParams) ([]models.Transfer, error) {
	rows, err := q.db.Query(ctx, listTransfersByAccount, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	items := []models.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return items, nil
}

const countTransfersByAccount = `-- name: CountTransfersByAccount :one
SELECT COUNT(*)
FROM transfers
WHERE sender_account_id = $1 OR receiver_account_id = $1
`

func (q *Queries) CountTransfersByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countTransfersByAccount, accountID).Scan(&count)
	return count, classifyError(err)
}
